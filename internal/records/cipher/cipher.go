// Package cipher seals record fields with XChaCha20-Poly1305.
package cipher

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrDecrypt = errors.New("record field could not be decrypted")

// FieldCipher encrypts single fields. Each ciphertext is nonce || sealed
// box, bound to associated data such as the record id.
type FieldCipher struct {
	key []byte
}

func New(key []byte) (*FieldCipher, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("record key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &FieldCipher{key: k}, nil
}

// FromHex parses a hex-encoded 32-byte key.
func FromHex(s string) (*FieldCipher, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("record key is not hex: %w", err)
	}
	return New(key)
}

func (c *FieldCipher) Seal(plaintext, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, ad), nil
}

func (c *FieldCipher) Open(sealed, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrDecrypt
	}
	nonce, box := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, box, ad)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}
