// Package signature verifies patient consent signatures. Clients sign with
// EIP-191 personal_sign over secp256k1 (ethers Wallet.signMessage), so the
// digest is keccak256("\x19Ethereum Signed Message:\n" + len + message).
package signature

import (
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	dErrors "rekamed/pkg/domain-errors"
)

const signatureLength = 65

// Key is a registered verification key reduced to the address it controls.
type Key struct {
	Address common.Address
}

// ParseKey accepts a hex public key (65-byte uncompressed, 64-byte raw,
// 33-byte compressed) or a 20-byte address, with or without 0x.
func ParseKey(s string) (Key, error) {
	raw := common.FromHex(strings.TrimSpace(s))
	switch len(raw) {
	case common.AddressLength:
		return Key{Address: common.BytesToAddress(raw)}, nil
	case 33:
		pub, err := crypto.DecompressPubkey(raw)
		if err != nil {
			return Key{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid compressed public key")
		}
		return Key{Address: crypto.PubkeyToAddress(*pub)}, nil
	case 64:
		raw = append([]byte{0x04}, raw...)
		fallthrough
	case 65:
		pub, err := crypto.UnmarshalPubkey(raw)
		if err != nil {
			return Key{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid public key")
		}
		return Key{Address: crypto.PubkeyToAddress(*pub)}, nil
	default:
		return Key{}, dErrors.New(dErrors.CodeInvalidInput, "public key must be a secp256k1 key or address")
	}
}

// Verifier checks personal_sign signatures. It is stateless and safe for concurrent use.
type Verifier struct{}

func NewVerifier() *Verifier { return &Verifier{} }

// Verify returns nil when sigHex is a valid signature of message by the owner
// of publicKey. Every failure is an invalid_signature domain error.
func (v *Verifier) Verify(publicKey string, message []byte, sigHex string) error {
	key, err := ParseKey(publicKey)
	if err != nil {
		return dErrors.Recode(err, dErrors.CodeInvalidSignature, "patient verification key is unusable")
	}
	recovered, err := Recover(message, sigHex)
	if err != nil {
		return err
	}
	if recovered != key.Address {
		return dErrors.New(dErrors.CodeInvalidSignature, "signature was not produced by the patient's registered key")
	}
	return nil
}

// Recover returns the address that signed message.
func Recover(message []byte, sigHex string) (common.Address, error) {
	sig := common.FromHex(strings.TrimSpace(sigHex))
	if len(sig) != signatureLength {
		return common.Address{}, dErrors.New(dErrors.CodeInvalidSignature, "signature must be 65 bytes of hex")
	}
	sig = append([]byte(nil), sig...)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(sig[64], r, s, true) {
		return common.Address{}, dErrors.New(dErrors.CodeInvalidSignature, "signature values are out of range")
	}
	pub, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return common.Address{}, dErrors.Recode(err, dErrors.CodeInvalidSignature, "signature could not be recovered")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Sign produces a personal_sign signature with v in {27, 28}, matching what
// wallets return. Used by tooling and tests; the server never holds patient keys.
func Sign(key *ecdsa.PrivateKey, message []byte) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), key)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return "0x" + common.Bytes2Hex(sig), nil
}

// PublicKeyHex encodes key's public half the way patient keys are registered.
func PublicKeyHex(key *ecdsa.PrivateKey) string {
	return "0x" + common.Bytes2Hex(crypto.FromECDSAPub(&key.PublicKey))
}
