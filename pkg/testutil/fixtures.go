package testutil

import (
	"crypto/ecdsa"
	"testing"
	"time"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"rekamed/internal/identity/models"
	"rekamed/pkg/crypto/signature"
	id "rekamed/pkg/domain"
)

// FixedNow is the reference request time used across service tests.
var FixedNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

// Party is a test user. Patients also carry the private key they sign with.
type Party struct {
	User *models.User
	Key  *ecdsa.PrivateKey
}

func (p *Party) ID() id.UserID { return p.User.ID }

// Sign signs message with the party's key.
func (p *Party) Sign(t testing.TB, message []byte) string {
	t.Helper()
	if p.Key == nil {
		t.Fatalf("party %s has no signing key", p.User.Name)
	}
	sig, err := signature.Sign(p.Key, message)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}

func NewDoctor(name string) *Party {
	return &Party{User: &models.User{
		ID:             id.UserID(uuid.New()),
		Name:           name,
		Email:          uuid.NewString() + "@rs.example",
		Role:           id.RoleDoctor,
		Specialization: "Umum",
		CreatedAt:      FixedNow,
	}}
}

// NewPatient creates a patient with a fresh secp256k1 key registered as its
// verification key.
func NewPatient(t testing.TB, name string) *Party {
	t.Helper()
	key, err := gethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &Party{
		User: &models.User{
			ID:        id.UserID(uuid.New()),
			Name:      name,
			Email:     uuid.NewString() + "@pasien.example",
			Role:      id.RolePatient,
			PublicKey: signature.PublicKeyHex(key),
			CreatedAt: FixedNow,
		},
		Key: key,
	}
}
