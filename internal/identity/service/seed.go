package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"rekamed/internal/identity/models"
	id "rekamed/pkg/domain"
)

type seedUser struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	PublicKey      string `json:"public_key"`
	NIP            string `json:"nip"`
	Phone          string `json:"phone"`
	Specialization string `json:"specialization"`
}

// LoadSeedFile registers every user in a JSON array file. Used for local
// development where no upstream registration system exists.
func (s *Service) LoadSeedFile(ctx context.Context, path string, now time.Time) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var users []seedUser
	if err := json.Unmarshal(raw, &users); err != nil {
		return 0, fmt.Errorf("decode seed file: %w", err)
	}
	for i, su := range users {
		uid, err := id.ParseUserID(su.ID)
		if err != nil {
			return i, fmt.Errorf("seed user %d: %w", i, err)
		}
		u := &models.User{
			ID:             uid,
			Name:           su.Name,
			Email:          su.Email,
			Role:           id.Role(su.Role),
			PublicKey:      su.PublicKey,
			NIP:            su.NIP,
			Phone:          su.Phone,
			Specialization: su.Specialization,
			CreatedAt:      now.UTC(),
		}
		if err := s.Register(ctx, u); err != nil {
			return i, fmt.Errorf("seed user %s: %w", su.Email, err)
		}
	}
	return len(users), nil
}
