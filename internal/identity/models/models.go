package models

import (
	"fmt"
	"strings"
	"time"

	id "rekamed/pkg/domain"
)

// User is a registered doctor or patient. Registration happens upstream;
// this service only reads users and their verification keys.
type User struct {
	ID             id.UserID
	Name           string
	Email          string
	Role           id.Role
	PublicKey      string
	NIP            string
	Phone          string
	Specialization string
	CreatedAt      time.Time
}

// FormattedID is the human-facing medical id, MED-<year>-<last four of id>.
func (u *User) FormattedID(now time.Time) string {
	s := u.ID.String()
	return fmt.Sprintf("MED-%d-%s", now.Year(), strings.ToUpper(s[len(s)-4:]))
}

// Profile is the /users/me view.
type Profile struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	FormattedID    string `json:"formatted_id"`
	NIP            string `json:"nip,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Specialization string `json:"specialization,omitempty"`
	HasSigningKey  bool   `json:"has_signing_key"`
}

func NewProfile(u *User, now time.Time) *Profile {
	return &Profile{
		ID:             u.ID.String(),
		Name:           u.Name,
		Email:          u.Email,
		Role:           string(u.Role),
		FormattedID:    u.FormattedID(now),
		NIP:            u.NIP,
		Phone:          u.Phone,
		Specialization: u.Specialization,
		HasSigningKey:  u.PublicKey != "",
	}
}

// ConsentNotRequested is the consent_status of a patient the doctor never asked.
const ConsentNotRequested = "not_requested"

// PublicUser is a search hit as seen by a doctor.
type PublicUser struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	ConsentStatus string `json:"consent_status"`
}

// SearchFilter bounds a patient search.
type SearchFilter struct {
	Query string
	Role  id.Role
	Limit int
}

const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 50
)
