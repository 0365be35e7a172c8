package models

import (
	"time"

	id "rekamed/pkg/domain"
)

// Status is the stored lifecycle state of a consent request.
type Status string

const (
	StatusPending Status = "pending"
	StatusGranted Status = "granted"
	StatusDenied  Status = "denied"
	StatusRevoked Status = "revoked"
)

// StatusExpired is never stored: a granted request past expires_at reads as
// expired without any write.
const StatusExpired = "expired"

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusGranted, StatusDenied, StatusRevoked:
		return true
	}
	return false
}

const DefaultDataScope = "all"

// Request is a doctor's request for access to one patient's records.
// Requests are never deleted; superseded ones stay for history.
type Request struct {
	ID        id.RequestID `json:"request_id"`
	DoctorID  id.UserID    `json:"doctor_id"`
	PatientID id.UserID    `json:"patient_id"`
	Status    Status       `json:"status"`
	Duration  string       `json:"duration,omitempty"`
	DataScope string       `json:"data_scope"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
}

// IsExpired reports whether a grant has lapsed at now.
func (r *Request) IsExpired(now time.Time) bool {
	return r.Status == StatusGranted && r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// IsActive reports whether r blocks a new request for the same pair.
func (r *Request) IsActive(now time.Time) bool {
	switch r.Status {
	case StatusPending:
		return true
	case StatusGranted:
		return !r.IsExpired(now)
	}
	return false
}

// EffectiveStatus is the status a reader should see at now.
func (r *Request) EffectiveStatus(now time.Time) string {
	if r.IsExpired(now) {
		return StatusExpired
	}
	return string(r.Status)
}

// PairKey serializes transitions for one doctor/patient pair.
func PairKey(doctorID, patientID id.UserID) string {
	return "consent:" + doctorID.String() + ":" + patientID.String()
}

func (r *Request) PairKey() string {
	return PairKey(r.DoctorID, r.PatientID)
}

// View is a request joined with display names for listings.
type View struct {
	*Request
	DoctorName      string `json:"doctor_name"`
	PatientName     string `json:"patient_name"`
	EffectiveStatus string `json:"effective_status"`
}

// ListFilter narrows a user's request listing. A zero Status lists all.
type ListFilter struct {
	Status Status
}
