package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"rekamed/internal/ledger"
	id "rekamed/pkg/domain"
)

// Kind is the ledger block kind an event is appended under.
type Kind string

const (
	KindConsentRequested Kind = "consent.requested"
	KindConsentGranted   Kind = "consent.granted"
	KindConsentDenied    Kind = "consent.denied"
	KindConsentRevoked   Kind = "consent.revoked"
	KindAccessAllowed    Kind = "access.allowed"
	KindAccessDenied     Kind = "access.denied"
	KindRecordCreated    Kind = "record.created"
)

// Actions name the operation an actor attempted.
const (
	ActionConsentRequest = "consent.request"
	ActionConsentGrant   = "consent.grant"
	ActionConsentDeny    = "consent.deny"
	ActionConsentRevoke  = "consent.revoke"
	ActionRecordsRead    = "records.read"
	ActionRecordsWrite   = "records.write"
	ActionAccessLogRead  = "access_log.read"
)

// Access log statuses.
const (
	StatusAllowed         = "allowed"
	StatusDenied          = "denied"
	StatusRequested       = "requested"
	StatusGranted         = "granted"
	StatusDeniedByPatient = "denied_by_patient"
	StatusRevoked         = "revoked"
	StatusCreated         = "created"
)

// Event is the payload of an audit ledger block. Field order is fixed, so
// json.Marshal of a normalized Event is its canonical encoding.
type Event struct {
	Kind        Kind       `json:"kind"`
	RecordID    string     `json:"record_id"`
	ActorID     id.UserID  `json:"actor_id"`
	ActorRole   id.Role    `json:"actor_role,omitempty"`
	PatientID   id.UserID  `json:"patient_id"`
	DoctorID    id.UserID  `json:"doctor_id,omitzero"`
	Action      string     `json:"action"`
	Subject     string     `json:"subject,omitempty"`
	OldStatus   string     `json:"old_status,omitempty"`
	NewStatus   string     `json:"new_status,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	ContentHash string     `json:"content_hash,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	RequestID   string     `json:"request_id,omitempty"`
	Device      string     `json:"device,omitempty"`
	IPPrefix    string     `json:"ip_prefix,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// Canonical returns the exact bytes hashed into the ledger.
func (e Event) Canonical() ([]byte, error) {
	e.Timestamp = ledger.Timestamp(e.Timestamp)
	if e.ExpiresAt != nil {
		exp := ledger.Timestamp(*e.ExpiresAt)
		e.ExpiresAt = &exp
	}
	return json.Marshal(e)
}

func (e Event) validate() error {
	switch {
	case e.Kind == "":
		return fmt.Errorf("event kind is required")
	case e.RecordID == "":
		return fmt.Errorf("event record id is required")
	case e.ActorID.IsNil():
		return fmt.Errorf("event actor is required")
	case e.PatientID.IsNil():
		return fmt.Errorf("event patient is required")
	}
	return nil
}

// DecodeEvent parses a block payload back into an Event.
func DecodeEvent(b *ledger.Block) (*Event, error) {
	var e Event
	if err := json.Unmarshal(b.Payload, &e); err != nil {
		return nil, fmt.Errorf("decode block %d payload: %w", b.BlockID, err)
	}
	if string(e.Kind) != b.Kind {
		return nil, fmt.Errorf("block %d kind %q does not match payload kind %q", b.BlockID, b.Kind, e.Kind)
	}
	return &e, nil
}

// Status maps an event onto the access log status vocabulary.
func (e Event) Status() string {
	switch e.Kind {
	case KindAccessAllowed:
		return StatusAllowed
	case KindAccessDenied:
		return StatusDenied
	case KindConsentRequested:
		return StatusRequested
	case KindConsentGranted:
		return StatusGranted
	case KindConsentDenied:
		return StatusDeniedByPatient
	case KindConsentRevoked:
		return StatusRevoked
	case KindRecordCreated:
		return StatusCreated
	default:
		return string(e.Kind)
	}
}

// AccessLogEntry is one row of the access log projection. Entries are
// derived from ledger blocks and can always be rebuilt from them.
type AccessLogEntry struct {
	BlockID         int64     `json:"block_id"`
	Kind            Kind      `json:"kind"`
	PatientID       id.UserID `json:"patient_id"`
	PatientName     string    `json:"patient_name,omitempty"`
	DoctorID        id.UserID `json:"doctor_id"`
	DoctorName      string    `json:"doctor_name"`
	ActorID         id.UserID `json:"actor_id"`
	ActorRole       id.Role   `json:"actor_role,omitempty"`
	Action          string    `json:"action"`
	RecordDiagnosis string    `json:"record_diagnosis,omitempty"`
	Status          string    `json:"status"`
	Reason          string    `json:"reason,omitempty"`
	Device          string    `json:"device,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewAccessLogEntry projects a decoded event. An event without a doctor
// (a patient reading their own records) lists the actor in the doctor column.
func NewAccessLogEntry(b *ledger.Block, e *Event) *AccessLogEntry {
	doctorID := e.DoctorID
	if doctorID.IsNil() {
		doctorID = e.ActorID
	}
	return &AccessLogEntry{
		BlockID:         b.BlockID,
		Kind:            e.Kind,
		PatientID:       e.PatientID,
		DoctorID:        doctorID,
		ActorID:         e.ActorID,
		ActorRole:       e.ActorRole,
		Action:          e.Action,
		RecordDiagnosis: e.Subject,
		Status:          e.Status(),
		Reason:          e.Reason,
		Device:          e.Device,
		Timestamp:       e.Timestamp,
	}
}

// LogFilter pages through an access log, newest first.
type LogFilter struct {
	Limit  int
	Offset int
}

const (
	DefaultLogLimit = 50
	MaxLogLimit     = 500
)

func (f LogFilter) Normalize() LogFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultLogLimit
	}
	f.Limit = min(f.Limit, MaxLogLimit)
	f.Offset = max(f.Offset, 0)
	return f
}
