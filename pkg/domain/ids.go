// Package domain provides type-safe identifiers so a doctor's user ID can never
// be passed where a consent request ID is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "rekamed/pkg/domain-errors"
)

type (
	UserID    uuid.UUID
	RequestID uuid.UUID
	RecordID  uuid.UUID
)

// Parse functions are for trust boundaries (path params, JSON bodies, token claims).

func ParseUserID(s string) (UserID, error) {
	id, err := parseUUID(s, "user ID")
	return UserID(id), err
}

func ParseRequestID(s string) (RequestID, error) {
	id, err := parseUUID(s, "consent request ID")
	return RequestID(id), err
}

func ParseRecordID(s string) (RecordID, error) {
	id, err := parseUUID(s, "record ID")
	return RecordID(id), err
}

func NewRequestID() RequestID { return RequestID(uuid.New()) }
func NewRecordID() RecordID   { return RecordID(uuid.New()) }

func (id UserID) String() string    { return uuid.UUID(id).String() }
func (id RequestID) String() string { return uuid.UUID(id).String() }
func (id RecordID) String() string  { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id RequestID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id RecordID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

// MarshalText lets typed IDs appear as plain UUID strings in JSON.
func (id UserID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id RequestID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id RecordID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }

func (id *UserID) UnmarshalText(b []byte) error {
	parsed, err := unmarshalUUID(b, "user ID")
	if err != nil {
		return err
	}
	*id = UserID(parsed)
	return nil
}

func (id *RequestID) UnmarshalText(b []byte) error {
	parsed, err := unmarshalUUID(b, "consent request ID")
	if err != nil {
		return err
	}
	*id = RequestID(parsed)
	return nil
}

func (id *RecordID) UnmarshalText(b []byte) error {
	parsed, err := unmarshalUUID(b, "record ID")
	if err != nil {
		return err
	}
	*id = RecordID(parsed)
	return nil
}

// unmarshalUUID accepts the nil UUID that MarshalText writes for an unset
// ID, so stored payloads always decode. Parse* still reject it.
func unmarshalUUID(b []byte, label string) (uuid.UUID, error) {
	if string(b) == uuid.Nil.String() {
		return uuid.Nil, nil
	}
	return parseUUID(string(b), label)
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return id, nil
}
