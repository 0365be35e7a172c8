package models

import (
	"encoding/json"
	"time"

	"rekamed/internal/ledger"
	id "rekamed/pkg/domain"
)

// Record is a decrypted medical record.
type Record struct {
	ID            id.RecordID `json:"id"`
	PatientID     id.UserID   `json:"patient_id"`
	DoctorID      id.UserID   `json:"doctor_id"`
	DoctorName    string      `json:"doctor_name"`
	Diagnosis     string      `json:"diagnosis"`
	Notes         string      `json:"notes"`
	AttachmentCID string      `json:"attachment_cid,omitempty"`
	ContentHash   string      `json:"content_hash"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Sealed is a record as stored: diagnosis and notes are ciphertext.
type Sealed struct {
	ID            id.RecordID
	PatientID     id.UserID
	DoctorID      id.UserID
	Diagnosis     []byte
	Notes         []byte
	AttachmentCID string
	ContentHash   string
	CreatedAt     time.Time
}

// content is the hashed form of a record. Its field order is fixed.
type content struct {
	ID            string    `json:"id"`
	PatientID     string    `json:"patient_id"`
	DoctorID      string    `json:"doctor_id"`
	Diagnosis     string    `json:"diagnosis"`
	Notes         string    `json:"notes"`
	AttachmentCID string    `json:"attachment_cid"`
	CreatedAt     time.Time `json:"created_at"`
}

// Hash is the sha256 of the record's plaintext content. It is written to
// the ledger when the record is created and checked on every read.
func (r *Record) Hash() string {
	b, _ := json.Marshal(content{
		ID:            r.ID.String(),
		PatientID:     r.PatientID.String(),
		DoctorID:      r.DoctorID.String(),
		Diagnosis:     r.Diagnosis,
		Notes:         r.Notes,
		AttachmentCID: r.AttachmentCID,
		CreatedAt:     ledger.Timestamp(r.CreatedAt),
	})
	return ledger.DataHash(b)
}

// Draft is what a doctor submits.
type Draft struct {
	PatientID     id.UserID
	Diagnosis     string
	Notes         string
	AttachmentCID string
}

// Created is the result of a record write.
type Created struct {
	RecordID id.RecordID `json:"record_id"`
	BlockID  int64       `json:"block_id"`
	Message  string      `json:"message"`
}
