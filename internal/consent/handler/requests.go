package handler

import (
	"strings"

	id "rekamed/pkg/domain"
	dErrors "rekamed/pkg/domain-errors"
	"rekamed/pkg/validation"
)

// CreateRequest is the body of POST /consent/request.
type CreateRequest struct {
	PatientID string `json:"patient_id" validate:"required,uuid"`
	DataScope string `json:"data_scope" validate:"max=64"`

	patientID id.UserID
}

func (r *CreateRequest) Normalize() {
	r.PatientID = strings.TrimSpace(r.PatientID)
	r.DataScope = strings.ToLower(strings.TrimSpace(r.DataScope))
}

func (r *CreateRequest) Validate() error {
	if err := validation.Validate(r); err != nil {
		return err
	}
	pid, err := id.ParseUserID(r.PatientID)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "patient_id must be a valid uuid")
	}
	r.patientID = pid
	return nil
}

// SignRequest is the body of the grant, deny and revoke routes. Duration is
// only read for grants.
type SignRequest struct {
	Signature string `json:"signature" validate:"required,hexsig"`
	Duration  string `json:"duration" validate:"max=32"`
}

func (r *SignRequest) Normalize() {
	r.Signature = strings.TrimSpace(r.Signature)
	r.Duration = strings.TrimSpace(r.Duration)
}

func (r *SignRequest) Validate() error {
	return validation.Validate(r)
}
