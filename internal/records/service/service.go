package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"rekamed/internal/access"
	"rekamed/internal/audit"
	consentmodels "rekamed/internal/consent/models"
	"rekamed/internal/ledger"
	"rekamed/internal/records/cipher"
	"rekamed/internal/records/models"
	"rekamed/internal/records/store"
	"rekamed/internal/sentinel"
	id "rekamed/pkg/domain"
	dErrors "rekamed/pkg/domain-errors"
	"rekamed/pkg/requestcontext"
)

type TxRunner interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context, st store.Stores) error) error
}

type Gate interface {
	CanAccess(ctx context.Context, doctorID, patientID id.UserID) (bool, error)
	Authorize(ctx context.Context, a access.Attempt) (*access.Decision, error)
}

type AuditRecorder interface {
	Append(ctx context.Context, store ledger.Store, ev audit.Event) (*ledger.Block, error)
	Project(ctx context.Context, b *ledger.Block)
}

type NameResolver interface {
	Names(ctx context.Context, ids ...id.UserID) (map[id.UserID]string, error)
}

var errConsentLapsed = errors.New("consent no longer active")

const (
	maxDiagnosisLen = 2000
	maxNotesLen     = 10000
	subjectRecords  = "medical_records"
)

// Service writes and reads medical records behind the access gate. Writes
// hash the plaintext into the ledger; reads check that hash again.
type Service struct {
	store    store.Store
	tx       TxRunner
	gate     Gate
	recorder AuditRecorder
	names    NameResolver
	cipher   *cipher.FieldCipher
	logger   *slog.Logger
}

func New(st store.Store, tx TxRunner, gate Gate, recorder AuditRecorder, names NameResolver, c *cipher.FieldCipher, logger *slog.Logger) *Service {
	return &Service{
		store:    st,
		tx:       tx,
		gate:     gate,
		recorder: recorder,
		names:    names,
		cipher:   c,
		logger:   logger,
	}
}

// Create stores a record written by doctor for a patient who has granted
// them access. The record and its ledger block commit together.
func (s *Service) Create(ctx context.Context, doctorID id.UserID, d models.Draft) (*models.Created, error) {
	d.Diagnosis = strings.TrimSpace(d.Diagnosis)
	if d.Diagnosis == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "diagnosis is required")
	}
	if len(d.Diagnosis) > maxDiagnosisLen || len(d.Notes) > maxNotesLen {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "diagnosis or notes too long")
	}

	attempt := access.Attempt{
		ActorID:   doctorID,
		ActorRole: id.RoleDoctor,
		PatientID: d.PatientID,
		Action:    audit.ActionRecordsWrite,
		Subject:   subjectRecords,
	}
	ok, err := s.gate.CanAccess(ctx, doctorID, d.PatientID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check consent")
	}
	if !ok {
		// Authorize records the refused write; a grant that arrived in the
		// meantime lets it through.
		if _, err := s.gate.Authorize(ctx, attempt); err != nil {
			return nil, err
		}
	}

	rec := &models.Record{
		ID:            id.NewRecordID(),
		PatientID:     d.PatientID,
		DoctorID:      doctorID,
		Diagnosis:     d.Diagnosis,
		Notes:         d.Notes,
		AttachmentCID: strings.TrimSpace(d.AttachmentCID),
		CreatedAt:     ledger.Timestamp(requestcontext.Now(ctx)),
	}
	rec.ContentHash = rec.Hash()
	sealed, err := s.seal(rec)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encrypt record")
	}

	var block *ledger.Block
	// The pair key is the one consent transitions hold, so a revoke either
	// commits before the grant is checked again here or waits for this write.
	err = s.tx.RunInTx(ctx, consentmodels.PairKey(doctorID, rec.PatientID), func(ctx context.Context, st store.Stores) error {
		ok, err := s.gate.CanAccess(ctx, doctorID, rec.PatientID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check consent")
		}
		if !ok {
			return errConsentLapsed
		}
		if err := st.Records.Create(ctx, sealed); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "record already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save record")
		}
		block, err = s.recorder.Append(ctx, st.Ledger, audit.Event{
			Kind:        audit.KindRecordCreated,
			RecordID:    rec.ID.String(),
			ActorID:     doctorID,
			ActorRole:   id.RoleDoctor,
			PatientID:   rec.PatientID,
			DoctorID:    doctorID,
			Action:      audit.ActionRecordsWrite,
			Subject:     subjectRecords,
			ContentHash: rec.ContentHash,
			Timestamp:   rec.CreatedAt,
		})
		return err
	})
	if errors.Is(err, errConsentLapsed) {
		if _, err := s.gate.Authorize(ctx, attempt); err != nil {
			return nil, err
		}
		return nil, dErrors.New(dErrors.CodePermissionDenied, "consent changed while the record was being saved")
	}
	if err != nil {
		return nil, err
	}

	s.recorder.Project(ctx, block)
	s.logger.InfoContext(ctx, "medical record created",
		"request_id", requestcontext.RequestID(ctx),
		"record_id", rec.ID.String(),
		"block_id", block.BlockID,
	)
	return &models.Created{
		RecordID: rec.ID,
		BlockID:  block.BlockID,
		Message:  "medical record saved and anchored in the ledger",
	}, nil
}

// ListForPatient returns a patient's records to the patient or a doctor
// with an active grant. Every call is audited by the gate.
func (s *Service) ListForPatient(ctx context.Context, actor requestcontext.Principal, patientID id.UserID) ([]*models.Record, error) {
	if _, err := s.gate.Authorize(ctx, access.Attempt{
		ActorID:   actor.UserID,
		ActorRole: actor.Role,
		PatientID: patientID,
		Action:    audit.ActionRecordsRead,
		Subject:   subjectRecords,
	}); err != nil {
		return nil, err
	}

	sealed, err := s.store.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load records")
	}
	out := make([]*models.Record, 0, len(sealed))
	ids := make([]id.UserID, 0, len(sealed))
	for _, sr := range sealed {
		rec, err := s.open(sr)
		if err != nil {
			s.logger.ErrorContext(ctx, "medical record failed integrity check",
				"request_id", requestcontext.RequestID(ctx),
				"record_id", sr.ID.String(),
				"error", err,
			)
			return nil, err
		}
		out = append(out, rec)
		ids = append(ids, rec.DoctorID)
	}
	if len(out) == 0 {
		return out, nil
	}

	names, err := s.names.Names(ctx, ids...)
	if err != nil {
		return nil, err
	}
	for _, rec := range out {
		rec.DoctorName = names[rec.DoctorID]
	}
	return out, nil
}

func (s *Service) seal(rec *models.Record) (*models.Sealed, error) {
	ad := []byte(rec.ID.String())
	diagnosis, err := s.cipher.Seal([]byte(rec.Diagnosis), ad)
	if err != nil {
		return nil, err
	}
	notes, err := s.cipher.Seal([]byte(rec.Notes), ad)
	if err != nil {
		return nil, err
	}
	return &models.Sealed{
		ID:            rec.ID,
		PatientID:     rec.PatientID,
		DoctorID:      rec.DoctorID,
		Diagnosis:     diagnosis,
		Notes:         notes,
		AttachmentCID: rec.AttachmentCID,
		ContentHash:   rec.ContentHash,
		CreatedAt:     rec.CreatedAt,
	}, nil
}

// open decrypts sr and checks its content hash.
func (s *Service) open(sr *models.Sealed) (*models.Record, error) {
	ad := []byte(sr.ID.String())
	diagnosis, err := s.cipher.Open(sr.Diagnosis, ad)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeIntegrity, fmt.Sprintf("record %s cannot be decrypted", sr.ID))
	}
	notes, err := s.cipher.Open(sr.Notes, ad)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeIntegrity, fmt.Sprintf("record %s cannot be decrypted", sr.ID))
	}
	rec := &models.Record{
		ID:            sr.ID,
		PatientID:     sr.PatientID,
		DoctorID:      sr.DoctorID,
		Diagnosis:     string(diagnosis),
		Notes:         string(notes),
		AttachmentCID: sr.AttachmentCID,
		ContentHash:   sr.ContentHash,
		CreatedAt:     sr.CreatedAt,
	}
	if rec.Hash() != sr.ContentHash {
		return nil, dErrors.New(dErrors.CodeIntegrity, fmt.Sprintf("record %s does not match its content hash", sr.ID))
	}
	return rec, nil
}
