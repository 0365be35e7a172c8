package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"rekamed/internal/records/models"
	id "rekamed/pkg/domain"
	dErrors "rekamed/pkg/domain-errors"
	"rekamed/pkg/platform/httputil"
	"rekamed/pkg/platform/middleware/auth"
	"rekamed/pkg/requestcontext"
	"rekamed/pkg/validation"
)

type Service interface {
	Create(ctx context.Context, doctorID id.UserID, d models.Draft) (*models.Created, error)
	ListForPatient(ctx context.Context, actor requestcontext.Principal, patientID id.UserID) ([]*models.Record, error)
}

type Handler struct {
	records Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{records: svc, logger: logger}
}

// Register expects r to already require authentication.
func (h *Handler) Register(r chi.Router) {
	r.With(auth.RequireRole(h.logger, id.RolePatient)).Get("/records", h.HandleMine)
	r.With(auth.RequireRole(h.logger, id.RoleDoctor)).Post("/records", h.HandleCreate)
	r.With(auth.RequireRole(h.logger, id.RoleDoctor)).Get("/records/patient/{patient_id}", h.HandleForPatient)
}

// CreateRequest is the body of POST /records.
type CreateRequest struct {
	PatientID     string `json:"patient_id" validate:"required,uuid"`
	Diagnosis     string `json:"diagnosis" validate:"required,notblank,max=2000"`
	Notes         string `json:"notes" validate:"max=10000"`
	AttachmentCID string `json:"attachment_cid" validate:"max=128"`
}

func (r *CreateRequest) Normalize() {
	r.PatientID = strings.TrimSpace(r.PatientID)
	r.Diagnosis = strings.TrimSpace(r.Diagnosis)
	r.AttachmentCID = strings.TrimSpace(r.AttachmentCID)
}

func (r *CreateRequest) Validate() error {
	return validation.Validate(r)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := httputil.RequirePrincipal(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateRequest](w, r, h.logger)
	if !ok {
		return
	}
	patientID, err := id.ParseUserID(req.PatientID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "patient_id must be a valid uuid"))
		return
	}

	created, err := h.records.Create(ctx, p.UserID, models.Draft{
		PatientID:     patientID,
		Diagnosis:     req.Diagnosis,
		Notes:         req.Notes,
		AttachmentCID: req.AttachmentCID,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "failed to create medical record",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) HandleMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := httputil.RequirePrincipal(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.list(w, r, p, p.UserID)
}

func (h *Handler) HandleForPatient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := httputil.RequirePrincipal(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	patientID, err := id.ParseUserID(chi.URLParam(r, "patient_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.list(w, r, p, patientID)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, p requestcontext.Principal, patientID id.UserID) {
	ctx := r.Context()
	recs, err := h.records.ListForPatient(ctx, p, patientID)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodePermissionDenied) {
			h.logger.ErrorContext(ctx, "failed to list medical records",
				"request_id", requestcontext.RequestID(ctx),
				"patient_id", patientID.String(),
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, recs)
}
