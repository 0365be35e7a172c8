package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rekamed/internal/access"
	"rekamed/internal/audit"
	id "rekamed/pkg/domain"
	"rekamed/pkg/platform/httputil"
	"rekamed/pkg/requestcontext"
)

type Reader interface {
	ForPatient(ctx context.Context, patientID id.UserID, filter audit.LogFilter) ([]*audit.AccessLogEntry, error)
	ForActor(ctx context.Context, actorID id.UserID, filter audit.LogFilter) ([]*audit.AccessLogEntry, error)
}

type Authorizer interface {
	Authorize(ctx context.Context, a access.Attempt) (*access.Decision, error)
}

type Handler struct {
	log    Reader
	gate   Authorizer
	logger *slog.Logger
}

func New(log Reader, gate Authorizer, logger *slog.Logger) *Handler {
	return &Handler{log: log, gate: gate, logger: logger}
}

// Register expects r to already require authentication.
func (h *Handler) Register(r chi.Router) {
	r.Get("/log-access", h.HandleMine)
	r.Get("/log-access/{patient_id}", h.HandleForPatient)
}

// HandleMine shows a patient who touched their data, and a doctor what they
// touched.
func (h *Handler) HandleMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := httputil.RequirePrincipal(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var entries []*audit.AccessLogEntry
	if p.Role == id.RolePatient {
		entries, err = h.log.ForPatient(ctx, p.UserID, filter)
	} else {
		entries, err = h.log.ForActor(ctx, p.UserID, filter)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load access log",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

// HandleForPatient serves one patient's log to the patient or to a doctor
// the gate lets through. The doctor's read is itself audited.
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
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if p.UserID != patientID {
		if _, err := h.gate.Authorize(ctx, access.Attempt{
			ActorID:   p.UserID,
			ActorRole: p.Role,
			PatientID: patientID,
			Action:    audit.ActionAccessLogRead,
			Subject:   "access_log",
		}); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	entries, err := h.log.ForPatient(ctx, patientID, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load access log",
			"request_id", requestcontext.RequestID(ctx),
			"patient_id", patientID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

func parseFilter(r *http.Request) (audit.LogFilter, error) {
	limit, err := httputil.QueryInt(r, "limit")
	if err != nil {
		return audit.LogFilter{}, err
	}
	offset, err := httputil.QueryInt(r, "offset")
	if err != nil {
		return audit.LogFilter{}, err
	}
	return audit.LogFilter{Limit: limit, Offset: offset}, nil
}
