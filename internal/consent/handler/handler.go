package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rekamed/internal/consent/models"
	id "rekamed/pkg/domain"
	"rekamed/pkg/platform/httputil"
	"rekamed/pkg/platform/middleware/auth"
	"rekamed/pkg/requestcontext"
)

type Service interface {
	Create(ctx context.Context, doctorID, patientID id.UserID, dataScope string) (*models.Request, error)
	Challenge(ctx context.Context, patientID id.UserID, requestID id.RequestID, action models.Action, duration string) (*models.Challenge, error)
	Decide(ctx context.Context, patientID id.UserID, requestID id.RequestID, d models.Decision) (*models.Request, error)
	Revoke(ctx context.Context, patientID id.UserID, requestID id.RequestID, signature string) (*models.Request, error)
	Get(ctx context.Context, userID id.UserID, requestID id.RequestID) (*models.View, error)
	ListForUser(ctx context.Context, userID id.UserID, role id.Role, status string) ([]*models.View, error)
}

type Handler struct {
	consents Service
	logger   *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{consents: svc, logger: logger}
}

// Register expects r to already require authentication.
func (h *Handler) Register(r chi.Router) {
	doctor := auth.RequireRole(h.logger, id.RoleDoctor)
	patient := auth.RequireRole(h.logger, id.RolePatient)

	r.With(doctor).Post("/consent/request", h.HandleCreate)
	r.Get("/consent/requests/me", h.HandleListMine)
	r.Get("/consent/requests/{request_id}", h.HandleGet)
	r.With(patient).Get("/consent/challenge/{request_id}", h.HandleChallenge)
	r.With(patient).Post("/consent/sign/{request_id}", h.decision(models.ActionGrant))
	r.With(patient).Post("/consent/grant/{request_id}", h.decision(models.ActionGrant))
	r.With(patient).Post("/consent/deny/{request_id}", h.decision(models.ActionDeny))
	r.With(patient).Post("/consent/revoke/{request_id}", h.decision(models.ActionRevoke))
}

type createResponse struct {
	RequestID string        `json:"request_id"`
	Status    models.Status `json:"status"`
	Message   string        `json:"message"`
}

type decisionResponse struct {
	Message string          `json:"message"`
	Request *models.Request `json:"request"`
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

	created, err := h.consents.Create(ctx, p.UserID, req.patientID, req.DataScope)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to create consent request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, createResponse{
		RequestID: created.ID.String(),
		Status:    created.Status,
		Message:   "consent request sent to patient",
	})
}

func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := httputil.RequirePrincipal(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	views, err := h.consents.ListForUser(ctx, p.UserID, p.Role, r.URL.Query().Get("status"))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list consent requests",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, views)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := httputil.RequirePrincipal(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	reqID, err := requestIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	view, err := h.consents.Get(ctx, p.UserID, reqID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := httputil.RequirePrincipal(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	reqID, err := requestIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	q := r.URL.Query()
	action := models.Action(q.Get("action"))
	if action == "" {
		action = models.ActionGrant
	}

	ch, err := h.consents.Challenge(ctx, p.UserID, reqID, action, q.Get("duration"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ch)
}

// decision serves the signed grant, deny and revoke routes.
func (h *Handler) decision(action models.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		p, err := httputil.RequirePrincipal(ctx, h.logger)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		reqID, err := requestIDParam(r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		body, ok := httputil.DecodeAndPrepare[SignRequest](w, r, h.logger)
		if !ok {
			return
		}

		var updated *models.Request
		if action == models.ActionRevoke {
			updated, err = h.consents.Revoke(ctx, p.UserID, reqID, body.Signature)
		} else {
			updated, err = h.consents.Decide(ctx, p.UserID, reqID, models.Decision{
				Action:    action,
				Duration:  body.Duration,
				Signature: body.Signature,
			})
		}
		if err != nil {
			h.logger.WarnContext(ctx, "consent decision rejected",
				"request_id", requestcontext.RequestID(ctx),
				"consent_request_id", reqID.String(),
				"action", string(action),
				"error", err,
			)
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, decisionResponse{
			Message: "consent request " + string(updated.Status),
			Request: updated,
		})
	}
}

func requestIDParam(r *http.Request) (id.RequestID, error) {
	return id.ParseRequestID(chi.URLParam(r, "request_id"))
}
