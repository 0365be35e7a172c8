package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rekamed/internal/identity/models"
	id "rekamed/pkg/domain"
	"rekamed/pkg/platform/httputil"
	"rekamed/pkg/platform/middleware/auth"
	"rekamed/pkg/requestcontext"
)

type Service interface {
	Get(ctx context.Context, userID id.UserID) (*models.User, error)
	SearchPatients(ctx context.Context, query string, limit int) ([]*models.User, error)
}

// ConsentStatusReader reports the effective status of the latest consent
// request between a doctor and each patient.
type ConsentStatusReader interface {
	PairStatuses(ctx context.Context, doctorID id.UserID, patientIDs []id.UserID) (map[id.UserID]string, error)
}

type Handler struct {
	users    Service
	consents ConsentStatusReader
	logger   *slog.Logger
}

func New(users Service, consents ConsentStatusReader, logger *slog.Logger) *Handler {
	return &Handler{users: users, consents: consents, logger: logger}
}

// Register expects r to already require authentication.
func (h *Handler) Register(r chi.Router) {
	r.Get("/users/me", h.HandleMe)
	r.With(auth.RequireRole(h.logger, id.RoleDoctor)).Get("/users/search", h.HandleSearch)
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := httputil.RequirePrincipal(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	u, err := h.users.Get(ctx, p.UserID)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to load profile",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewProfile(u, requestcontext.Now(ctx)))
}

func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := httputil.RequirePrincipal(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	limit, err := httputil.QueryInt(r, "limit")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	users, err := h.users.SearchPatients(ctx, r.URL.Query().Get("q"), limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to search patients",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	ids := make([]id.UserID, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	statuses, err := h.consents.PairStatuses(ctx, p.UserID, ids)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load consent statuses",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	resp := make([]models.PublicUser, 0, len(users))
	for _, u := range users {
		status, ok := statuses[u.ID]
		if !ok {
			status = models.ConsentNotRequested
		}
		resp = append(resp, models.PublicUser{
			ID:            u.ID.String(),
			Name:          u.Name,
			Email:         u.Email,
			ConsentStatus: status,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
