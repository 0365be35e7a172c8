package admin

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"rekamed/internal/identity/models"
	"rekamed/internal/ledger"
	id "rekamed/pkg/domain"
	dErrors "rekamed/pkg/domain-errors"
	"rekamed/pkg/platform/httputil"
	adminmw "rekamed/pkg/platform/middleware/admin"
	"rekamed/pkg/requestcontext"
	"rekamed/pkg/validation"
)

// Handler serves operator endpoints. Mount behind RequireAdminToken.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func New(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/stats", h.HandleGetStats)
	r.Post("/admin/ledger/verify", h.HandleVerify)
	r.Post("/admin/access-log/rebuild", h.HandleRebuild)
	r.Post("/admin/users", h.HandleRegisterUser)
}

func (h *Handler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.service.GetStats(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to get stats",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

type verifyResponse struct {
	Error       string         `json:"error,omitempty"`
	Description string         `json:"error_description,omitempty"`
	Report      *ledger.Report `json:"report,omitempty"`
}

// HandleVerify answers 500 with the report when the chain is broken.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := h.service.Verify(ctx, adminmw.ActorID(ctx))
	if err != nil {
		if report != nil && dErrors.HasCode(err, dErrors.CodeIntegrity) {
			h.logger.ErrorContext(ctx, "strict ledger verification failed",
				"request_id", requestcontext.RequestID(ctx),
				"first_bad_block_id", *report.FirstBadBlockID,
				"reason", report.Reason,
			)
			httputil.WriteJSON(w, http.StatusInternalServerError, verifyResponse{
				Error:       httputil.DomainCodeToHTTPCode(dErrors.CodeIntegrity),
				Description: err.Error(),
				Report:      report,
			})
			return
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, verifyResponse{Report: report})
}

func (h *Handler) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.service.RebuildAccessLog(ctx, adminmw.ActorID(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to rebuild access log",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// RegisterUserRequest is the body of POST /admin/users. ID is optional.
type RegisterUserRequest struct {
	ID             string `json:"id" validate:"omitempty,uuid"`
	Name           string `json:"name" validate:"required,notblank,max=200"`
	Email          string `json:"email" validate:"required,email,max=254"`
	Role           string `json:"role" validate:"required,oneof=doctor patient"`
	PublicKey      string `json:"public_key" validate:"max=200"`
	NIP            string `json:"nip" validate:"max=64"`
	Phone          string `json:"phone" validate:"max=32"`
	Specialization string `json:"specialization" validate:"max=100"`
}

func (r *RegisterUserRequest) Normalize() {
	r.ID = strings.TrimSpace(r.ID)
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
	r.PublicKey = strings.TrimSpace(r.PublicKey)
}

func (r *RegisterUserRequest) Validate() error {
	return validation.Validate(r)
}

func (h *Handler) HandleRegisterUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[RegisterUserRequest](w, r, h.logger)
	if !ok {
		return
	}
	uid := id.UserID(uuid.New())
	if req.ID != "" {
		parsed, err := id.ParseUserID(req.ID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		uid = parsed
	}

	profile, err := h.service.RegisterUser(ctx, &models.User{
		ID:             uid,
		Name:           req.Name,
		Email:          req.Email,
		Role:           id.Role(req.Role),
		PublicKey:      req.PublicKey,
		NIP:            req.NIP,
		Phone:          req.Phone,
		Specialization: req.Specialization,
	}, adminmw.ActorID(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "failed to register user",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, profile)
}
