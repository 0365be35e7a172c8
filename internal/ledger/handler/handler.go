package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"rekamed/internal/ledger"
	dErrors "rekamed/pkg/domain-errors"
	"rekamed/pkg/platform/httputil"
	"rekamed/pkg/requestcontext"
)

// Service is the read side of the ledger.
type Service interface {
	List(ctx context.Context, filter ledger.ListFilter) ([]*ledger.Block, error)
	Verify(ctx context.Context, source string) (*ledger.Report, error)
}

type Handler struct {
	ledger Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{ledger: svc, logger: logger}
}

// Register mounts the ledger routes. Callers wrap r with auth and role checks.
func (h *Handler) Register(r chi.Router) {
	r.Get("/ledger", h.HandleList)
	r.Get("/ledger/verify", h.HandleVerify)
}

// BlockResponse omits the payload; audit events are served by the access log.
type BlockResponse struct {
	BlockID      int64     `json:"block_id"`
	RecordID     string    `json:"record_id"`
	Kind         string    `json:"kind"`
	DataHash     string    `json:"data_hash"`
	PreviousHash string    `json:"previous_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseListFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	blocks, err := h.ledger.List(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list ledger",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	resp := make([]BlockResponse, 0, len(blocks))
	for _, b := range blocks {
		resp = append(resp, BlockResponse{
			BlockID:      b.BlockID,
			RecordID:     b.RecordID,
			Kind:         b.Kind,
			DataHash:     b.DataHash,
			PreviousHash: b.PreviousHash,
			CreatedAt:    b.CreatedAt,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleVerify answers 200 for both intact and broken chains; the report
// says which. Failures to read the chain are 500.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := h.ledger.Verify(ctx, "api")
	if err != nil {
		h.logger.ErrorContext(ctx, "ledger verification failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if !report.OK {
		h.logger.WarnContext(ctx, "ledger verification found a broken chain",
			"request_id", requestcontext.RequestID(ctx),
			"first_bad_block_id", *report.FirstBadBlockID,
			"reason", report.Reason,
		)
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func parseListFilter(r *http.Request) (ledger.ListFilter, error) {
	var f ledger.ListFilter
	switch order := r.URL.Query().Get("order"); order {
	case "", string(ledger.OrderAsc):
		f.Order = ledger.OrderAsc
	case string(ledger.OrderDesc):
		f.Order = ledger.OrderDesc
	default:
		return f, dErrors.New(dErrors.CodeBadRequest, "order must be asc or desc")
	}
	limit, err := httputil.QueryInt(r, "limit")
	if err != nil {
		return f, err
	}
	offset, err := httputil.QueryInt(r, "offset")
	if err != nil {
		return f, err
	}
	f.Limit, f.Offset = limit, offset
	return f.Normalize(), nil
}
