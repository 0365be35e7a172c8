// Package health serves liveness, readiness and status checks.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"rekamed/pkg/platform/httputil"
)

// Version is set at build time via ldflags.
var Version = "dev"

const checkTimeout = 2 * time.Second

// CheckFunc reports whether a dependency is usable. nil means healthy.
type CheckFunc func(ctx context.Context) error

// Severity decides what a failing check does to readiness. A failing
// Degraded dependency has a fallback (the access log falls back to the
// ledger, rate limiting fails open, the block tailer retries), so the
// instance keeps serving.
type Severity int

const (
	Critical Severity = iota
	Degraded
)

type check struct {
	name     string
	fn       CheckFunc
	severity Severity
}

type Handler struct {
	started     time.Time
	environment string
	ledger      string
	head        func(ctx context.Context) (int64, error)

	mu     sync.RWMutex
	checks []check
}

// New creates a health handler. ledgerBackend is reported by the status endpoint.
func New(environment, ledgerBackend string) *Handler {
	return &Handler{started: time.Now(), environment: environment, ledger: ledgerBackend}
}

// RegisterCheck adds a dependency to the readiness check.
func (h *Handler) RegisterCheck(name string, severity Severity, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check{name: name, fn: fn, severity: severity})
}

// ReportHead makes the status endpoint include the current ledger head.
func (h *Handler) ReportHead(head func(ctx context.Context) (int64, error)) {
	h.head = head
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleStatus)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
}

func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleReadiness runs every check concurrently. Any critical failure
// answers 503; degraded failures are reported with a 200.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := append([]check(nil), h.checks...)
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	errs := make([]error, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			errs[i] = c.fn(ctx)
			return nil
		})
	}
	_ = g.Wait()

	resp := ReadinessResponse{Status: "ready", Checks: make(map[string]string, len(checks))}
	code := http.StatusOK
	for i, c := range checks {
		if errs[i] == nil {
			resp.Checks[c.name] = "up"
			continue
		}
		resp.Checks[c.name] = "down: " + errs[i].Error()
		switch {
		case c.severity == Critical:
			resp.Status, code = "not_ready", http.StatusServiceUnavailable
		case code == http.StatusOK:
			resp.Status = "degraded"
		}
	}
	httputil.WriteJSON(w, code, resp)
}

type StatusResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Environment   string `json:"environment"`
	Ledger        string `json:"ledger_backend"`
	LedgerHead    *int64 `json:"ledger_head,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Timestamp     string `json:"timestamp"`
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:        "healthy",
		Version:       Version,
		Environment:   h.environment,
		Ledger:        h.ledger,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
	if h.head != nil {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()
		if n, err := h.head(ctx); err == nil {
			resp.LedgerHead = &n
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
