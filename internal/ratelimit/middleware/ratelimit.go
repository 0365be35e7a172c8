// Package middleware applies per-class rate limits to HTTP routes. Callers
// are keyed by user id when authenticated and by client IP otherwise.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"rekamed/internal/platform/privacy"
	"rekamed/internal/ratelimit/models"
	dErrors "rekamed/pkg/domain-errors"
	"rekamed/pkg/platform/httputil"
	"rekamed/pkg/requestcontext"
)

type Limiter interface {
	Allow(ctx context.Context, key string, limit models.Limit, now time.Time) (*models.Result, error)
}

type Middleware struct {
	limiter   Limiter
	policy    models.Policy
	logger    *slog.Logger
	decisions *prometheus.CounterVec
}

func New(limiter Limiter, policy models.Policy, logger *slog.Logger, reg prometheus.Registerer) *Middleware {
	return &Middleware{
		limiter: limiter,
		policy:  policy,
		logger:  logger,
		decisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "rekamed_ratelimit_decisions_total",
			Help: "Rate limit decisions by endpoint class and outcome",
		}, []string{"class", "outcome"}),
	}
}

// Limit enforces the policy's limit for class. A store error lets the
// request through.
func (m *Middleware) Limit(class models.Class) func(http.Handler) http.Handler {
	limit, ok := m.policy[class]
	return func(next http.Handler) http.Handler {
		if !ok || !limit.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			now := requestcontext.Now(ctx)
			subject := subjectOf(ctx)

			res, err := m.limiter.Allow(ctx, models.Key(class, subject), limit, now)
			if err != nil {
				m.decisions.WithLabelValues(string(class), "error").Inc()
				m.logger.WarnContext(ctx, "rate limit check failed, allowing request",
					"class", class,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			for k, v := range res.Headers() {
				w.Header().Set(k, v)
			}
			if !res.Allowed {
				m.decisions.WithLabelValues(string(class), "rejected").Inc()
				w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter(now).Seconds())))
				m.logger.InfoContext(ctx, "rate limit exceeded", "class", class, "subject", redact(subject))
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests, retry later"))
				return
			}
			m.decisions.WithLabelValues(string(class), "allowed").Inc()
			next.ServeHTTP(w, r)
		})
	}
}

// ByMethod limits GET and HEAD as ClassRead and everything else as mutations.
func (m *Middleware) ByMethod(mutations models.Class) func(http.Handler) http.Handler {
	read, write := m.Limit(models.ClassRead), m.Limit(mutations)
	return func(next http.Handler) http.Handler {
		readNext, writeNext := read(next), write(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				readNext.ServeHTTP(w, r)
				return
			}
			writeNext.ServeHTTP(w, r)
		})
	}
}

func subjectOf(ctx context.Context) string {
	if p, ok := requestcontext.GetPrincipal(ctx); ok && !p.UserID.IsNil() {
		return "user:" + p.UserID.String()
	}
	return "ip:" + requestcontext.ClientIP(ctx)
}

// redact keeps IP subjects out of the logs at full precision.
func redact(subject string) string {
	if ip, ok := strings.CutPrefix(subject, "ip:"); ok {
		return "ip:" + privacy.AnonymizeIP(ip)
	}
	return subject
}
