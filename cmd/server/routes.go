package main

import (
	"context"
	"errors"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"rekamed/internal/admin"
	audithandler "rekamed/internal/audit/handler"
	consenthandler "rekamed/internal/consent/handler"
	identityhandler "rekamed/internal/identity/handler"
	jwttoken "rekamed/internal/jwt_token"
	ledgerhandler "rekamed/internal/ledger/handler"
	"rekamed/internal/platform/config"
	"rekamed/internal/platform/health"
	"rekamed/internal/platform/metrics"
	ratelimitmodels "rekamed/internal/ratelimit/models"
	recordshandler "rekamed/internal/records/handler"
	id "rekamed/pkg/domain"
	adminmw "rekamed/pkg/platform/middleware/admin"
	"rekamed/pkg/platform/middleware/auth"
	"rekamed/pkg/platform/middleware/metadata"
	"rekamed/pkg/platform/middleware/request"
)

func (a *app) router(cfg *config.Config, reg *metrics.Registry, b *backends) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(a.log))
	r.Use(request.RequestID)
	r.Use(metadata.NewMiddleware(&metadata.Config{TrustedProxies: a.trustedProxies(cfg)}).Handler)
	r.Use(request.Observe(a.log, request.NewMetrics(reg.Registerer())))
	r.Use(request.Timeout(cfg.Server.RequestTimeout))
	r.Use(request.BodyLimit(cfg.Server.MaxBodyBytes))

	hh := health.New(cfg.Environment, cfg.Ledger.Backend)
	hh.RegisterCheck("ledger", health.Critical, func(ctx context.Context) error {
		_, err := b.ledger.Head(ctx)
		return err
	})
	hh.ReportHead(func(ctx context.Context) (int64, error) {
		head, err := b.ledger.Head(ctx)
		if err != nil || head == nil {
			return -1, err
		}
		return head.BlockID, nil
	})
	if b.pool != nil {
		hh.RegisterCheck("postgres", health.Critical, b.pool.Health)
	}
	if b.redis != nil {
		hh.RegisterCheck("redis", health.Degraded, b.redis.Health)
	}
	if cfg.Kafka.Brokers != "" {
		hh.RegisterCheck("kafka", health.Degraded, func(ctx context.Context) error {
			if !b.producer.Healthy(ctx) {
				return errKafkaUnreachable
			}
			return nil
		})
	}
	hh.Register(r)
	r.Method(http.MethodGet, "/metrics", reg.Handler())

	r.Group(func(r chi.Router) {
		r.Use(adminmw.RequireAdminToken(cfg.Auth.AdminToken, a.log))
		r.Use(request.ContentTypeJSON)
		admin.New(a.admin, a.log).Register(r)
	})

	jwt := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(jwttoken.NewJWTServiceAdapter(jwt), a.log))
		r.Use(request.ContentTypeJSON)

		r.Group(func(r chi.Router) {
			r.Use(a.rateLimits.ByMethod(ratelimitmodels.ClassSensitive))
			consenthandler.New(a.consents, a.log).Register(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(a.rateLimits.ByMethod(ratelimitmodels.ClassWrite))
			recordshandler.New(a.records, a.log).Register(r)
			audithandler.New(a.recorder, a.gate, a.log).Register(r)
			identityhandler.New(a.users, a.consents, a.log).Register(r)
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(a.log, id.RoleDoctor))
				ledgerhandler.New(a.ledger, a.log).Register(r)
			})
		})
	})

	return cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           600,
	}).Handler(r)
}

func (a *app) trustedProxies(cfg *config.Config) []netip.Prefix {
	prefixes, err := metadata.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		a.log.Warn("ignoring invalid TRUSTED_PROXIES", "error", err)
		return nil
	}
	return prefixes
}

var errKafkaUnreachable = errors.New("kafka brokers unreachable")
