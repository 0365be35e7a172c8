package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"rekamed/internal/access"
	accessmetrics "rekamed/internal/access/metrics"
	"rekamed/internal/admin"
	"rekamed/internal/audit"
	consentmetrics "rekamed/internal/consent/metrics"
	consentservice "rekamed/internal/consent/service"
	identityservice "rekamed/internal/identity/service"
	ledgermetrics "rekamed/internal/ledger/metrics"
	ledgerservice "rekamed/internal/ledger/service"
	"rekamed/internal/ledger/worker"
	"rekamed/internal/platform/config"
	"rekamed/internal/platform/metrics"
	"rekamed/internal/platform/tracer"
	ratelimitmw "rekamed/internal/ratelimit/middleware"
	ratelimitmodels "rekamed/internal/ratelimit/models"
	ratelimitstore "rekamed/internal/ratelimit/store"
	"rekamed/internal/records/cipher"
	recordsservice "rekamed/internal/records/service"
	"rekamed/pkg/crypto/signature"
)

const (
	projectionBuffer  = 1024
	tailerCursorKey   = "rekamed:ledger:tailer:next"
	rateLimitPrefix   = "rekamed:"
	poolStatsInterval = 15 * time.Second
)

type app struct {
	log           *slog.Logger
	users         *identityservice.Service
	consents      *consentservice.Service
	gate          *access.Gate
	records       *recordsservice.Service
	recorder      *audit.Recorder
	ledger        *ledgerservice.Service
	admin         *admin.Service
	ledgerMetrics *ledgermetrics.Metrics
	rateLimits    *ratelimitmw.Middleware
	// rateWindows is set when rate limit windows live in process memory.
	rateWindows *ratelimitstore.InMemoryStore
}

func newApp(ctx context.Context, cfg *config.Config, b *backends, reg *metrics.Registry, log *slog.Logger) (*app, error) {
	tr := tracer.NewOTel(nil)
	lm := ledgermetrics.NewWith(reg.Registerer())

	users := identityservice.New(b.users, log)
	if cfg.SeedFile != "" {
		n, err := users.LoadSeedFile(ctx, cfg.SeedFile, time.Now())
		if err != nil {
			return nil, err
		}
		log.Info("seed users loaded", "file", cfg.SeedFile, "count", n)
	}

	recorder := audit.NewRecorder(b.ledger, b.projection, log,
		audit.WithNames(users),
		audit.WithMetrics(lm),
		audit.WithTracer(tr),
		audit.WithAsyncProjection(projectionBuffer),
	)

	consentOpts := []consentservice.Option{
		consentservice.WithMetrics(consentmetrics.NewWith(reg.Registerer())),
		consentservice.WithTracer(tr),
		consentservice.WithDefaultDuration(cfg.Consent.DefaultDuration),
	}
	if cfg.Consent.MaxDuration > 0 {
		consentOpts = append(consentOpts, consentservice.WithMaxDuration(cfg.Consent.MaxDuration))
	}
	consents := consentservice.New(b.consents, b.consentTx, users, signature.NewVerifier(), recorder, log, consentOpts...)

	gate := access.New(consents, recorder, log,
		access.WithMetrics(accessmetrics.NewWith(reg.Registerer())),
		access.WithTracer(tr),
	)

	fc, err := cipher.New(cfg.Records.EncryptionKey)
	if err != nil {
		return nil, err
	}
	records := recordsservice.New(b.records, b.recordsTx, gate, recorder, users, fc, log)

	alerter := ledgerservice.MultiAlerter{ledgerservice.NewLogAlerter(log)}
	if cfg.Kafka.Brokers != "" {
		alerter = append(alerter, ledgerservice.NewKafkaAlerter(b.producer, cfg.Kafka.AlertsTopic))
	}
	ledgerSvc := ledgerservice.New(b.ledger, log,
		ledgerservice.WithMetrics(lm),
		ledgerservice.WithAlerter(alerter),
		ledgerservice.WithTracer(tr),
	)

	// A projection held only in memory starts empty; rebuild it from the chain.
	if cfg.Ledger.Projection == config.ProjectionMemory {
		n, err := recorder.Rebuild(ctx)
		if err != nil {
			return nil, err
		}
		log.Info("access log projection rebuilt", "blocks", n)
	}

	var (
		limiter     ratelimitmw.Limiter
		rateWindows *ratelimitstore.InMemoryStore
	)
	if b.redis != nil {
		limiter = ratelimitstore.NewRedis(b.redis.Client, rateLimitPrefix)
	} else {
		rateWindows = ratelimitstore.NewInMemory()
		limiter = rateWindows
	}
	rl := cfg.RateLimit
	policy := ratelimitmodels.Policy{
		ratelimitmodels.ClassSensitive: {Requests: rl.Sensitive, Window: rl.Window},
		ratelimitmodels.ClassWrite:     {Requests: rl.Write, Window: rl.Window},
		ratelimitmodels.ClassRead:      {Requests: rl.Read, Window: rl.Window},
	}

	return &app{
		log:           log,
		users:         users,
		consents:      consents,
		gate:          gate,
		records:       records,
		recorder:      recorder,
		ledger:        ledgerSvc,
		admin:         admin.NewService(b.ledger, ledgerSvc, recorder, users, cfg.Ledger.Backend, log),
		ledgerMetrics: lm,
		rateLimits:    ratelimitmw.New(limiter, policy, log, reg.Registerer()),
		rateWindows:   rateWindows,
	}, nil
}

// startWorkers adds the background loops to g. Each stops when ctx is
// cancelled.
func (a *app) startWorkers(ctx context.Context, g *errgroup.Group, cfg *config.Config, b *backends, reg *metrics.Registry) {
	if cfg.Kafka.Brokers != "" {
		topicsCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := b.producer.EnsureTopics(topicsCtx, 0, cfg.Kafka.BlocksTopic, cfg.Kafka.AlertsTopic); err != nil {
			a.log.Warn("could not provision ledger topics; relying on auto-creation", "error", err)
		}
		cancel()

		var cursor worker.Cursor = worker.NewMemoryCursor(0)
		if b.redis != nil {
			cursor = worker.NewRedisCursor(b.redis.Client, tailerCursorKey)
		}
		tailer := worker.NewTailer(b.ledger, b.producer,
			worker.WithTopic(cfg.Kafka.BlocksTopic),
			worker.WithPollInterval(cfg.Ledger.TailInterval),
			worker.WithCursor(cursor),
			worker.WithTailerMetrics(a.ledgerMetrics),
			worker.WithTailerLogger(a.log),
		)
		tailer.Start()
		g.Go(func() error {
			<-ctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := tailer.Stop(stopCtx); err != nil {
				reg.IncWorkerError("tailer")
				return err
			}
			return nil
		})
	}

	if cfg.Ledger.VerifyInterval > 0 {
		verifier := worker.NewPeriodicVerifier(a.ledger,
			worker.WithVerifyInterval(cfg.Ledger.VerifyInterval),
			worker.WithVerifierLogger(a.log),
		)
		g.Go(func() error {
			if _, err := verifier.RunOnce(ctx); err != nil {
				reg.IncWorkerError("verifier")
				a.log.ErrorContext(ctx, "startup ledger verification failed", "error", err)
			}
			if err := verifier.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				reg.IncWorkerError("verifier")
				return err
			}
			return nil
		})
	}

	if b.redis != nil {
		g.Go(func() error {
			return b.redis.RunPoolStats(ctx, poolStatsInterval)
		})
	}

	if a.rateWindows != nil && cfg.RateLimit.Window > 0 {
		g.Go(func() error {
			return a.rateWindows.RunSweeper(ctx, cfg.RateLimit.Window)
		})
	}
}
