package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"rekamed/internal/ledger"
	"rekamed/internal/ledger/metrics"
	"rekamed/internal/platform/tracer"
	"rekamed/internal/sentinel"
	dErrors "rekamed/pkg/domain-errors"
	"rekamed/pkg/requestcontext"
)

// Service exposes read access and integrity verification over a ledger store.
// Appends go through the audit recorder, never through here.
type Service struct {
	store   ledger.Reader
	alerter Alerter
	metrics *metrics.Metrics
	tracer  tracer.Tracer
	logger  *slog.Logger
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAlerter(a Alerter) Option {
	return func(s *Service) { s.alerter = a }
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func New(store ledger.Reader, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{store: store, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	if s.alerter == nil {
		s.alerter = NewLogAlerter(logger)
	}
	s.tracer = tracer.OrNoop(s.tracer)
	return s
}

func (s *Service) List(ctx context.Context, filter ledger.ListFilter) ([]*ledger.Block, error) {
	blocks, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list ledger blocks")
	}
	if blocks == nil {
		blocks = []*ledger.Block{}
	}
	return blocks, nil
}

func (s *Service) Get(ctx context.Context, blockID int64) (*ledger.Block, error) {
	b, err := s.store.Get(ctx, blockID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("ledger block %d not found", blockID))
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read ledger block")
	}
	return b, nil
}

// Verify checks the whole chain. A broken chain is a successful verification
// with OK=false; it raises an alert but is not returned as an error.
func (s *Service) Verify(ctx context.Context, source string) (*ledger.Report, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanLedgerVerify, attribute.String("source", source))
	start := time.Now()

	report, err := ledger.Verify(ctx, s.store, requestcontext.Now(ctx))
	if err != nil {
		span.End(err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify ledger")
	}
	span.SetAttributes(attribute.Bool("ok", report.OK), attribute.Int64("checked", report.Checked))
	span.End(nil)

	if s.metrics != nil {
		s.metrics.ObserveVerify(report.OK, time.Since(start).Seconds())
	}
	if !report.OK {
		if alertErr := s.alerter.Alert(ctx, alertFromReport(report, source)); alertErr != nil {
			s.logger.ErrorContext(ctx, "failed to raise ledger alert", "error", alertErr)
		}
	}
	return report, nil
}

// VerifyStrict is Verify for callers that treat a broken chain as failure.
func (s *Service) VerifyStrict(ctx context.Context, source string) (*ledger.Report, error) {
	report, err := s.Verify(ctx, source)
	if err != nil {
		return nil, err
	}
	if !report.OK {
		return report, dErrors.New(dErrors.CodeIntegrity,
			fmt.Sprintf("ledger chain broken at block %d: %s", *report.FirstBadBlockID, report.Reason))
	}
	return report, nil
}
