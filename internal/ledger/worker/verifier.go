package worker

import (
	"context"
	"log/slog"
	"time"

	"rekamed/internal/ledger"
)

const scheduledSource = "scheduler"

// ChainVerifier is the ledger service's verification entry point.
type ChainVerifier interface {
	Verify(ctx context.Context, source string) (*ledger.Report, error)
}

// PeriodicVerifier re-verifies the whole chain on an interval. Alerts are
// raised by the service; this loop only logs.
type PeriodicVerifier struct {
	verifier ChainVerifier
	interval time.Duration
	logger   *slog.Logger
}

type VerifierOption func(*PeriodicVerifier)

func WithVerifyInterval(interval time.Duration) VerifierOption {
	return func(v *PeriodicVerifier) {
		if interval > 0 {
			v.interval = interval
		}
	}
}

func WithVerifierLogger(logger *slog.Logger) VerifierOption {
	return func(v *PeriodicVerifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

func NewPeriodicVerifier(verifier ChainVerifier, opts ...VerifierOption) *PeriodicVerifier {
	v := &PeriodicVerifier{
		verifier: verifier,
		interval: 10 * time.Minute,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Start runs verification until ctx is cancelled.
func (v *PeriodicVerifier) Start(ctx context.Context) error {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := v.RunOnce(ctx); err != nil {
				v.logger.ErrorContext(ctx, "scheduled ledger verification failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (v *PeriodicVerifier) RunOnce(ctx context.Context) (*ledger.Report, error) {
	report, err := v.verifier.Verify(ctx, scheduledSource)
	if err != nil {
		return nil, err
	}
	if report.OK {
		v.logger.InfoContext(ctx, "ledger verified", "checked", report.Checked)
	}
	return report, nil
}
