package txjournal

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "rekamed/pkg/domain-errors"
)

var (
	lockWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rekamed_memtx_lock_wait_seconds",
		Help:    "Time spent waiting for an in-memory transaction shard lock",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})
	rollbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rekamed_memtx_rollbacks_total",
		Help: "In-memory transactions rolled back through the undo journal",
	})
)

const defaultTimeout = 5 * time.Second

// Runner executes functions as in-memory transactions serialized per key.
type Runner struct {
	mu      *ShardedMutex
	timeout time.Duration
}

func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Runner{mu: NewShardedMutex(), timeout: timeout}
}

// Run holds key's shard for the duration of fn. A started transaction is
// detached from the caller's cancellation so it finishes or rolls back as a unit.
func (r *Runner) Run(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	start := time.Now()
	r.mu.Lock(key)
	lockWaitDuration.Observe(time.Since(start).Seconds())
	defer r.mu.Unlock(key)

	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	j := &Journal{}
	if err := fn(WithJournal(txCtx, j)); err != nil {
		if j.Len() > 0 {
			rollbacks.Inc()
		}
		j.Rollback()
		return err
	}
	return nil
}
