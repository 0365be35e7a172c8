package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"rekamed/internal/ledger"
	"rekamed/internal/ledger/metrics"
	"rekamed/internal/platform/kafka/producer"
)

const DefaultBlocksTopic = "rekamed.ledger.blocks"

// MessageProducer is the publishing side of the Kafka producer.
type MessageProducer interface {
	Produce(ctx context.Context, msgs ...*producer.Message) error
}

// Tailer follows the ledger head and publishes every block, in block_id
// order, to a Kafka topic. Delivery is at-least-once: the cursor only
// advances after the broker acknowledged the whole batch.
type Tailer struct {
	store        ledger.Reader
	producer     MessageProducer
	cursor       Cursor
	topic        string
	batchSize    int
	pollInterval time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type TailerOption func(*Tailer)

func WithTopic(topic string) TailerOption {
	return func(t *Tailer) {
		if topic != "" {
			t.topic = topic
		}
	}
}

func WithBatchSize(size int) TailerOption {
	return func(t *Tailer) {
		if size > 0 {
			t.batchSize = size
		}
	}
}

func WithPollInterval(interval time.Duration) TailerOption {
	return func(t *Tailer) {
		if interval > 0 {
			t.pollInterval = interval
		}
	}
}

func WithCursor(c Cursor) TailerOption {
	return func(t *Tailer) { t.cursor = c }
}

func WithTailerMetrics(m *metrics.Metrics) TailerOption {
	return func(t *Tailer) { t.metrics = m }
}

func WithTailerLogger(logger *slog.Logger) TailerOption {
	return func(t *Tailer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func NewTailer(store ledger.Reader, prod MessageProducer, opts ...TailerOption) *Tailer {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tailer{
		store:        store,
		producer:     prod,
		topic:        DefaultBlocksTopic,
		batchSize:    100,
		pollInterval: 500 * time.Millisecond,
		logger:       slog.Default(),
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.cursor == nil {
		t.cursor = NewMemoryCursor(0)
	}
	return t
}

func (t *Tailer) Start() {
	t.wg.Add(1)
	go t.run()
}

func (t *Tailer) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			t.drain()
			return
		case <-ticker.C:
			if _, err := t.PublishPending(t.ctx); err != nil {
				t.logger.Error("ledger tailer poll failed", "error", err)
			}
		}
	}
}

// PublishPending publishes one batch of unpublished blocks and returns how
// many went out. A failed batch is retried whole on the next poll.
func (t *Tailer) PublishPending(ctx context.Context) (int, error) {
	next, err := t.cursor.Load(ctx)
	if err != nil {
		return 0, err
	}
	blocks, err := t.store.List(ctx, ledger.ListFilter{Order: ledger.OrderAsc, Offset: int(next), Limit: t.batchSize})
	if err != nil {
		return 0, fmt.Errorf("list blocks from %d: %w", next, err)
	}
	if len(blocks) == 0 {
		return 0, nil
	}

	msgs := make([]*producer.Message, 0, len(blocks))
	for i, b := range blocks {
		if want := next + int64(i); b.BlockID != want {
			return 0, fmt.Errorf("expected block %d, store returned %d", want, b.BlockID)
		}
		msg, err := t.message(b)
		if err != nil {
			return 0, err
		}
		msgs = append(msgs, msg)
	}

	last := blocks[len(blocks)-1].BlockID
	if err := t.producer.Produce(ctx, msgs...); err != nil {
		if t.metrics != nil {
			t.metrics.PublishFailures.Inc()
		}
		return 0, fmt.Errorf("publish blocks %d..%d: %w", next, last, err)
	}
	if t.metrics != nil {
		t.metrics.BlocksPublished.Add(float64(len(msgs)))
	}
	// A lost cursor write republishes the batch; consumers dedupe on key.
	if err := t.cursor.Save(ctx, last+1); err != nil {
		return len(msgs), err
	}
	return len(msgs), nil
}

func (t *Tailer) message(b *ledger.Block) (*producer.Message, error) {
	value, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode block %d: %w", b.BlockID, err)
	}
	return &producer.Message{
		Topic: t.topic,
		Key:   []byte(strconv.FormatInt(b.BlockID, 10)),
		Value: value,
		Headers: map[string]string{
			"kind":      b.Kind,
			"record_id": b.RecordID,
			"data_hash": b.DataHash,
		},
	}, nil
}

func (t *Tailer) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for {
		n, err := t.PublishPending(ctx)
		if err != nil {
			t.logger.Error("ledger tailer drain failed", "error", err)
			return
		}
		if n == 0 {
			return
		}
	}
}

// Stop cancels polling, waits for the drain to finish or ctx to expire.
func (t *Tailer) Stop(ctx context.Context) error {
	t.cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
