package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	platformstrings "rekamed/pkg/platform/strings"
)

var ErrClosed = errors.New("producer is closed")

// Message is one record on a topic. Ledger messages are keyed by block id so
// consumers can dedupe redeliveries.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

func (m *Message) record() *kgo.Record {
	rec := &kgo.Record{Topic: m.Topic, Key: m.Key, Value: m.Value}
	for k, v := range m.Headers {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	return rec
}

type Config struct {
	Brokers         string
	ClientID        string
	Acks            string
	Retries         int
	DeliveryTimeout time.Duration
}

// Producer publishes synchronously: Produce returns once every record is
// acknowledged or has failed.
type Producer struct {
	client *kgo.Client
	logger *slog.Logger
	closed atomic.Bool
}

func New(cfg Config, logger *slog.Logger) (*Producer, error) {
	brokers := platformstrings.SplitList(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "rekamed"
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.ProducerLinger(5 * time.Millisecond),
		kgo.AllowAutoTopicCreation(),
	}
	opts = append(opts, ackOpts(cfg.Acks)...)
	if cfg.Retries > 0 {
		opts = append(opts, kgo.RecordRetries(cfg.Retries))
	}
	if cfg.DeliveryTimeout > 0 {
		opts = append(opts, kgo.RecordDeliveryTimeout(cfg.DeliveryTimeout))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Producer{client: client, logger: logger}, nil
}

// ackOpts maps KAFKA_ACKS. Anything weaker than all-ISR acks rules out
// idempotent writes.
func ackOpts(acks string) []kgo.Opt {
	switch acks {
	case "0":
		return []kgo.Opt{kgo.RequiredAcks(kgo.NoAck()), kgo.DisableIdempotentWrite()}
	case "1":
		return []kgo.Opt{kgo.RequiredAcks(kgo.LeaderAck()), kgo.DisableIdempotentWrite()}
	default:
		return []kgo.Opt{kgo.RequiredAcks(kgo.AllISRAcks())}
	}
}

// Produce publishes msgs in order and returns the first delivery error.
func (p *Producer) Produce(ctx context.Context, msgs ...*Message) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if len(msgs) == 0 {
		return nil
	}
	records := make([]*kgo.Record, len(msgs))
	for i, m := range msgs {
		records[i] = m.record()
	}
	for _, res := range p.client.ProduceSync(ctx, records...) {
		if res.Err != nil {
			return fmt.Errorf("produce to %s: %w", res.Record.Topic, res.Err)
		}
	}
	return nil
}

// EnsureTopics creates missing topics. Ledger topics need a single partition
// so block order survives; replication is left to the broker default when 0.
func (p *Producer) EnsureTopics(ctx context.Context, replication int16, topics ...string) error {
	if replication == 0 {
		replication = -1
	}
	resp, err := kadm.NewClient(p.client).CreateTopics(ctx, 1, replication, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	var errs []error
	for _, r := range resp.Sorted() {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			errs = append(errs, fmt.Errorf("topic %s: %w", r.Topic, r.Err))
		}
	}
	return errors.Join(errs...)
}

func (p *Producer) Healthy(ctx context.Context) bool {
	return !p.closed.Load() && p.client.Ping(ctx) == nil
}

// Close flushes what is buffered and shuts the client down. Safe to call twice.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("kafka producer closed with unflushed records", "error", err)
	}
	p.client.Close()
	return nil
}

// NoopProducer discards every message. Used when KAFKA_BROKERS is unset.
type NoopProducer struct{}

func NewNoopProducer() *NoopProducer { return &NoopProducer{} }

func (NoopProducer) Produce(context.Context, ...*Message) error           { return nil }
func (NoopProducer) EnsureTopics(context.Context, int16, ...string) error { return nil }
func (NoopProducer) Close() error                                         { return nil }
func (NoopProducer) Healthy(context.Context) bool                         { return true }
