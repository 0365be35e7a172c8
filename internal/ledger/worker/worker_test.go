package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"rekamed/internal/ledger"
	"rekamed/internal/ledger/metrics"
	"rekamed/internal/ledger/store"
	"rekamed/internal/platform/kafka/producer"
)

type recordingProducer struct {
	mu     sync.Mutex
	msgs   []*producer.Message
	failAt int64
}

// Produce fails the whole batch when it carries block failAt.
func (p *recordingProducer) Produce(_ context.Context, msgs ...*producer.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, msg := range msgs {
		if key, _ := strconv.ParseInt(string(msg.Key), 10, 64); p.failAt >= 0 && key == p.failAt {
			return errors.New("broker unavailable")
		}
	}
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func (p *recordingProducer) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, string(m.Key))
	}
	return out
}

type TailerSuite struct {
	suite.Suite
	store    *store.InMemoryStore
	producer *recordingProducer
	cursor   *MemoryCursor
	tailer   *Tailer
}

func TestTailerSuite(t *testing.T) {
	suite.Run(t, new(TailerSuite))
}

func (s *TailerSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.producer = &recordingProducer{failAt: -1}
	s.cursor = NewMemoryCursor(0)
	s.tailer = NewTailer(s.store, s.producer,
		WithCursor(s.cursor),
		WithBatchSize(3),
		WithTailerMetrics(metrics.NewWith(prometheus.NewRegistry())),
		WithTailerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func (s *TailerSuite) appendN(n int) {
	for i := range n {
		_, err := ledger.Append(context.Background(), s.store, ledger.Entry{
			RecordID: fmt.Sprintf("req-%d", i), Kind: "consent.requested", Payload: []byte{byte(i)},
		}, time.Now())
		s.Require().NoError(err)
	}
}

func (s *TailerSuite) TestPublishesInBlockOrderAcrossBatches() {
	s.appendN(5)
	ctx := context.Background()

	n, err := s.tailer.PublishPending(ctx)
	s.Require().NoError(err)
	s.Equal(3, n)
	n, err = s.tailer.PublishPending(ctx)
	s.Require().NoError(err)
	s.Equal(2, n)
	n, err = s.tailer.PublishPending(ctx)
	s.Require().NoError(err)
	s.Zero(n)

	s.Equal([]string{"0", "1", "2", "3", "4"}, s.producer.keys())
	next, _ := s.cursor.Load(ctx)
	s.Equal(int64(5), next)
}

func (s *TailerSuite) TestFailureHoldsCursor() {
	s.appendN(3)
	s.producer.failAt = 1
	ctx := context.Background()

	n, err := s.tailer.PublishPending(ctx)
	s.Error(err)
	s.Zero(n)
	next, _ := s.cursor.Load(ctx)
	s.Equal(int64(0), next)
	s.Empty(s.producer.keys())

	s.producer.failAt = -1
	n, err = s.tailer.PublishPending(ctx)
	s.Require().NoError(err)
	s.Equal(3, n)
	s.Equal([]string{"0", "1", "2"}, s.producer.keys())
}

func (s *TailerSuite) TestStopDrainsPending() {
	s.tailer.pollInterval = time.Hour
	s.tailer.Start()
	s.appendN(4)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Require().NoError(s.tailer.Stop(ctx))
	s.Len(s.producer.keys(), 4)
}

type fakeChainVerifier struct {
	report *ledger.Report
	err    error
	calls  int
	source string
}

func (f *fakeChainVerifier) Verify(_ context.Context, source string) (*ledger.Report, error) {
	f.calls++
	f.source = source
	return f.report, f.err
}

func TestPeriodicVerifierRunOnce(t *testing.T) {
	fake := &fakeChainVerifier{report: &ledger.Report{OK: true, Checked: 9}}
	v := NewPeriodicVerifier(fake, WithVerifierLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	report, err := v.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !report.OK || fake.source != scheduledSource {
		t.Fatalf("unexpected run: ok=%v source=%q", report.OK, fake.source)
	}
}

func TestPeriodicVerifierStopsOnCancel(t *testing.T) {
	fake := &fakeChainVerifier{err: errors.New("db down")}
	v := NewPeriodicVerifier(fake,
		WithVerifyInterval(5*time.Millisecond),
		WithVerifierLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := v.Start(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Start returned %v", err)
	}
	if fake.calls == 0 {
		t.Fatal("verifier never ran")
	}
}
