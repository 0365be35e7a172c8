package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"rekamed/internal/ledger"
	ledgermetrics "rekamed/internal/ledger/metrics"
	"rekamed/internal/platform/privacy"
	"rekamed/internal/platform/tracer"
	id "rekamed/pkg/domain"
	dErrors "rekamed/pkg/domain-errors"
	"rekamed/pkg/platform/circuit"
	"rekamed/pkg/requestcontext"
)

const defaultRebuildBatch = 500

// Recorder turns audit events into ledger blocks and keeps the access log
// projection in step with the chain.
type Recorder struct {
	ledger       ledger.Store
	projection   Projection
	names        NameResolver
	metrics      *ledgermetrics.Metrics
	tracer       tracer.Tracer
	logger       *slog.Logger
	rebuildBatch int
	breaker      *circuit.Breaker

	blocks chan *ledger.Block
	wg     sync.WaitGroup
	async  bool
}

type Option func(*Recorder)

func WithNames(n NameResolver) Option {
	return func(r *Recorder) { r.names = n }
}

func WithMetrics(m *ledgermetrics.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

func WithTracer(t tracer.Tracer) Option {
	return func(r *Recorder) { r.tracer = t }
}

func WithRebuildBatch(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.rebuildBatch = n
		}
	}
}

// WithProjectionBreaker replaces the default breaker guarding the projection.
func WithProjectionBreaker(b *circuit.Breaker) Option {
	return func(r *Recorder) { r.breaker = b }
}

// WithAsyncProjection projects committed blocks from a background goroutine
// fed by a buffer of size blocks. A full buffer drops the projection, never
// the block; Rebuild recovers it.
func WithAsyncProjection(size int) Option {
	return func(r *Recorder) {
		if size > 0 {
			r.blocks = make(chan *ledger.Block, size)
			r.async = true
		}
	}
}

func NewRecorder(store ledger.Store, projection Projection, logger *slog.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		ledger:       store,
		projection:   projection,
		logger:       logger,
		rebuildBatch: defaultRebuildBatch,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.tracer = tracer.OrNoop(r.tracer)
	if r.breaker == nil {
		r.breaker = circuit.New("access_log_projection")
	}
	if r.async {
		r.wg.Add(1)
		go r.projectQueued()
	}
	return r
}

// Close stops the async projector after draining queued blocks and waits
// for a running backfill.
func (r *Recorder) Close() {
	if r.async && r.blocks != nil {
		close(r.blocks)
	}
	r.wg.Wait()
}

func (r *Recorder) projectQueued() {
	defer r.wg.Done()
	for b := range r.blocks {
		r.project(context.Background(), b)
	}
}

// Append canonicalizes ev and links it onto store, which may be bound to the
// caller's transaction. It must be the caller's last write.
func (r *Recorder) Append(ctx context.Context, store ledger.Store, ev Event) (*ledger.Block, error) {
	ev = enrich(ctx, ev)
	if err := ev.validate(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "invalid audit event")
	}
	payload, err := ev.Canonical()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode audit event")
	}

	ctx, span := r.tracer.Start(ctx, tracer.SpanLedgerAppend,
		attribute.String("kind", string(ev.Kind)),
		attribute.String("record_id", ev.RecordID),
	)
	start := time.Now()
	b, err := ledger.Append(ctx, store, ledger.Entry{
		RecordID: ev.RecordID,
		Kind:     string(ev.Kind),
		Payload:  payload,
	}, ev.Timestamp)
	span.End(err)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append audit block")
	}
	if r.metrics != nil {
		r.metrics.ObserveAppend(b.Kind, b.BlockID, time.Since(start).Seconds())
	}
	return b, nil
}

// Record appends ev in its own ledger transaction and projects it.
func (r *Recorder) Record(ctx context.Context, ev Event) (*ledger.Block, error) {
	b, err := r.Append(ctx, r.ledger, ev)
	if err != nil {
		return nil, err
	}
	r.Project(ctx, b)
	return b, nil
}

// Project writes a committed block to the access log. Failures are logged
// and never reach the caller: the ledger is the source of truth.
func (r *Recorder) Project(ctx context.Context, b *ledger.Block) {
	if b == nil {
		return
	}
	if !r.async {
		r.project(context.WithoutCancel(ctx), b)
		return
	}
	select {
	case r.blocks <- b:
	default:
		r.logger.WarnContext(ctx, "projection buffer full, block not projected",
			"block_id", b.BlockID,
			"kind", b.Kind,
		)
	}
}

func (r *Recorder) project(ctx context.Context, b *ledger.Block) {
	ctx, span := r.tracer.Start(ctx, tracer.SpanProjectionPut, attribute.Int64("block_id", b.BlockID))
	entries, err := r.entries(ctx, []*ledger.Block{b})
	if err == nil {
		err = r.projection.Put(ctx, entries)
	}
	span.End(err)
	r.observe(ctx, err)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to project audit block",
			"block_id", b.BlockID,
			"kind", b.Kind,
			"error", err,
		)
	}
}

// Rebuild resets the projection and replays every block of the ledger.
// It returns the number of entries written.
func (r *Recorder) Rebuild(ctx context.Context) (int, error) {
	ctx, span := r.tracer.Start(ctx, tracer.SpanProjectionBulk)
	n, err := r.rebuild(ctx)
	span.End(err)
	if err != nil {
		return n, dErrors.Wrap(err, dErrors.CodeInternal, "failed to rebuild access log")
	}
	r.logger.InfoContext(ctx, "access log rebuilt", "entries", n)
	return n, nil
}

func (r *Recorder) rebuild(ctx context.Context) (int, error) {
	if err := r.projection.Reset(ctx); err != nil {
		return 0, fmt.Errorf("reset projection: %w", err)
	}
	n, err := r.backfill(ctx)
	if err == nil {
		r.breaker.Reset()
	}
	return n, err
}

// backfill replays every block into the projection without clearing it.
// Put is idempotent by block id, so entries already present are rewritten.
func (r *Recorder) backfill(ctx context.Context) (int, error) {
	total := 0
	batch := make([]*ledger.Block, 0, r.rebuildBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		entries, err := r.entries(ctx, batch)
		if err != nil {
			return err
		}
		if err := r.projection.Put(ctx, entries); err != nil {
			return fmt.Errorf("put entries: %w", err)
		}
		total += len(entries)
		batch = batch[:0]
		return nil
	}

	err := r.ledger.Walk(ctx, 0, func(b *ledger.Block) error {
		batch = append(batch, b)
		if len(batch) < r.rebuildBatch {
			return nil
		}
		return flush()
	})
	if err != nil && !errors.Is(err, ledger.ErrStopWalk) {
		return total, fmt.Errorf("walk ledger: %w", err)
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

// entries decodes blocks and joins display names. Blocks whose payload is not
// an audit event are skipped.
func (r *Recorder) entries(ctx context.Context, blocks []*ledger.Block) ([]*AccessLogEntry, error) {
	entries := make([]*AccessLogEntry, 0, len(blocks))
	for _, b := range blocks {
		ev, err := DecodeEvent(b)
		if err != nil {
			r.logger.WarnContext(ctx, "skipping undecodable ledger block", "block_id", b.BlockID, "error", err)
			continue
		}
		entries = append(entries, NewAccessLogEntry(b, ev))
	}
	if err := r.joinNames(ctx, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *Recorder) joinNames(ctx context.Context, entries []*AccessLogEntry) error {
	if r.names == nil || len(entries) == 0 {
		return nil
	}
	ids := make([]id.UserID, 0, 3*len(entries))
	for _, e := range entries {
		ids = append(ids, e.ActorID, e.PatientID, e.DoctorID)
	}
	names, err := r.names.Names(ctx, ids...)
	if err != nil {
		return fmt.Errorf("resolve names: %w", err)
	}
	for _, e := range entries {
		e.DoctorName = names[e.DoctorID]
		e.PatientName = names[e.PatientID]
	}
	return nil
}

// ForPatient returns a patient's access log, newest first.
func (r *Recorder) ForPatient(ctx context.Context, patientID id.UserID, filter LogFilter) ([]*AccessLogEntry, error) {
	return r.list(ctx, filter, r.projection.ListByPatient, patientID,
		func(e *AccessLogEntry) bool { return e.PatientID == patientID })
}

// ForActor returns the entries a user produced, newest first.
func (r *Recorder) ForActor(ctx context.Context, actorID id.UserID, filter LogFilter) ([]*AccessLogEntry, error) {
	return r.list(ctx, filter, r.projection.ListByActor, actorID,
		func(e *AccessLogEntry) bool { return e.ActorID == actorID })
}

// ProjectionDegraded reports whether access-log reads are currently served
// from the ledger because the projection is failing.
func (r *Recorder) ProjectionDegraded() bool {
	return r.breaker.Open()
}

type listFunc func(ctx context.Context, userID id.UserID, filter LogFilter) ([]*AccessLogEntry, error)

// list reads from the projection while its breaker is closed and from the
// chain itself otherwise.
func (r *Recorder) list(ctx context.Context, filter LogFilter, fromProjection listFunc, userID id.UserID, match func(*AccessLogEntry) bool) ([]*AccessLogEntry, error) {
	filter = filter.Normalize()
	if !r.breaker.Open() {
		entries, err := fromProjection(ctx, userID, filter)
		r.observe(ctx, err)
		if err == nil {
			if entries == nil {
				entries = []*AccessLogEntry{}
			}
			return entries, nil
		}
		r.logger.WarnContext(ctx, "access log projection read failed, scanning ledger", "error", err)
	}

	entries, err := r.scan(ctx, filter, match)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load access log")
	}
	return entries, nil
}

// scan builds one page of the access log straight from the ledger.
func (r *Recorder) scan(ctx context.Context, filter LogFilter, match func(*AccessLogEntry) bool) ([]*AccessLogEntry, error) {
	ctx, span := r.tracer.Start(ctx, tracer.SpanProjectionScan)
	matched := make([]*AccessLogEntry, 0)
	err := r.ledger.Walk(ctx, 0, func(b *ledger.Block) error {
		ev, err := DecodeEvent(b)
		if err != nil {
			return nil
		}
		if e := NewAccessLogEntry(b, ev); match(e) {
			matched = append(matched, e)
		}
		return nil
	})
	if err != nil && !errors.Is(err, ledger.ErrStopWalk) {
		span.End(err)
		return nil, fmt.Errorf("walk ledger: %w", err)
	}

	slices.Reverse(matched)
	if filter.Offset >= len(matched) {
		span.End(nil)
		return []*AccessLogEntry{}, nil
	}
	page := matched[filter.Offset:]
	page = page[:min(filter.Limit, len(page))]
	err = r.joinNames(ctx, page)
	span.End(err)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// observe feeds a projection outcome to the breaker. When the breaker closes
// again the blocks written during the outage are backfilled.
func (r *Recorder) observe(ctx context.Context, err error) {
	wasOpen := r.breaker.Open()
	open := r.breaker.Observe(err)
	switch {
	case open && !wasOpen:
		r.logger.ErrorContext(ctx, "access log projection unavailable, serving reads from the ledger",
			"breaker", r.breaker.Name(), "error", err)
	case wasOpen && !open:
		r.logger.InfoContext(ctx, "access log projection recovered, backfilling", "breaker", r.breaker.Name())
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			bctx := context.WithoutCancel(ctx)
			if n, err := r.backfill(bctx); err != nil {
				r.logger.ErrorContext(bctx, "access log backfill failed", "error", err, "entries", n)
			}
		}()
	}
}

// enrich fills request metadata the caller left empty.
func enrich(ctx context.Context, ev Event) Event {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = requestcontext.Now(ctx)
	}
	if ev.RequestID == "" {
		ev.RequestID = requestcontext.RequestID(ctx)
	}
	if ev.Device == "" {
		ev.Device = DeviceLabel(requestcontext.UserAgent(ctx))
	}
	if ev.IPPrefix == "" {
		if ip := requestcontext.ClientIP(ctx); ip != "" {
			ev.IPPrefix = privacy.AnonymizeIP(ip)
		}
	}
	if ev.ActorRole == "" {
		if p, ok := requestcontext.GetPrincipal(ctx); ok && p.UserID == ev.ActorID {
			ev.ActorRole = p.Role
		}
	}
	return ev
}
