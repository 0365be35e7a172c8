// Package tracer is a thin span abstraction over OpenTelemetry so the ledger,
// gate and consent code can be traced without importing otel everywhere.
package tracer

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "rekamed"

// Span names.
const (
	SpanLedgerAppend   = "ledger.append"
	SpanLedgerVerify   = "ledger.verify"
	SpanGateAuthorize  = "access.authorize"
	SpanConsentDecide  = "consent.decide"
	SpanConsentRevoke  = "consent.revoke"
	SpanConsentCreate  = "consent.create"
	SpanProjectionPut  = "audit.project"
	SpanProjectionBulk = "audit.rebuild"
	SpanProjectionScan = "audit.scan"
)

// Span is an active span. End must be called exactly once.
type Span interface {
	End(err error)
	SetAttributes(attrs ...attribute.KeyValue)
	AddEvent(name string, attrs ...attribute.KeyValue)
}

// Tracer starts spans. Implementations are safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span)
}

// OTel adapts an OpenTelemetry tracer.
type OTel struct {
	tracer trace.Tracer
}

// NewOTel uses the global provider unless a tracer is supplied.
func NewOTel(t trace.Tracer) *OTel {
	if t == nil {
		t = otel.Tracer(instrumentationName)
	}
	return &OTel{tracer: t}
}

func (t *OTel) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
}

func (s *otelSpan) SetAttributes(attrs ...attribute.KeyValue) {
	s.span.SetAttributes(attrs...)
}

func (s *otelSpan) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Noop discards everything; the zero value is ready to use.
type Noop struct{}

func (Noop) Start(ctx context.Context, _ string, _ ...attribute.KeyValue) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error)                              {}
func (noopSpan) SetAttributes(...attribute.KeyValue)    {}
func (noopSpan) AddEvent(string, ...attribute.KeyValue) {}

// OrNoop returns t, or a Noop tracer when t is nil.
func OrNoop(t Tracer) Tracer {
	if t == nil {
		return Noop{}
	}
	return t
}

var (
	_ Tracer = (*OTel)(nil)
	_ Tracer = Noop{}
)
