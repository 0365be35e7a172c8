package tracer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNoopReturnsContextUnchanged(t *testing.T) {
	ctx := context.Background()
	got, span := Noop{}.Start(ctx, SpanLedgerAppend, attribute.Int64("block_id", 3))
	assert.Equal(t, ctx, got)
	require.NotNil(t, span)
	span.AddEvent("ledger.head_read")
	span.End(errors.New("boom"))
}

func TestOTelWithNoopProvider(t *testing.T) {
	tr := NewOTel(noop.NewTracerProvider().Tracer("test"))
	_, span := tr.Start(context.Background(), SpanLedgerVerify)
	span.SetAttributes(attribute.Bool("ok", true))
	span.End(nil)
}

func TestOrNoop(t *testing.T) {
	assert.IsType(t, Noop{}, OrNoop(nil))
	tr := NewOTel(nil)
	assert.Same(t, tr, OrNoop(tr))
}
