package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// newSpanRecorder installs an in-memory tracer provider as the global one
// for the duration of the test
func newSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func attrMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value
	}
	return m
}

func TestStartServiceSpan(t *testing.T) {
	sr := newSpanRecorder(t)

	ctx, span := StartServiceSpan(context.Background(), "sync_engine", "sync",
		WithAttribute(SpanAttrPlatform, "SHOPEE"),
		WithAttribute(SpanAttrShopID, "shop-88"),
	)
	assert.True(t, trace.SpanFromContext(ctx).SpanContext().IsValid())
	span.End()

	ended := sr.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "sync_engine.sync", ended[0].Name())
	assert.Equal(t, trace.SpanKindInternal, ended[0].SpanKind())
	assert.Equal(t, TracerName, ended[0].InstrumentationScope().Name)

	attrs := attrMap(ended[0].Attributes())
	assert.Equal(t, "SHOPEE", attrs[SpanAttrPlatform].AsString())
	assert.Equal(t, "shop-88", attrs[SpanAttrShopID].AsString())
}

func TestStartSpan_ClientKindAndChild(t *testing.T) {
	sr := newSpanRecorder(t)

	ctx, parent := StartSpan(context.Background(), "webhook.process")
	_, child := StartSpan(ctx, "marketplace.request", WithSpanKind(trace.SpanKindClient))
	child.End()
	parent.End()

	ended := sr.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, trace.SpanKindClient, ended[0].SpanKind())
	assert.Equal(t, ended[1].SpanContext().SpanID(), ended[0].Parent().SpanID())
}

func TestSetAttributes(t *testing.T) {
	sr := newSpanRecorder(t)
	orderID := uuid.MustParse("7d6f2a4e-1c3b-4f59-9a8e-2b0c5d7e9f10")

	_, span := StartSpan(context.Background(), "order.upsert")
	SetAttributes(span,
		SpanAttrOrderID, orderID,
		SpanAttrFetched, 42,
		SpanAttrLedgerRows, int64(3),
		"order.total", 129.5,
		"order.cod", true,
		"order.skus", []string{"SKU-1", "SKU-2"},
		7, "non-string key",
		"dangling",
	)
	SetAttribute(span, SpanAttrOrderStatus, "READY_TO_SHIP")
	span.End()

	attrs := attrMap(sr.Ended()[0].Attributes())
	assert.Equal(t, orderID.String(), attrs[SpanAttrOrderID].AsString())
	assert.Equal(t, int64(42), attrs[SpanAttrFetched].AsInt64())
	assert.Equal(t, int64(3), attrs[SpanAttrLedgerRows].AsInt64())
	assert.Equal(t, 129.5, attrs["order.total"].AsFloat64())
	assert.True(t, attrs["order.cod"].AsBool())
	assert.Equal(t, []string{"SKU-1", "SKU-2"}, attrs["order.skus"].AsStringSlice())
	assert.Equal(t, "READY_TO_SHIP", attrs[SpanAttrOrderStatus].AsString())
	assert.NotContains(t, attrs, "dangling")
	assert.Len(t, attrs, 7)
}

func TestAddEvent(t *testing.T) {
	sr := newSpanRecorder(t)

	_, span := StartSpan(context.Background(), "sync_engine.run")
	AddEvent(span, "order_page_fetched", "page", 2, "orders", 50)
	span.End()

	events := sr.Ended()[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "order_page_fetched", events[0].Name)
	attrs := attrMap(events[0].Attributes)
	assert.Equal(t, int64(2), attrs["page"].AsInt64())
	assert.Equal(t, int64(50), attrs["orders"].AsInt64())
}

func TestRecordError(t *testing.T) {
	sr := newSpanRecorder(t)

	_, ok := StartSpan(context.Background(), "inventory.deduct")
	RecordError(ok, nil)
	ok.End()

	_, failed := StartSpan(context.Background(), "inventory.deduct")
	RecordError(failed, errors.New("no default warehouse"))
	failed.End()

	ended := sr.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, codes.Unset, ended[0].Status().Code)
	assert.Empty(t, ended[0].Events())

	assert.Equal(t, codes.Error, ended[1].Status().Code)
	assert.Equal(t, "no default warehouse", ended[1].Status().Description)
	require.Len(t, ended[1].Events(), 1)
	assert.Equal(t, "exception", ended[1].Events()[0].Name)
}

func TestHelpers_NilSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		SetAttributes(nil, "k", "v")
		SetAttribute(nil, "k", "v")
		AddEvent(nil, "e")
		RecordError(nil, errors.New("boom"))
	})
}
