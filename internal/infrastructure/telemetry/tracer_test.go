package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	tp, err := NewTracerProvider(context.Background(), Config{}, zap.New(core))
	require.NoError(t, err)

	assert.False(t, tp.IsEnabled())
	assert.NotNil(t, tp.Tracer("sync_engine"))
	assert.NoError(t, tp.ForceFlush(context.Background()))
	assert.NoError(t, tp.Shutdown(context.Background()))
	assert.Equal(t, 1, logs.FilterMessage("Tracing disabled").Len())
}

func TestNewTracerProvider_NilLogger(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), Config{}, nil)
	require.NoError(t, err)
	assert.False(t, tp.IsEnabled())
}

func TestSampler_FollowsParent(t *testing.T) {
	traceID := trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36}
	spanID := trace.SpanID{0x00, 0xf0, 0x67, 0xaa, 0x0b, 0xa9, 0x02, 0xb7}

	sampledParent := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}))
	unsampledParent := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
		Remote:  true,
	}))

	tests := []struct {
		name   string
		ratio  float64
		parent context.Context
		want   sdktrace.SamplingDecision
	}{
		{"root span dropped at zero ratio", 0, context.Background(), sdktrace.Drop},
		{"root span kept at full ratio", 1, context.Background(), sdktrace.RecordAndSample},
		{"sampled parent wins over zero ratio", 0, sampledParent, sdktrace.RecordAndSample},
		{"unsampled parent wins over full ratio", 1, unsampledParent, sdktrace.Drop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := sampler(tt.ratio).ShouldSample(sdktrace.SamplingParameters{
				ParentContext: tt.parent,
				TraceID:       traceID,
				Name:          "sync_engine.sync",
			})
			assert.Equal(t, tt.want, res.Decision)
		})
	}
}

func TestEndpoint_Resource(t *testing.T) {
	res, err := Endpoint{ServiceName: "ordersync", ServiceVersion: "1.4.0", Environment: "staging"}.resource()
	require.NoError(t, err)

	values := map[string]string{}
	for _, kv := range res.Attributes() {
		values[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "ordersync", values["service.name"])
	assert.Equal(t, "1.4.0", values["service.version"])
	assert.Equal(t, "staging", values["deployment.environment.name"])
}

func TestShutdownSignal(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core)

	err := shutdownSignal(context.Background(), log, "traces", func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("OpenTelemetry provider stopped").Len())

	exportErr := errors.New("collector unreachable")
	err = shutdownSignal(context.Background(), log, "metrics", func(context.Context) error { return exportErr })
	require.Error(t, err)
	assert.ErrorIs(t, err, exportErr)
	assert.Contains(t, err.Error(), "shutdown metrics provider")
	assert.Equal(t, 1, logs.FilterMessage("OpenTelemetry shutdown failed").Len())
}
