// Package telemetry wires OpenTelemetry traces, metrics and logs for the
// order sync engine and exports them over OTLP/gRPC.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Endpoint names the OTLP collector and the service reported to it. The
// tracer, meter and logger providers share one.
type Endpoint struct {
	CollectorEndpoint string
	Insecure          bool
	ServiceName       string
	ServiceVersion    string
	Environment       string
}

func (e Endpoint) resource() (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(e.ServiceName)}
	if e.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(e.ServiceVersion))
	}
	if e.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment.name", e.Environment))
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}
	return res, nil
}

// shutdownSignal flushes and stops one SDK provider with a bounded wait
func shutdownSignal(ctx context.Context, logger *zap.Logger, signal string, shutdown func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := shutdown(ctx); err != nil {
		logger.Error("OpenTelemetry shutdown failed", zap.String("signal", signal), zap.Error(err))
		return fmt.Errorf("shutdown %s provider: %w", signal, err)
	}
	logger.Info("OpenTelemetry provider stopped", zap.String("signal", signal))
	return nil
}
