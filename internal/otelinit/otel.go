// Package otelinit wires OpenTelemetry tracing and metrics for the
// scheduler, worker, and ingest processes. Both are no-ops when
// LEVIATHAN_OTLP_ENDPOINT is unset so binaries run standalone in tests.
package otelinit

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// InitTracer installs a global tracer provider backed by an OTLP gRPC
// exporter and returns a shutdown func. If no endpoint is configured it
// leaves the global (no-op) provider in place and returns a no-op shutdown.
func InitTracer(ctx context.Context, service string) (func(context.Context) error, error) {
	endpoint := os.Getenv("LEVIATHAN_OTLP_ENDPOINT")
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(service),
	))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// WithSpan runs fn inside a span named name, recording the error if any.
func WithSpan(ctx context.Context, tracer trace.Tracer, name string, fn func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()
	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Flush blocks briefly to allow in-flight spans to export, used on
// short-lived worker/one-shot scheduler processes before exit.
func Flush(ctx context.Context, shutdown func(context.Context) error) {
	c, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = shutdown(c)
}
