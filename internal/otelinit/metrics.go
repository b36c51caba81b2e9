package otelinit

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the named instruments shared across the three binaries.
type Metrics struct {
	AttemptsDispatched    metric.Int64Counter
	AttemptsFailed        metric.Int64Counter
	RetryAttempts         metric.Int64Counter
	CircuitOpenTransitions metric.Int64Counter
	JournalAppendLatency  metric.Float64Histogram
	SchedulerTickDuration metric.Float64Histogram
}

// InitMetrics installs a meter provider backed by an OTLP gRPC exporter and
// returns the common instrument set. No-ops when no endpoint is configured.
func InitMetrics(ctx context.Context, service string) (func(context.Context) error, *Metrics, error) {
	endpoint := os.Getenv("LEVIATHAN_OTLP_ENDPOINT")
	meter := otel.GetMeterProvider().Meter(service)

	if endpoint != "" {
		exp, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(endpoint), otlpmetricgrpc.WithInsecure())
		if err != nil {
			return nil, nil, err
		}
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
		otel.SetMeterProvider(mp)
		meter = mp.Meter(service)
	}

	m := &Metrics{}
	var err error
	if m.AttemptsDispatched, err = meter.Int64Counter("leviathan.attempts.dispatched"); err != nil {
		return nil, nil, err
	}
	if m.AttemptsFailed, err = meter.Int64Counter("leviathan.attempts.failed"); err != nil {
		return nil, nil, err
	}
	if m.RetryAttempts, err = meter.Int64Counter("leviathan.retry.attempts"); err != nil {
		return nil, nil, err
	}
	if m.CircuitOpenTransitions, err = meter.Int64Counter("leviathan.circuit.open_transitions"); err != nil {
		return nil, nil, err
	}
	if m.JournalAppendLatency, err = meter.Float64Histogram("leviathan.journal.append_latency_ms"); err != nil {
		return nil, nil, err
	}
	if m.SchedulerTickDuration, err = meter.Float64Histogram("leviathan.scheduler.tick_duration_ms"); err != nil {
		return nil, nil, err
	}

	shutdown := func(context.Context) error { return nil }
	if provider, ok := otel.GetMeterProvider().(*sdkmetric.MeterProvider); ok {
		shutdown = provider.Shutdown
	}
	return shutdown, m, nil
}
