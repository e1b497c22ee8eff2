// Package otel provides a diagnostic run's OpenTelemetry metrics and tracing:
// one histogram of probe durations, one counter of findings by severity, and
// one span per probe.
package otel

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ExporterType selects where telemetry for a run is sent.
type ExporterType string

const (
	ExporterNone     ExporterType = "none"
	ExporterStdout   ExporterType = "stdout"
	ExporterOTLPGRPC ExporterType = "otlp-grpc"
	ExporterOTLPHTTP ExporterType = "otlp-http"
)

// Config configures one run's telemetry. The zero value disables collection.
type Config struct {
	ServiceName    string
	ServiceVersion string
	ExporterType   ExporterType
	OTLPEndpoint   string
	OTLPInsecure   bool
}

func DefaultConfig() Config {
	return Config{ServiceName: "cortexdx", ExporterType: ExporterNone}
}

// Telemetry is one run's meter/tracer pair and its two instruments.
type Telemetry struct {
	config         Config
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	meterProvider  *sdkmetric.MeterProvider

	probeDuration      metric.Float64Histogram
	findingsBySeverity metric.Int64Counter

	shutdownTrace  func(context.Context) error
	shutdownMetric func(context.Context) error
}

// New builds a Telemetry instance from cfg. An ExporterType of
// ExporterNone (the default) produces a no-op instance safe to call
// unconditionally from every probe worker.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if cfg.ExporterType == "" {
		cfg.ExporterType = ExporterNone
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "cortexdx"
	}

	if cfg.ExporterType == ExporterNone {
		return noopTelemetry(cfg), nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes("",
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("otel: build resource: %w", err)
	}

	spanExporter, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("otel: build span exporter: %w", err)
	}
	metricExporter, err := newMetricExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("otel: build metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	t := &Telemetry{
		config:         cfg,
		tracerProvider: tp,
		tracer:         tp.Tracer(cfg.ServiceName),
		meterProvider:  mp,
		shutdownTrace:  tp.Shutdown,
		shutdownMetric: mp.Shutdown,
	}

	meter := mp.Meter(cfg.ServiceName)
	t.probeDuration, err = meter.Float64Histogram(
		"cortexdx.probe.duration",
		metric.WithDescription("Wall-clock duration of one probe run"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("otel: create probe duration histogram: %w", err)
	}
	t.findingsBySeverity, err = meter.Int64Counter(
		"cortexdx.findings",
		metric.WithDescription("Count of diagnostic findings by severity"),
	)
	if err != nil {
		return nil, fmt.Errorf("otel: create findings counter: %w", err)
	}

	return t, nil
}

func newSpanExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case ExporterOTLPGRPC:
		opts := []otlptracegrpc.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	case ExporterOTLPHTTP:
		opts := []otlptracehttp.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.ExporterType)
	}
}

func newMetricExporter(ctx context.Context, cfg Config) (sdkmetric.Exporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		return stdoutmetric.New()
	case ExporterOTLPGRPC:
		opts := []otlpmetricgrpc.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)
	case ExporterOTLPHTTP:
		opts := []otlpmetrichttp.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.ExporterType)
	}
}

func noopTelemetry(cfg Config) *Telemetry {
	mp := sdkmetric.NewMeterProvider()
	meter := mp.Meter(cfg.ServiceName)
	duration, _ := meter.Float64Histogram("cortexdx.probe.duration")
	findings, _ := meter.Int64Counter("cortexdx.findings")
	return &Telemetry{
		config:             cfg,
		tracerProvider:     noop.NewTracerProvider(),
		tracer:             noop.NewTracerProvider().Tracer(cfg.ServiceName),
		meterProvider:      mp,
		probeDuration:      duration,
		findingsBySeverity: findings,
		shutdownTrace:      func(context.Context) error { return nil },
		shutdownMetric:     func(context.Context) error { return nil },
	}
}

// StartProbeSpan starts a span covering one probe's execution.
func (t *Telemetry) StartProbeSpan(ctx context.Context, probeID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "probe."+probeID, trace.WithAttributes(
		attribute.String("cortexdx.probe_id", probeID),
	))
}

// RecordProbeDuration records one probe's wall-clock duration and its
// completion status (ok, timeout, crash).
func (t *Telemetry) RecordProbeDuration(ctx context.Context, probeID string, durationMs float64, status string) {
	if t.probeDuration == nil {
		return
	}
	t.probeDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("cortexdx.probe_id", probeID),
		attribute.String("cortexdx.status", status),
	))
}

// RecordFinding increments the findings-by-severity counter.
func (t *Telemetry) RecordFinding(ctx context.Context, severity string) {
	if t.findingsBySeverity == nil {
		return
	}
	t.findingsBySeverity.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cortexdx.severity", severity),
	))
}

// Shutdown flushes and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.shutdownTrace(ctx); err != nil {
		return err
	}
	return t.shutdownMetric(ctx)
}

var (
	globalMu  sync.RWMutex
	global    *Telemetry
	globalSet bool
)

// SetGlobal installs the process-wide Telemetry instance.
func SetGlobal(t *Telemetry) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = t
	globalSet = true
}

// Global returns the process-wide Telemetry instance, or a no-op instance
// if none has been installed.
func Global() *Telemetry {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if !globalSet || global == nil {
		return noopTelemetry(DefaultConfig())
	}
	return global
}

// Noop returns a Telemetry instance that discards everything, for tests and
// for runs where collection is disabled.
func Noop() *Telemetry {
	return noopTelemetry(DefaultConfig())
}
