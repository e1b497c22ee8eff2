package otel

import (
	"context"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ServiceName != "cortexdx" {
		t.Errorf("expected ServiceName %q, got %q", "cortexdx", cfg.ServiceName)
	}
	if cfg.ExporterType != ExporterNone {
		t.Errorf("expected ExporterType none, got %q", cfg.ExporterType)
	}
}

func TestNewWithNoExporterIsNoop(t *testing.T) {
	tel, err := New(context.Background(), Config{})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer tel.Shutdown(context.Background())

	// Recording against a no-op instance must not panic even though no
	// exporter was configured.
	ctx, span := tel.StartProbeSpan(context.Background(), "probe.x")
	tel.RecordProbeDuration(ctx, "probe.x", 12.5, "ok")
	tel.RecordFinding(ctx, "major")
	span.End()
}

func TestNewWithStdoutExporter(t *testing.T) {
	tel, err := New(context.Background(), Config{ExporterType: ExporterStdout})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer tel.Shutdown(context.Background())

	ctx, span := tel.StartProbeSpan(context.Background(), "probe.y")
	tel.RecordProbeDuration(ctx, "probe.y", 5, "ok")
	span.End()
}

func TestGlobalDefaultsToNoop(t *testing.T) {
	if Global() == nil {
		t.Fatal("expected Global() to return a non-nil no-op instance by default")
	}
}

func TestSetGlobalAndGlobal(t *testing.T) {
	tel := Noop()
	SetGlobal(tel)
	defer SetGlobal(nil)

	if Global() != tel {
		t.Error("expected Global() to return the installed instance")
	}
}
