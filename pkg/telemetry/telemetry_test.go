package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected default config to validate, got %v", err)
	}
}

func TestConfigValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty service name", func(c *Config) { c.ServiceName = "" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"bad trace exporter", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger"
		}},
		{"bad sampling rate", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.SamplingRate = 2.0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Expected validation error for %s", tt.name)
			}
		})
	}
}

func TestLoggerContextRoundTrip(t *testing.T) {
	log, err := NewLogger(LoggingConfig{Level: "debug", Format: "json"})
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}

	ctx := log.WithContext(context.Background())
	if got := FromContext(ctx); got == nil {
		t.Fatal("Expected logger from context")
	}

	// A bare context still yields a usable logger.
	if got := FromContext(context.Background()); got == nil {
		t.Fatal("Expected fallback logger from empty context")
	}
}

func TestNopLoggerChains(t *testing.T) {
	log := Nop().NewComponentLogger("engine").
		WithSessionID("s1").
		WithActionID("a1").
		WithActionKind("shell").
		WithField("k", "v")

	// Must not panic.
	log.Debug("debug")
	log.Info("info")
	log.Warn("warn")
	log.Error("error")
}

func TestMetricsDisabledIsSafe(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{})
	if err != nil {
		t.Fatalf("NewMetrics returned error: %v", err)
	}

	// All recorders must be no-ops without a registry.
	m.RecordActionEnqueued("shell")
	m.RecordActionExecuted("shell", "complete", 10*time.Millisecond)
	m.RecordError("CommandError")
	m.RecordAlert("error")
	m.RecordActionActive(true)
	m.RecordActionActive(false)
}

func TestDisabledTracerProducesSpans(t *testing.T) {
	tr, err := NewTracer(TracingConfig{}, "crucible", "dev", "test")
	if err != nil {
		t.Fatalf("NewTracer returned error: %v", err)
	}
	defer tr.Shutdown(context.Background())

	ctx, span := tr.StartActionSpan(context.Background(), "a1", "shell")
	if ctx == nil || span == nil {
		t.Fatal("Expected a usable span from the disabled tracer")
	}
	RecordSuccess(span)
	span.End()
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"trace", "trace"},
		{"debug", "debug"},
		{"info", "info"},
		{"warn", "warn"},
		{"error", "error"},
		{"unknown", "info"},
		{"", "info"},
	}

	for _, tt := range tests {
		if got := parseLogLevel(tt.in).String(); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
