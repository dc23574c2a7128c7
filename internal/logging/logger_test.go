package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{" INFO ", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"verbose", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New("warn", &buf)

	logger.Info("hidden")
	logger.Warn("shown", zap.String("backend", "maas"))
	_ = logger.Sync()

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info entry written at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "backend") {
		t.Errorf("warn entry missing: %q", out)
	}
	if !strings.Contains(out, "WARN") {
		t.Errorf("level not encoded: %q", out)
	}
}

func TestWithContextAddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := New("info", &buf)

	WithContext(context.Background(), logger).Info("no span")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("trace_id added without a span: %q", buf.String())
	}
	buf.Reset()

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	WithContext(ctx, logger).Info("with span")
	out := buf.String()
	if !strings.Contains(out, span.SpanContext().TraceID().String()) {
		t.Errorf("trace id missing: %q", out)
	}
	if !strings.Contains(out, span.SpanContext().SpanID().String()) {
		t.Errorf("span id missing: %q", out)
	}
}
