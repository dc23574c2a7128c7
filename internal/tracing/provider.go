// Package tracing exports iteration and request spans over OTLP and injects
// W3C trace context into outgoing prediction requests.
package tracing

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/servebench/servebench/internal/config"
)

const instrumentationName = "servebench"

// Provider owns the SDK tracer provider for one run. A zero Provider, or a
// nil one, traces nothing and never propagates.
type Provider struct {
	tp        *sdktrace.TracerProvider
	tracer    trace.Tracer
	propagate bool
}

// exportSettings is TracingConfig resolved against the OTEL_* environment.
type exportSettings struct {
	endpoint    string
	protocol    string
	insecure    bool
	serviceName string
	sampler     sdktrace.Sampler
	propagate   bool
}

type exporterFactory func(ctx context.Context, s exportSettings) (sdktrace.SpanExporter, error)

var exporters = map[string]exporterFactory{
	"grpc": newGRPCExporter,
	"http": newHTTPExporter,
}

// Init starts span export when a collector endpoint is configured, either in
// cfg or through OTEL_EXPORTER_OTLP_ENDPOINT. Without one it returns a
// Provider that traces nothing.
func Init(ctx context.Context, cfg config.TracingConfig) (*Provider, error) {
	s, enabled, err := resolveSettings(cfg)
	if err != nil || !enabled {
		return &Provider{}, err
	}

	factory, ok := exporters[s.protocol]
	if !ok {
		return nil, fmt.Errorf("unsupported OTLP protocol %q: use \"grpc\" or \"http\"", s.protocol)
	}
	exporter, err := factory(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("tracing exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(s.serviceName)))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(s.sampler)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{
		tp:        tp,
		tracer:    tp.Tracer(instrumentationName),
		propagate: s.propagate,
	}, nil
}

func resolveSettings(cfg config.TracingConfig) (exportSettings, bool, error) {
	endpoint := firstNonEmpty(cfg.Endpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if endpoint == "" {
		return exportSettings{}, false, nil
	}
	sampler, err := samplerFor(cfg.SampleRate)
	if err != nil {
		return exportSettings{}, false, err
	}
	s := exportSettings{
		endpoint:    endpoint,
		protocol:    strings.ToLower(firstNonEmpty(cfg.Protocol, "grpc")),
		insecure:    cfg.Insecure,
		serviceName: firstNonEmpty(cfg.ServiceName, os.Getenv("OTEL_SERVICE_NAME"), instrumentationName),
		sampler:     sampler,
		propagate:   true,
	}
	if cfg.Propagate != nil {
		s.propagate = *cfg.Propagate
	}
	return s, true, nil
}

// samplerFor maps a sampling fraction onto a root sampler. Whole iterations
// are sampled or dropped together because request spans follow their parent.
func samplerFor(rate float64) (sdktrace.Sampler, error) {
	switch {
	case rate < 0 || rate > 1:
		return nil, fmt.Errorf("tracing sample_rate must be between 0.0 and 1.0, got %g", rate)
	case rate == 0:
		return sdktrace.NeverSample(), nil
	case rate == 1:
		return sdktrace.AlwaysSample(), nil
	default:
		return sdktrace.TraceIDRatioBased(rate), nil
	}
}

func newGRPCExporter(ctx context.Context, s exportSettings) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(s.endpoint)}
	if s.insecure {
		opts = append(opts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	return otlptracegrpc.New(ctx, opts...)
}

func newHTTPExporter(ctx context.Context, s exportSettings) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(s.endpoint)}
	if s.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.New(ctx, opts...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool {
	return p != nil && p.tp != nil
}

// Tracer returns the run's tracer, or a no-op tracer when nothing is exported.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracer == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return p.tracer
}

// ShouldPropagate reports whether requests carry traceparent headers.
func (p *Provider) ShouldPropagate() bool {
	return p != nil && p.propagate
}

// Shutdown flushes buffered spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	return p.tp.Shutdown(ctx)
}
