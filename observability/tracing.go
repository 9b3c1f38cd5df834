package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/wudi/pdftools"

// TracingConfig selects how spans are exported.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Exporter    string  `mapstructure:"exporter" yaml:"exporter"` // "stdout" or "none"
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"`
}

// Provider owns the tracer provider for the life of the process.
type Provider struct {
	tp       trace.TracerProvider
	shutdown func(context.Context) error
}

// NewProvider creates a tracer provider. When tracing is disabled a no-op
// provider is returned and nothing is exported.
func NewProvider(cfg TracingConfig) (*Provider, error) {
	if !cfg.Enabled || cfg.Exporter == "none" {
		return &Provider{
			tp:       noop.NewTracerProvider(),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}
	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "", "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("observability: stdout exporter: %w", err)
		}
		exporter = exp
	default:
		return nil, fmt.Errorf("observability: unknown trace exporter %q", cfg.Exporter)
	}
	name := cfg.ServiceName
	if name == "" {
		name = "pdftools"
	}
	rate := cfg.SampleRate
	if rate <= 0 || rate > 1 {
		rate = 1
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", name))),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	return &Provider{tp: tp, shutdown: tp.Shutdown}, nil
}

// NewProviderFrom wraps an existing tracer provider.
func NewProviderFrom(tp trace.TracerProvider) *Provider {
	return &Provider{tp: tp, shutdown: func(context.Context) error { return nil }}
}

// Tracer returns a Tracer backed by the provider.
func (p *Provider) Tracer() Tracer {
	return otelTracer{t: p.tp.Tracer(instrumentationName)}
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}

type otelTracer struct {
	t trace.Tracer
}

func (o otelTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := o.t.Start(ctx, name)
	return ctx, otelSpan{s: span}
}

type otelSpan struct {
	s trace.Span
}

func (o otelSpan) SetTag(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		o.s.SetAttributes(attribute.String(key, v))
	case int:
		o.s.SetAttributes(attribute.Int(key, v))
	case int64:
		o.s.SetAttributes(attribute.Int64(key, v))
	case float64:
		o.s.SetAttributes(attribute.Float64(key, v))
	case bool:
		o.s.SetAttributes(attribute.Bool(key, v))
	default:
		o.s.SetAttributes(attribute.String(key, fmt.Sprint(v)))
	}
}

func (o otelSpan) SetError(err error) {
	if err == nil {
		return
	}
	o.s.RecordError(err)
	o.s.SetStatus(codes.Error, err.Error())
}

func (o otelSpan) Finish() { o.s.End() }
