// Package tracing bootstraps the OpenTelemetry tracer provider. Spans go to an
// OTLP/HTTP collector configured through the standard OTEL_EXPORTER_OTLP_*
// environment variables, or to stdout for debugging.
package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultServiceName identifies the service in exported spans.
const DefaultServiceName = "prodigymun"

// Config configures the tracing subsystem.
type Config struct {
	// Enabled controls whether spans are recorded at all.
	Enabled bool
	// Stdout exports to Writer (os.Stdout when nil) instead of OTLP.
	Stdout bool
	Writer io.Writer
	// ServiceName defaults to DefaultServiceName.
	ServiceName string
}

// Provider wraps the SDK tracer provider.
type Provider struct {
	provider *sdktrace.TracerProvider
	noop     trace.TracerProvider
}

// NewProvider creates the provider and installs it globally. A disabled
// config yields a no-op provider.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{noop: noop.NewTracerProvider()}, nil
	}
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	if cfg.Stdout {
		opts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
		if cfg.Writer != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.Writer))
		}
		exporter, err = stdouttrace.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
	} else {
		exporter, err = otlptracehttp.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		)),
	)
	otel.SetTracerProvider(provider)
	return &Provider{provider: provider}, nil
}

// TracerProvider returns the active provider (no-op when disabled).
func (p *Provider) TracerProvider() trace.TracerProvider {
	if p.provider != nil {
		return p.provider
	}
	return p.noop
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool { return p.provider != nil }

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider != nil {
		return p.provider.Shutdown(ctx)
	}
	return nil
}
