package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "prodigymun/internal/core"

// PrometheusMetricsRecorder fulfils MetricsRecorder with a duration histogram
// per operation and outcome, plus a counter of successful intakes.
type PrometheusMetricsRecorder struct {
	durations *prometheus.HistogramVec
	created   prometheus.Counter
}

// NewPrometheusMetricsRecorder registers the service metrics with registry
// (prometheus.DefaultRegisterer when nil). Registering twice on the same
// registry panics, as with any promauto collector.
func NewPrometheusMetricsRecorder(registry prometheus.Registerer) *PrometheusMetricsRecorder {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)
	return &PrometheusMetricsRecorder{
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "prodigymun",
			Subsystem: "service",
			Name:      "operation_duration_seconds",
			Help:      "Registration service operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		created: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "prodigymun",
			Name:      "registrations_created_total",
			Help:      "Total number of registrations accepted",
		}),
	}
}

// Observe records a service operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.durations.WithLabelValues(operation, status).Observe(duration.Seconds())
	if success && operation == "create" {
		r.created.Inc()
	}
}

// OTelTracer adapts an OpenTelemetry tracer to the service Tracer interface.
type OTelTracer struct {
	tracer trace.Tracer
}

// NewOTelTracer builds a tracer from provider, or the global provider when nil.
func NewOTelTracer(provider trace.TracerProvider) *OTelTracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &OTelTracer{tracer: provider.Tracer(instrumentationName)}
}

// Start opens a span named core.<operation>.
func (t *OTelTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	ctx, span := t.tracer.Start(ctx, "core."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("prodigymun.operation", operation)),
	)
	return ctx, otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

// SlogAuditRecorder writes audit entries as structured log records.
type SlogAuditRecorder struct {
	logger *slog.Logger
}

// NewSlogAuditRecorder returns a recorder writing to logger (slog.Default when nil).
func NewSlogAuditRecorder(logger *slog.Logger) *SlogAuditRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAuditRecorder{logger: logger.With("component", "audit")}
}

// Record logs entry at info level, or warn when the operation failed.
func (r *SlogAuditRecorder) Record(ctx context.Context, entry AuditEntry) {
	level := slog.LevelInfo
	attrs := []slog.Attr{
		slog.String("operation", entry.Operation),
		slog.String("id", entry.EntityID),
		slog.String("status", string(entry.Status)),
		slog.Duration("duration", entry.Duration),
		slog.Time("timestamp", entry.Timestamp),
	}
	if entry.Status == AuditStatusError {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("error", entry.Error))
	}
	r.logger.LogAttrs(ctx, level, "audit", attrs...)
}
