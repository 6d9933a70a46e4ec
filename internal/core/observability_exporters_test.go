package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestPrometheusMetricsRecorder(t *testing.T) {
	registry := prometheus.NewRegistry()
	rec := NewPrometheusMetricsRecorder(registry)
	svc, _ := newTestService(t, WithMetricsRecorder(rec))

	mustCreate(t, svc, validInput())
	if _, err := svc.Create(context.Background(), validInput()); err == nil {
		t.Fatalf("expected duplicate")
	}
	rec.Observe(context.Background(), "", true, time.Second)

	if got := testutil.ToFloat64(rec.created); got != 1 {
		t.Fatalf("expected one created registration, got %v", got)
	}
	if n := testutil.CollectAndCount(rec.durations); n != 2 {
		t.Fatalf("expected create success and error series, got %d", n)
	}
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, name := range []string{"prodigymun_service_operation_duration_seconds", "prodigymun_registrations_created_total"} {
		if !names[name] {
			t.Fatalf("metric %s not registered (have %v)", name, names)
		}
	}
}

func TestOTelTracerRecordsOutcome(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	svc, _ := newTestService(t, WithTracer(NewOTelTracer(provider)))
	mustCreate(t, svc, validInput())
	if err := svc.Delete(context.Background(), 999); err == nil {
		t.Fatalf("expected not found")
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "core.create" || spans[0].Status().Code != codes.Ok {
		t.Fatalf("unexpected create span %s %v", spans[0].Name(), spans[0].Status())
	}
	if spans[1].Name() != "core.delete" || spans[1].Status().Code != codes.Error {
		t.Fatalf("unexpected delete span %s %v", spans[1].Name(), spans[1].Status())
	}
	if len(spans[1].Events()) == 0 {
		t.Fatalf("expected recorded error event on failed span")
	}
}

func TestNewOTelTracerDefaultsToGlobalProvider(t *testing.T) {
	tracer := NewOTelTracer(nil)
	_, span := tracer.Start(context.Background(), "noop")
	span.End(errors.New("ignored"))
}

func TestSlogAuditRecorder(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	rec := NewSlogAuditRecorder(logger)
	rec.Record(context.Background(), AuditEntry{Operation: "delete", EntityID: "7", Status: AuditStatusError, Error: "registration 7 not found", Timestamp: fixedNow})

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["msg"] != "audit" || line["level"] != "WARN" || line["component"] != "audit" {
		t.Fatalf("unexpected record %v", line)
	}
	if line["operation"] != "delete" || line["id"] != "7" || line["error"] != "registration 7 not found" {
		t.Fatalf("unexpected fields %v", line)
	}
}
