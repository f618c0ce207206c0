package telemetry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"statefacts/internal/core"
	"statefacts/pkg/domain"
)

func TestPrometheusRecorder(t *testing.T) {
	rec := NewPrometheusRecorder()
	ctx := context.Background()
	rec.Observe(ctx, domain.OpAppend, true, 10*time.Millisecond)
	rec.Observe(ctx, domain.OpAppend, true, 20*time.Millisecond)
	rec.Observe(ctx, domain.OpAppend, false, time.Millisecond)

	if got := testutil.ToFloat64(rec.operations.WithLabelValues(domain.OpAppend, "success")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(rec.operations.WithLabelValues(domain.OpAppend, "error")); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}

	srv := httptest.NewServer(rec.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`statefacts_service_operations_total{operation="append_facts",result="success"} 2`,
		"statefacts_service_operation_duration_seconds_bucket",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("scrape output missing %q", want)
		}
	}
}

func TestOTelTracerRecordsErrors(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()
	tracer := NewOTelTracer(tp)

	_, span := tracer.Start(context.Background(), domain.OpComposite)
	span.End(nil)
	_, span = tracer.Start(context.Background(), domain.OpAppend)
	span.End(domain.Forbidden(domain.OpAppend, "GA", "disabled"))

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name != "service.composite" {
		t.Fatalf("unexpected span name %q", spans[0].Name)
	}
	failed := spans[1]
	if failed.Status.Code.String() != "Error" {
		t.Fatalf("expected error status, got %v", failed.Status)
	}
	var kind string
	for _, attr := range failed.Attributes {
		if attr.Key == "statefacts.error_kind" {
			kind = attr.Value.AsString()
		}
	}
	if kind != string(domain.KindForbidden) {
		t.Fatalf("expected forbidden kind attribute, got %q", kind)
	}
}

func TestSetupSelectsExporters(t *testing.T) {
	tel, err := Setup(Config{})
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if _, ok := tel.Recorder.(*PrometheusRecorder); !ok || tel.MetricsHandler == nil {
		t.Fatalf("expected prometheus by default, got %T", tel.Recorder)
	}
	if tel.Tracer != nil || tel.VarsHandler == nil {
		t.Fatalf("expected no tracer and a vars handler")
	}
	if len(tel.ServiceOptions()) != 2 {
		t.Fatalf("expected two service options")
	}

	var buf bytes.Buffer
	tel, err = Setup(Config{Metrics: MetricsExpvar, Traces: TracesJSON, TraceOutput: &buf})
	if err != nil {
		t.Fatalf("expvar/json: %v", err)
	}
	if _, ok := tel.Recorder.(*core.ExpvarMetricsRecorder); !ok {
		t.Fatalf("expected expvar recorder, got %T", tel.Recorder)
	}
	if tel.MetricsHandler != nil {
		t.Fatalf("expvar does not serve /metrics")
	}
	_, span := tel.Tracer.Start(context.Background(), "op")
	span.End(nil)
	if !strings.Contains(buf.String(), `"operation":"op"`) {
		t.Fatalf("expected json span output, got %q", buf.String())
	}

	tel, err = Setup(Config{Metrics: MetricsNone, Traces: TracesOTel, TraceOutput: io.Discard})
	if err != nil {
		t.Fatalf("otel: %v", err)
	}
	if tel.Recorder != nil || !tel.OTel {
		t.Fatalf("unexpected telemetry %+v", tel)
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if _, err := Setup(Config{Metrics: "statsd"}); err == nil {
		t.Fatalf("expected unknown metrics exporter error")
	}
	if _, err := Setup(Config{Traces: "zipkin"}); err == nil {
		t.Fatalf("expected unknown trace exporter error")
	}
}

func TestShutdownReportsFirstError(t *testing.T) {
	boom := errors.New("boom")
	tel := &Telemetry{shutdown: []func(context.Context) error{
		func(context.Context) error { return nil },
		func(context.Context) error { return boom },
		func(context.Context) error { return errors.New("second") },
	}}
	if err := tel.Shutdown(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected first error, got %v", err)
	}
}
