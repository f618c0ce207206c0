// Package telemetry builds the metrics recorder, tracer and HTTP handlers
// selected by configuration.
package telemetry

import (
	"context"
	"expvar"
	"fmt"
	"io"
	"net/http"
	"os"

	"statefacts/internal/core"
)

// Metrics exporters.
const (
	MetricsPrometheus = "prometheus"
	MetricsExpvar     = "expvar"
	MetricsNone       = "none"
)

// Trace exporters.
const (
	TracesNone = "none"
	TracesJSON = "json"
	TracesOTel = "otel"
)

// Config selects the exporters.
type Config struct {
	ServiceName string
	Metrics     string
	Traces      string
	// TraceOutput receives json and otel spans; defaults to stderr.
	TraceOutput io.Writer
}

// Telemetry holds the wired collaborators. Recorder and Tracer are nil when
// disabled, which the Service options treat as "keep the no-op default".
type Telemetry struct {
	Recorder core.MetricsRecorder
	Tracer   core.Tracer
	// MetricsHandler serves /metrics; nil unless prometheus is selected.
	MetricsHandler http.Handler
	// VarsHandler serves /debug/vars.
	VarsHandler http.Handler
	// OTel reports whether an OpenTelemetry provider was installed.
	OTel     bool
	shutdown []func(context.Context) error
}

// Setup builds the exporters named in cfg.
func Setup(cfg Config) (*Telemetry, error) {
	t := &Telemetry{VarsHandler: expvar.Handler()}
	switch cfg.Metrics {
	case MetricsPrometheus, "":
		rec := NewPrometheusRecorder()
		t.Recorder = rec
		t.MetricsHandler = rec.Handler()
	case MetricsExpvar:
		t.Recorder = core.NewExpvarMetricsRecorder("")
	case MetricsNone:
	default:
		return nil, fmt.Errorf("unknown metrics exporter %q", cfg.Metrics)
	}

	out := cfg.TraceOutput
	if out == nil {
		out = os.Stderr
	}
	switch cfg.Traces {
	case TracesNone, "":
	case TracesJSON:
		t.Tracer = core.NewJSONTracer(out)
	case TracesOTel:
		name := cfg.ServiceName
		if name == "" {
			name = "statefacts"
		}
		tp, err := NewStdoutProvider(name, out)
		if err != nil {
			return nil, fmt.Errorf("otel provider: %w", err)
		}
		t.Tracer = NewOTelTracer(tp)
		t.OTel = true
		t.shutdown = append(t.shutdown, tp.Shutdown)
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Traces)
	}
	return t, nil
}

// ServiceOptions returns the core options for the configured exporters.
func (t *Telemetry) ServiceOptions() []core.Option {
	return []core.Option{core.WithMetricsRecorder(t.Recorder), core.WithTracer(t.Tracer)}
}

// Shutdown flushes and stops the exporters.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var first error
	for _, fn := range t.shutdown {
		if err := fn(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
