package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"statefacts/internal/catalog"
	"statefacts/pkg/domain"
)

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	mu    sync.Mutex
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type spanRecord struct {
	op  string
	err error
}

type captureTracer struct {
	mu    sync.Mutex
	ended []spanRecord
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	return ctx, &captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (c *captureLogger) add(level, msg string, args []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, logEntry{level: level, msg: msg, args: args})
}

func (c *captureLogger) Debug(msg string, args ...any) { c.add("debug", msg, args) }
func (c *captureLogger) Info(msg string, args ...any)  { c.add("info", msg, args) }
func (c *captureLogger) Warn(msg string, args ...any)  { c.add("warn", msg, args) }
func (c *captureLogger) Error(msg string, args ...any) { c.add("error", msg, args) }

func (c *captureLogger) count(level string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

// brokenStore fails every call with err, or blocks until the context ends
// when block is set.
type brokenStore struct {
	domain.FactStore
	err   error
	block bool
}

func (b brokenStore) wait(ctx context.Context) error {
	if b.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return b.err
}

func (b brokenStore) Get(ctx context.Context, _ string) (domain.FactDocument, bool, error) {
	return domain.FactDocument{}, false, b.wait(ctx)
}

func (b brokenStore) AppendDistinct(ctx context.Context, _ string, _ []string) (domain.FactDocument, error) {
	return domain.FactDocument{}, b.wait(ctx)
}

func (b brokenStore) PickRandom(ctx context.Context, _ string) (string, error) {
	return "", b.wait(ctx)
}

func (b brokenStore) List(ctx context.Context) ([]domain.FactDocument, error) {
	return nil, b.wait(ctx)
}

func newBrokenService(t *testing.T, store brokenStore, opts ...Option) *Service {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return NewService(cat, store, opts...)
}

func TestServiceRecordsMetricsAndSpans(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	svc, _ := newTestService(t, WithMetricsRecorder(metrics), WithTracer(tracer))
	ctx := context.Background()

	if _, err := svc.AppendFacts(ctx, "TX", domain.AppendRequest{Facts: []string{"a"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := svc.Composite(ctx, "ZZ"); err == nil {
		t.Fatalf("expected not found")
	}
	if !metrics.has(domain.OpAppend, true) {
		t.Fatalf("expected successful append metric")
	}
	if !metrics.has(domain.OpComposite, false) {
		t.Fatalf("expected failed composite metric")
	}
	if len(tracer.ended) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(tracer.ended))
	}
	if tracer.ended[0].op != domain.OpAppend || tracer.ended[0].err != nil {
		t.Fatalf("unexpected first span %+v", tracer.ended[0])
	}
	if !errors.Is(tracer.ended[1].err, domain.ErrNotFound) {
		t.Fatalf("expected not found span error, got %v", tracer.ended[1].err)
	}
}

func TestStoreFailureIsUnavailable(t *testing.T) {
	logger := &captureLogger{}
	svc := newBrokenService(t, brokenStore{err: errors.New("connection refused")}, WithLogger(logger))
	ctx := context.Background()

	_, err := svc.Composite(ctx, "TX")
	expectKind(t, err, domain.KindUnavailable)
	if !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected cause in error, got %v", err)
	}
	_, err = svc.AppendFacts(ctx, "TX", domain.AppendRequest{Facts: []string{"a"}})
	expectKind(t, err, domain.KindUnavailable)
	_, err = svc.CompositeAll(ctx, domain.FilterAll)
	expectKind(t, err, domain.KindUnavailable)
	_, err = svc.PickRandomFact(ctx, "TX")
	expectKind(t, err, domain.KindUnavailable)
	expectKind(t, svc.Ready(ctx), domain.KindUnavailable)

	if got := logger.count("error"); got != 5 {
		t.Fatalf("expected 5 error logs, got %d", got)
	}
}

func TestStoreTimeout(t *testing.T) {
	svc := newBrokenService(t, brokenStore{block: true}, WithStoreTimeout(20*time.Millisecond))
	start := time.Now()
	_, err := svc.Composite(context.Background(), "TX")
	expectKind(t, err, domain.KindUnavailable)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline cause, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout not applied, took %s", elapsed)
	}
}

func TestDomainErrorsPassThroughStoreWrapper(t *testing.T) {
	logger := &captureLogger{}
	notFound := domain.NotFound(domain.OpPickRandom, "TX", "no fun facts available for this state")
	svc := newBrokenService(t, brokenStore{err: notFound}, WithLogger(logger))
	_, err := svc.PickRandomFact(context.Background(), "TX")
	if err != notFound {
		t.Fatalf("expected store error unchanged, got %v", err)
	}
	if logger.count("error") != 0 {
		t.Fatalf("not found must not be logged as an error")
	}
}

func TestOptionDefaults(t *testing.T) {
	svc, _ := newTestService(t, WithLogger(nil), WithMetricsRecorder(nil), WithTracer(nil), WithStoreTimeout(-1), WithClock(nil))
	if _, ok := svc.logger.(noopLogger); !ok {
		t.Fatalf("expected noop logger, got %T", svc.logger)
	}
	if _, ok := svc.metrics.(noopMetrics); !ok {
		t.Fatalf("expected noop metrics, got %T", svc.metrics)
	}
	if _, ok := svc.tracer.(noopTracer); !ok {
		t.Fatalf("expected noop tracer, got %T", svc.tracer)
	}
	if svc.timeout != DefaultStoreTimeout {
		t.Fatalf("expected default timeout, got %s", svc.timeout)
	}
	if svc.now == nil {
		t.Fatalf("expected clock")
	}

	svc, _ = newTestService(t, WithPolicy(domain.Policy{}))
	if svc.policy.Disabled == nil || svc.policy.Suppressed == nil {
		t.Fatalf("expected empty sets in place of nil")
	}
}

func TestNoopLogger(_ *testing.T) {
	logger := noopLogger{}
	logger.Debug("debug", "k", "v")
	logger.Info("info", "k", "v")
	logger.Warn("warn", "k", "v")
	logger.Error("error", "k", "v")
	noopMetrics{}.Observe(context.Background(), "op", true, time.Second)
	_, span := noopTracer{}.Start(context.Background(), "op")
	span.End(nil)
}
