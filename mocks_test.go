package assetx

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gostratum/metricsx"
	"github.com/gostratum/tracingx"
)

// mockMetrics implements metricsx.Metrics for testing
type mockMetrics struct {
	mu         sync.Mutex
	counters   map[string]float64
	histograms map[string][]float64
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{
		counters:   make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

func (m *mockMetrics) Counter(name string, opts ...metricsx.Option) metricsx.Counter {
	return &mockCounter{metrics: m, name: name}
}

func (m *mockMetrics) Gauge(name string, opts ...metricsx.Option) metricsx.Gauge {
	return &mockGauge{metrics: m, name: name}
}

func (m *mockMetrics) Histogram(name string, opts ...metricsx.Option) metricsx.Histogram {
	return &mockHistogram{metrics: m, name: name}
}

func (m *mockMetrics) Summary(name string, opts ...metricsx.Option) metricsx.Summary {
	return &mockSummary{metrics: m, name: name}
}

type mockCounter struct {
	metrics *mockMetrics
	name    string
}

func (c *mockCounter) Inc(labels ...string) {
	c.Add(1, labels...)
}

func (c *mockCounter) Add(value float64, labels ...string) {
	c.metrics.mu.Lock()
	defer c.metrics.mu.Unlock()
	key := c.name + ":" + joinLabels(labels)
	c.metrics.counters[key] += value
}

type mockHistogram struct {
	metrics *mockMetrics
	name    string
}

func (h *mockHistogram) Observe(value float64, labels ...string) {
	h.metrics.mu.Lock()
	defer h.metrics.mu.Unlock()
	key := h.name + ":" + joinLabels(labels)
	h.metrics.histograms[key] = append(h.metrics.histograms[key], value)
}

func (h *mockHistogram) Timer(labels ...string) metricsx.Timer {
	return &mockTimer{start: time.Now()}
}

type mockGauge struct {
	metrics *mockMetrics
	name    string
}

func (g *mockGauge) Set(value float64, labels ...string) {}
func (g *mockGauge) Inc(labels ...string)                {}
func (g *mockGauge) Dec(labels ...string)                {}
func (g *mockGauge) Add(value float64, labels ...string) {}
func (g *mockGauge) Sub(value float64, labels ...string) {}

type mockSummary struct {
	metrics *mockMetrics
	name    string
}

func (s *mockSummary) Observe(value float64, labels ...string) {}

type mockTimer struct {
	start time.Time
}

func (t *mockTimer) ObserveDuration() {}

func (t *mockTimer) Stop() time.Duration {
	return time.Since(t.start)
}

// mockTracer implements tracingx.Tracer for testing
type mockTracer struct {
	mu    sync.Mutex
	spans []*mockSpan
}

func newMockTracer() *mockTracer {
	return &mockTracer{
		spans: make([]*mockSpan, 0),
	}
}

func (t *mockTracer) Start(ctx context.Context, operationName string, opts ...tracingx.SpanOption) (context.Context, tracingx.Span) {
	span := &mockSpan{
		operationName: operationName,
		tags:          make(map[string]any),
		ended:         false,
	}

	// Apply options
	cfg := &tracingx.SpanConfig{
		Attributes: make(map[string]any),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	for k, v := range cfg.Attributes {
		span.tags[k] = v
	}

	t.mu.Lock()
	t.spans = append(t.spans, span)
	t.mu.Unlock()

	return ctx, span
}

func (t *mockTracer) Extract(ctx context.Context, carrier any) (context.Context, error) {
	return ctx, nil
}

func (t *mockTracer) Inject(ctx context.Context, carrier any) error {
	return nil
}

func (t *mockTracer) Shutdown(ctx context.Context) error {
	return nil
}

type mockSpan struct {
	operationName string
	tags          map[string]any
	error         error
	ended         bool
}

func (s *mockSpan) End() {
	s.ended = true
}

func (s *mockSpan) SetTag(key string, value any) {
	s.tags[key] = value
}

func (s *mockSpan) SetError(err error) {
	s.error = err
}

func (s *mockSpan) LogFields(fields ...tracingx.Field) {}

func (s *mockSpan) Context() context.Context {
	return context.Background()
}

func (s *mockSpan) TraceID() string {
	return "mock-trace-id"
}

func (s *mockSpan) SpanID() string {
	return "mock-span-id"
}

func joinLabels(labels []string) string {
	return strings.Join(labels, ",")
}

// CounterValue returns the value recorded under "name:label1,label2".
func (m *mockMetrics) CounterValue(key string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key]
}

func (m *mockMetrics) Observations(key string) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.histograms[key]...)
}

func (t *mockTracer) SpanNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.spans))
	for _, s := range t.spans {
		out = append(out, s.operationName)
	}
	return out
}
