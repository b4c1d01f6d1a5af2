package tools

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// MetricsSink records counters and timings for the pipeline. Incr and
// Observe accept a metric name and free-form tags; Timing is a
// convenience for duration observations.
type MetricsSink interface {
	Incr(name string, tags map[string]string)
	Observe(name string, value float64, tags map[string]string)
	Timing(name string, d time.Duration, tags map[string]string)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) Incr(string, map[string]string)                  {}
func (NoopMetrics) Observe(string, float64, map[string]string)      {}
func (NoopMetrics) Timing(string, time.Duration, map[string]string) {}

// Span is a single open tracing span; End must be called exactly once.
type Span interface {
	SetAttribute(key string, value interface{})
	RecordError(err error)
	End()
}

// Tracer opens named, possibly nested spans.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// NoopTracer produces spans that do nothing.
type NoopTracer struct{}

type noopSpan struct{}

func (NoopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}
func (noopSpan) SetAttribute(string, interface{}) {}
func (noopSpan) RecordError(error)                {}
func (noopSpan) End()                             {}

// RateLimiter scopes a leaky-bucket style admission check per key (in
// practice, per tool name).
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int) (bool, error)
}

// NoopRateLimiter admits every call.
type NoopRateLimiter struct{}

func (NoopRateLimiter) Allow(context.Context, string, int) (bool, error) { return true, nil }

// UsageCalculator estimates token counts and cost for one call's
// content. It is consulted only for specs whose ReturnTarget is
// ReturnTargetLLM; everything else leaves Usage's token/cost fields at
// zero. The default NoopUsageCalculator always returns zero, matching
// the dev-environment-permissive behavior ENVIRONMENT selects.
type UsageCalculator interface {
	Calculate(spec *ToolSpec, content interface{}) (promptTokens, completionTokens int64, costUSD float64)
}

// NoopUsageCalculator reports zero usage for every call. It is the
// correct choice outside production per internal/timeconfig.IsDevEnvironment,
// and the only choice when no LLM-facing token/cost accounting is wired in.
type NoopUsageCalculator struct{}

func (NoopUsageCalculator) Calculate(*ToolSpec, interface{}) (int64, int64, float64) { return 0, 0, 0 }

// TokenBucketRateLimiter keeps one golang.org/x/time/rate.Limiter per key,
// sized to the limit requested for that key's first call. Per-second
// burst equal to limit: a spec with RateLimit=10 allows 10 calls/sec with
// bursts up to 10.
type TokenBucketRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewTokenBucketRateLimiter() *TokenBucketRateLimiter {
	return &TokenBucketRateLimiter{limiters: make(map[string]*rate.Limiter)}
}

func (r *TokenBucketRateLimiter) Allow(_ context.Context, key string, limit int) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	r.mu.Lock()
	lim, ok := r.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(limit), limit)
		r.limiters[key] = lim
	}
	r.mu.Unlock()
	return lim.Allow(), nil
}

// OTelMetrics reports to an OpenTelemetry metric.Meter. Counters and
// histograms are created lazily and cached by name.
type OTelMetrics struct {
	meter      otelmetric.Meter
	mu         sync.Mutex
	counters   map[string]otelmetric.Float64Counter
	histograms map[string]otelmetric.Float64Histogram
}

func NewOTelMetrics(meter otelmetric.Meter) *OTelMetrics {
	return &OTelMetrics{
		meter:      meter,
		counters:   make(map[string]otelmetric.Float64Counter),
		histograms: make(map[string]otelmetric.Float64Histogram),
	}
}

func tagsToAttrs(tags map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(tags))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

func (m *OTelMetrics) counter(name string) otelmetric.Float64Counter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.counters[name]; ok {
		return c
	}
	c, _ := m.meter.Float64Counter(name)
	m.counters[name] = c
	return c
}

func (m *OTelMetrics) histogram(name string) otelmetric.Float64Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.histograms[name]; ok {
		return h
	}
	h, _ := m.meter.Float64Histogram(name)
	m.histograms[name] = h
	return h
}

func (m *OTelMetrics) Incr(name string, tags map[string]string) {
	m.counter(name).Add(context.Background(), 1, otelmetric.WithAttributes(tagsToAttrs(tags)...))
}

func (m *OTelMetrics) Observe(name string, value float64, tags map[string]string) {
	m.histogram(name).Record(context.Background(), value, otelmetric.WithAttributes(tagsToAttrs(tags)...))
}

func (m *OTelMetrics) Timing(name string, d time.Duration, tags map[string]string) {
	m.Observe(name, float64(d.Milliseconds()), tags)
}

// OTelTracer opens spans on an OpenTelemetry trace.Tracer.
type OTelTracer struct {
	tracer oteltrace.Tracer
}

func NewOTelTracer(tracer oteltrace.Tracer) *OTelTracer {
	return &OTelTracer{tracer: tracer}
}

type otelSpanWrapper struct {
	span oteltrace.Span
}

func (s otelSpanWrapper) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	}
}

func (s otelSpanWrapper) RecordError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s otelSpanWrapper) End() { s.span.End() }

func (t *OTelTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	spanCtx, span := t.tracer.Start(ctx, name)
	return spanCtx, otelSpanWrapper{span: span}
}

// PrometheusMetrics reports via a registered CounterVec/HistogramVec pair,
// partitioned by a fixed label set derived from each call's tags.
type PrometheusMetrics struct {
	counters   *prometheus.CounterVec
	histograms *prometheus.HistogramVec
	labelKeys  []string
}

func NewPrometheusMetrics(registry prometheus.Registerer, labelKeys []string) *PrometheusMetrics {
	counters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "toolrun_events_total",
		Help: "Count of tool runtime pipeline events.",
	}, append([]string{"name"}, labelKeys...))
	histograms := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "toolrun_observations",
		Help:    "Observed values for tool runtime pipeline metrics.",
		Buckets: prometheus.DefBuckets,
	}, append([]string{"name"}, labelKeys...))
	registry.MustRegister(counters, histograms)
	return &PrometheusMetrics{counters: counters, histograms: histograms, labelKeys: labelKeys}
}

func (m *PrometheusMetrics) labelValues(name string, tags map[string]string) prometheus.Labels {
	labels := prometheus.Labels{"name": name}
	for _, k := range m.labelKeys {
		labels[k] = tags[k]
	}
	return labels
}

func (m *PrometheusMetrics) Incr(name string, tags map[string]string) {
	m.counters.With(m.labelValues(name, tags)).Inc()
}

func (m *PrometheusMetrics) Observe(name string, value float64, tags map[string]string) {
	m.histograms.With(m.labelValues(name, tags)).Observe(value)
}

func (m *PrometheusMetrics) Timing(name string, d time.Duration, tags map[string]string) {
	m.Observe(name, float64(d.Milliseconds()), tags)
}
