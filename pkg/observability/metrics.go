package observability

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// Metrics provides an interface for recording application metrics.
type Metrics interface {
	// Counter increments a counter metric.
	Counter(name string, value int64, tags ...Tag)

	// Gauge sets a gauge metric to the given value.
	Gauge(name string, value float64, tags ...Tag)

	// Histogram records a value in a histogram.
	Histogram(name string, value float64, tags ...Tag)

	// Timing records a duration.
	Timing(name string, duration time.Duration, tags ...Tag)
}

// Tag represents a key-value pair for metric labeling.
type Tag struct {
	Key   string
	Value string
}

// T creates a new Tag.
func T(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// NoopMetrics is a no-op implementation of Metrics.
type NoopMetrics struct{}

func (NoopMetrics) Counter(string, int64, ...Tag)        {}
func (NoopMetrics) Gauge(string, float64, ...Tag)        {}
func (NoopMetrics) Histogram(string, float64, ...Tag)    {}
func (NoopMetrics) Timing(string, time.Duration, ...Tag) {}

// InMemoryMetrics keeps every series in memory for tests and local runs.
// Series are keyed by name and tag set; tag order does not matter.
type InMemoryMetrics struct {
	mu           sync.RWMutex
	counters     map[string]int64
	gauges       map[string]float64
	observations map[string][]float64
}

// NewInMemoryMetrics creates an empty collector.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		counters:     make(map[string]int64),
		gauges:       make(map[string]float64),
		observations: make(map[string][]float64),
	}
}

func (m *InMemoryMetrics) Counter(name string, value int64, tags ...Tag) {
	m.mu.Lock()
	m.counters[seriesKey(name, tags)] += value
	m.mu.Unlock()
}

func (m *InMemoryMetrics) Gauge(name string, value float64, tags ...Tag) {
	m.mu.Lock()
	m.gauges[seriesKey(name, tags)] = value
	m.mu.Unlock()
}

func (m *InMemoryMetrics) Histogram(name string, value float64, tags ...Tag) {
	m.observe(seriesKey(name, tags), value)
}

// Timing is stored in seconds, as the Prometheus sink exports it.
func (m *InMemoryMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	m.observe(seriesKey(name, tags), duration.Seconds())
}

func (m *InMemoryMetrics) observe(key string, value float64) {
	m.mu.Lock()
	m.observations[key] = append(m.observations[key], value)
	m.mu.Unlock()
}

// GetCounter returns the counter total for name and tags.
func (m *InMemoryMetrics) GetCounter(name string, tags ...Tag) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[seriesKey(name, tags)]
}

// GetGauge returns the last gauge value for name and tags.
func (m *InMemoryMetrics) GetGauge(name string, tags ...Tag) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gauges[seriesKey(name, tags)]
}

// Observations returns a copy of the histogram and timing samples.
func (m *InMemoryMetrics) Observations(name string, tags ...Tag) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.observations[seriesKey(name, tags)])
}

func seriesKey(name string, tags []Tag) string {
	if len(tags) == 0 {
		return name
	}
	pairs := make([]string, len(tags))
	for i, t := range tags {
		pairs[i] = t.Key + "=" + t.Value
	}
	slices.Sort(pairs)
	return name + "{" + strings.Join(pairs, ",") + "}"
}

// Metric names recorded by the service. Prometheus exports them as-is.
const (
	// Gate
	MetricUsageEnforceTotal    = "usage_enforce_total"
	MetricUsageEnforceDuration = "usage_enforce_duration_seconds"
	MetricPlanResolveFallback  = "plan_resolve_fallback_total"

	// Storage
	MetricStorageBreakerState = "storage_breaker_state"
	MetricSubscriptionCache   = "subscription_cache_total"

	// HTTP
	MetricHTTPRequests    = "http_requests_total"
	MetricHTTPRateLimited = "http_rate_limited_total"

	// Outbox
	MetricEventsPublished    = "outbox_events_published_total"
	MetricEventsDeadLettered = "outbox_events_dead_lettered_total"
	MetricOutboxLagSeconds   = "outbox_lag_seconds"
)
