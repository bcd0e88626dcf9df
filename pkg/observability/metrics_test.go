package observability

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoopMetrics(t *testing.T) {
	m := NoopMetrics{}

	// Should not panic
	m.Counter("test", 1)
	m.Gauge("test", 1.0)
	m.Histogram("test", 1.0)
	m.Timing("test", time.Second)
}

func TestInMemoryMetrics_Counter(t *testing.T) {
	m := NewInMemoryMetrics()

	m.Counter(MetricUsageEnforceTotal, 1, T("kind", "export"), T("outcome", "allowed"))
	m.Counter(MetricUsageEnforceTotal, 1, T("outcome", "allowed"), T("kind", "export"))
	m.Counter(MetricUsageEnforceTotal, 1, T("kind", "export"), T("outcome", "rejected"))

	assert.Equal(t, int64(2), m.GetCounter(MetricUsageEnforceTotal, T("kind", "export"), T("outcome", "allowed")))
	assert.Equal(t, int64(1), m.GetCounter(MetricUsageEnforceTotal, T("outcome", "rejected"), T("kind", "export")))
	assert.Zero(t, m.GetCounter(MetricUsageEnforceTotal))
}

func TestInMemoryMetrics_Gauge(t *testing.T) {
	m := NewInMemoryMetrics()

	m.Gauge(MetricStorageBreakerState, 2, T("breaker", "billing-storage"))
	m.Gauge(MetricStorageBreakerState, 0, T("breaker", "billing-storage"))

	assert.Equal(t, 0.0, m.GetGauge(MetricStorageBreakerState, T("breaker", "billing-storage")))
}

func TestInMemoryMetrics_Observations(t *testing.T) {
	m := NewInMemoryMetrics()

	m.Timing(MetricUsageEnforceDuration, 250*time.Millisecond, T("kind", "generation"))
	m.Histogram(MetricUsageEnforceDuration, 0.5, T("kind", "generation"))

	obs := m.Observations(MetricUsageEnforceDuration, T("kind", "generation"))
	assert.Equal(t, []float64{0.25, 0.5}, obs)

	obs[0] = 99
	assert.Equal(t, 0.25, m.Observations(MetricUsageEnforceDuration, T("kind", "generation"))[0])
	assert.Empty(t, m.Observations(MetricUsageEnforceDuration, T("kind", "export")))
}

func TestTag(t *testing.T) {
	tag := T("key", "value")
	assert.Equal(t, "key", tag.Key)
	assert.Equal(t, "value", tag.Value)
}

func TestSeriesKey(t *testing.T) {
	assert.Equal(t, "requests", seriesKey("requests", nil))
	assert.Equal(t, "requests{method=GET}", seriesKey("requests", []Tag{T("method", "GET")}))
	assert.Equal(t, "requests{method=GET,status=200}", seriesKey("requests", []Tag{T("status", "200"), T("method", "GET")}))
}

func TestMetricNamesArePrometheusSafe(t *testing.T) {
	names := []string{
		MetricUsageEnforceTotal, MetricUsageEnforceDuration, MetricPlanResolveFallback,
		MetricStorageBreakerState, MetricSubscriptionCache, MetricHTTPRequests,
		MetricHTTPRateLimited, MetricEventsPublished, MetricEventsDeadLettered,
		MetricOutboxLagSeconds,
	}
	valid := regexp.MustCompile(`^[a-zA-Z_:][a-zA-Z0-9_:]*$`)
	for _, name := range names {
		assert.Regexp(t, valid, name)
	}
}
