package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer_RecordsTiming(t *testing.T) {
	m := NewInMemoryMetrics()

	timer := StartTimer(MetricUsageEnforceDuration).
		WithMetrics(m).
		WithTags(T("kind", "generation"))
	time.Sleep(time.Millisecond)
	d := timer.Stop()

	obs := m.Observations(MetricUsageEnforceDuration, T("kind", "generation"))
	require.Len(t, obs, 1)
	assert.Equal(t, d.Seconds(), obs[0])
	assert.GreaterOrEqual(t, d, time.Millisecond)
}

func TestTimer_WithoutSinks(t *testing.T) {
	timer := StartTimer("noop")
	assert.NotPanics(t, func() { timer.Stop() })
	assert.Greater(t, timer.Elapsed(), time.Duration(0))
}
