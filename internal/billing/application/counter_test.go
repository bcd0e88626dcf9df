package application

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/cadence/internal/billing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountThisMonth_SumsQuantity(t *testing.T) {
	usage := &fakeUsageRepo{}
	usage.seed("u", domain.KindAudioMinutes, 2.5, testNow.Add(-time.Hour))
	usage.seed("u", domain.KindAudioMinutes, 4, testNow.Add(-48*time.Hour))
	usage.seed("u", domain.KindGeneration, 1, testNow.Add(-time.Hour))
	usage.seed("other", domain.KindAudioMinutes, 9, testNow.Add(-time.Hour))

	c := NewUsageCounter(usage, WithClock(clock()))

	n, err := c.CountThisMonth(context.Background(), "u", domain.KindAudioMinutes)
	require.NoError(t, err)
	assert.Equal(t, 6.5, n)

	n, err = c.CountThisMonth(context.Background(), "u", domain.KindExport)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCountThisMonth_ResetsAtMonthBoundary(t *testing.T) {
	usage := &fakeUsageRepo{}
	monthStart := domain.MonthStart(testNow)
	usage.seed("u", domain.KindGeneration, 1, monthStart.Add(-time.Nanosecond))
	usage.seed("u", domain.KindGeneration, 1, monthStart)

	c := NewUsageCounter(usage, WithClock(clock()))
	n, err := c.CountThisMonth(context.Background(), "u", domain.KindGeneration)
	require.NoError(t, err)
	assert.Equal(t, 1.0, n)

	nextMonth := NewUsageCounter(usage, WithClock(func() time.Time { return monthStart.AddDate(0, 1, 0) }))
	n, err = nextMonth.CountThisMonth(context.Background(), "u", domain.KindGeneration)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCountThisMonth_StorageError(t *testing.T) {
	usage := &fakeUsageRepo{sumErr: errStorage}
	c := NewUsageCounter(usage, WithClock(clock()))

	_, err := c.CountThisMonth(context.Background(), "u", domain.KindGeneration)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.ErrorIs(t, err, errStorage)
}
