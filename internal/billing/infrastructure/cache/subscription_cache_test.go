package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/felixgeelhaar/cadence/internal/billing/domain"
	"github.com/felixgeelhaar/cadence/pkg/observability"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRepo struct {
	subs  map[string]*domain.Subscription
	finds int
	err   error
}

func (c *countingRepo) Upsert(_ context.Context, sub *domain.Subscription) error {
	cp := *sub
	c.subs[sub.UserID] = &cp
	return nil
}

func (c *countingRepo) FindByUserID(_ context.Context, userID string) (*domain.Subscription, error) {
	c.finds++
	if c.err != nil {
		return nil, c.err
	}
	sub, ok := c.subs[userID]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func setupCache(t *testing.T) (*SubscriptionRepository, *countingRepo, *miniredis.Miniredis, *observability.InMemoryMetrics) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	next := &countingRepo{subs: make(map[string]*domain.Subscription)}
	metrics := observability.NewInMemoryMetrics()
	return NewSubscriptionRepository(next, client, time.Minute, nil, metrics), next, mr, metrics
}

func TestSubscriptionCache_ReadThrough(t *testing.T) {
	repo, next, mr, metrics := setupCache(t)
	ctx := context.Background()

	end := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	next.subs["u"] = &domain.Subscription{
		UserID: "u", Plan: domain.PlanPro, Status: domain.SubscriptionActive, CurrentPeriodEnd: &end,
	}

	first, err := repo.FindByUserID(ctx, "u")
	require.NoError(t, err)
	second, err := repo.FindByUserID(ctx, "u")
	require.NoError(t, err)

	assert.Equal(t, 1, next.finds)
	assert.Equal(t, first, second)
	assert.True(t, end.Equal(*second.CurrentPeriodEnd))
	assert.True(t, mr.Exists("cadence:subscription:u"))
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricSubscriptionCache, observability.T("result", "miss")))
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricSubscriptionCache, observability.T("result", "hit")))
}

func TestSubscriptionCache_CachesMissingRecord(t *testing.T) {
	repo, next, _, _ := setupCache(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		sub, err := repo.FindByUserID(ctx, "ghost")
		require.NoError(t, err)
		assert.Nil(t, sub)
	}
	assert.Equal(t, 1, next.finds)
}

func TestSubscriptionCache_InvalidateAfterUpsert(t *testing.T) {
	repo, next, mr, _ := setupCache(t)
	ctx := context.Background()

	_, err := repo.FindByUserID(ctx, "u")
	require.NoError(t, err)
	require.True(t, mr.Exists("cadence:subscription:u"))

	require.NoError(t, repo.Upsert(ctx, &domain.Subscription{UserID: "u", Plan: domain.PlanStarter, Status: domain.SubscriptionActive}))
	assert.True(t, mr.Exists("cadence:subscription:u"), "upsert leaves the entry until commit")
	require.Contains(t, next.subs, "u")

	require.NoError(t, repo.Invalidate(ctx, "u"))
	assert.False(t, mr.Exists("cadence:subscription:u"))

	sub, err := repo.FindByUserID(ctx, "u")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, domain.PlanStarter, sub.Plan)
	assert.Equal(t, 2, next.finds)
}

func TestSubscriptionCache_InvalidateRedisDown(t *testing.T) {
	repo, _, mr, _ := setupCache(t)
	mr.Close()

	assert.Error(t, repo.Invalidate(context.Background(), "u"))
}

func TestSubscriptionCache_ExpiresAfterTTL(t *testing.T) {
	repo, next, mr, _ := setupCache(t)
	ctx := context.Background()

	_, err := repo.FindByUserID(ctx, "u")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = repo.FindByUserID(ctx, "u")
	require.NoError(t, err)

	assert.Equal(t, 2, next.finds)
}

func TestSubscriptionCache_RedisDownFallsThrough(t *testing.T) {
	repo, next, mr, metrics := setupCache(t)
	next.subs["u"] = &domain.Subscription{UserID: "u", Plan: domain.PlanPro, Status: domain.SubscriptionActive}
	mr.Close()

	sub, err := repo.FindByUserID(context.Background(), "u")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, domain.PlanPro, sub.Plan)
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricSubscriptionCache, observability.T("result", "error")))
}

func TestSubscriptionCache_RepositoryErrorNotCached(t *testing.T) {
	repo, next, mr, _ := setupCache(t)
	next.err = errors.New("database is locked")

	_, err := repo.FindByUserID(context.Background(), "u")
	assert.Error(t, err)
	assert.False(t, mr.Exists("cadence:subscription:u"))
}
