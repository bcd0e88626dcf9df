// Package cache provides a Redis read-through layer for subscription lookups.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/cadence/internal/billing/domain"
	"github.com/felixgeelhaar/cadence/pkg/observability"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a stale subscription can be served when an
// invalidation is lost.
const DefaultTTL = 30 * time.Second

const keyPrefix = "cadence:subscription:"

// cachedSubscription is the Redis representation. Found=false records a
// user with no subscription row.
type cachedSubscription struct {
	Found                  bool       `json:"found"`
	UserID                 string     `json:"user_id,omitempty"`
	Plan                   string     `json:"plan,omitempty"`
	Status                 string     `json:"status,omitempty"`
	CurrentPeriodEnd       *time.Time `json:"current_period_end,omitempty"`
	Provider               string     `json:"provider,omitempty"`
	ProviderCustomerID     string     `json:"provider_customer_id,omitempty"`
	ProviderSubscriptionID string     `json:"provider_subscription_id,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// SubscriptionRepository decorates a domain.SubscriptionRepository with a
// Redis read-through cache. Redis failures fall through to the wrapped
// repository.
type SubscriptionRepository struct {
	next    domain.SubscriptionRepository
	client  *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
	metrics observability.Metrics
}

// NewSubscriptionRepository wraps next with a cache on client.
func NewSubscriptionRepository(next domain.SubscriptionRepository, client *redis.Client, ttl time.Duration, logger *slog.Logger, metrics observability.Metrics) *SubscriptionRepository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &SubscriptionRepository{
		next:    next,
		client:  client,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

// FindByUserID serves from Redis when possible and fills it on a miss.
func (r *SubscriptionRepository) FindByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	raw, err := r.client.Get(ctx, key(userID)).Bytes()
	switch {
	case err == nil:
		var entry cachedSubscription
		if jsonErr := json.Unmarshal(raw, &entry); jsonErr == nil {
			r.record("hit")
			return entry.subscription(), nil
		}
		r.record("corrupt")
	case errors.Is(err, redis.Nil):
		r.record("miss")
	default:
		r.record("error")
		r.logger.Warn("subscription cache read failed", "user_id", userID, "error", err)
	}

	sub, err := r.next.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	r.store(ctx, userID, sub)
	return sub, nil
}

// Upsert writes through. It may run inside an uncommitted transaction, so
// the cached entry is left for the caller to Invalidate after commit.
func (r *SubscriptionRepository) Upsert(ctx context.Context, sub *domain.Subscription) error {
	return r.next.Upsert(ctx, sub)
}

// Invalidate removes the cached entry for userID.
func (r *SubscriptionRepository) Invalidate(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, key(userID)).Err(); err != nil {
		r.logger.Warn("subscription cache invalidation failed", "user_id", userID, "error", err)
		return fmt.Errorf("invalidate subscription cache: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) store(ctx context.Context, userID string, sub *domain.Subscription) {
	payload, err := json.Marshal(toCached(sub))
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, key(userID), payload, r.ttl).Err(); err != nil {
		r.logger.Warn("subscription cache write failed", "user_id", userID, "error", err)
	}
}

func (r *SubscriptionRepository) record(result string) {
	r.metrics.Counter(observability.MetricSubscriptionCache, 1, observability.T("result", result))
}

func key(userID string) string {
	return keyPrefix + userID
}

func toCached(sub *domain.Subscription) cachedSubscription {
	if sub == nil {
		return cachedSubscription{}
	}
	return cachedSubscription{
		Found:                  true,
		UserID:                 sub.UserID,
		Plan:                   string(sub.Plan),
		Status:                 string(sub.Status),
		CurrentPeriodEnd:       sub.CurrentPeriodEnd,
		Provider:               sub.Provider,
		ProviderCustomerID:     sub.ProviderCustomerID,
		ProviderSubscriptionID: sub.ProviderSubscriptionID,
		CreatedAt:              sub.CreatedAt,
		UpdatedAt:              sub.UpdatedAt,
	}
}

func (c cachedSubscription) subscription() *domain.Subscription {
	if !c.Found {
		return nil
	}
	return &domain.Subscription{
		UserID:                 c.UserID,
		Plan:                   domain.Plan(c.Plan),
		Status:                 domain.SubscriptionStatus(c.Status),
		CurrentPeriodEnd:       c.CurrentPeriodEnd,
		Provider:               c.Provider,
		ProviderCustomerID:     c.ProviderCustomerID,
		ProviderSubscriptionID: c.ProviderSubscriptionID,
		CreatedAt:              c.CreatedAt,
		UpdatedAt:              c.UpdatedAt,
	}
}

var _ domain.SubscriptionRepository = (*SubscriptionRepository)(nil)
