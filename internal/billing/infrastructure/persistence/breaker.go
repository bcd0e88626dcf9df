package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/cadence/internal/billing/domain"
	"github.com/felixgeelhaar/cadence/pkg/observability"
	"github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the storage circuit breaker.
type BreakerConfig struct {
	Name        string
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Breaker trips after consecutive storage failures so callers fail fast
// with ErrStorageUnavailable instead of waiting on the storage timeout.
type Breaker struct {
	cb *gobreaker.CircuitBreaker[any]
}

// NewBreaker creates a breaker. It reports its state on
// MetricStorageBreakerState: 0 closed, 1 half-open, 2 open.
func NewBreaker(cfg BreakerConfig, logger *slog.Logger, metrics observability.Metrics) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "storage"
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domain.ErrDuplicateRequest) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("storage circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.Gauge(observability.MetricStorageBreakerState, float64(to), observability.T("breaker", name))
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker[any](settings)}
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *Breaker) do(fn func() (any, error)) (any, error) {
	res, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	return res, err
}

// BreakerUsageRepository guards a UsageRepository with a Breaker.
type BreakerUsageRepository struct {
	next    domain.UsageRepository
	breaker *Breaker
}

// NewBreakerUsageRepository wraps next.
func NewBreakerUsageRepository(next domain.UsageRepository, breaker *Breaker) *BreakerUsageRepository {
	return &BreakerUsageRepository{next: next, breaker: breaker}
}

func (r *BreakerUsageRepository) Append(ctx context.Context, event *domain.UsageEvent) error {
	_, err := r.breaker.do(func() (any, error) {
		return nil, r.next.Append(ctx, event)
	})
	return err
}

func (r *BreakerUsageRepository) SumSince(ctx context.Context, userID string, kind domain.EventKind, since time.Time) (float64, error) {
	res, err := r.breaker.do(func() (any, error) {
		return r.next.SumSince(ctx, userID, kind, since)
	})
	if err != nil {
		return 0, err
	}
	return res.(float64), nil
}

func (r *BreakerUsageRepository) FindByRequestID(ctx context.Context, userID string, kind domain.EventKind, requestID string) (*domain.UsageEvent, error) {
	res, err := r.breaker.do(func() (any, error) {
		return r.next.FindByRequestID(ctx, userID, kind, requestID)
	})
	if err != nil {
		return nil, err
	}
	event, _ := res.(*domain.UsageEvent)
	return event, nil
}

// BreakerSubscriptionRepository guards a SubscriptionRepository with a Breaker.
type BreakerSubscriptionRepository struct {
	next    domain.SubscriptionRepository
	breaker *Breaker
}

// NewBreakerSubscriptionRepository wraps next.
func NewBreakerSubscriptionRepository(next domain.SubscriptionRepository, breaker *Breaker) *BreakerSubscriptionRepository {
	return &BreakerSubscriptionRepository{next: next, breaker: breaker}
}

func (r *BreakerSubscriptionRepository) Upsert(ctx context.Context, sub *domain.Subscription) error {
	_, err := r.breaker.do(func() (any, error) {
		return nil, r.next.Upsert(ctx, sub)
	})
	return err
}

func (r *BreakerSubscriptionRepository) FindByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	res, err := r.breaker.do(func() (any, error) {
		return r.next.FindByUserID(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	sub, _ := res.(*domain.Subscription)
	return sub, nil
}

var (
	_ domain.UsageRepository        = (*BreakerUsageRepository)(nil)
	_ domain.SubscriptionRepository = (*BreakerSubscriptionRepository)(nil)
)
