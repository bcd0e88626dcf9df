package persistence

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/cadence/internal/billing/domain"
	sharedPersistence "github.com/felixgeelhaar/cadence/internal/shared/infrastructure/persistence"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSubscriptionRepository implements SubscriptionRepository with PostgreSQL.
type PostgresSubscriptionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSubscriptionRepository creates a new repository.
func NewPostgresSubscriptionRepository(pool *pgxpool.Pool) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{pool: pool}
}

// Upsert inserts or replaces the user's record. created_at survives updates.
func (r *PostgresSubscriptionRepository) Upsert(ctx context.Context, sub *domain.Subscription) error {
	_, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, `
		INSERT INTO subscriptions (
			user_id, plan, status, current_period_end, provider,
			provider_customer_id, provider_subscription_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			plan = EXCLUDED.plan,
			status = EXCLUDED.status,
			current_period_end = EXCLUDED.current_period_end,
			provider = EXCLUDED.provider,
			provider_customer_id = EXCLUDED.provider_customer_id,
			provider_subscription_id = EXCLUDED.provider_subscription_id,
			updated_at = EXCLUDED.updated_at`,
		sub.UserID,
		string(sub.Plan),
		string(sub.Status),
		sub.CurrentPeriodEnd,
		sub.Provider,
		sub.ProviderCustomerID,
		sub.ProviderSubscriptionID,
		sub.CreatedAt.UTC(),
		sub.UpdatedAt.UTC(),
	)
	return err
}

// FindByUserID returns the subscription for a user, or nil.
func (r *PostgresSubscriptionRepository) FindByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	var (
		sub          domain.Subscription
		plan, status string
	)
	err := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, `
		SELECT user_id, plan, status, current_period_end, provider,
		       provider_customer_id, provider_subscription_id, created_at, updated_at
		FROM subscriptions
		WHERE user_id = $1`, userID,
	).Scan(
		&sub.UserID, &plan, &status, &sub.CurrentPeriodEnd, &sub.Provider,
		&sub.ProviderCustomerID, &sub.ProviderSubscriptionID, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	sub.Plan = domain.Plan(plan)
	sub.Status = domain.SubscriptionStatus(status)
	return &sub, nil
}

var _ domain.SubscriptionRepository = (*PostgresSubscriptionRepository)(nil)
