package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/cadence/internal/billing/domain"
	sharedPersistence "github.com/felixgeelhaar/cadence/internal/shared/infrastructure/persistence"
)

// SQLiteSubscriptionRepository implements SubscriptionRepository with SQLite.
type SQLiteSubscriptionRepository struct {
	db *sql.DB
}

// NewSQLiteSubscriptionRepository creates a new repository.
func NewSQLiteSubscriptionRepository(db *sql.DB) *SQLiteSubscriptionRepository {
	return &SQLiteSubscriptionRepository{db: db}
}

// Upsert inserts or replaces the user's record. created_at survives updates.
func (r *SQLiteSubscriptionRepository) Upsert(ctx context.Context, sub *domain.Subscription) error {
	var periodEnd sql.NullString
	if sub.CurrentPeriodEnd != nil {
		periodEnd = sql.NullString{String: sharedPersistence.FormatSQLiteTime(*sub.CurrentPeriodEnd), Valid: true}
	}

	_, err := sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO subscriptions (
			user_id, plan, status, current_period_end, provider,
			provider_customer_id, provider_subscription_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			plan = excluded.plan,
			status = excluded.status,
			current_period_end = excluded.current_period_end,
			provider = excluded.provider,
			provider_customer_id = excluded.provider_customer_id,
			provider_subscription_id = excluded.provider_subscription_id,
			updated_at = excluded.updated_at`,
		sub.UserID,
		string(sub.Plan),
		string(sub.Status),
		periodEnd,
		sub.Provider,
		sub.ProviderCustomerID,
		sub.ProviderSubscriptionID,
		sharedPersistence.FormatSQLiteTime(sub.CreatedAt),
		sharedPersistence.FormatSQLiteTime(sub.UpdatedAt),
	)
	return err
}

// FindByUserID returns the subscription for a user, or nil.
func (r *SQLiteSubscriptionRepository) FindByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	var (
		sub                  domain.Subscription
		plan, status         string
		periodEnd            sql.NullString
		createdAt, updatedAt string
	)
	err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx, `
		SELECT user_id, plan, status, current_period_end, provider,
		       provider_customer_id, provider_subscription_id, created_at, updated_at
		FROM subscriptions
		WHERE user_id = ?`, userID,
	).Scan(
		&sub.UserID, &plan, &status, &periodEnd, &sub.Provider,
		&sub.ProviderCustomerID, &sub.ProviderSubscriptionID, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	sub.Plan = domain.Plan(plan)
	sub.Status = domain.SubscriptionStatus(status)
	if sub.CurrentPeriodEnd, err = sharedPersistence.NullSQLiteTime(periodEnd); err != nil {
		return nil, fmt.Errorf("parse current_period_end: %w", err)
	}
	if sub.CreatedAt, err = sharedPersistence.ParseSQLiteTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if sub.UpdatedAt, err = sharedPersistence.ParseSQLiteTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &sub, nil
}

var _ domain.SubscriptionRepository = (*SQLiteSubscriptionRepository)(nil)
