package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/cadence/internal/billing/domain"
	sharedPersistence "github.com/felixgeelhaar/cadence/internal/shared/infrastructure/persistence"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresUsageRepository implements UsageRepository with PostgreSQL.
type PostgresUsageRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresUsageRepository creates a new repository.
func NewPostgresUsageRepository(pool *pgxpool.Pool) *PostgresUsageRepository {
	return &PostgresUsageRepository{pool: pool}
}

// Append stores event, joining the transaction in ctx.
func (r *PostgresUsageRepository) Append(ctx context.Context, event *domain.UsageEvent) error {
	var requestID *string
	if event.RequestID != "" {
		requestID = &event.RequestID
	}

	_, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, `
		INSERT INTO usage_events (id, user_id, event_kind, quantity, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID,
		event.UserID,
		string(event.Kind),
		event.Quantity,
		requestID,
		event.CreatedAt.UTC(),
	)
	if sharedPersistence.IsUniqueViolation(err) {
		return domain.ErrDuplicateRequest
	}
	return err
}

// SumSince totals quantity for (userID, kind) since the given instant.
func (r *PostgresUsageRepository) SumSince(ctx context.Context, userID string, kind domain.EventKind, since time.Time) (float64, error) {
	var total float64
	err := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)::float8
		FROM usage_events
		WHERE user_id = $1 AND event_kind = $2 AND created_at >= $3`,
		userID, string(kind), since.UTC(),
	).Scan(&total)
	return total, err
}

// FindByRequestID returns the event recorded under requestID, or nil.
func (r *PostgresUsageRepository) FindByRequestID(ctx context.Context, userID string, kind domain.EventKind, requestID string) (*domain.UsageEvent, error) {
	var (
		event domain.UsageEvent
		k     string
		reqID *string
	)
	err := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, `
		SELECT id, user_id, event_kind, quantity, request_id, created_at
		FROM usage_events
		WHERE user_id = $1 AND event_kind = $2 AND request_id = $3`,
		userID, string(kind), requestID,
	).Scan(&event.ID, &event.UserID, &k, &event.Quantity, &reqID, &event.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	event.Kind = domain.EventKind(k)
	if reqID != nil {
		event.RequestID = *reqID
	}
	return &event, nil
}

var _ domain.UsageRepository = (*PostgresUsageRepository)(nil)
