package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/felixgeelhaar/cadence/internal/billing/domain"
	sharedPersistence "github.com/felixgeelhaar/cadence/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// SQLiteUsageRepository implements UsageRepository with SQLite.
type SQLiteUsageRepository struct {
	db *sql.DB
}

// NewSQLiteUsageRepository creates a new repository.
func NewSQLiteUsageRepository(db *sql.DB) *SQLiteUsageRepository {
	return &SQLiteUsageRepository{db: db}
}

// Append stores event, joining the transaction in ctx.
func (r *SQLiteUsageRepository) Append(ctx context.Context, event *domain.UsageEvent) error {
	var requestID sql.NullString
	if event.RequestID != "" {
		requestID = sql.NullString{String: event.RequestID, Valid: true}
	}

	_, err := sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO usage_events (id, user_id, event_kind, quantity, request_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID.String(),
		event.UserID,
		string(event.Kind),
		event.Quantity,
		requestID,
		sharedPersistence.FormatSQLiteTime(event.CreatedAt),
	)
	if sharedPersistence.IsUniqueViolation(err) {
		return domain.ErrDuplicateRequest
	}
	return err
}

// SumSince totals quantity for (userID, kind) since the given instant.
func (r *SQLiteUsageRepository) SumSince(ctx context.Context, userID string, kind domain.EventKind, since time.Time) (float64, error) {
	var total float64
	err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity), 0.0)
		FROM usage_events
		WHERE user_id = ? AND event_kind = ? AND created_at >= ?`,
		userID, string(kind), sharedPersistence.FormatSQLiteTime(since),
	).Scan(&total)
	return total, err
}

// FindByRequestID returns the event recorded under requestID, or nil.
func (r *SQLiteUsageRepository) FindByRequestID(ctx context.Context, userID string, kind domain.EventKind, requestID string) (*domain.UsageEvent, error) {
	var (
		event            domain.UsageEvent
		id, k, createdAt string
		reqID            sql.NullString
	)
	err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, user_id, event_kind, quantity, request_id, created_at
		FROM usage_events
		WHERE user_id = ? AND event_kind = ? AND request_id = ?`,
		userID, string(kind), requestID,
	).Scan(&id, &event.UserID, &k, &event.Quantity, &reqID, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if event.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if event.CreatedAt, err = sharedPersistence.ParseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	event.Kind = domain.EventKind(k)
	event.RequestID = reqID.String
	return &event, nil
}

var _ domain.UsageRepository = (*SQLiteUsageRepository)(nil)
