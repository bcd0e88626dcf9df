package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// SQLiteRepository implements Repository on SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite outbox repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Save stores a single message, joining the transaction in ctx.
func (r *SQLiteRepository) Save(ctx context.Context, msg *Message) error {
	return r.SaveBatch(ctx, []*Message{msg})
}

// SaveBatch stores messages, joining the transaction in ctx.
func (r *SQLiteRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	exec := persistence.SQLiteExecutor(ctx, r.db)
	for _, msg := range msgs {
		res, err := exec.ExecContext(ctx, `
			INSERT INTO outbox (event_id, aggregate_type, aggregate_id, event_type,
				routing_key, payload, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			msg.EventID.String(), msg.AggregateType, msg.AggregateID, msg.EventType,
			msg.RoutingKey, string(msg.Payload), nullableText(msg.Metadata),
			persistence.FormatSQLiteTime(msg.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert outbox message %s: %w", msg.EventID, err)
		}
		if msg.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

// GetUnpublished returns pending messages whose retry time has passed.
func (r *SQLiteRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	rows, err := persistence.SQLiteExecutor(ctx, r.db).QueryContext(ctx, `
		SELECT `+outboxColumns+`
		FROM outbox
		WHERE published_at IS NULL
		  AND dead_lettered_at IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY created_at, id
		LIMIT ?`, persistence.FormatSQLiteTime(r.now()), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Message
	for rows.Next() {
		msg, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// MarkPublished records a successful publish.
func (r *SQLiteRepository) MarkPublished(ctx context.Context, id int64) error {
	_, err := persistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx,
		`UPDATE outbox SET published_at = ? WHERE id = ?`,
		persistence.FormatSQLiteTime(r.now()), id)
	return err
}

// MarkFailed increments the retry count and schedules the next attempt.
func (r *SQLiteRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	_, err := persistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, `
		UPDATE outbox
		SET retry_count = retry_count + 1, last_error = ?, next_retry_at = ?
		WHERE id = ?`, errMsg, persistence.FormatSQLiteTime(nextRetryAt), id)
	return err
}

// MarkDead moves a message out of the pending set.
func (r *SQLiteRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	_, err := persistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, `
		UPDATE outbox
		SET retry_count = retry_count + 1, last_error = ?,
		    dead_lettered_at = ?, dead_letter_reason = ?
		WHERE id = ?`, reason, persistence.FormatSQLiteTime(r.now()), reason, id)
	return err
}

// DeleteOld removes published messages older than olderThanDays.
func (r *SQLiteRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := r.now().AddDate(0, 0, -olderThanDays)
	res, err := persistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, `
		DELETE FROM outbox
		WHERE published_at IS NOT NULL AND published_at < ?`,
		persistence.FormatSQLiteTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteMessage(row rowScanner) (*Message, error) {
	var (
		msg                                      Message
		eventID, createdAt, payload              string
		metadata, publishedAt, nextRetry, deadAt sql.NullString
		lastErr, deadReason                      sql.NullString
	)
	err := row.Scan(
		&msg.ID, &eventID, &msg.AggregateType, &msg.AggregateID, &msg.EventType,
		&msg.RoutingKey, &payload, &metadata, &createdAt, &publishedAt,
		&nextRetry, &msg.RetryCount, &lastErr, &deadAt, &deadReason,
	)
	if err != nil {
		return nil, err
	}

	if msg.EventID, err = uuid.Parse(eventID); err != nil {
		return nil, err
	}
	if msg.CreatedAt, err = persistence.ParseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	if msg.PublishedAt, err = persistence.NullSQLiteTime(publishedAt); err != nil {
		return nil, err
	}
	if msg.NextRetryAt, err = persistence.NullSQLiteTime(nextRetry); err != nil {
		return nil, err
	}
	if msg.DeadLetteredAt, err = persistence.NullSQLiteTime(deadAt); err != nil {
		return nil, err
	}
	msg.Payload = []byte(payload)
	if metadata.Valid {
		msg.Metadata = []byte(metadata.String)
	}
	if lastErr.Valid {
		msg.LastError = &lastErr.String
	}
	if deadReason.Valid {
		msg.DeadLetterReason = &deadReason.String
	}
	return &msg, nil
}

func nullableText(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
