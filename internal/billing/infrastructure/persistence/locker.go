package persistence

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/cadence/internal/billing/domain"
	sharedPersistence "github.com/felixgeelhaar/cadence/internal/shared/infrastructure/persistence"
)

// PostgresQuotaLocker takes a transaction-scoped advisory lock per (user, kind).
type PostgresQuotaLocker struct{}

// LockQuota blocks until the lock for (userID, kind) is held by the
// transaction in ctx. It is released at commit or rollback.
func (PostgresQuotaLocker) LockQuota(ctx context.Context, userID string, kind domain.EventKind) error {
	return sharedPersistence.AdvisoryXactLock(ctx, quotaLockKey(userID, kind))
}

// SQLiteQuotaLocker relies on the single-connection pool: a transaction
// already excludes every other statement.
type SQLiteQuotaLocker struct{}

// LockQuota only checks that ctx carries a transaction.
func (SQLiteQuotaLocker) LockQuota(ctx context.Context, _ string, _ domain.EventKind) error {
	if _, ok := sharedPersistence.SQLiteTxInfoFromContext(ctx); !ok {
		return errors.New("quota lock requires a transaction")
	}
	return nil
}

func quotaLockKey(userID string, kind domain.EventKind) string {
	return "quota:" + userID + ":" + string(kind)
}

var (
	_ domain.QuotaLocker = PostgresQuotaLocker{}
	_ domain.QuotaLocker = SQLiteQuotaLocker{}
)
