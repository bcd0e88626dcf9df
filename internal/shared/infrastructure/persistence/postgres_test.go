package persistence

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTx struct {
	commitCalled   bool
	rollbackCalled bool
	execSQL        []string
	execErr        error
}

func (m *mockTx) Begin(context.Context) (pgx.Tx, error) { return m, nil }
func (m *mockTx) Commit(context.Context) error          { m.commitCalled = true; return nil }
func (m *mockTx) Rollback(context.Context) error        { m.rollbackCalled = true; return nil }
func (m *mockTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (m *mockTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (m *mockTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (m *mockTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (m *mockTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	m.execSQL = append(m.execSQL, sql)
	return pgconn.CommandTag{}, m.execErr
}
func (m *mockTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (m *mockTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (m *mockTx) Conn() *pgx.Conn                                         { return nil }

func TestTxInfoFromContext(t *testing.T) {
	_, ok := TxInfoFromContext(context.Background())
	assert.False(t, ok)

	tx := &mockTx{}
	info, ok := TxInfoFromContext(WithTx(context.Background(), tx, true))
	require.True(t, ok)
	assert.Same(t, tx, info.Tx)
	assert.True(t, info.Owned)
}

func TestExecutor_PrefersTransaction(t *testing.T) {
	tx := &mockTx{}
	exec := Executor(WithTx(context.Background(), tx, false), nil)
	assert.Same(t, tx, exec)
}

func TestPostgresUnitOfWork_JoinsExistingTransaction(t *testing.T) {
	tx := &mockTx{}
	uow := NewPostgresUnitOfWork(nil)

	ctx, err := uow.Begin(WithTx(context.Background(), tx, true))
	require.NoError(t, err)

	require.NoError(t, uow.Commit(ctx))
	require.NoError(t, uow.Rollback(ctx))
	assert.False(t, tx.commitCalled)
	assert.False(t, tx.rollbackCalled)
}

func TestPostgresUnitOfWork_OwnedTransaction(t *testing.T) {
	tx := &mockTx{}
	uow := NewPostgresUnitOfWork(nil)
	ctx := WithTx(context.Background(), tx, true)

	require.NoError(t, uow.Commit(ctx))
	assert.True(t, tx.commitCalled)
	require.NoError(t, uow.Rollback(ctx))
	assert.True(t, tx.rollbackCalled)
}

func TestPostgresUnitOfWork_WithoutTransaction(t *testing.T) {
	uow := NewPostgresUnitOfWork(nil)
	assert.ErrorContains(t, uow.Commit(context.Background()), "no transaction in context")
	assert.ErrorContains(t, uow.Rollback(context.Background()), "no transaction in context")
}

func TestAdvisoryXactLock(t *testing.T) {
	t.Run("requires transaction", func(t *testing.T) {
		assert.Error(t, AdvisoryXactLock(context.Background(), "k"))
	})

	t.Run("locks inside transaction", func(t *testing.T) {
		tx := &mockTx{}
		require.NoError(t, AdvisoryXactLock(WithTx(context.Background(), tx, true), "user-1:generation"))
		require.Len(t, tx.execSQL, 1)
		assert.Contains(t, tx.execSQL[0], "pg_advisory_xact_lock")
	})

	t.Run("wraps exec error", func(t *testing.T) {
		tx := &mockTx{execErr: fmt.Errorf("conn closed")}
		err := AdvisoryXactLock(WithTx(context.Background(), tx, true), "k")
		assert.ErrorContains(t, err, "conn closed")
	})
}

func TestIsUniqueViolation_Postgres(t *testing.T) {
	dup := fmt.Errorf("insert usage event: %w", &pgconn.PgError{Code: "23505"})
	other := &pgconn.PgError{Code: "40001"}

	assert.True(t, IsUniqueViolation(dup))
	assert.False(t, IsUniqueViolation(other))
}
