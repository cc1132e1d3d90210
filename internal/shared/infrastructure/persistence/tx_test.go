package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTx records how a transaction was ended.
type fakeTx struct {
	pgx.Tx
	commits   int
	rollbacks int
}

func (f *fakeTx) Commit(context.Context) error   { f.commits++; return nil }
func (f *fakeTx) Rollback(context.Context) error { f.rollbacks++; return nil }

func fakeUnitOfWork(tx *fakeTx, begins *int) *PostgresUnitOfWork {
	return newPostgresUnitOfWork(func(context.Context) (pgx.Tx, error) {
		*begins++
		return tx, nil
	})
}

func TestPostgresUnitOfWork_CommitOwned(t *testing.T) {
	tx := &fakeTx{}
	var begins int
	uow := fakeUnitOfWork(tx, &begins)

	txCtx, err := uow.Begin(context.Background())
	require.NoError(t, err)
	assert.True(t, InTransaction(txCtx))
	assert.Same(t, tx, Executor(txCtx, nil))

	require.NoError(t, uow.Commit(txCtx))
	assert.Equal(t, 1, begins)
	assert.Equal(t, 1, tx.commits)
	assert.Zero(t, tx.rollbacks)
}

func TestPostgresUnitOfWork_NestedJoinsOuter(t *testing.T) {
	tx := &fakeTx{}
	var begins int
	uow := fakeUnitOfWork(tx, &begins)

	outer, err := uow.Begin(context.Background())
	require.NoError(t, err)
	inner, err := uow.Begin(outer)
	require.NoError(t, err)

	// the inner unit neither begins nor ends anything
	require.NoError(t, uow.Rollback(inner))
	require.NoError(t, uow.Commit(inner))
	assert.Equal(t, 1, begins)
	assert.Zero(t, tx.commits)
	assert.Zero(t, tx.rollbacks)

	require.NoError(t, uow.Rollback(outer))
	assert.Equal(t, 1, tx.rollbacks)
}

func TestPostgresUnitOfWork_BeginError(t *testing.T) {
	uow := newPostgresUnitOfWork(func(context.Context) (pgx.Tx, error) {
		return nil, errors.New("connection refused")
	})

	_, err := uow.Begin(context.Background())
	assert.EqualError(t, err, "connection refused")
}

func TestPostgresUnitOfWork_NoTransaction(t *testing.T) {
	var begins int
	uow := fakeUnitOfWork(&fakeTx{}, &begins)

	assert.ErrorIs(t, uow.Commit(context.Background()), ErrNoTransaction)
	assert.ErrorIs(t, uow.Rollback(context.Background()), ErrNoTransaction)
}

func TestExecutor_WithoutTransaction(t *testing.T) {
	ctx := context.Background()
	assert.False(t, InTransaction(ctx))

	executor := Executor(ctx, nil)
	_, isTx := executor.(pgx.Tx)
	assert.False(t, isTx)
}

func TestInTransaction_IgnoresSQLiteTransaction(t *testing.T) {
	db := openTestDB(t)
	txCtx, err := NewSQLiteUnitOfWork(db).Begin(context.Background())
	require.NoError(t, err)
	defer func() { _ = NewSQLiteUnitOfWork(db).Rollback(txCtx) }()

	assert.False(t, InTransaction(txCtx))
}
