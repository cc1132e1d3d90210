package persistence

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgTxKey struct{}

// PostgresUnitOfWork provides transactional support for PostgreSQL.
type PostgresUnitOfWork struct {
	txScope[pgx.Tx]
}

// NewPostgresUnitOfWork creates a unit of work that begins transactions on pool.
func NewPostgresUnitOfWork(pool *pgxpool.Pool) *PostgresUnitOfWork {
	return newPostgresUnitOfWork(func(ctx context.Context) (pgx.Tx, error) {
		return pool.Begin(ctx)
	})
}

func newPostgresUnitOfWork(begin func(ctx context.Context) (pgx.Tx, error)) *PostgresUnitOfWork {
	return &PostgresUnitOfWork{txScope[pgx.Tx]{
		key:      pgTxKey{},
		begin:    begin,
		commit:   func(ctx context.Context, tx pgx.Tx) error { return tx.Commit(ctx) },
		rollback: func(ctx context.Context, tx pgx.Tx) error { return tx.Rollback(ctx) },
	}}
}

// PgQuerier is the query surface shared by *pgxpool.Pool and pgx.Tx.
type PgQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func pgTxFrom(ctx context.Context) (pgx.Tx, bool) {
	b, ok := ctx.Value(pgTxKey{}).(boundTx[pgx.Tx])
	if !ok || b.tx == nil {
		return nil, false
	}
	return b.tx, true
}

// InTransaction reports whether ctx carries a PostgreSQL transaction.
func InTransaction(ctx context.Context) bool {
	_, ok := pgTxFrom(ctx)
	return ok
}

// Executor returns the transaction bound to ctx, otherwise the pool.
func Executor(ctx context.Context, pool *pgxpool.Pool) PgQuerier {
	if tx, ok := pgTxFrom(ctx); ok {
		return tx
	}
	return pool
}
