package persistence

import (
	"context"
	"database/sql"
)

type sqliteTxKey struct{}

// SQLiteUnitOfWork provides transactional support for SQLite.
type SQLiteUnitOfWork struct {
	txScope[*sql.Tx]
}

// NewSQLiteUnitOfWork creates a unit of work that begins transactions on db.
func NewSQLiteUnitOfWork(db *sql.DB) *SQLiteUnitOfWork {
	return &SQLiteUnitOfWork{txScope[*sql.Tx]{
		key: sqliteTxKey{},
		begin: func(ctx context.Context) (*sql.Tx, error) {
			return db.BeginTx(ctx, nil)
		},
		commit:   func(_ context.Context, tx *sql.Tx) error { return tx.Commit() },
		rollback: func(_ context.Context, tx *sql.Tx) error { return tx.Rollback() },
	}}
}

// SQLiteQuerier is the query surface shared by *sql.DB and *sql.Tx.
type SQLiteQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLiteExecutor returns the transaction bound to ctx, otherwise db.
func SQLiteExecutor(ctx context.Context, db *sql.DB) SQLiteQuerier {
	if b, ok := ctx.Value(sqliteTxKey{}).(boundTx[*sql.Tx]); ok && b.tx != nil {
		return b.tx
	}
	return db
}
