package persistence

import (
	"context"
	"errors"
)

// ErrNoTransaction is returned when Commit or Rollback finds no transaction in the context.
var ErrNoTransaction = errors.New("no transaction in context")

// boundTx is a transaction carried in a context. Only the unit of work that
// began it ends it; nested units join it and leave it alone.
type boundTx[T any] struct {
	tx    T
	owned bool
}

// txScope implements the unit of work once for every driver. key
// separates the drivers' transactions within one context.
type txScope[T any] struct {
	key      any
	begin    func(ctx context.Context) (T, error)
	commit   func(ctx context.Context, tx T) error
	rollback func(ctx context.Context, tx T) error
}

func (s txScope[T]) current(ctx context.Context) (boundTx[T], bool) {
	b, ok := ctx.Value(s.key).(boundTx[T])
	return b, ok
}

// Begin starts a transaction, or joins the one already in ctx.
func (s txScope[T]) Begin(ctx context.Context) (context.Context, error) {
	if b, ok := s.current(ctx); ok {
		return context.WithValue(ctx, s.key, boundTx[T]{tx: b.tx}), nil
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	return context.WithValue(ctx, s.key, boundTx[T]{tx: tx, owned: true}), nil
}

// Commit commits the transaction if this unit owns it.
func (s txScope[T]) Commit(ctx context.Context) error {
	return s.end(ctx, s.commit)
}

// Rollback rolls back the transaction if this unit owns it.
func (s txScope[T]) Rollback(ctx context.Context) error {
	return s.end(ctx, s.rollback)
}

func (s txScope[T]) end(ctx context.Context, finish func(context.Context, T) error) error {
	b, ok := s.current(ctx)
	if !ok {
		return ErrNoTransaction
	}
	if !b.owned {
		return nil
	}
	return finish(ctx, b.tx)
}
