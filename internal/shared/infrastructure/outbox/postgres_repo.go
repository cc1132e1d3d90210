package outbox

import (
	"context"
	"time"

	"github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/convert"
	sharedPersistence "github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/persistence"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgInsertMessage = `
		INSERT INTO outbox (event_id, aggregate_type, aggregate_id, event_type,
			routing_key, payload, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	pgSelectDue = `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, routing_key,
			payload, metadata, created_at, published_at, next_retry_at, retry_count,
			last_error, dead_lettered_at, dead_letter_reason
		FROM outbox
		WHERE published_at IS NULL AND dead_lettered_at IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY created_at
		LIMIT $1`

	pgMarkPublished = `UPDATE outbox SET published_at = NOW() WHERE id = $1`

	pgMarkFailed = `
		UPDATE outbox
		SET retry_count = retry_count + 1, last_error = $2, next_retry_at = $3
		WHERE id = $1`

	pgMarkDead = `
		UPDATE outbox
		SET retry_count = retry_count + 1, dead_lettered_at = NOW(), dead_letter_reason = $2
		WHERE id = $1`

	pgCountPending = `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL AND dead_lettered_at IS NULL`

	pgDeleteOld = `
		DELETE FROM outbox
		WHERE published_at IS NOT NULL AND published_at < NOW() - make_interval(days => $1)`
)

// PostgresRepository stores outbox messages in PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL outbox repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Save joins the transaction in ctx when there is one.
func (r *PostgresRepository) Save(ctx context.Context, msg *Message) error {
	return sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, pgInsertMessage,
		msg.EventID, msg.AggregateType, msg.AggregateID, msg.EventType,
		msg.RoutingKey, msg.Payload, msg.Metadata, msg.CreatedAt,
	).Scan(&msg.ID)
}

func (r *PostgresRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	rows, err := r.pool.Query(ctx, pgSelectDue, convert.PositiveInt32(limit, 100))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Message])
}

func (r *PostgresRepository) MarkPublished(ctx context.Context, id int64) error {
	return r.exec(ctx, pgMarkPublished, id)
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	return r.exec(ctx, pgMarkFailed, id, errMsg, nextRetryAt)
}

func (r *PostgresRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	return r.exec(ctx, pgMarkDead, id, reason)
}

func (r *PostgresRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, pgCountPending).Scan(&n)
	return n, err
}

func (r *PostgresRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	tag, err := r.pool.Exec(ctx, pgDeleteOld, convert.ClampInt32(olderThanDays))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	_, err := r.pool.Exec(ctx, query, args...)
	return err
}

var _ Repository = (*PostgresRepository)(nil)
