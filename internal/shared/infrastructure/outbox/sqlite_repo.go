package outbox

import (
	"context"
	"database/sql"
	"time"

	sharedPersistence "github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite outbox repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save stores a new outbox message, inside the caller's transaction if any.
func (r *SQLiteRepository) Save(ctx context.Context, msg *Message) error {
	query := `
		INSERT INTO outbox (
			event_id, aggregate_type, aggregate_id, event_type, routing_key,
			payload, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	var metadata sql.NullString
	if len(msg.Metadata) > 0 {
		metadata = sql.NullString{String: string(msg.Metadata), Valid: true}
	}

	result, err := sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, query,
		msg.EventID.String(),
		msg.AggregateType,
		msg.AggregateID.String(),
		msg.EventType,
		msg.RoutingKey,
		string(msg.Payload),
		metadata,
		sharedPersistence.FormatSQLiteTime(msg.CreatedAt),
	)
	if err != nil {
		return err
	}
	msg.ID, err = result.LastInsertId()
	return err
}

// GetUnpublished retrieves due messages ordered by creation time.
func (r *SQLiteRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	query := `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, routing_key,
		       payload, metadata, created_at, published_at, next_retry_at, retry_count,
		       last_error, dead_lettered_at, dead_letter_reason
		FROM outbox
		WHERE published_at IS NULL
		  AND dead_lettered_at IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY created_at, id
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, sharedPersistence.FormatSQLiteTime(time.Now()), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MarkPublished marks a message as successfully published.
func (r *SQLiteRepository) MarkPublished(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox SET published_at = ? WHERE id = ?`, sharedPersistence.FormatSQLiteTime(time.Now()), id)
	return err
}

// MarkFailed records a publish failure and schedules the next attempt.
func (r *SQLiteRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET retry_count = retry_count + 1, last_error = ?, next_retry_at = ? WHERE id = ?`,
		errMsg, sharedPersistence.FormatSQLiteTime(nextRetryAt), id,
	)
	return err
}

// MarkDead marks a message as dead-lettered.
func (r *SQLiteRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET dead_lettered_at = ?, dead_letter_reason = ?, retry_count = retry_count + 1 WHERE id = ?`,
		sharedPersistence.FormatSQLiteTime(time.Now()), reason, id,
	)
	return err
}

// CountPending counts messages waiting for delivery.
func (r *SQLiteRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbox WHERE published_at IS NULL AND dead_lettered_at IS NULL`,
	).Scan(&n)
	return n, err
}

// DeleteOld removes published messages older than the retention period.
func (r *SQLiteRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM outbox WHERE published_at IS NOT NULL AND published_at < ?`,
		sharedPersistence.FormatSQLiteTime(cutoff),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteMessage(row rowScanner) (*Message, error) {
	var (
		msg              Message
		eventID          string
		aggregateID      string
		payload          string
		metadata         sql.NullString
		createdAt        string
		publishedAt      sql.NullString
		nextRetryAt      sql.NullString
		lastError        sql.NullString
		deadLetteredAt   sql.NullString
		deadLetterReason sql.NullString
	)
	if err := row.Scan(
		&msg.ID,
		&eventID,
		&msg.AggregateType,
		&aggregateID,
		&msg.EventType,
		&msg.RoutingKey,
		&payload,
		&metadata,
		&createdAt,
		&publishedAt,
		&nextRetryAt,
		&msg.RetryCount,
		&lastError,
		&deadLetteredAt,
		&deadLetterReason,
	); err != nil {
		return nil, err
	}

	msg.EventID, _ = uuid.Parse(eventID)
	msg.AggregateID, _ = uuid.Parse(aggregateID)
	msg.Payload = []byte(payload)
	if metadata.Valid {
		msg.Metadata = []byte(metadata.String)
	}
	msg.CreatedAt, _ = sharedPersistence.ParseSQLiteTime(createdAt)
	msg.PublishedAt = sharedPersistence.ParseNullSQLiteTime(publishedAt)
	msg.NextRetryAt = sharedPersistence.ParseNullSQLiteTime(nextRetryAt)
	msg.DeadLetteredAt = sharedPersistence.ParseNullSQLiteTime(deadLetteredAt)
	if lastError.Valid {
		msg.LastError = &lastError.String
	}
	if deadLetterReason.Valid {
		msg.DeadLetterReason = &deadLetterReason.String
	}
	return &msg, nil
}

var _ Repository = (*SQLiteRepository)(nil)
