package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/felixgeelhaar/tutorhub/internal/billing/domain"
	"github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/convert"
	sharedPersistence "github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// seq breaks ties between rows written in the same instant.
const postgresAuditListQuery = `
	SELECT id, user_id, action, old_status, new_status, old_end_date, new_end_date,
	       plan, billing_cycle, source, dodo_customer_id, dodo_subscription_id,
	       metadata::text, created_at
	FROM subscription_audit_log
	WHERE user_id = $1
	ORDER BY created_at DESC, seq DESC
	LIMIT $2`

// PostgresAuditRepository implements AuditRepository with PostgreSQL.
type PostgresAuditRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresAuditRepository creates a new repository.
func NewPostgresAuditRepository(pool *pgxpool.Pool) *PostgresAuditRepository {
	return &PostgresAuditRepository{pool: pool}
}

// Append writes one audit row.
func (r *PostgresAuditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	metadata, err := marshalAuditMetadata(entry.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO subscription_audit_log (
			id, user_id, action, old_status, new_status, old_end_date, new_end_date,
			plan, billing_cycle, source, dodo_customer_id, dodo_subscription_id,
			metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb, $14)
	`
	_, err = sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query,
		entry.ID,
		entry.UserID,
		entry.Action,
		nullPriorStatus(entry.OldStatus),
		string(entry.NewStatus),
		entry.OldEndDate,
		entry.NewEndDate,
		entry.Plan,
		entry.BillingCycle,
		entry.Source,
		entry.DodoCustomerID,
		entry.DodoSubscriptionID,
		string(metadata),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ListByUserID returns the newest entries for a user first. Rows written
// in the same instant come back in reverse insertion order.
func (r *PostgresAuditRepository) ListByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.AuditEntry, error) {
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, postgresAuditListQuery, userID, convert.PositiveInt32(limit, 50))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		var (
			entry     domain.AuditEntry
			oldStatus sql.NullString
			newStatus string
			metadata  string
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.Action,
			&oldStatus,
			&newStatus,
			&entry.OldEndDate,
			&entry.NewEndDate,
			&entry.Plan,
			&entry.BillingCycle,
			&entry.Source,
			&entry.DodoCustomerID,
			&entry.DodoSubscriptionID,
			&metadata,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.OldStatus = priorStatusFromNull(oldStatus)
		entry.NewStatus = domain.SubscriptionStatus(newStatus)
		if entry.Metadata, err = unmarshalAuditMetadata([]byte(metadata)); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

var _ domain.AuditRepository = (*PostgresAuditRepository)(nil)
