package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/tutorhub/internal/billing/domain"
	sharedPersistence "github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// SQLiteAuditRepository implements AuditRepository with SQLite.
type SQLiteAuditRepository struct {
	db *sql.DB
}

// NewSQLiteAuditRepository creates a new repository.
func NewSQLiteAuditRepository(db *sql.DB) *SQLiteAuditRepository {
	return &SQLiteAuditRepository{db: db}
}

// Append writes one audit row.
func (r *SQLiteAuditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	metadata, err := marshalAuditMetadata(entry.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO subscription_audit_log (
			id, user_id, action, old_status, new_status, old_end_date, new_end_date,
			plan, billing_cycle, source, dodo_customer_id, dodo_subscription_id,
			metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, query,
		entry.ID.String(),
		entry.UserID.String(),
		entry.Action,
		nullPriorStatus(entry.OldStatus),
		string(entry.NewStatus),
		sharedPersistence.NullSQLiteTime(entry.OldEndDate),
		sharedPersistence.NullSQLiteTime(entry.NewEndDate),
		entry.Plan,
		entry.BillingCycle,
		entry.Source,
		entry.DodoCustomerID,
		entry.DodoSubscriptionID,
		string(metadata),
		sharedPersistence.FormatSQLiteTime(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ListByUserID returns the newest entries for a user first.
func (r *SQLiteAuditRepository) ListByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.AuditEntry, error) {
	query := `
		SELECT id, user_id, action, old_status, new_status, old_end_date, new_end_date,
		       plan, billing_cycle, source, dodo_customer_id, dodo_subscription_id,
		       metadata, created_at
		FROM subscription_audit_log
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryContext(ctx, query, userID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		var (
			entry                  domain.AuditEntry
			id, entryUserID        string
			oldStatus              sql.NullString
			newStatus              string
			oldEndDate, newEndDate sql.NullString
			metadata               string
			createdAt              string
		)
		if err := rows.Scan(
			&id,
			&entryUserID,
			&entry.Action,
			&oldStatus,
			&newStatus,
			&oldEndDate,
			&newEndDate,
			&entry.Plan,
			&entry.BillingCycle,
			&entry.Source,
			&entry.DodoCustomerID,
			&entry.DodoSubscriptionID,
			&metadata,
			&createdAt,
		); err != nil {
			return nil, err
		}

		entry.ID, _ = uuid.Parse(id)
		entry.UserID, _ = uuid.Parse(entryUserID)
		entry.OldStatus = priorStatusFromNull(oldStatus)
		entry.NewStatus = domain.SubscriptionStatus(newStatus)
		entry.OldEndDate = sharedPersistence.ParseNullSQLiteTime(oldEndDate)
		entry.NewEndDate = sharedPersistence.ParseNullSQLiteTime(newEndDate)
		entry.CreatedAt, _ = sharedPersistence.ParseSQLiteTime(createdAt)
		if entry.Metadata, err = unmarshalAuditMetadata([]byte(metadata)); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// nullPriorStatus stores an absent prior record as NULL.
func nullPriorStatus(s domain.SubscriptionStatus) sql.NullString {
	prior := domain.PriorStatus(s)
	if prior == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: prior.String(), Valid: true}
}

func priorStatusFromNull(s sql.NullString) domain.SubscriptionStatus {
	if !s.Valid {
		return domain.SubscriptionNone
	}
	return domain.SubscriptionStatus(s.String)
}

func marshalAuditMetadata(metadata map[string]any) ([]byte, error) {
	if len(metadata) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal audit metadata: %w", err)
	}
	return data, nil
}

func unmarshalAuditMetadata(data []byte) (map[string]any, error) {
	metadata := map[string]any{}
	if len(data) == 0 {
		return metadata, nil
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
	}
	return metadata, nil
}

var _ domain.AuditRepository = (*SQLiteAuditRepository)(nil)
