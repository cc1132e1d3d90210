package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/tutorhub/internal/billing/domain"
	"github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/database"
	sharedPersistence "github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

const sqliteSubscriptionColumns = `
	id, user_id, status, plan, billing_cycle, end_date, email,
	dodo_customer_id, dodo_subscription_id, trial_ends_at, trial_grace_ends_at,
	trial_activated, created_at, updated_at`

// SQLiteSubscriptionRepository implements SubscriptionRepository with SQLite.
type SQLiteSubscriptionRepository struct {
	db *sql.DB
}

// NewSQLiteSubscriptionRepository creates a new repository.
func NewSQLiteSubscriptionRepository(db *sql.DB) *SQLiteSubscriptionRepository {
	return &SQLiteSubscriptionRepository{db: db}
}

// Insert stores a new subscription. A second record for the same user
// fails with domain.ErrSubscriptionExists.
func (r *SQLiteSubscriptionRepository) Insert(ctx context.Context, sub *domain.Subscription) error {
	query := `INSERT INTO subscriptions (` + sqliteSubscriptionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, query,
		sub.ID.String(),
		sub.UserID.String(),
		string(sub.Status),
		sub.Plan,
		sub.BillingCycle,
		sharedPersistence.NullSQLiteTime(sub.EndDate),
		sub.Email,
		sub.DodoCustomerID,
		sub.DodoSubscriptionID,
		sharedPersistence.NullSQLiteTime(sub.TrialEndsAt),
		sharedPersistence.NullSQLiteTime(sub.TrialGraceEndsAt),
		sub.TrialActivated,
		sharedPersistence.FormatSQLiteTime(sub.CreatedAt),
		sharedPersistence.FormatSQLiteTime(sub.UpdatedAt),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: user %s", domain.ErrSubscriptionExists, sub.UserID)
		}
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of an existing subscription.
func (r *SQLiteSubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	query := `
		UPDATE subscriptions SET
			status = ?, plan = ?, billing_cycle = ?, end_date = ?, email = ?,
			dodo_customer_id = ?, dodo_subscription_id = ?, trial_ends_at = ?,
			trial_grace_ends_at = ?, trial_activated = ?, updated_at = ?
		WHERE user_id = ?
	`
	result, err := sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, query,
		string(sub.Status),
		sub.Plan,
		sub.BillingCycle,
		sharedPersistence.NullSQLiteTime(sub.EndDate),
		sub.Email,
		sub.DodoCustomerID,
		sub.DodoSubscriptionID,
		sharedPersistence.NullSQLiteTime(sub.TrialEndsAt),
		sharedPersistence.NullSQLiteTime(sub.TrialGraceEndsAt),
		sub.TrialActivated,
		sharedPersistence.FormatSQLiteTime(sub.UpdatedAt),
		sub.UserID.String(),
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

// FindByUserID returns the subscription for a user.
func (r *SQLiteSubscriptionRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	return r.findOne(ctx, `user_id = ?`, userID.String())
}

// FindByCustomerID returns the subscription linked to a payment provider customer.
func (r *SQLiteSubscriptionRepository) FindByCustomerID(ctx context.Context, customerID string) (*domain.Subscription, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, nil
	}
	return r.findOne(ctx, `dodo_customer_id = ?`, customerID)
}

// FindByEmail matches the stored email case-insensitively.
func (r *SQLiteSubscriptionRepository) FindByEmail(ctx context.Context, email string) (*domain.Subscription, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}
	return r.findOne(ctx, `lower(email) = lower(?)`, email)
}

// ListDue returns up to limit subscriptions in status whose sweep deadline
// lies before now, ordered by id and starting after the given id.
func (r *SQLiteSubscriptionRepository) ListDue(ctx context.Context, status domain.SubscriptionStatus, now time.Time, after uuid.UUID, limit int) ([]*domain.Subscription, error) {
	deadline := sweepDeadlineColumn(status)
	query := `SELECT ` + sqliteSubscriptionColumns + `
		FROM subscriptions
		WHERE status = ?
			AND ` + deadline + ` IS NOT NULL
			AND ` + deadline + ` < ?
			AND id > ?
		ORDER BY id
		LIMIT ?`

	rows, err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryContext(ctx, query,
		string(status), sharedPersistence.FormatSQLiteTime(now), after.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		sub, err := scanSQLiteSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (r *SQLiteSubscriptionRepository) findOne(ctx context.Context, where string, arg any) (*domain.Subscription, error) {
	query := `SELECT ` + sqliteSubscriptionColumns + ` FROM subscriptions WHERE ` + where + ` LIMIT 1`

	sub, err := scanSQLiteSubscription(sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx, query, arg))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSubscription(row rowScanner) (*domain.Subscription, error) {
	var (
		sub              domain.Subscription
		id, userID       string
		status           string
		endDate          sql.NullString
		trialEndsAt      sql.NullString
		trialGraceEndsAt sql.NullString
		createdAt        string
		updatedAt        string
	)
	if err := row.Scan(
		&id,
		&userID,
		&status,
		&sub.Plan,
		&sub.BillingCycle,
		&endDate,
		&sub.Email,
		&sub.DodoCustomerID,
		&sub.DodoSubscriptionID,
		&trialEndsAt,
		&trialGraceEndsAt,
		&sub.TrialActivated,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if sub.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid subscription id %q: %w", id, err)
	}
	if sub.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", userID, err)
	}
	sub.Status = domain.SubscriptionStatus(status)
	sub.EndDate = sharedPersistence.ParseNullSQLiteTime(endDate)
	sub.TrialEndsAt = sharedPersistence.ParseNullSQLiteTime(trialEndsAt)
	sub.TrialGraceEndsAt = sharedPersistence.ParseNullSQLiteTime(trialGraceEndsAt)
	sub.CreatedAt, _ = sharedPersistence.ParseSQLiteTime(createdAt)
	sub.UpdatedAt, _ = sharedPersistence.ParseSQLiteTime(updatedAt)
	return &sub, nil
}

var _ domain.SubscriptionRepository = (*SQLiteSubscriptionRepository)(nil)
