package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/tutorhub/internal/billing/domain"
	"github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/convert"
	"github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/database"
	sharedPersistence "github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSubscriptionColumns = `
	id, user_id, status, plan, billing_cycle, end_date, email,
	dodo_customer_id, dodo_subscription_id, trial_ends_at, trial_grace_ends_at,
	trial_activated, created_at, updated_at`

// PostgresSubscriptionRepository implements SubscriptionRepository with PostgreSQL.
type PostgresSubscriptionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSubscriptionRepository creates a new repository.
func NewPostgresSubscriptionRepository(pool *pgxpool.Pool) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{pool: pool}
}

// Insert stores a new subscription.
func (r *PostgresSubscriptionRepository) Insert(ctx context.Context, sub *domain.Subscription) error {
	query := `INSERT INTO subscriptions (` + postgresSubscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query,
		sub.ID,
		sub.UserID,
		string(sub.Status),
		sub.Plan,
		sub.BillingCycle,
		sub.EndDate,
		sub.Email,
		sub.DodoCustomerID,
		sub.DodoSubscriptionID,
		sub.TrialEndsAt,
		sub.TrialGraceEndsAt,
		sub.TrialActivated,
		sub.CreatedAt,
		sub.UpdatedAt,
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
func (r *PostgresSubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	query := `
		UPDATE subscriptions SET
			status = $2, plan = $3, billing_cycle = $4, end_date = $5, email = $6,
			dodo_customer_id = $7, dodo_subscription_id = $8, trial_ends_at = $9,
			trial_grace_ends_at = $10, trial_activated = $11, updated_at = $12
		WHERE user_id = $1
	`
	tag, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query,
		sub.UserID,
		string(sub.Status),
		sub.Plan,
		sub.BillingCycle,
		sub.EndDate,
		sub.Email,
		sub.DodoCustomerID,
		sub.DodoSubscriptionID,
		sub.TrialEndsAt,
		sub.TrialGraceEndsAt,
		sub.TrialActivated,
		sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

// FindByUserID returns the subscription for a user. Inside a transaction the
// row is locked until commit so concurrent transitions serialize.
func (r *PostgresSubscriptionRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	where := `user_id = $1`
	if sharedPersistence.InTransaction(ctx) {
		where += ` FOR UPDATE`
	}
	return r.findOne(ctx, where, userID)
}

// FindByCustomerID returns the subscription linked to a payment provider customer.
func (r *PostgresSubscriptionRepository) FindByCustomerID(ctx context.Context, customerID string) (*domain.Subscription, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, nil
	}
	return r.findOne(ctx, `dodo_customer_id = $1 LIMIT 1`, customerID)
}

// FindByEmail matches the stored email case-insensitively.
func (r *PostgresSubscriptionRepository) FindByEmail(ctx context.Context, email string) (*domain.Subscription, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}
	return r.findOne(ctx, `lower(email) = lower($1) LIMIT 1`, email)
}

// ListDue returns up to limit subscriptions in status whose sweep deadline
// lies before now, ordered by id and starting after the given id.
func (r *PostgresSubscriptionRepository) ListDue(ctx context.Context, status domain.SubscriptionStatus, now time.Time, after uuid.UUID, limit int) ([]*domain.Subscription, error) {
	deadline := sweepDeadlineColumn(status)
	query := `SELECT ` + postgresSubscriptionColumns + `
		FROM subscriptions
		WHERE status = $1
			AND ` + deadline + ` IS NOT NULL
			AND ` + deadline + ` < $2
			AND id > $3
		ORDER BY id
		LIMIT $4`

	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, query,
		string(status), now.UTC(), after, convert.PositiveInt32(limit, 100))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		sub, err := scanPostgresSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (r *PostgresSubscriptionRepository) findOne(ctx context.Context, where string, arg any) (*domain.Subscription, error) {
	query := `SELECT ` + postgresSubscriptionColumns + ` FROM subscriptions WHERE ` + where

	sub, err := scanPostgresSubscription(sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, query, arg))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

func scanPostgresSubscription(row pgx.Row) (*domain.Subscription, error) {
	var (
		sub    domain.Subscription
		status string
	)
	if err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&status,
		&sub.Plan,
		&sub.BillingCycle,
		&sub.EndDate,
		&sub.Email,
		&sub.DodoCustomerID,
		&sub.DodoSubscriptionID,
		&sub.TrialEndsAt,
		&sub.TrialGraceEndsAt,
		&sub.TrialActivated,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	); err != nil {
		return nil, err
	}
	sub.Status = domain.SubscriptionStatus(status)
	return &sub, nil
}

var _ domain.SubscriptionRepository = (*PostgresSubscriptionRepository)(nil)
