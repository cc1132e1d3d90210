// Package legacy reads subscription state from the platform's previous
// profile store so it can be imported.
package legacy

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/felixgeelhaar/tutorhub/internal/billing/application/commands"
	"github.com/google/uuid"
	_ "github.com/lib/pq" // registers the "postgres" database/sql driver
)

const selectProfiles = `
	SELECT id, subscription_status, subscription_plan, billing_cycle, subscription_end_date,
		email, dodo_customer_id, dodo_subscription_id, trial_ends_at, trial_grace_ends_at,
		trial_activated
	FROM profiles
	WHERE subscription_status IS NOT NULL AND subscription_status NOT IN ('', 'none')
	ORDER BY id
`

// ProfileSource loads subscription columns from a legacy profiles table.
type ProfileSource struct {
	db     *sql.DB
	name   string
	logger *slog.Logger
}

var _ commands.ImportSource = (*ProfileSource)(nil)

// OpenPostgresProfileSource connects to the legacy Postgres database.
func OpenPostgresProfileSource(ctx context.Context, url string, logger *slog.Logger) (*ProfileSource, error) {
	if url == "" {
		return nil, fmt.Errorf("legacy database URL is required")
	}
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open legacy database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping legacy database: %w", err)
	}
	return NewProfileSource(db, "legacy-postgres", logger), nil
}

// NewProfileSource wraps an open database.
func NewProfileSource(db *sql.DB, name string, logger *slog.Logger) *ProfileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileSource{db: db, name: name, logger: logger}
}

// Name implements commands.ImportSource.
func (s *ProfileSource) Name() string {
	return s.name
}

// Close closes the underlying database.
func (s *ProfileSource) Close() error {
	return s.db.Close()
}

// Load implements commands.ImportSource. Rows that cannot be read are
// returned with what could be parsed; the importer rejects them.
func (s *ProfileSource) Load(ctx context.Context) ([]commands.ImportRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectProfiles)
	if err != nil {
		return nil, fmt.Errorf("failed to query legacy profiles: %w", err)
	}
	defer rows.Close()

	var records []commands.ImportRecord
	for rows.Next() {
		var (
			id, status                         string
			plan, billingCycle, email          sql.NullString
			customerID, subscriptionID         sql.NullString
			endDate, trialEndsAt, trialGraceAt legacyTime
			trialActivated                     sql.NullBool
		)
		if err := rows.Scan(
			&id,
			&status,
			&plan,
			&billingCycle,
			&endDate,
			&email,
			&customerID,
			&subscriptionID,
			&trialEndsAt,
			&trialGraceAt,
			&trialActivated,
		); err != nil {
			return nil, fmt.Errorf("failed to scan legacy profile: %w", err)
		}

		userID, err := uuid.Parse(strings.TrimSpace(id))
		if err != nil {
			s.logger.Warn("legacy profile has invalid id", "id", id, "error", err)
		}

		records = append(records, commands.ImportRecord{
			UserID:             userID,
			Status:             NormalizeStatus(status),
			Plan:               strings.TrimSpace(plan.String),
			BillingCycle:       strings.TrimSpace(billingCycle.String),
			EndDate:            endDate.ptr(),
			Email:              strings.TrimSpace(email.String),
			DodoCustomerID:     strings.TrimSpace(customerID.String),
			DodoSubscriptionID: strings.TrimSpace(subscriptionID.String),
			TrialEndsAt:        trialEndsAt.ptr(),
			TrialGraceEndsAt:   trialGraceAt.ptr(),
			TrialActivated:     trialActivated.Bool,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read legacy profiles: %w", err)
	}

	return records, nil
}

// NormalizeStatus maps legacy spellings onto the current status names.
func NormalizeStatus(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "canceled":
		return "cancelled"
	case "on-hold", "onhold", "paused":
		return "on_hold"
	case "past_due", "failed":
		return "payment_failed"
	case "trial":
		return "trialing"
	default:
		return status
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// legacyTime scans timestamp columns returned either as time values or as text.
type legacyTime struct {
	t     time.Time
	valid bool
}

func (l *legacyTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		l.valid = false
		return nil
	case time.Time:
		l.t, l.valid = v.UTC(), true
		return nil
	case string:
		return l.parse(v)
	case []byte:
		return l.parse(string(v))
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (l *legacyTime) parse(s string) error {
	if strings.TrimSpace(s) == "" {
		l.valid = false
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			l.t, l.valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func (l legacyTime) ptr() *time.Time {
	if !l.valid {
		return nil
	}
	t := l.t
	return &t
}
