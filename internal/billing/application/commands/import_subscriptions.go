package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/tutorhub/internal/billing/domain"
	sharedApplication "github.com/felixgeelhaar/tutorhub/internal/shared/application"
	"github.com/felixgeelhaar/tutorhub/internal/shared/validation"
	"github.com/felixgeelhaar/tutorhub/pkg/observability"
	"github.com/google/uuid"
)

// ActionImported is the audit action written for every imported record.
const ActionImported = "imported"

// ImportRecord is one subscription read from an external source.
type ImportRecord struct {
	UserID             uuid.UUID  `json:"user_id" validate:"required_uuid"`
	Status             string     `json:"status" validate:"required,oneof=pending trialing active on_hold payment_failed cancelled expired"`
	Plan               string     `json:"plan,omitempty" validate:"max=64"`
	BillingCycle       string     `json:"billing_cycle,omitempty" validate:"max=32"`
	EndDate            *time.Time `json:"end_date,omitempty"`
	Email              string     `json:"email,omitempty" validate:"omitempty,email"`
	DodoCustomerID     string     `json:"dodo_customer_id,omitempty"`
	DodoSubscriptionID string     `json:"dodo_subscription_id,omitempty"`
	TrialEndsAt        *time.Time `json:"trial_ends_at,omitempty"`
	TrialGraceEndsAt   *time.Time `json:"trial_grace_ends_at,omitempty"`
	TrialActivated     bool       `json:"trial_activated,omitempty"`
}

// ImportSource yields the records to import.
type ImportSource interface {
	Name() string
	Load(ctx context.Context) ([]ImportRecord, error)
}

// ImportSummary counts what an import run did.
type ImportSummary struct {
	Total   int `json:"total"`
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Importer seeds subscriptions from an external source. Records are written
// as they are, without going through the state machine; users that already
// have a subscription are left alone.
type Importer struct {
	subscriptions domain.SubscriptionRepository
	audit         domain.AuditRepository
	uow           sharedApplication.UnitOfWork
	logger        *slog.Logger
	metrics       observability.Metrics
	now           func() time.Time
}

// NewImporter creates a new Importer.
func NewImporter(subscriptions domain.SubscriptionRepository, audit domain.AuditRepository, uow sharedApplication.UnitOfWork, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		subscriptions: subscriptions,
		audit:         audit,
		uow:           uow,
		logger:        logger,
		metrics:       observability.NoopMetrics{},
		now:           time.Now,
	}
}

// SetMetrics sets the metrics sink.
func (i *Importer) SetMetrics(metrics observability.Metrics) {
	if metrics != nil {
		i.metrics = metrics
	}
}

// Import runs one pass over source. Only a failure to load the source is
// returned; per-record failures are counted and logged.
func (i *Importer) Import(ctx context.Context, source ImportSource) (*ImportSummary, error) {
	records, err := source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", source.Name(), err)
	}

	summary := &ImportSummary{Total: len(records)}
	for idx, rec := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		created, err := i.importOne(ctx, rec)
		switch {
		case errors.Is(err, domain.ErrSubscriptionExists):
			// created concurrently since the existence check
			summary.Skipped++
		case err != nil:
			summary.Failed++
			i.logger.Warn("import record failed",
				"source", source.Name(),
				"index", idx,
				"user_id", rec.UserID,
				"error", err,
			)
		case created:
			summary.Created++
		default:
			summary.Skipped++
		}
	}

	i.metrics.Counter(observability.MetricImported, int64(summary.Created), observability.T("source", source.Name()))
	i.logger.Info("import finished",
		"source", source.Name(),
		"total", summary.Total,
		"created", summary.Created,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return summary, nil
}

func (i *Importer) importOne(ctx context.Context, rec ImportRecord) (bool, error) {
	status, err := domain.ParseStatus(rec.Status)
	if err != nil {
		return false, err
	}
	rec.Status = status.String()
	if err := validation.Struct(rec); err != nil {
		return false, err
	}

	return sharedApplication.WithUnitOfWorkResult(ctx, i.uow, func(txCtx context.Context) (bool, error) {
		existing, err := i.subscriptions.FindByUserID(txCtx, rec.UserID)
		if err != nil {
			return false, err
		}
		if existing != nil {
			return false, nil
		}

		now := i.now()
		sub := domain.NewSubscription(rec.UserID, status, now)
		activated := rec.TrialActivated
		sub.Transition(status, rec.EndDate, domain.Patch{
			Plan:               rec.Plan,
			BillingCycle:       rec.BillingCycle,
			Email:              rec.Email,
			DodoCustomerID:     rec.DodoCustomerID,
			DodoSubscriptionID: rec.DodoSubscriptionID,
			TrialEndsAt:        rec.TrialEndsAt,
			TrialGraceEndsAt:   rec.TrialGraceEndsAt,
			TrialActivated:     &activated,
		}, now)
		if err := i.subscriptions.Insert(txCtx, sub); err != nil {
			return false, err
		}

		entry := domain.NewAuditEntry(sub.UserID, ActionImported, now)
		entry.OldStatus = domain.SubscriptionNone
		entry.NewStatus = status
		entry.NewEndDate = sub.EndDate
		entry.Plan = sub.Plan
		entry.BillingCycle = sub.BillingCycle
		entry.Source = SourceImport
		entry.DodoCustomerID = sub.DodoCustomerID
		entry.DodoSubscriptionID = sub.DodoSubscriptionID
		if err := i.audit.Append(txCtx, entry); err != nil {
			return false, err
		}
		return true, nil
	})
}
