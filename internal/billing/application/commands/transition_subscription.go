package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/tutorhub/internal/billing/domain"
	sharedApplication "github.com/felixgeelhaar/tutorhub/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/tutorhub/internal/shared/domain"
	"github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/tutorhub/internal/shared/validation"
	"github.com/felixgeelhaar/tutorhub/pkg/observability"
	"github.com/google/uuid"
)

// ErrInvalidCommand wraps every argument problem found before the record is read.
var ErrInvalidCommand = errors.New("invalid transition command")

// Transition sources.
const (
	SourceWebhook  = "webhook"
	SourceCron     = "cron"
	SourceAdminCLI = "admin_cli"
	SourceAdminMCP = "admin_mcp"
	SourceImport   = "import"
)

// Skip reasons reported in TransitionResult.Reason.
const ReasonIdempotent = "idempotent"

// TransitionSubscriptionCommand requests a status change for one user.
// A nil EndDate means the caller did not supply one.
type TransitionSubscriptionCommand struct {
	UserID             uuid.UUID      `json:"userId" validate:"required_uuid"`
	NewStatus          string         `json:"newStatus" validate:"required,oneof=pending trialing active on_hold payment_failed cancelled expired"`
	EndDate            *time.Time     `json:"endDate,omitempty"`
	Plan               string         `json:"plan,omitempty" validate:"max=64"`
	BillingCycle       string         `json:"billingCycle,omitempty" validate:"max=32"`
	DodoCustomerID     string         `json:"dodoCustomerId,omitempty" validate:"max=128"`
	DodoSubscriptionID string         `json:"dodoSubscriptionId,omitempty" validate:"max=128"`
	Source             string         `json:"source,omitempty" validate:"max=32"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	Email              string         `json:"email,omitempty" validate:"omitempty,email,max=320"`
	TrialEndsAt        *time.Time     `json:"trialEndsAt,omitempty"`
	TrialGraceEndsAt   *time.Time     `json:"trialGraceEndsAt,omitempty"`
	TrialActivated     *bool          `json:"trialActivated,omitempty"`
}

// TransitionResult describes what a transition did. Rejections are reported
// here with Success false, not as errors. OldStatus is nil when no record
// existed before the transition.
type TransitionResult struct {
	Success        bool                       `json:"success"`
	Skipped        bool                       `json:"skipped,omitempty"`
	Reason         string                     `json:"reason,omitempty"`
	Error          string                     `json:"error,omitempty"`
	OldStatus      *domain.SubscriptionStatus `json:"oldStatus"`
	NewStatus      domain.SubscriptionStatus  `json:"newStatus,omitempty"`
	OldEndDate     *time.Time                 `json:"oldEndDate,omitempty"`
	NewEndDate     *time.Time                 `json:"newEndDate,omitempty"`
	SubscriptionID uuid.UUID                  `json:"subscriptionId,omitempty"`
}

// Outcome labels the result for metrics and logs.
func (r *TransitionResult) Outcome() string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Success:
		return "applied"
	default:
		return "rejected"
	}
}

// TransitionSubscriptionHandler applies status changes through the state
// machine. Read, write, audit and outbox enqueue share one unit of work.
type TransitionSubscriptionHandler struct {
	subscriptions domain.SubscriptionRepository
	audit         domain.AuditRepository
	outboxRepo    outbox.Repository
	uow           sharedApplication.UnitOfWork
	logger        *slog.Logger
	metrics       observability.Metrics
	now           func() time.Time
}

// NewTransitionSubscriptionHandler creates a new TransitionSubscriptionHandler.
func NewTransitionSubscriptionHandler(
	subscriptions domain.SubscriptionRepository,
	audit domain.AuditRepository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	logger *slog.Logger,
) *TransitionSubscriptionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransitionSubscriptionHandler{
		subscriptions: subscriptions,
		audit:         audit,
		outboxRepo:    outboxRepo,
		uow:           uow,
		logger:        logger,
		metrics:       observability.NoopMetrics{},
		now:           time.Now,
	}
}

// SetMetrics sets the metrics sink.
func (h *TransitionSubscriptionHandler) SetMetrics(metrics observability.Metrics) {
	if metrics != nil {
		h.metrics = metrics
	}
}

// SetClock replaces the time source.
func (h *TransitionSubscriptionHandler) SetClock(now func() time.Time) {
	if now != nil {
		h.now = now
	}
}

// Handle executes the TransitionSubscriptionCommand. It returns an error
// only for invalid arguments (wrapping ErrInvalidCommand) and persistence
// failures, in which case nothing was written.
func (h *TransitionSubscriptionHandler) Handle(ctx context.Context, cmd TransitionSubscriptionCommand) (*TransitionResult, error) {
	target, err := h.validate(&cmd)
	if err != nil {
		return nil, err
	}

	start := h.now()
	result, err := sharedApplication.WithUnitOfWorkResult(ctx, h.uow, func(txCtx context.Context) (*TransitionResult, error) {
		return h.apply(txCtx, cmd, target)
	})

	tags := []observability.Tag{
		observability.T("new_status", target.String()),
		observability.T("source", cmd.Source),
	}
	h.metrics.Timing(observability.MetricTransitionDuration, h.now().Sub(start), tags...)

	if err != nil {
		h.metrics.Counter(observability.MetricTransitions, 1, append(tags, observability.T("outcome", "failed"))...)
		h.logger.ErrorContext(ctx, "subscription transition failed",
			"user_id", cmd.UserID,
			"new_status", target,
			"source", cmd.Source,
			"error", err,
		)
		return nil, err
	}

	h.metrics.Counter(observability.MetricTransitions, 1, append(tags, observability.T("outcome", result.Outcome()))...)
	h.logger.InfoContext(ctx, "subscription transition",
		"user_id", cmd.UserID,
		"outcome", result.Outcome(),
		"old_status", domain.StatusOrNone(result.OldStatus),
		"new_status", target,
		"source", cmd.Source,
	)
	return result, nil
}

func (h *TransitionSubscriptionHandler) validate(cmd *TransitionSubscriptionCommand) (domain.SubscriptionStatus, error) {
	if cmd.UserID == uuid.Nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidCommand, domain.ErrMissingUserID)
	}
	target, err := domain.ParseStatus(cmd.NewStatus)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	cmd.NewStatus = target.String()
	if cmd.Source == "" {
		cmd.Source = SourceWebhook
	}
	if err := validation.Struct(cmd); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	return target, nil
}

func (h *TransitionSubscriptionHandler) apply(ctx context.Context, cmd TransitionSubscriptionCommand, target domain.SubscriptionStatus) (*TransitionResult, error) {
	now := h.now()

	current, err := h.subscriptions.FindByUserID(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	oldStatus := domain.StatusOf(current)
	oldEndDate := domain.EndDateOf(current)

	// Replays of the same status are no-ops, except active which may extend.
	if oldStatus == target && target != domain.SubscriptionActive &&
		(cmd.EndDate == nil || domain.SameInstant(cmd.EndDate, oldEndDate)) {
		return &TransitionResult{
			Success:    true,
			Skipped:    true,
			Reason:     ReasonIdempotent,
			OldStatus:  domain.PriorStatus(oldStatus),
			NewStatus:  target,
			OldEndDate: oldEndDate,
			NewEndDate: oldEndDate,
		}, nil
	}

	if !oldStatus.CanTransitionTo(target) {
		return h.reject(ctx, cmd, current, target, now)
	}

	newEndDate := domain.ResolveEndDate(target, cmd.EndDate, oldEndDate, now)
	patch := domain.Patch{
		Plan:               cmd.Plan,
		BillingCycle:       cmd.BillingCycle,
		Email:              cmd.Email,
		DodoCustomerID:     cmd.DodoCustomerID,
		DodoSubscriptionID: cmd.DodoSubscriptionID,
		TrialEndsAt:        cmd.TrialEndsAt,
		TrialGraceEndsAt:   cmd.TrialGraceEndsAt,
		TrialActivated:     cmd.TrialActivated,
	}

	sub := current
	if sub == nil {
		sub = domain.NewSubscription(cmd.UserID, target, now)
		sub.Transition(target, newEndDate, patch, now)
		if err := h.subscriptions.Insert(ctx, sub); err != nil {
			return nil, err
		}
	} else {
		sub.Transition(target, newEndDate, patch, now)
		if err := h.subscriptions.Update(ctx, sub); err != nil {
			return nil, err
		}
	}

	entry := domain.NewAuditEntry(cmd.UserID, target.String(), now)
	entry.OldStatus = oldStatus
	entry.NewStatus = target
	entry.OldEndDate = oldEndDate
	entry.NewEndDate = sub.EndDate
	entry.Plan = sub.Plan
	entry.BillingCycle = sub.BillingCycle
	entry.Source = cmd.Source
	entry.DodoCustomerID = sub.DodoCustomerID
	entry.DodoSubscriptionID = sub.DodoSubscriptionID
	entry.Metadata = copyMetadata(cmd.Metadata)
	if err := h.audit.Append(ctx, entry); err != nil {
		return nil, err
	}

	if err := h.enqueue(ctx, sub, oldStatus, cmd.Source); err != nil {
		return nil, err
	}

	return &TransitionResult{
		Success:        true,
		OldStatus:      domain.PriorStatus(oldStatus),
		NewStatus:      target,
		OldEndDate:     oldEndDate,
		NewEndDate:     sub.EndDate,
		SubscriptionID: sub.ID,
	}, nil
}

// reject records the refused attempt and leaves the subscription untouched.
func (h *TransitionSubscriptionHandler) reject(ctx context.Context, cmd TransitionSubscriptionCommand, current *domain.Subscription, target domain.SubscriptionStatus, now time.Time) (*TransitionResult, error) {
	oldStatus := domain.StatusOf(current)
	oldEndDate := domain.EndDateOf(current)

	entry := domain.NewAuditEntry(cmd.UserID, domain.ActionRejectedTransition, now)
	entry.OldStatus = oldStatus
	entry.NewStatus = target
	entry.OldEndDate = oldEndDate
	entry.NewEndDate = cmd.EndDate
	entry.Plan = cmd.Plan
	entry.BillingCycle = cmd.BillingCycle
	entry.Source = cmd.Source
	entry.DodoCustomerID = cmd.DodoCustomerID
	entry.DodoSubscriptionID = cmd.DodoSubscriptionID
	entry.Metadata = copyMetadata(cmd.Metadata)
	entry.Metadata["reason"] = domain.ReasonInvalidTransition
	if err := h.audit.Append(ctx, entry); err != nil {
		return nil, err
	}

	result := &TransitionResult{
		Success:    false,
		Error:      fmt.Sprintf("Invalid transition: %s → %s", oldStatus, target),
		OldStatus:  domain.PriorStatus(oldStatus),
		NewStatus:  target,
		OldEndDate: oldEndDate,
	}
	if current != nil {
		result.SubscriptionID = current.ID
	}
	return result, nil
}

func (h *TransitionSubscriptionHandler) enqueue(ctx context.Context, sub *domain.Subscription, oldStatus domain.SubscriptionStatus, source string) error {
	events := []sharedDomain.DomainEvent{domain.NewSubscriptionTransitioned(sub, oldStatus, source)}
	sharedApplication.ApplyEventMetadata(events, sharedApplication.EventMetadataFromContext(ctx, sub.UserID))

	for _, event := range events {
		msg, err := outbox.NewMessage(event)
		if err != nil {
			return err
		}
		if err := h.outboxRepo.Save(ctx, msg); err != nil {
			return fmt.Errorf("enqueue %s: %w", event.RoutingKey(), err)
		}
	}
	return nil
}

func copyMetadata(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
