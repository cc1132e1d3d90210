package mcp

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/tutorhub/internal/billing/application/commands"
	"github.com/felixgeelhaar/tutorhub/internal/billing/domain"
	"github.com/felixgeelhaar/tutorhub/pkg/observability"
	"github.com/google/uuid"
)

var errNoDatabase = errors.New("billing tools require database connection")

type billingStatusInput struct {
	UserID string `json:"user_id,omitempty"`
}

type billingStatusOutput struct {
	UserID       uuid.UUID                  `json:"user_id"`
	Found        bool                       `json:"found"`
	HasAccess    bool                       `json:"has_access"`
	Subscription *domain.PublicSubscription `json:"subscription,omitempty"`
}

type billingTransitionInput struct {
	UserID             string `json:"user_id,omitempty"`
	Status             string `json:"status" jsonschema:"required"`
	EndDate            string `json:"end_date,omitempty"` // RFC3339 or YYYY-MM-DD
	Plan               string `json:"plan,omitempty"`
	BillingCycle       string `json:"billing_cycle,omitempty"`
	DodoCustomerID     string `json:"dodo_customer_id,omitempty"`
	DodoSubscriptionID string `json:"dodo_subscription_id,omitempty"`
	Email              string `json:"email,omitempty"`
	Reason             string `json:"reason,omitempty"`
}

type billingAuditInput struct {
	UserID string `json:"user_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type auditEntryDTO struct {
	ID                 uuid.UUID      `json:"id"`
	Action             string         `json:"action"`
	OldStatus          *string        `json:"old_status"`
	NewStatus          string         `json:"new_status,omitempty"`
	OldEndDate         *time.Time     `json:"old_end_date,omitempty"`
	NewEndDate         *time.Time     `json:"new_end_date,omitempty"`
	Plan               string         `json:"plan,omitempty"`
	BillingCycle       string         `json:"billing_cycle,omitempty"`
	Source             string         `json:"source"`
	DodoCustomerID     string         `json:"dodo_customer_id,omitempty"`
	DodoSubscriptionID string         `json:"dodo_subscription_id,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

func toAuditEntryDTO(e *domain.AuditEntry) auditEntryDTO {
	return auditEntryDTO{
		ID:                 e.ID,
		Action:             e.Action,
		OldStatus:          priorStatusName(e.OldStatus),
		NewStatus:          e.NewStatus.String(),
		OldEndDate:         e.OldEndDate,
		NewEndDate:         e.NewEndDate,
		Plan:               e.Plan,
		BillingCycle:       e.BillingCycle,
		Source:             e.Source,
		DodoCustomerID:     e.DodoCustomerID,
		DodoSubscriptionID: e.DodoSubscriptionID,
		Metadata:           e.Metadata,
		CreatedAt:          e.CreatedAt,
	}
}

// priorStatusName renders an absent prior record as null.
func priorStatusName(s domain.SubscriptionStatus) *string {
	prior := domain.PriorStatus(s)
	if prior == nil {
		return nil
	}
	name := prior.String()
	return &name
}

func registerBillingTools(srv *mcp.Server, deps ToolDependencies) error {
	srv.Tool("billing.status").
		Description("Get a user's subscription status and access").
		Handler(billingStatus(deps))

	srv.Tool("billing.transition").
		Description("Apply an admin subscription transition").
		Handler(billingTransition(deps))

	srv.Tool("billing.audit").
		Description("List a user's subscription audit entries, newest first").
		Handler(billingAudit(deps))

	return nil
}

func billingStatus(deps ToolDependencies) func(context.Context, billingStatusInput) (*billingStatusOutput, error) {
	app := deps.App
	return func(ctx context.Context, input billingStatusInput) (*billingStatusOutput, error) {
		if app == nil || app.BillingService == nil {
			return nil, errNoDatabase
		}
		userID, err := resolveUserID(input.UserID, app.CurrentUserID)
		if err != nil {
			return nil, err
		}

		view, err := app.BillingService.GetPublicSubscription(ctx, userID)
		if err != nil {
			return nil, err
		}
		out := &billingStatusOutput{UserID: userID, Subscription: view}
		if view == nil {
			return out, nil
		}
		out.Found = true
		if out.HasAccess, err = app.BillingService.HasAccess(ctx, userID, time.Now().UTC()); err != nil {
			return nil, err
		}
		return out, nil
	}
}

func billingTransition(deps ToolDependencies) func(context.Context, billingTransitionInput) (*commands.TransitionResult, error) {
	app := deps.App
	return func(ctx context.Context, input billingTransitionInput) (*commands.TransitionResult, error) {
		if app == nil || app.TransitionHandler == nil {
			return nil, errNoDatabase
		}
		userID, err := resolveUserID(input.UserID, app.CurrentUserID)
		if err != nil {
			return nil, err
		}
		endDate, err := parseOptionalDate(input.EndDate)
		if err != nil {
			return nil, err
		}

		cmd := commands.TransitionSubscriptionCommand{
			UserID:             userID,
			NewStatus:          strings.ToLower(strings.TrimSpace(input.Status)),
			EndDate:            endDate,
			Plan:               input.Plan,
			BillingCycle:       input.BillingCycle,
			DodoCustomerID:     input.DodoCustomerID,
			DodoSubscriptionID: input.DodoSubscriptionID,
			Email:              input.Email,
			Source:             commands.SourceAdminMCP,
		}
		if input.Reason != "" {
			cmd.Metadata = map[string]any{"reason": input.Reason}
		}

		ctx = observability.NewRequestContext(ctx, uuid.NewString())
		result, err := observability.TimeOperationResult(ctx, deps.logger(), deps.metrics(), "mcp.billing.transition",
			func() (*commands.TransitionResult, error) {
				return app.TransitionHandler.Handle(ctx, cmd)
			})
		if err != nil {
			return nil, err
		}
		if result.Success {
			if err := app.Finish(ctx); err != nil {
				deps.logger().WarnContext(ctx, "post-transition hook failed", "error", err)
			}
		}
		return result, nil
	}
}

func billingAudit(deps ToolDependencies) func(context.Context, billingAuditInput) ([]auditEntryDTO, error) {
	app := deps.App
	return func(ctx context.Context, input billingAuditInput) ([]auditEntryDTO, error) {
		if app == nil || app.BillingService == nil {
			return nil, errNoDatabase
		}
		userID, err := resolveUserID(input.UserID, app.CurrentUserID)
		if err != nil {
			return nil, err
		}
		entries, err := app.BillingService.ListAuditLog(ctx, userID, input.Limit)
		if err != nil {
			return nil, err
		}
		out := make([]auditEntryDTO, 0, len(entries))
		for _, entry := range entries {
			out = append(out, toAuditEntryDTO(entry))
		}
		return out, nil
	}
}
