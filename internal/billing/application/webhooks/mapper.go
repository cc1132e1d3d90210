package webhooks

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/tutorhub/internal/billing/application/commands"
	"github.com/felixgeelhaar/tutorhub/internal/billing/domain"
	"github.com/google/uuid"
)

// SubscriptionFinder resolves users that the event does not name directly.
type SubscriptionFinder interface {
	FindByCustomerID(ctx context.Context, customerID string) (*domain.Subscription, error)
	FindByEmail(ctx context.Context, email string) (*domain.Subscription, error)
}

// Mapper converts provider events into transition commands.
type Mapper struct {
	finder SubscriptionFinder
}

// NewMapper creates a new Mapper.
func NewMapper(finder SubscriptionFinder) *Mapper {
	return &Mapper{finder: finder}
}

// targetStatus maps an event type to the status it asks for.
func targetStatus(eventType string) (domain.SubscriptionStatus, bool) {
	switch eventType {
	case EventSubscriptionActive, EventSubscriptionRenewed, EventSubscriptionPlanChanged:
		return domain.SubscriptionActive, true
	case EventSubscriptionOnHold:
		return domain.SubscriptionOnHold, true
	case EventSubscriptionFailed, EventPaymentFailed:
		return domain.SubscriptionPaymentFailed, true
	case EventSubscriptionCancelled:
		return domain.SubscriptionCancelled, true
	case EventSubscriptionExpired:
		return domain.SubscriptionExpired, true
	default:
		return domain.SubscriptionNone, false
	}
}

// Map builds the transition command for event.
func (m *Mapper) Map(ctx context.Context, event *Event) (*commands.TransitionSubscriptionCommand, error) {
	status, ok := targetStatus(event.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, event.Type)
	}

	userID, err := m.resolveUser(ctx, event.Data)
	if err != nil {
		return nil, err
	}

	data := event.Data
	cmd := &commands.TransitionSubscriptionCommand{
		UserID:             userID,
		NewStatus:          status.String(),
		DodoCustomerID:     strings.TrimSpace(data.Customer.CustomerID),
		DodoSubscriptionID: strings.TrimSpace(data.SubscriptionID),
		Email:              strings.TrimSpace(data.Customer.Email),
		Source:             commands.SourceWebhook,
		Metadata: map[string]any{
			"event_id":   event.ID,
			"event_type": event.Type,
		},
	}
	if data.PaymentID != "" {
		cmd.Metadata["payment_id"] = data.PaymentID
	}

	switch status {
	case domain.SubscriptionActive:
		cmd.EndDate = data.NextBillingDate
		cmd.Plan = data.Plan()
		cmd.BillingCycle = data.BillingCycle()
	case domain.SubscriptionCancelled:
		// access runs to the end of the paid period
		cmd.EndDate = domain.FirstNonNil(data.NextBillingDate, data.ExpiresAt)
	case domain.SubscriptionExpired:
		cmd.EndDate = data.ExpiresAt
	}

	return cmd, nil
}

// resolveUser tries metadata.user_id, then the customer id, then the email.
func (m *Mapper) resolveUser(ctx context.Context, data EventData) (uuid.UUID, error) {
	if raw := strings.TrimSpace(data.Metadata["user_id"]); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			return id, nil
		}
	}

	if m.finder != nil {
		if sub, err := m.finder.FindByCustomerID(ctx, strings.TrimSpace(data.Customer.CustomerID)); err != nil {
			return uuid.Nil, fmt.Errorf("failed to resolve user by customer: %w", err)
		} else if sub != nil {
			return sub.UserID, nil
		}

		if sub, err := m.finder.FindByEmail(ctx, strings.TrimSpace(data.Customer.Email)); err != nil {
			return uuid.Nil, fmt.Errorf("failed to resolve user by email: %w", err)
		} else if sub != nil {
			return sub.UserID, nil
		}
	}

	return uuid.Nil, ErrUserNotResolved
}
