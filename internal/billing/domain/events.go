package domain

import (
	"time"

	"github.com/felixgeelhaar/tutorhub/internal/shared/domain"
	"github.com/google/uuid"
)

const (
	AggregateType = "Subscription"

	RoutingKeyTransitioned = "billing.subscription.transitioned"
)

// SubscriptionTransitioned is emitted after a transition has been applied.
// It carries the resulting record state the profile mirror needs.
type SubscriptionTransitioned struct {
	domain.BaseEvent
	SubscriptionID     uuid.UUID          `json:"subscription_id"`
	UserID             uuid.UUID          `json:"user_id"`
	OldStatus          *SubscriptionStatus `json:"old_status"`
	NewStatus          SubscriptionStatus  `json:"new_status"`
	EndDate            *time.Time          `json:"end_date,omitempty"`
	Plan               string              `json:"plan"`
	BillingCycle       string              `json:"billing_cycle,omitempty"`
	DodoCustomerID     string              `json:"dodo_customer_id,omitempty"`
	DodoSubscriptionID string              `json:"dodo_subscription_id,omitempty"`
	Source             string              `json:"source"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// NewSubscriptionTransitioned creates the event for a record that just moved
// out of oldStatus. A record created from nothing carries a null old status.
func NewSubscriptionTransitioned(sub *Subscription, oldStatus SubscriptionStatus, source string) *SubscriptionTransitioned {
	return &SubscriptionTransitioned{
		BaseEvent:          domain.NewBaseEvent(sub.ID, AggregateType, RoutingKeyTransitioned, sub.UpdatedAt),
		SubscriptionID:     sub.ID,
		UserID:             sub.UserID,
		OldStatus:          PriorStatus(oldStatus),
		NewStatus:          sub.Status,
		EndDate:            sub.EndDate,
		Plan:               sub.Plan,
		BillingCycle:       sub.BillingCycle,
		DodoCustomerID:     sub.DodoCustomerID,
		DodoSubscriptionID: sub.DodoSubscriptionID,
		Source:             source,
		UpdatedAt:          sub.UpdatedAt,
	}
}
