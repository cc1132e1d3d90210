package application

import (
	"context"
	"time"

	"github.com/felixgeelhaar/tutorhub/internal/billing/domain"
	"github.com/google/uuid"
)

// ProfilePatch is the subscription slice of a mirrored user profile.
// A nil SubscriptionEndDate clears the field.
type ProfilePatch struct {
	SubscriptionStatus  string  `json:"subscription_status"`
	SubscriptionEndDate *string `json:"subscription_end_date"`
	SubscriptionPlan    string  `json:"subscription_plan"`
	BillingCycle        string  `json:"billing_cycle,omitempty"`
	DodoCustomerID      string  `json:"dodo_customer_id,omitempty"`
	DodoSubscriptionID  string  `json:"dodo_subscription_id,omitempty"`
	UpdatedAt           string  `json:"updated_at"`
}

// ProfileMirror writes subscription state to the mirrored profile store.
type ProfileMirror interface {
	UpdateProfile(ctx context.Context, userID uuid.UUID, patch ProfilePatch) error
}

// NewProfilePatch builds the mirror patch for a transitioned subscription.
func NewProfilePatch(event *domain.SubscriptionTransitioned) ProfilePatch {
	patch := ProfilePatch{
		SubscriptionStatus: event.NewStatus.String(),
		SubscriptionPlan:   event.Plan,
		BillingCycle:       event.BillingCycle,
		DodoCustomerID:     event.DodoCustomerID,
		DodoSubscriptionID: event.DodoSubscriptionID,
		UpdatedAt:          event.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if event.EndDate != nil {
		end := event.EndDate.UTC().Format(time.RFC3339)
		patch.SubscriptionEndDate = &end
	}
	return patch
}
