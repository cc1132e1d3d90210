package domain

import (
	"time"

	"github.com/google/uuid"
)

// Subscription is the authoritative billing record of a user. There is at
// most one per user.
type Subscription struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	Status             SubscriptionStatus
	Plan               string
	BillingCycle       string
	EndDate            *time.Time
	Email              string
	DodoCustomerID     string
	DodoSubscriptionID string
	TrialEndsAt        *time.Time
	TrialGraceEndsAt   *time.Time
	TrialActivated     bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewSubscription creates a record for a user that has none yet.
func NewSubscription(userID uuid.UUID, status SubscriptionStatus, now time.Time) *Subscription {
	return &Subscription{
		ID:        uuid.New(),
		UserID:    userID,
		Status:    status,
		Plan:      DefaultPlan,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// StatusOf returns the status of s, or SubscriptionNone for a missing record.
func StatusOf(s *Subscription) SubscriptionStatus {
	if s == nil {
		return SubscriptionNone
	}
	return s.Status
}

// EndDateOf returns the end date of s, or nil for a missing record.
func EndDateOf(s *Subscription) *time.Time {
	if s == nil {
		return nil
	}
	return s.EndDate
}

// TrialBoundary is the moment a trial stops granting access: the grace end,
// else the trial end, else the subscription end date.
func (s *Subscription) TrialBoundary() *time.Time {
	return FirstNonNil(s.TrialGraceEndsAt, s.TrialEndsAt, s.EndDate)
}

// SweepDeadline is the instant after which a maintenance sweep expires the
// subscription: the trial boundary for trials, the end date otherwise.
func (s *Subscription) SweepDeadline() *time.Time {
	if s.Status == SubscriptionTrialing {
		return s.TrialBoundary()
	}
	return s.EndDate
}

// HasAccess reports whether the subscription grants paid access at now.
// Cancelled subscriptions keep access until their end date.
func (s *Subscription) HasAccess(now time.Time) bool {
	if s == nil {
		return false
	}
	switch s.Status {
	case SubscriptionActive, SubscriptionCancelled:
		return s.EndDate == nil || now.Before(*s.EndDate)
	case SubscriptionTrialing:
		boundary := s.TrialBoundary()
		return boundary == nil || now.Before(*boundary)
	default:
		return false
	}
}

// PublicSubscription is the subset of a subscription that may be shown to
// its owner.
type PublicSubscription struct {
	Status           SubscriptionStatus `json:"status"`
	Plan             string             `json:"plan"`
	BillingCycle     string             `json:"billing_cycle,omitempty"`
	EndDate          *time.Time         `json:"end_date,omitempty"`
	DodoCustomerID   string             `json:"dodo_customer_id,omitempty"`
	TrialEndsAt      *time.Time         `json:"trial_ends_at,omitempty"`
	TrialGraceEndsAt *time.Time         `json:"trial_grace_ends_at,omitempty"`
	TrialActivated   bool               `json:"trial_activated"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// Public returns the owner-facing view of the subscription.
func (s *Subscription) Public() PublicSubscription {
	return PublicSubscription{
		Status:           s.Status,
		Plan:             s.Plan,
		BillingCycle:     s.BillingCycle,
		EndDate:          s.EndDate,
		DodoCustomerID:   s.DodoCustomerID,
		TrialEndsAt:      s.TrialEndsAt,
		TrialGraceEndsAt: s.TrialGraceEndsAt,
		TrialActivated:   s.TrialActivated,
		UpdatedAt:        s.UpdatedAt,
	}
}
