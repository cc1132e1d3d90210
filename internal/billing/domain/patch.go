package domain

import "time"

// Patch holds the optional fields a transition may overwrite. Empty strings
// and nil pointers leave the stored value alone.
type Patch struct {
	Plan               string
	BillingCycle       string
	Email              string
	DodoCustomerID     string
	DodoSubscriptionID string
	TrialEndsAt        *time.Time
	TrialGraceEndsAt   *time.Time
	TrialActivated     *bool
}

// Transition moves the record to status with the already resolved end date
// and applies the patch. Plan falls back to the stored plan, then DefaultPlan.
func (s *Subscription) Transition(status SubscriptionStatus, endDate *time.Time, patch Patch, now time.Time) {
	s.Status = status
	s.EndDate = endDate
	s.Plan = ResolvePlan(patch.Plan, s.Plan)
	s.BillingCycle = FirstNonEmpty(patch.BillingCycle, s.BillingCycle)
	s.Email = FirstNonEmpty(patch.Email, s.Email)
	s.DodoCustomerID = FirstNonEmpty(patch.DodoCustomerID, s.DodoCustomerID)
	s.DodoSubscriptionID = FirstNonEmpty(patch.DodoSubscriptionID, s.DodoSubscriptionID)
	s.TrialEndsAt = FirstNonNil(patch.TrialEndsAt, s.TrialEndsAt)
	s.TrialGraceEndsAt = FirstNonNil(patch.TrialGraceEndsAt, s.TrialGraceEndsAt)
	if patch.TrialActivated != nil {
		s.TrialActivated = *patch.TrialActivated
	}
	s.UpdatedAt = now
}
