package persistence

import "github.com/felixgeelhaar/tutorhub/internal/billing/domain"

// sweepDeadlineColumn mirrors Subscription.SweepDeadline in SQL.
func sweepDeadlineColumn(status domain.SubscriptionStatus) string {
	if status == domain.SubscriptionTrialing {
		return `COALESCE(trial_grace_ends_at, trial_ends_at, end_date)`
	}
	return `end_date`
}
