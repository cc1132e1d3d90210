package domain

import "time"

// ResolveEndDate decides the end date stored after moving to target.
//
// Active never shortens paid access: a supplied date is compared with the
// previous end date (or now when there is none) and the later one wins.
// Cancelled and expired keep the previous date unless a new one is given.
// On hold and payment failed freeze the date. Every other target takes the
// supplied value as is, including an absent one.
func ResolveEndDate(target SubscriptionStatus, supplied, previous *time.Time, now time.Time) *time.Time {
	switch target {
	case SubscriptionActive:
		if supplied == nil {
			return copyTime(previous)
		}
		floor := FirstNonNil(previous, &now)
		if supplied.After(*floor) {
			return copyTime(supplied)
		}
		return copyTime(floor)
	case SubscriptionCancelled, SubscriptionExpired:
		return copyTime(FirstNonNil(supplied, previous))
	case SubscriptionOnHold, SubscriptionPaymentFailed:
		return copyTime(previous)
	default:
		return copyTime(supplied)
	}
}

// SameInstant reports whether two optional timestamps denote the same moment.
func SameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
