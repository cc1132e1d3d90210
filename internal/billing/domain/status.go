package domain

import (
	"fmt"
	"strings"
)

// SubscriptionStatus represents the billing state of a user's subscription.
type SubscriptionStatus string

const (
	// SubscriptionNone marks the absence of a subscription record.
	SubscriptionNone          SubscriptionStatus = "none"
	SubscriptionPending       SubscriptionStatus = "pending"
	SubscriptionTrialing      SubscriptionStatus = "trialing"
	SubscriptionActive        SubscriptionStatus = "active"
	SubscriptionOnHold        SubscriptionStatus = "on_hold"
	SubscriptionPaymentFailed SubscriptionStatus = "payment_failed"
	SubscriptionCancelled     SubscriptionStatus = "cancelled"
	SubscriptionExpired       SubscriptionStatus = "expired"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []SubscriptionStatus{
	SubscriptionNone,
	SubscriptionPending,
	SubscriptionTrialing,
	SubscriptionActive,
	SubscriptionOnHold,
	SubscriptionPaymentFailed,
	SubscriptionCancelled,
	SubscriptionExpired,
}

// String returns the string representation of the status.
func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a known value.
func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case SubscriptionNone, SubscriptionPending, SubscriptionTrialing, SubscriptionActive,
		SubscriptionOnHold, SubscriptionPaymentFailed, SubscriptionCancelled, SubscriptionExpired:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether a subscription in status s may move to target.
// Active may be re-entered to extend the paid period; no other self-transition is listed.
func (s SubscriptionStatus) CanTransitionTo(target SubscriptionStatus) bool {
	switch s {
	case SubscriptionNone:
		return oneOf(target, SubscriptionActive, SubscriptionTrialing, SubscriptionPending)
	case SubscriptionPending:
		return oneOf(target, SubscriptionActive, SubscriptionCancelled, SubscriptionOnHold)
	case SubscriptionTrialing:
		return oneOf(target, SubscriptionActive, SubscriptionExpired, SubscriptionCancelled)
	case SubscriptionActive:
		return oneOf(target, SubscriptionActive, SubscriptionCancelled, SubscriptionExpired,
			SubscriptionOnHold, SubscriptionPaymentFailed)
	case SubscriptionOnHold:
		return oneOf(target, SubscriptionActive, SubscriptionCancelled, SubscriptionExpired)
	case SubscriptionPaymentFailed:
		return oneOf(target, SubscriptionActive, SubscriptionCancelled, SubscriptionExpired)
	case SubscriptionCancelled:
		return oneOf(target, SubscriptionActive, SubscriptionTrialing, SubscriptionExpired, SubscriptionPending)
	case SubscriptionExpired:
		return oneOf(target, SubscriptionActive, SubscriptionTrialing, SubscriptionPending)
	default:
		return false
	}
}

// AllowedTransitions returns the statuses reachable from s in lifecycle order.
func (s SubscriptionStatus) AllowedTransitions() []SubscriptionStatus {
	var targets []SubscriptionStatus
	for _, target := range AllStatuses {
		if s.CanTransitionTo(target) {
			targets = append(targets, target)
		}
	}
	return targets
}

// PriorStatus returns nil for SubscriptionNone, so a missing record is
// stored and serialized as null rather than "none".
func PriorStatus(s SubscriptionStatus) *SubscriptionStatus {
	if s == SubscriptionNone || s == "" {
		return nil
	}
	return &s
}

// StatusOrNone reads a nullable status back, nil meaning SubscriptionNone.
func StatusOrNone(s *SubscriptionStatus) SubscriptionStatus {
	if s == nil || *s == "" {
		return SubscriptionNone
	}
	return *s
}

// ParseStatus parses a string into a SubscriptionStatus.
// The empty string is read as SubscriptionNone.
func ParseStatus(s string) (SubscriptionStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	if normalized == "" {
		return SubscriptionNone, nil
	}
	status := SubscriptionStatus(normalized)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return status, nil
}

func oneOf(target SubscriptionStatus, allowed ...SubscriptionStatus) bool {
	for _, candidate := range allowed {
		if target == candidate {
			return true
		}
	}
	return false
}
