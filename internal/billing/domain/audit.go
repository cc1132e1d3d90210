package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActionRejectedTransition is the audit action recorded when a requested
// transition is not allowed from the current status.
const ActionRejectedTransition = "rejected_transition"

// ReasonInvalidTransition is stored in the metadata of rejected entries.
const ReasonInvalidTransition = "invalid_transition"

// AuditEntry is one immutable row of the subscription audit trail.
type AuditEntry struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	Action             string
	OldStatus          SubscriptionStatus
	NewStatus          SubscriptionStatus
	OldEndDate         *time.Time
	NewEndDate         *time.Time
	Plan               string
	BillingCycle       string
	Source             string
	DodoCustomerID     string
	DodoSubscriptionID string
	Metadata           map[string]any
	CreatedAt          time.Time
}

// NewAuditEntry creates an audit entry stamped with now.
func NewAuditEntry(userID uuid.UUID, action string, now time.Time) *AuditEntry {
	return &AuditEntry{
		ID:        uuid.New(),
		UserID:    userID,
		Action:    action,
		Metadata:  map[string]any{},
		CreatedAt: now,
	}
}
