package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SubscriptionRepository defines access for subscription persistence.
// Finders return nil, nil when no record matches.
type SubscriptionRepository interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*Subscription, error)
	FindByCustomerID(ctx context.Context, customerID string) (*Subscription, error)
	FindByEmail(ctx context.Context, email string) (*Subscription, error)
	// ListDue returns up to limit subscriptions in status whose SweepDeadline
	// lies before now, ordered by ID and starting after the given ID.
	ListDue(ctx context.Context, status SubscriptionStatus, now time.Time, after uuid.UUID, limit int) ([]*Subscription, error)
	Insert(ctx context.Context, subscription *Subscription) error
	Update(ctx context.Context, subscription *Subscription) error
}

// AuditRepository appends to and reads the subscription audit trail.
type AuditRepository interface {
	Append(ctx context.Context, entry *AuditEntry) error
	ListByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*AuditEntry, error)
}
