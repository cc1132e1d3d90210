package application

import (
	"context"
	"time"

	"github.com/felixgeelhaar/tutorhub/internal/billing/domain"
	"github.com/google/uuid"
)

// Audit log page bounds.
const (
	DefaultAuditLimit = 50
	MaxAuditLimit     = 500
)

// Service provides read access to subscriptions and their audit trail.
// It holds no business rules; transitions go through the commands package.
type Service struct {
	subscriptions domain.SubscriptionRepository
	audit         domain.AuditRepository
}

// NewService creates a new billing service.
func NewService(subscriptions domain.SubscriptionRepository, audit domain.AuditRepository) *Service {
	return &Service{subscriptions: subscriptions, audit: audit}
}

// GetSubscription returns the user's subscription, if any.
func (s *Service) GetSubscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	if s == nil || s.subscriptions == nil {
		return nil, nil
	}
	return s.subscriptions.FindByUserID(ctx, userID)
}

// FindByCustomerID returns the subscription linked to a payment provider customer.
func (s *Service) FindByCustomerID(ctx context.Context, customerID string) (*domain.Subscription, error) {
	if s == nil || s.subscriptions == nil {
		return nil, nil
	}
	return s.subscriptions.FindByCustomerID(ctx, customerID)
}

// FindByEmail returns the subscription stored with email, compared case-insensitively.
func (s *Service) FindByEmail(ctx context.Context, email string) (*domain.Subscription, error) {
	if s == nil || s.subscriptions == nil {
		return nil, nil
	}
	return s.subscriptions.FindByEmail(ctx, email)
}

// GetPublicSubscription returns the owner-facing view, or nil when the user
// has no subscription.
func (s *Service) GetPublicSubscription(ctx context.Context, userID uuid.UUID) (*domain.PublicSubscription, error) {
	sub, err := s.GetSubscription(ctx, userID)
	if err != nil || sub == nil {
		return nil, err
	}
	view := sub.Public()
	return &view, nil
}

// HasAccess reports whether the user currently has paid or trial access.
func (s *Service) HasAccess(ctx context.Context, userID uuid.UUID, now time.Time) (bool, error) {
	sub, err := s.GetSubscription(ctx, userID)
	if err != nil {
		return false, err
	}
	return sub.HasAccess(now), nil
}

// ListAuditLog returns the newest audit entries for a user. The limit is
// clamped to [1, MaxAuditLimit], zero selects DefaultAuditLimit.
func (s *Service) ListAuditLog(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.AuditEntry, error) {
	if s == nil || s.audit == nil {
		return nil, nil
	}
	switch {
	case limit <= 0:
		limit = DefaultAuditLimit
	case limit > MaxAuditLimit:
		limit = MaxAuditLimit
	}
	return s.audit.ListByUserID(ctx, userID, limit)
}
