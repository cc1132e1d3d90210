// Package webhooks turns payment provider events into subscription
// transitions.
package webhooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider event types.
const (
	EventSubscriptionActive      = "subscription.active"
	EventSubscriptionRenewed     = "subscription.renewed"
	EventSubscriptionOnHold      = "subscription.on_hold"
	EventSubscriptionFailed      = "subscription.failed"
	EventSubscriptionCancelled   = "subscription.cancelled"
	EventSubscriptionExpired     = "subscription.expired"
	EventSubscriptionPlanChanged = "subscription.plan_changed"
	EventPaymentFailed           = "payment.failed"
)

var (
	// ErrMalformedEvent is returned when an event body cannot be used.
	ErrMalformedEvent = errors.New("malformed webhook event")
	// ErrUnsupportedEvent is returned for event types that do not map to a transition.
	ErrUnsupportedEvent = errors.New("unsupported webhook event type")
	// ErrUserNotResolved is returned when no user can be matched to the event.
	ErrUserNotResolved = errors.New("webhook event does not resolve to a user")
)

// Event is a payment provider webhook delivery.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data"`
}

// EventData is the subscription or payment object carried by an event.
type EventData struct {
	SubscriptionID           string            `json:"subscription_id"`
	PaymentID                string            `json:"payment_id,omitempty"`
	ProductID                string            `json:"product_id,omitempty"`
	Status                   string            `json:"status,omitempty"`
	Customer                 Customer          `json:"customer"`
	Metadata                 map[string]string `json:"metadata,omitempty"`
	NextBillingDate          *time.Time        `json:"next_billing_date,omitempty"`
	ExpiresAt                *time.Time        `json:"expires_at,omitempty"`
	PaymentFrequencyInterval string            `json:"payment_frequency_interval,omitempty"`
	TrialPeriodDays          int               `json:"trial_period_days,omitempty"`
}

// Customer identifies the paying customer.
type Customer struct {
	CustomerID string `json:"customer_id"`
	Email      string `json:"email"`
	Name       string `json:"name,omitempty"`
}

// ParseEvent decodes a raw webhook body.
func ParseEvent(body []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	event.ID = strings.TrimSpace(event.ID)
	event.Type = strings.TrimSpace(event.Type)
	if event.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedEvent)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	return &event, nil
}

// BillingCycle normalizes the provider's payment interval.
func (d EventData) BillingCycle() string {
	switch strings.ToLower(strings.TrimSpace(d.PaymentFrequencyInterval)) {
	case "day", "daily":
		return "daily"
	case "week", "weekly":
		return "weekly"
	case "month", "monthly":
		return "monthly"
	case "year", "yearly", "annual":
		return "yearly"
	default:
		return ""
	}
}

// Plan returns the plan named in the metadata, else the product id.
func (d EventData) Plan() string {
	if plan := strings.TrimSpace(d.Metadata["plan"]); plan != "" {
		return plan
	}
	return strings.TrimSpace(d.ProductID)
}
