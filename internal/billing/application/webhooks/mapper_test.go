package webhooks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/tutorhub/internal/billing/application/commands"
	"github.com/felixgeelhaar/tutorhub/internal/billing/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFinder struct {
	subs []*domain.Subscription
	err  error
}

func (f *fakeFinder) FindByCustomerID(ctx context.Context, customerID string) (*domain.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, s := range f.subs {
		if customerID != "" && s.DodoCustomerID == customerID {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeFinder) FindByEmail(ctx context.Context, email string) (*domain.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, s := range f.subs {
		if email != "" && strings.EqualFold(s.Email, email) {
			return s, nil
		}
	}
	return nil, nil
}

const activeEvent = `{
	"id": "evt_123",
	"type": "subscription.active",
	"timestamp": "2024-06-15T12:00:00Z",
	"data": {
		"subscription_id": "sub_1",
		"product_id": "prod_pro",
		"status": "active",
		"customer": {"customer_id": "cus_1", "email": "student@example.com"},
		"metadata": {"user_id": "8f2a2f52-7c1e-4a53-9b3e-1d8c7f8a4b21", "plan": "pro"},
		"next_billing_date": "2024-07-15T12:00:00Z",
		"payment_frequency_interval": "Month"
	}
}`

func TestParseEvent(t *testing.T) {
	event, err := ParseEvent([]byte(activeEvent))
	require.NoError(t, err)

	assert.Equal(t, "evt_123", event.ID)
	assert.Equal(t, EventSubscriptionActive, event.Type)
	assert.Equal(t, "cus_1", event.Data.Customer.CustomerID)
	assert.Equal(t, "monthly", event.Data.BillingCycle())
	assert.Equal(t, "pro", event.Data.Plan())
}

func TestParseEvent_Malformed(t *testing.T) {
	for _, body := range []string{`not json`, `{"type":"subscription.active"}`, `{"id":"evt_1"}`} {
		_, err := ParseEvent([]byte(body))
		assert.ErrorIs(t, err, ErrMalformedEvent, body)
	}
}

func TestEventData_Plan(t *testing.T) {
	assert.Equal(t, "prod_basic", EventData{ProductID: "prod_basic"}.Plan())
	assert.Equal(t, "", EventData{}.Plan())
	assert.Equal(t, "yearly", EventData{PaymentFrequencyInterval: "Year"}.BillingCycle())
	assert.Equal(t, "", EventData{PaymentFrequencyInterval: "fortnight"}.BillingCycle())
}

func TestMapper_MapActive(t *testing.T) {
	event, err := ParseEvent([]byte(activeEvent))
	require.NoError(t, err)

	cmd, err := NewMapper(&fakeFinder{}).Map(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, uuid.MustParse("8f2a2f52-7c1e-4a53-9b3e-1d8c7f8a4b21"), cmd.UserID)
	assert.Equal(t, "active", cmd.NewStatus)
	assert.Equal(t, "pro", cmd.Plan)
	assert.Equal(t, "monthly", cmd.BillingCycle)
	assert.Equal(t, "cus_1", cmd.DodoCustomerID)
	assert.Equal(t, "sub_1", cmd.DodoSubscriptionID)
	assert.Equal(t, "student@example.com", cmd.Email)
	assert.Equal(t, commands.SourceWebhook, cmd.Source)
	assert.Equal(t, "evt_123", cmd.Metadata["event_id"])
	require.NotNil(t, cmd.EndDate)
	assert.Equal(t, time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC), cmd.EndDate.UTC())
}

func TestMapper_StatusMapping(t *testing.T) {
	userID := uuid.New()
	next := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		eventType string
		status    string
		endDate   bool
	}{
		{EventSubscriptionRenewed, "active", true},
		{EventSubscriptionPlanChanged, "active", true},
		{EventSubscriptionOnHold, "on_hold", false},
		{EventSubscriptionFailed, "payment_failed", false},
		{EventPaymentFailed, "payment_failed", false},
		{EventSubscriptionCancelled, "cancelled", true},
		{EventSubscriptionExpired, "expired", false},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			event := &Event{
				ID:   "evt_" + tt.eventType,
				Type: tt.eventType,
				Data: EventData{
					Metadata:        map[string]string{"user_id": userID.String()},
					NextBillingDate: &next,
				},
			}

			cmd, err := NewMapper(nil).Map(context.Background(), event)
			require.NoError(t, err)
			assert.Equal(t, tt.status, cmd.NewStatus)
			assert.Equal(t, tt.endDate, cmd.EndDate != nil)
		})
	}
}

func TestMapper_UnsupportedEvent(t *testing.T) {
	event := &Event{ID: "evt_1", Type: "refund.succeeded"}

	_, err := NewMapper(nil).Map(context.Background(), event)
	assert.ErrorIs(t, err, ErrUnsupportedEvent)
}

func TestMapper_ResolvesUserByCustomerThenEmail(t *testing.T) {
	byCustomer := &domain.Subscription{UserID: uuid.New(), DodoCustomerID: "cus_1"}
	byEmail := &domain.Subscription{UserID: uuid.New(), Email: "other@example.com"}
	mapper := NewMapper(&fakeFinder{subs: []*domain.Subscription{byCustomer, byEmail}})

	cmd, err := mapper.Map(context.Background(), &Event{
		ID:   "evt_1",
		Type: EventSubscriptionOnHold,
		Data: EventData{
			Metadata: map[string]string{"user_id": "not-a-uuid"},
			Customer: Customer{CustomerID: "cus_1", Email: "other@example.com"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, byCustomer.UserID, cmd.UserID)

	cmd, err = mapper.Map(context.Background(), &Event{
		ID:   "evt_2",
		Type: EventSubscriptionOnHold,
		Data: EventData{Customer: Customer{CustomerID: "cus_unknown", Email: "OTHER@example.com"}},
	})
	require.NoError(t, err)
	assert.Equal(t, byEmail.UserID, cmd.UserID)
}

func TestMapper_UserNotResolved(t *testing.T) {
	_, err := NewMapper(&fakeFinder{}).Map(context.Background(), &Event{
		ID:   "evt_1",
		Type: EventSubscriptionActive,
		Data: EventData{Customer: Customer{CustomerID: "cus_unknown"}},
	})
	assert.ErrorIs(t, err, ErrUserNotResolved)
}

func TestMapper_FinderError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewMapper(&fakeFinder{err: boom}).Map(context.Background(), &Event{
		ID:   "evt_1",
		Type: EventSubscriptionActive,
		Data: EventData{Customer: Customer{CustomerID: "cus_1"}},
	})
	assert.ErrorIs(t, err, boom)
}
