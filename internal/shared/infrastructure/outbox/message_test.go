package outbox

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/felixgeelhaar/tutorhub/internal/shared/domain"
	"github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	domain.BaseEvent
	Plan string `json:"plan"`
}

func newTestEvent(aggregateID uuid.UUID, plan string) *testEvent {
	return &testEvent{
		BaseEvent: domain.NewBaseEvent(aggregateID, "Subscription", "billing.subscription.transitioned", time.Now()),
		Plan:      plan,
	}
}

func TestNewMessage(t *testing.T) {
	aggregateID := uuid.New()
	event := newTestEvent(aggregateID, "pro")

	msg, err := NewMessage(event)

	require.NoError(t, err)
	assert.Equal(t, event.EventID(), msg.EventID)
	assert.Equal(t, "Subscription", msg.AggregateType)
	assert.Equal(t, aggregateID, msg.AggregateID)
	assert.Equal(t, "billing.subscription.transitioned", msg.RoutingKey)
	assert.Equal(t, msg.RoutingKey, msg.EventType)
	assert.Equal(t, event.OccurredAt(), msg.CreatedAt)
	assert.Zero(t, msg.ID)
	assert.False(t, msg.IsPublished())
}

func TestNewMessage_PayloadIsConsumableEnvelope(t *testing.T) {
	userID := uuid.New()
	correlationID := uuid.New()
	event := newTestEvent(uuid.New(), "pro")
	event.SetMetadata(domain.EventMetadata{CorrelationID: correlationID, UserID: userID})

	msg, err := NewMessage(event)
	require.NoError(t, err)

	var envelope eventbus.ConsumedEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &envelope))
	assert.Equal(t, event.EventID(), envelope.EventID)
	assert.Equal(t, event.RoutingKey(), envelope.RoutingKey)
	assert.Equal(t, userID, envelope.Metadata.UserID)
	assert.Equal(t, correlationID.String(), envelope.Metadata.CorrelationID)
	assert.Empty(t, envelope.Metadata.CausationID)

	var body struct {
		Plan string `json:"plan"`
	}
	require.NoError(t, json.Unmarshal(envelope.Payload, &body))
	assert.Equal(t, "pro", body.Plan)

	assert.Contains(t, string(msg.Metadata), correlationID.String())
}
