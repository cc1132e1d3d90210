package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSubscriptionTransitioned(t *testing.T) {
	updated := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	sub := NewSubscription(uuid.New(), SubscriptionActive, updated)

	event := NewSubscriptionTransitioned(sub, SubscriptionOnHold, "webhook")
	assert.True(t, updated.Equal(event.OccurredAt()))
	assert.Equal(t, sub.ID, event.AggregateID())
	assert.Equal(t, RoutingKeyTransitioned, event.RoutingKey())
	require.NotNil(t, event.OldStatus)
	assert.Equal(t, SubscriptionOnHold, *event.OldStatus)

	created := NewSubscriptionTransitioned(sub, SubscriptionNone, "webhook")
	assert.Nil(t, created.OldStatus)

	raw, err := json.Marshal(created)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"old_status":null`)
}
