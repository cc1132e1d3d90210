package domain_test

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/tutorhub/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewBaseEvent(t *testing.T) {
	aggregateID := uuid.New()
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	event := domain.NewBaseEvent(aggregateID, "Subscription", "billing.subscription.transitioned", at)

	assert.NotEqual(t, uuid.Nil, event.EventID())
	assert.Equal(t, aggregateID, event.AggregateID())
	assert.Equal(t, "Subscription", event.AggregateType())
	assert.Equal(t, "billing.subscription.transitioned", event.RoutingKey())
	assert.True(t, at.Equal(event.OccurredAt()))
	assert.Equal(t, time.UTC, event.OccurredAt().Location())
	assert.Equal(t, domain.EventMetadata{}, event.Metadata())
}

func TestBaseEvent_SetMetadata(t *testing.T) {
	event := domain.NewBaseEvent(uuid.New(), "Subscription", "billing.subscription.transitioned", time.Now())
	meta := domain.EventMetadata{
		CorrelationID: uuid.New(),
		CausationID:   uuid.New(),
		UserID:        uuid.New(),
	}

	event.SetMetadata(meta)

	assert.Equal(t, meta, event.Metadata())
}

func TestBaseEvent_UniqueIDs(t *testing.T) {
	a := domain.NewBaseEvent(uuid.New(), "Subscription", "x", time.Now())
	b := domain.NewBaseEvent(uuid.New(), "Subscription", "x", time.Now())
	assert.NotEqual(t, a.EventID(), b.EventID())
}
