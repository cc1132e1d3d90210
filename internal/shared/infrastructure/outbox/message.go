package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/tutorhub/internal/shared/domain"
	"github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
)

// Message is a pending outbound task stored in the same transaction as the
// state change that produced it.
type Message struct {
	ID               int64           `db:"id"`
	EventID          uuid.UUID       `db:"event_id"`
	AggregateType    string          `db:"aggregate_type"`
	AggregateID      uuid.UUID       `db:"aggregate_id"`
	EventType        string          `db:"event_type"`
	RoutingKey       string          `db:"routing_key"`
	Payload          json.RawMessage `db:"payload"`
	Metadata         json.RawMessage `db:"metadata"`
	CreatedAt        time.Time       `db:"created_at"`
	PublishedAt      *time.Time      `db:"published_at"`
	NextRetryAt      *time.Time      `db:"next_retry_at"`
	RetryCount       int             `db:"retry_count"`
	LastError        *string         `db:"last_error"`
	DeadLetteredAt   *time.Time      `db:"dead_lettered_at"`
	DeadLetterReason *string         `db:"dead_letter_reason"`
}

// NewMessage wraps a domain event in the envelope consumers decode
// (eventbus.ConsumedEvent), so the stored payload can be published as is.
func NewMessage(event domain.DomainEvent) (*Message, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", event.RoutingKey(), err)
	}

	meta := event.Metadata()
	envelope := eventbus.ConsumedEvent{
		EventID:       event.EventID(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		RoutingKey:    event.RoutingKey(),
		OccurredAt:    event.OccurredAt(),
		Payload:       body,
		Metadata: eventbus.EventMetadata{
			UserID:        meta.UserID,
			CorrelationID: uuidString(meta.CorrelationID),
			CausationID:   uuidString(meta.CausationID),
		},
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	metadata, err := json.Marshal(envelope.Metadata)
	if err != nil {
		return nil, err
	}

	return &Message{
		EventID:       event.EventID(),
		AggregateType: event.AggregateType(),
		AggregateID:   event.AggregateID(),
		EventType:     event.RoutingKey(),
		RoutingKey:    event.RoutingKey(),
		Payload:       payload,
		Metadata:      metadata,
		CreatedAt:     event.OccurredAt(),
	}, nil
}

// IsPublished returns true if the message has been published.
func (m *Message) IsPublished() bool {
	return m.PublishedAt != nil
}

func uuidString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
