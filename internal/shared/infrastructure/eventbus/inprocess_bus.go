package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// InProcessEventBus is the local-mode Publisher: it hands each message to the
// registered consumers before Publish returns.
type InProcessEventBus struct {
	*ConsumerRegistry

	// serializes deliveries so consumers never see two events at once
	deliver sync.Mutex
	logger  *slog.Logger
}

// NewInProcessEventBus creates a bus with an empty registry.
func NewInProcessEventBus(logger *slog.Logger) *InProcessEventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &InProcessEventBus{
		ConsumerRegistry: NewConsumerRegistry(logger),
		logger:           logger,
	}
}

// RegisterConsumer is Register under the name the broker consumer uses.
func (b *InProcessEventBus) RegisterConsumer(consumer EventConsumer) {
	b.Register(consumer)
}

// Registry exposes the embedded registry.
func (b *InProcessEventBus) Registry() *ConsumerRegistry {
	return b.ConsumerRegistry
}

// Publish never fails. A broker would not report consumer errors to the
// publisher either, so undecodable payloads and consumer failures are logged
// and dropped.
func (b *InProcessEventBus) Publish(ctx context.Context, routingKey string, payload []byte) error {
	event, err := DecodeEnvelope(payload, routingKey)
	if err != nil {
		b.logger.ErrorContext(ctx, "dropping undecodable event", "routing_key", routingKey, "error", err)
		return nil
	}

	b.deliver.Lock()
	start := time.Now()
	err = b.Dispatch(ctx, event)
	elapsed := time.Since(start)
	b.deliver.Unlock()

	log := b.logger.With("routing_key", routingKey, "event_id", event.EventID, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		log.ErrorContext(ctx, "in-process delivery failed", "error", err)
		return nil
	}
	log.DebugContext(ctx, "in-process delivery done")
	return nil
}

func (b *InProcessEventBus) Close() error { return nil }
