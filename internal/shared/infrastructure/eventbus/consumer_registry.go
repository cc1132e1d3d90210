package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// ConsumerFunc adapts a function to EventConsumer for a fixed set of keys.
type ConsumerFunc struct {
	Keys []string
	Fn   func(ctx context.Context, event *ConsumedEvent) error
}

func (f ConsumerFunc) EventTypes() []string { return f.Keys }

func (f ConsumerFunc) Handle(ctx context.Context, event *ConsumedEvent) error {
	return f.Fn(ctx, event)
}

// ConsumerRegistry routes consumed events by routing key.
type ConsumerRegistry struct {
	mu     sync.RWMutex
	routes map[string][]EventConsumer
	logger *slog.Logger
}

// NewConsumerRegistry creates an empty registry.
func NewConsumerRegistry(logger *slog.Logger) *ConsumerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsumerRegistry{
		routes: make(map[string][]EventConsumer),
		logger: logger,
	}
}

// Register routes every key the consumer declares to it.
func (r *ConsumerRegistry) Register(consumer EventConsumer) {
	keys := consumer.EventTypes()

	r.mu.Lock()
	for _, key := range keys {
		r.routes[key] = append(r.routes[key], consumer)
	}
	r.mu.Unlock()

	r.logger.Debug("consumer registered", "event_types", keys)
}

// EventTypes lists the routed keys in sorted order.
func (r *ConsumerRegistry) EventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.routes))
}

// ConsumerCount counts registrations, so a consumer with two keys counts twice.
func (r *ConsumerRegistry) ConsumerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, route := range r.routes {
		n += len(route)
	}
	return n
}

func (r *ConsumerRegistry) route(key string) []EventConsumer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.routes[key])
}

// Dispatch delivers the event to each consumer of its routing key. A failing
// consumer does not stop the others; all failures are joined.
func (r *ConsumerRegistry) Dispatch(ctx context.Context, event *ConsumedEvent) error {
	route := r.route(event.RoutingKey)
	if len(route) == 0 {
		r.logger.Debug("event has no consumers", "routing_key", event.RoutingKey)
		return nil
	}

	var errs []error
	for _, consumer := range route {
		err := consumer.Handle(ctx, event)
		if err == nil {
			continue
		}
		r.logger.ErrorContext(ctx, "consumer failed",
			"routing_key", event.RoutingKey,
			"event_id", event.EventID,
			"error", err,
		)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
