package webhooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/tutorhub/internal/billing/application/commands"
	"github.com/felixgeelhaar/tutorhub/internal/billing/infrastructure/dedup"
	"github.com/felixgeelhaar/tutorhub/pkg/observability"
)

// ErrDuplicateEvent is returned when an event id has already been processed.
var ErrDuplicateEvent = errors.New("webhook event already processed")

// Transitioner applies a transition command.
type Transitioner interface {
	Handle(ctx context.Context, cmd commands.TransitionSubscriptionCommand) (*commands.TransitionResult, error)
}

// Processor dedups, maps and applies webhook events.
type Processor struct {
	mapper      *Mapper
	transitions Transitioner
	store       dedup.Store
	ttl         time.Duration
	logger      *slog.Logger
	metrics     observability.Metrics
}

// NewProcessor creates a new Processor.
func NewProcessor(mapper *Mapper, transitions Transitioner, store dedup.Store, ttl time.Duration, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = dedup.NewMemoryStore()
	}
	return &Processor{
		mapper:      mapper,
		transitions: transitions,
		store:       store,
		ttl:         ttl,
		logger:      logger,
		metrics:     observability.NoopMetrics{},
	}
}

// SetMetrics sets the metrics sink.
func (p *Processor) SetMetrics(metrics observability.Metrics) {
	if metrics != nil {
		p.metrics = metrics
	}
}

// Process applies event once. The dedup key is released when the event
// could not be applied, so it can be replayed.
func (p *Processor) Process(ctx context.Context, event *Event) (*commands.TransitionResult, error) {
	claimed, err := p.store.Claim(ctx, event.ID, p.ttl)
	if err != nil {
		return nil, err
	}
	if !claimed {
		p.metrics.Counter(observability.MetricWebhookDuplicates, 1, observability.T("type", event.Type))
		p.logger.Info("duplicate webhook event ignored", "event_id", event.ID, "type", event.Type)
		return nil, fmt.Errorf("%w: %s", ErrDuplicateEvent, event.ID)
	}

	result, err := p.apply(ctx, event)
	if err != nil {
		if releaseErr := p.store.Release(ctx, event.ID); releaseErr != nil {
			p.logger.Warn("failed to release dedup key", "event_id", event.ID, "error", releaseErr)
		}
		return nil, err
	}

	p.logger.Info("webhook event processed",
		"event_id", event.ID,
		"type", event.Type,
		"outcome", result.Outcome(),
	)
	return result, nil
}

func (p *Processor) apply(ctx context.Context, event *Event) (*commands.TransitionResult, error) {
	cmd, err := p.mapper.Map(ctx, event)
	if err != nil {
		return nil, err
	}
	return p.transitions.Handle(ctx, *cmd)
}
