package subscribers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/tutorhub/internal/billing/application"
	"github.com/felixgeelhaar/tutorhub/internal/billing/domain"
	"github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/tutorhub/pkg/observability"
)

// MirrorSyncSubscriber copies transitioned subscriptions to the profile mirror.
// Mirror failures are logged and dropped; the subscription record stays
// authoritative.
type MirrorSyncSubscriber struct {
	mirror  application.ProfileMirror
	logger  *slog.Logger
	metrics observability.Metrics
}

// NewMirrorSyncSubscriber creates a new mirror sync subscriber.
func NewMirrorSyncSubscriber(mirror application.ProfileMirror, logger *slog.Logger) *MirrorSyncSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &MirrorSyncSubscriber{
		mirror:  mirror,
		logger:  logger,
		metrics: observability.NoopMetrics{},
	}
}

// SetMetrics sets the metrics sink.
func (s *MirrorSyncSubscriber) SetMetrics(metrics observability.Metrics) {
	if metrics != nil {
		s.metrics = metrics
	}
}

// EventTypes returns the event types this subscriber handles.
func (s *MirrorSyncSubscriber) EventTypes() []string {
	return []string{domain.RoutingKeyTransitioned}
}

// Handle pushes the new subscription state to the mirror. It always returns nil.
func (s *MirrorSyncSubscriber) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	if s.mirror == nil {
		s.logger.Debug("profile mirror not configured, skipping event",
			"routing_key", event.RoutingKey,
		)
		return nil
	}

	if event.RoutingKey != domain.RoutingKeyTransitioned {
		s.logger.Warn("unknown event type",
			"routing_key", event.RoutingKey,
		)
		return nil
	}

	var payload domain.SubscriptionTransitioned
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		s.logger.Error("failed to unmarshal subscription transitioned payload",
			"event_id", event.EventID,
			"error", err,
		)
		s.record("invalid", 0)
		return nil
	}

	start := time.Now()
	err := s.mirror.UpdateProfile(ctx, payload.UserID, application.NewProfilePatch(&payload))
	if err != nil {
		s.logger.Error("failed to sync subscription to profile mirror",
			"user_id", payload.UserID,
			"status", payload.NewStatus,
			"error", err,
		)
		s.record("failed", time.Since(start))
		return nil
	}

	s.record("synced", time.Since(start))
	s.logger.Info("synced subscription to profile mirror",
		"user_id", payload.UserID,
		"status", payload.NewStatus,
	)
	return nil
}

func (s *MirrorSyncSubscriber) record(outcome string, elapsed time.Duration) {
	s.metrics.Counter(observability.MetricMirrorSync, 1, observability.T("outcome", outcome))
	if elapsed > 0 {
		s.metrics.Timing(observability.MetricMirrorSync, elapsed, observability.T("outcome", outcome))
	}
}
