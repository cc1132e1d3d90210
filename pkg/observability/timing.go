package observability

import (
	"context"
	"log/slog"
	"time"
)

// Span is a running measurement of one named operation. End reports it as
// MetricOperationDuration, MetricOperationTotal and, on failure,
// MetricOperationErrors, all tagged operation=<name>.
type Span struct {
	name    string
	started time.Time
	logger  *slog.Logger
	metrics Metrics
	tags    []Tag
}

// StartSpan begins measuring name. A nil logger or metrics disables that
// side of the report.
func StartSpan(name string, logger *slog.Logger, metrics Metrics, tags ...Tag) *Span {
	return &Span{
		name:    name,
		started: time.Now(),
		logger:  logger,
		metrics: metrics,
		tags:    append([]Tag{T("operation", name)}, tags...),
	}
}

// End records the outcome and returns the elapsed time.
func (s *Span) End(ctx context.Context, err error) time.Duration {
	elapsed := time.Since(s.started)

	if s.metrics != nil {
		s.metrics.Timing(MetricOperationDuration, elapsed, s.tags...)
		s.metrics.Counter(MetricOperationTotal, 1, s.tags...)
		if err != nil {
			s.metrics.Counter(MetricOperationErrors, 1, s.tags...)
		}
	}

	if s.logger == nil {
		return elapsed
	}
	attrs := []any{"operation", s.name, "duration_ms", elapsed.Milliseconds()}
	if err != nil {
		s.logger.ErrorContext(ctx, "operation failed", append(attrs, "error", err)...)
	} else {
		s.logger.DebugContext(ctx, "operation completed", attrs...)
	}
	return elapsed
}

// TimeOperationResult runs fn inside a span named operation.
func TimeOperationResult[T any](ctx context.Context, logger *slog.Logger, metrics Metrics, operation string, fn func() (T, error)) (T, error) {
	span := StartSpan(operation, logger, metrics)
	result, err := fn()
	span.End(ctx, err)
	return result, err
}
