package outbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/tutorhub/pkg/observability"
)

// Metric names emitted by the processor.
const (
	MetricPublished = "outbox.messages.published"
	MetricFailed    = "outbox.messages.failed"
	MetricDead      = "outbox.messages.dead"
	MetricLag       = "outbox.lag_seconds"
	MetricPending   = "outbox.messages.pending"
)

// ProcessorConfig controls polling and retry behaviour.
type ProcessorConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// MaxRetries is the number of publish attempts before a message is
	// dead-lettered. Zero dead-letters on the first failure.
	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
}

// DefaultProcessorConfig returns the worker defaults.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval:     100 * time.Millisecond,
		BatchSize:        100,
		MaxRetries:       5,
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  time.Minute,
	}
}

// retryDelay doubles from RetryBackoffBase per attempt, capped at RetryBackoffMax.
func (c ProcessorConfig) retryDelay(attempt int) time.Duration {
	base, limit := c.RetryBackoffBase, c.RetryBackoffMax
	if base <= 0 {
		base = time.Second
	}
	if limit <= 0 {
		limit = time.Minute
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 31 {
		return limit
	}
	d := base << (attempt - 1)
	if d <= 0 || d > limit {
		return limit
	}
	return d
}

func (c ProcessorConfig) lastAttempt(msg *Message) bool {
	return c.MaxRetries <= 0 || msg.RetryCount+1 >= c.MaxRetries
}

// Stats is a snapshot of processor activity.
type Stats struct {
	IsRunning       bool
	PublishedCount  uint64
	FailedCount     uint64
	DeadCount       uint64
	LagSeconds      float64
	LastError       string
	LastErrorAt     *time.Time
	LastProcessedAt *time.Time
	OldestMessageAt *time.Time
}

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDead
	outcomeUnmarked
)

// Processor relays outbox messages to a Publisher.
type Processor struct {
	repo      Repository
	publisher eventbus.Publisher
	config    ProcessorConfig
	logger    *slog.Logger
	metrics   observability.Metrics
	now       func() time.Time

	lifecycle sync.Mutex
	stop      chan struct{}
	done      chan struct{}

	mu    sync.Mutex
	stats Stats
}

// NewProcessor creates a processor. A nil logger uses slog.Default.
func NewProcessor(repo Repository, publisher eventbus.Publisher, config ProcessorConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		logger:    logger.With("component", "outbox"),
		metrics:   observability.NoopMetrics{},
		now:       time.Now,
	}
}

// SetMetrics replaces the metrics sink. Nil is ignored.
func (p *Processor) SetMetrics(metrics observability.Metrics) {
	if metrics != nil {
		p.metrics = metrics
	}
}

// Start polls in the background until Stop is called or ctx ends.
// Starting a running processor is a no-op.
func (p *Processor) Start(ctx context.Context) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if p.stop != nil {
		return nil
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.poll(ctx, p.stop, p.done)

	p.logger.Info("outbox processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
		"max_retries", p.config.MaxRetries,
	)
	return nil
}

// Stop ends polling and waits for the in-flight batch.
func (p *Processor) Stop() {
	p.lifecycle.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.lifecycle.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	p.logger.Info("outbox processor stopped")
}

// IsRunning reports whether Start has been called without a matching Stop.
func (p *Processor) IsRunning() bool {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	return p.stop != nil
}

func (p *Processor) poll(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := p.ProcessOnce(ctx); err != nil {
				p.logger.Error("outbox batch failed", "error", err)
			}
		}
	}
}

// ProcessOnce relays a single batch. Only a failure to load the batch is
// returned; per-message failures are recorded on the message.
func (p *Processor) ProcessOnce(ctx context.Context) error {
	batch, err := p.repo.GetUnpublished(ctx, p.config.BatchSize)
	if err != nil {
		p.noteError(err)
		return err
	}
	p.observeLag(batch)

	var tally [outcomeUnmarked + 1]uint64
	var lastErr error
	for _, msg := range batch {
		result, err := p.relay(ctx, msg)
		tally[result]++
		if err != nil {
			lastErr = err
		}
	}

	p.mu.Lock()
	p.stats.PublishedCount += tally[outcomePublished]
	p.stats.FailedCount += tally[outcomeRetry]
	p.stats.DeadCount += tally[outcomeDead]
	p.mu.Unlock()
	if lastErr != nil {
		p.noteError(lastErr)
	}
	return nil
}

func (p *Processor) relay(ctx context.Context, msg *Message) (outcome, error) {
	tag := observability.T("routing_key", msg.RoutingKey)
	log := p.logger.With("id", msg.ID, "event_id", msg.EventID, "routing_key", msg.RoutingKey)

	pubErr := p.publisher.Publish(ctx, msg.RoutingKey, msg.Payload)
	if pubErr == nil {
		if err := p.repo.MarkPublished(ctx, msg.ID); err != nil {
			log.Error("published message could not be marked", "error", err)
			return outcomeUnmarked, nil
		}
		p.metrics.Counter(MetricPublished, 1, tag)
		return outcomePublished, nil
	}

	log.Warn("publish failed", "retry_count", msg.RetryCount, "error", pubErr)

	if p.config.lastAttempt(msg) {
		p.metrics.Counter(MetricDead, 1, tag)
		if err := p.repo.MarkDead(ctx, msg.ID, pubErr.Error()); err != nil {
			log.Error("dead-letter update failed", "error", err)
		}
		return outcomeDead, pubErr
	}

	p.metrics.Counter(MetricFailed, 1, tag)
	retryAt := p.now().Add(p.config.retryDelay(msg.RetryCount + 1))
	if err := p.repo.MarkFailed(ctx, msg.ID, pubErr.Error(), retryAt); err != nil {
		log.Error("retry update failed", "error", err)
	}
	return outcomeRetry, pubErr
}

// GetStats returns a copy of the current statistics.
func (p *Processor) GetStats() Stats {
	running := p.IsRunning()
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.IsRunning = running
	return s
}

func (p *Processor) noteError(err error) {
	at := p.now()
	p.mu.Lock()
	p.stats.LastError = err.Error()
	p.stats.LastErrorAt = &at
	p.mu.Unlock()
}

// observeLag records how long the oldest message in the batch has waited.
func (p *Processor) observeLag(batch []*Message) {
	at := p.now()
	var oldest *time.Time
	for _, msg := range batch {
		if oldest == nil || msg.CreatedAt.Before(*oldest) {
			created := msg.CreatedAt
			oldest = &created
		}
	}
	lag := 0.0
	if oldest != nil {
		lag = at.Sub(*oldest).Seconds()
	}

	p.mu.Lock()
	p.stats.LastProcessedAt = &at
	p.stats.OldestMessageAt = oldest
	p.stats.LagSeconds = lag
	p.mu.Unlock()
	p.metrics.Gauge(MetricLag, lag)
}
