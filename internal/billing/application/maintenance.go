package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/tutorhub/internal/billing/application/commands"
	"github.com/felixgeelhaar/tutorhub/internal/billing/domain"
	"github.com/felixgeelhaar/tutorhub/pkg/observability"
	"github.com/google/uuid"
)

// Sweep job names, stored in the audit metadata under "job".
const (
	JobTrialExpiry = "trial_expiry"
	JobGraceExpiry = "grace_expiry"
)

// DefaultSweepScanLimit is the page size used when listing due records.
const DefaultSweepScanLimit = 1000

// Transitioner applies a transition command.
type Transitioner interface {
	Handle(ctx context.Context, cmd commands.TransitionSubscriptionCommand) (*commands.TransitionResult, error)
}

// SweepResult counts what a sweep did.
type SweepResult struct {
	Checked int `json:"checked"`
	Expired int `json:"expired"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func (r *SweepResult) add(other SweepResult) {
	r.Checked += other.Checked
	r.Expired += other.Expired
	r.Skipped += other.Skipped
	r.Failed += other.Failed
}

// MaintenanceService expires subscriptions whose access window has passed.
// Every change goes through the transition handler with source cron.
type MaintenanceService struct {
	subscriptions domain.SubscriptionRepository
	transitions   Transitioner
	logger        *slog.Logger
	metrics       observability.Metrics
	scanLimit     int
}

// NewMaintenanceService creates a new MaintenanceService.
func NewMaintenanceService(subscriptions domain.SubscriptionRepository, transitions Transitioner, logger *slog.Logger) *MaintenanceService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MaintenanceService{
		subscriptions: subscriptions,
		transitions:   transitions,
		logger:        logger,
		metrics:       observability.NoopMetrics{},
		scanLimit:     DefaultSweepScanLimit,
	}
}

// SetMetrics sets the metrics sink.
func (m *MaintenanceService) SetMetrics(metrics observability.Metrics) {
	if metrics != nil {
		m.metrics = metrics
	}
}

// ExpireTrials expires trials whose boundary (grace end, else trial end,
// else end date) lies before now.
func (m *MaintenanceService) ExpireTrials(ctx context.Context, now time.Time) (SweepResult, error) {
	return m.sweep(ctx, JobTrialExpiry, now, []domain.SubscriptionStatus{domain.SubscriptionTrialing})
}

// ExpireLapsed expires on hold, payment failed and cancelled subscriptions
// whose end date lies before now.
func (m *MaintenanceService) ExpireLapsed(ctx context.Context, now time.Time) (SweepResult, error) {
	statuses := []domain.SubscriptionStatus{
		domain.SubscriptionOnHold,
		domain.SubscriptionPaymentFailed,
		domain.SubscriptionCancelled,
	}
	return m.sweep(ctx, JobGraceExpiry, now, statuses)
}

// sweep pages through due records of each status by id, scanLimit at a time,
// until a short page shows the status is exhausted.
func (m *MaintenanceService) sweep(ctx context.Context, job string, now time.Time, statuses []domain.SubscriptionStatus) (SweepResult, error) {
	var result SweepResult

	for _, status := range statuses {
		after := uuid.Nil
		for {
			page, err := m.subscriptions.ListDue(ctx, status, now, after, m.scanLimit)
			if err != nil {
				return result, err
			}
			for _, sub := range page {
				m.expire(ctx, job, now, sub, &result)
			}
			if len(page) < m.scanLimit {
				break
			}
			after = page[len(page)-1].ID
		}
	}

	m.metrics.Counter(observability.MetricSweepExpired, int64(result.Expired), observability.T("job", job))
	m.logger.Info("sweep finished",
		"job", job,
		"checked", result.Checked,
		"expired", result.Expired,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

func (m *MaintenanceService) expire(ctx context.Context, job string, now time.Time, sub *domain.Subscription, result *SweepResult) {
	result.Checked++
	if due := sub.SweepDeadline(); due == nil || !due.Before(now) {
		return
	}

	res, err := m.transitions.Handle(ctx, commands.TransitionSubscriptionCommand{
		UserID:    sub.UserID,
		NewStatus: domain.SubscriptionExpired.String(),
		Source:    commands.SourceCron,
		Metadata:  map[string]any{"job": job},
	})
	switch {
	case err != nil:
		result.Failed++
		m.logger.Error("sweep transition failed", "job", job, "user_id", sub.UserID, "error", err)
	case res.Success && !res.Skipped:
		result.Expired++
	default:
		result.Skipped++
	}
}

// Sweeper runs both maintenance sweeps on an interval.
type Sweeper struct {
	service  *MaintenanceService
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewSweeper creates a new Sweeper.
func NewSweeper(service *MaintenanceService, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		service:  service,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// RunOnce runs the trial sweep followed by the grace sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	return observability.TimeOperationResult(ctx, s.logger, s.service.metrics, "billing.sweep", func() (SweepResult, error) {
		return s.sweep(ctx, s.now())
	})
}

func (s *Sweeper) sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	total, err := s.service.ExpireTrials(ctx, now)
	if err != nil {
		return total, err
	}
	lapsed, err := s.service.ExpireLapsed(ctx, now)
	total.add(lapsed)
	return total, err
}

// Start runs a sweep immediately and then on every tick.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("maintenance sweep failed", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
			}
		}
	}()

	s.logger.Info("maintenance sweeper started", "interval", s.interval)
}

// Stop stops the loop and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
}

// IsRunning reports whether the loop is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
