// Command worker relays the billing outbox, consumes mirror-sync events and
// runs the expiry sweeper.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/tutorhub/internal/app"
	billingApp "github.com/felixgeelhaar/tutorhub/internal/billing/application"
	"github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/tutorhub/pkg/config"
	"github.com/felixgeelhaar/tutorhub/pkg/observability"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.LoggerFor(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting tutorhub worker", "env", cfg.AppEnv)

	container, err := app.NewContainerFromConfig(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer container.Close()

	g, ctx := errgroup.WithContext(ctx)

	// local mode dispatches mirror sync in-process
	if !container.IsLocal() && container.MirrorSyncSubscriber != nil && cfg.RabbitMQURL != "" {
		if err := startMirrorConsumer(ctx, g, cfg, container, logger); err != nil {
			return err
		}
	}

	processor := container.OutboxProcessor
	if cfg.OutboxProcessorEnabled {
		if err := processor.Start(ctx); err != nil {
			return err
		}
		defer processor.Stop()
	} else {
		logger.Warn("outbox processor disabled")
	}

	var sweeper *billingApp.Sweeper
	if cfg.MaintenanceEnabled {
		sweeper = billingApp.NewSweeper(container.Maintenance, cfg.MaintenanceInterval, logger)
		sweeper.Start(ctx)
		defer sweeper.Stop()
	}

	g.Go(func() error {
		every(ctx, cfg.OutboxCleanupInterval, func() {
			deleted, err := container.OutboxRepo.DeleteOld(ctx, cfg.OutboxRetentionDays)
			switch {
			case err != nil:
				logger.Error("outbox cleanup failed", "error", err)
			case deleted > 0:
				logger.Info("outbox cleanup completed", "deleted", deleted, "retention_days", cfg.OutboxRetentionDays)
			}
		})
		return nil
	})

	g.Go(func() error {
		every(ctx, cfg.OutboxStatsInterval, func() {
			logOutboxStats(ctx, container, logger)
		})
		return nil
	})

	if cfg.WorkerHealthAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(healthReport(processor.GetStats(), sweeper))
		})
		mux.Handle("/readyz", container.HealthRegistry().Handler())
		mux.Handle("/metrics", container.Prometheus.Handler())

		g.Go(func() error {
			return serveHTTP(ctx, cfg.WorkerHealthAddr, mux, logger)
		})
	}

	err = g.Wait()
	logger.Info("shutting down worker")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// startMirrorConsumer attaches the mirror sync subscriber to the broker queue.
// Outside development a broker that cannot be reached is fatal.
func startMirrorConsumer(ctx context.Context, g *errgroup.Group, cfg *config.Config, container *app.Container, logger *slog.Logger) error {
	consumer, err := eventbus.NewRabbitMQConsumer(eventbus.RabbitMQConsumerConfig{
		URL:       cfg.RabbitMQURL,
		QueueName: cfg.RabbitMQQueue,
		Logger:    logger,
	}, nil)
	if err != nil {
		if !cfg.IsDevelopment() {
			return err
		}
		logger.Warn("RabbitMQ consumer not available, mirror sync disabled", "error", err)
		return nil
	}
	if err := consumer.RegisterConsumer(container.MirrorSyncSubscriber); err != nil {
		_ = consumer.Close()
		return err
	}

	g.Go(func() error {
		defer consumer.Close()
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("RabbitMQ consumer stopped", "error", err)
		}
		return nil
	})
	return nil
}

// every calls fn on each tick until ctx ends.
func every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func healthReport(stats outbox.Stats, sweeper *billingApp.Sweeper) map[string]any {
	return map[string]any{
		"status":            "ok",
		"running":           stats.IsRunning,
		"published":         stats.PublishedCount,
		"failed":            stats.FailedCount,
		"dead":              stats.DeadCount,
		"last_processed_at": stats.LastProcessedAt,
		"last_error_at":     stats.LastErrorAt,
		"last_error":        stats.LastError,
		"sweeper_running":   sweeper != nil && sweeper.IsRunning(),
	}
}

func logOutboxStats(ctx context.Context, container *app.Container, logger *slog.Logger) {
	stats := container.OutboxProcessor.GetStats()
	logger.Info("outbox stats",
		"running", stats.IsRunning,
		"published", stats.PublishedCount,
		"failed", stats.FailedCount,
		"dead", stats.DeadCount,
		"lag_seconds", stats.LagSeconds,
		"oldest_message_at", stats.OldestMessageAt,
		"last_error", stats.LastError,
	)
	if pending, err := container.OutboxRepo.CountPending(ctx); err == nil {
		container.Metrics.Gauge(outbox.MetricPending, float64(pending))
	}
}

// serveHTTP runs srv until ctx ends, then shuts it down gracefully.
func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("health server shutdown error", "error", err)
		}
	}()

	logger.Info("health server starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
