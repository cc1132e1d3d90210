package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	billingApp "github.com/felixgeelhaar/tutorhub/internal/billing/application"
	"github.com/felixgeelhaar/tutorhub/internal/billing/application/commands"
	billingSubs "github.com/felixgeelhaar/tutorhub/internal/billing/application/subscribers"
	"github.com/felixgeelhaar/tutorhub/internal/billing/application/webhooks"
	billingDomain "github.com/felixgeelhaar/tutorhub/internal/billing/domain"
	"github.com/felixgeelhaar/tutorhub/internal/billing/infrastructure/dedup"
	"github.com/felixgeelhaar/tutorhub/internal/billing/infrastructure/mirror"
	sharedApplication "github.com/felixgeelhaar/tutorhub/internal/shared/application"
	"github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/convert"
	"github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/tutorhub/pkg/config"
	"github.com/felixgeelhaar/tutorhub/pkg/observability"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Metrics
	Metrics    observability.Metrics
	Prometheus *observability.PrometheusMetrics

	// Database (exactly one of DB and SQLiteDB is set)
	DB       *pgxpool.Pool
	SQLiteDB *sql.DB
	DBDriver database.Driver

	// Redis
	RedisClient *redis.Client

	// Repositories
	SubscriptionRepo billingDomain.SubscriptionRepository
	AuditRepo        billingDomain.AuditRepository
	OutboxRepo       outbox.Repository

	// Unit of Work
	UnitOfWork sharedApplication.UnitOfWork

	// Publishers
	EventPublisher    eventbus.Publisher
	RabbitPublisher   *eventbus.RabbitMQPublisher
	InProcessEventBus *eventbus.InProcessEventBus

	// Billing
	TransitionHandler *commands.TransitionSubscriptionHandler
	Importer          *commands.Importer
	BillingService    *billingApp.Service
	Maintenance       *billingApp.MaintenanceService

	// Webhook replay
	DedupStore       dedup.Store
	WebhookProcessor *webhooks.Processor

	// Profile mirror
	MirrorClient         *mirror.Client
	MirrorSyncSubscriber *billingSubs.MirrorSyncSubscriber

	// Outbox Processor
	OutboxProcessor *outbox.Processor
}

// NewContainer creates and wires all dependencies for server mode
// (PostgreSQL, Redis and RabbitMQ).
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	c := newContainer(cfg, logger)

	pool, err := database.OpenPostgres(ctx, cfg.DatabaseURL, convert.PositiveInt32(cfg.DatabaseMaxConns, 10))
	if err != nil {
		return nil, err
	}
	c.DB = pool
	c.DBDriver = database.DriverPostgres
	logger.Info("connected to database")

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := c.wireRepositories(NewPostgresRepositoryFactory(pool)); err != nil {
		c.Close()
		return nil, err
	}

	// Connect to Redis (optional in development)
	if cfg.RedisURL != "" {
		client, err := connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			if !cfg.IsDevelopment() {
				c.Close()
				return nil, err
			}
			logger.Warn("Redis not available, webhook dedup will use in-memory fallback", "error", err)
		} else {
			c.RedisClient = client
			logger.Info("connected to Redis")
		}
	}

	if err := c.wireMirror(ctx); err != nil {
		c.Close()
		return nil, err
	}

	// Create event publisher
	publisher, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, logger)
	if err != nil {
		// Fall back to noop publisher in development
		if !cfg.IsDevelopment() {
			c.Close()
			return nil, err
		}
		logger.Warn("RabbitMQ not available, using noop publisher", "error", err)
		c.EventPublisher = eventbus.NewNoopPublisher(logger)
	} else {
		c.RabbitPublisher = publisher
		c.EventPublisher = publisher
	}

	c.wireBilling()

	logger.Info("server mode container initialized", "driver", c.DBDriver.String())
	return c, nil
}

// NewLocalContainer creates a container for local mode with SQLite.
// Events are delivered in-process; no PostgreSQL, Redis or RabbitMQ is needed.
func NewLocalContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	c := newContainer(cfg, logger)

	db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
	}
	c.SQLiteDB = db
	c.DBDriver = database.DriverSQLite

	logger.Info("running SQLite migrations")
	if err := migrations.RunSQLiteMigrations(ctx, db); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := c.wireRepositories(NewSQLiteRepositoryFactory(db)); err != nil {
		c.Close()
		return nil, err
	}

	if err := c.wireMirror(ctx); err != nil {
		c.Close()
		return nil, err
	}

	c.InProcessEventBus = eventbus.NewInProcessEventBus(logger)
	if c.MirrorSyncSubscriber != nil {
		c.InProcessEventBus.RegisterConsumer(c.MirrorSyncSubscriber)
		logger.Info("mirror sync subscriber enabled")
	}
	c.EventPublisher = c.InProcessEventBus

	c.wireBilling()

	logger.Info("local mode container initialized",
		"database", cfg.SQLitePath,
		"driver", c.DBDriver.String(),
	)
	return c, nil
}

// NewContainerFromConfig picks local or server mode from the configuration.
func NewContainerFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if cfg.IsSQLite() {
		return NewLocalContainer(ctx, cfg, logger)
	}
	return NewContainer(ctx, cfg, logger)
}

func newContainer(cfg *config.Config, logger *slog.Logger) *Container {
	if logger == nil {
		logger = slog.Default()
	}
	prom := observability.NewPrometheusMetrics()
	return &Container{
		Config:     cfg,
		Logger:     logger,
		Metrics:    prom,
		Prometheus: prom,
	}
}

func (c *Container) wireRepositories(factory *RepositoryFactory) error {
	var err error
	if c.SubscriptionRepo, err = factory.SubscriptionRepository(); err != nil {
		return fmt.Errorf("failed to create subscription repository: %w", err)
	}
	if c.AuditRepo, err = factory.AuditRepository(); err != nil {
		return fmt.Errorf("failed to create audit repository: %w", err)
	}
	if c.OutboxRepo, err = factory.OutboxRepository(); err != nil {
		return fmt.Errorf("failed to create outbox repository: %w", err)
	}
	if c.UnitOfWork, err = factory.UnitOfWork(); err != nil {
		return fmt.Errorf("failed to create unit of work: %w", err)
	}
	return nil
}

func (c *Container) wireMirror(ctx context.Context) error {
	if !c.Config.MirrorEnabled() {
		c.Logger.Info("profile mirror not configured, sync disabled")
		return nil
	}

	credentials := mirror.ClientCredentials{
		ClientID:     c.Config.MirrorOAuthClientID,
		ClientSecret: c.Config.MirrorOAuthClientSecret,
		TokenURL:     c.Config.MirrorOAuthTokenURL,
		Scopes:       c.Config.MirrorOAuthScopes,
	}
	client, err := mirror.NewClient(mirror.Config{
		BaseURL:     c.Config.MirrorURL,
		APIKey:      c.Config.MirrorAPIKey,
		Timeout:     c.Config.MirrorTimeout,
		TokenSource: credentials.TokenSource(context.WithoutCancel(ctx)),
	}, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to create mirror client: %w", err)
	}

	c.MirrorClient = client
	c.MirrorSyncSubscriber = billingSubs.NewMirrorSyncSubscriber(client, c.Logger)
	c.MirrorSyncSubscriber.SetMetrics(c.Metrics)
	return nil
}

func (c *Container) wireBilling() {
	logger := c.Logger

	c.TransitionHandler = commands.NewTransitionSubscriptionHandler(
		c.SubscriptionRepo,
		c.AuditRepo,
		c.OutboxRepo,
		c.UnitOfWork,
		logger,
	)
	c.TransitionHandler.SetMetrics(c.Metrics)

	c.Importer = commands.NewImporter(c.SubscriptionRepo, c.AuditRepo, c.UnitOfWork, logger)
	c.Importer.SetMetrics(c.Metrics)

	c.BillingService = billingApp.NewService(c.SubscriptionRepo, c.AuditRepo)

	c.Maintenance = billingApp.NewMaintenanceService(c.SubscriptionRepo, c.TransitionHandler, logger)
	c.Maintenance.SetMetrics(c.Metrics)

	if c.RedisClient != nil {
		c.DedupStore = dedup.NewRedisStore(c.RedisClient)
	} else {
		c.DedupStore = dedup.NewMemoryStore()
	}
	c.WebhookProcessor = webhooks.NewProcessor(
		webhooks.NewMapper(c.BillingService),
		c.TransitionHandler,
		c.DedupStore,
		c.Config.WebhookDedupTTL,
		logger,
	)
	c.WebhookProcessor.SetMetrics(c.Metrics)

	c.OutboxProcessor = outbox.NewProcessor(c.OutboxRepo, c.EventPublisher, c.processorConfig(), logger)
	c.OutboxProcessor.SetMetrics(c.Metrics)
}

func (c *Container) processorConfig() outbox.ProcessorConfig {
	cfg := outbox.DefaultProcessorConfig()
	if c.Config.OutboxPollInterval > 0 {
		cfg.PollInterval = c.Config.OutboxPollInterval
	}
	if c.Config.OutboxBatchSize > 0 {
		cfg.BatchSize = c.Config.OutboxBatchSize
	}
	if c.Config.OutboxMaxRetries > 0 {
		cfg.MaxRetries = c.Config.OutboxMaxRetries
	}
	return cfg
}

// IsLocal reports whether the container runs on SQLite with in-process delivery.
func (c *Container) IsLocal() bool {
	return c.DBDriver == database.DriverSQLite
}

// DrainOutbox publishes pending outbox messages once. Local mode has no
// long-running worker, so one-shot commands call this before exiting.
func (c *Container) DrainOutbox(ctx context.Context) error {
	if c.OutboxProcessor == nil {
		return nil
	}
	return c.OutboxProcessor.ProcessOnce(ctx)
}

// PingDatabase verifies the primary store connection.
func (c *Container) PingDatabase(ctx context.Context) error {
	switch {
	case c.DB != nil:
		return c.DB.Ping(ctx)
	case c.SQLiteDB != nil:
		return c.SQLiteDB.PingContext(ctx)
	default:
		return errors.New("no database configured")
	}
}

// HealthRegistry registers readiness checks for every connected backend.
func (c *Container) HealthRegistry() *observability.HealthRegistry {
	registry := observability.NewHealthRegistry(0)
	registry.Register("database", observability.PingChecker(c.PingDatabase, false))

	if c.RedisClient != nil {
		registry.Register("redis", observability.PingChecker(func(ctx context.Context) error {
			return c.RedisClient.Ping(ctx).Err()
		}, true))
	}

	if c.RabbitPublisher != nil {
		registry.Register("rabbitmq", observability.PingChecker(func(context.Context) error {
			if !c.RabbitPublisher.Healthy() {
				return eventbus.ErrPublisherClosed
			}
			return nil
		}, false))
	}

	if c.MirrorClient != nil {
		registry.Register("mirror", observability.PingChecker(func(context.Context) error {
			if state := c.MirrorClient.State(); state == "open" {
				return fmt.Errorf("circuit breaker %s", state)
			}
			return nil
		}, true))
	}

	return registry
}

// Close cleans up all resources.
func (c *Container) Close() {
	if c.OutboxProcessor != nil {
		c.OutboxProcessor.Stop()
	}

	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("error closing event publisher", "error", err)
		}
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("error closing Redis connection", "error", err)
		} else {
			c.Logger.Info("Redis connection closed")
		}
	}

	if c.DB != nil {
		c.DB.Close()
		c.Logger.Info("PostgreSQL connection closed")
	}

	if c.SQLiteDB != nil {
		if err := c.SQLiteDB.Close(); err != nil {
			c.Logger.Warn("error closing SQLite connection", "error", err)
		} else {
			c.Logger.Info("SQLite connection closed")
		}
	}
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
