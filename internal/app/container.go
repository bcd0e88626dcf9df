package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	billingApp "github.com/felixgeelhaar/cadence/internal/billing/application"
	billingDomain "github.com/felixgeelhaar/cadence/internal/billing/domain"
	billingCache "github.com/felixgeelhaar/cadence/internal/billing/infrastructure/cache"
	billingPersistence "github.com/felixgeelhaar/cadence/internal/billing/infrastructure/persistence"
	"github.com/felixgeelhaar/cadence/internal/billing/infrastructure/provider"
	sharedApplication "github.com/felixgeelhaar/cadence/internal/shared/application"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/cadence/internal/shared/infrastructure/database/postgres" // Register PostgreSQL driver
	_ "github.com/felixgeelhaar/cadence/internal/shared/infrastructure/database/sqlite"   // Register SQLite driver
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/cadence/pkg/config"
	"github.com/felixgeelhaar/cadence/pkg/observability"
	"github.com/redis/go-redis/v9"
)

// Container holds all application dependencies.
type Container struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *observability.PrometheusMetrics
	Health  *observability.HealthRegistry

	// Database
	DBConn   database.Connection
	DBDriver database.Driver

	// Redis (nil when REDIS_URL is unset or unreachable in development)
	RedisClient *redis.Client

	// Repositories
	SubscriptionRepo billingDomain.SubscriptionRepository
	UsageRepo        billingDomain.UsageRepository
	OutboxRepo       outbox.Repository
	StorageBreaker   *billingPersistence.Breaker

	// Unit of Work
	UnitOfWork sharedApplication.UnitOfWork

	// Billing services
	PlanResolver  *billingApp.PlanResolver
	UsageCounter  *billingApp.UsageCounter
	Gate          *billingApp.Gate
	StatusService *billingApp.StatusService
	SyncService   *billingApp.SyncService
	Providers     *provider.Registry
}

// NewContainer creates and wires all dependencies.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewPrometheusMetrics(logger),
		Health:  observability.NewHealthRegistry(2 * time.Second),
	}

	conn, err := database.NewConnection(ctx, database.Config{
		Driver:     database.Driver(cfg.DatabaseDriver),
		URL:        cfg.DatabaseURL,
		SQLitePath: cfg.SQLitePath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	c.DBConn = conn
	c.DBDriver = conn.Driver()
	c.Health.Register("database", observability.DatabaseHealthChecker(conn.Ping))
	logger.Info("connected to database", "driver", c.DBDriver)

	factory := NewRepositoryFactory(conn)
	if err := factory.Migrate(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := c.connectRedis(ctx); err != nil {
		c.Close()
		return nil, err
	}

	if err := c.wireBilling(factory); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// connectRedis is optional in development; production requires a reachable
// server once REDIS_URL is set.
func (c *Container) connectRedis(ctx context.Context) error {
	if c.Config.RedisURL == "" {
		return nil
	}

	opt, err := redis.ParseURL(c.Config.RedisURL)
	if err != nil {
		if !c.Config.IsDevelopment() {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		c.Logger.Warn("invalid Redis URL, subscription cache and distributed rate limit disabled", "error", err)
		return nil
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if !c.Config.IsDevelopment() {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		c.Logger.Warn("Redis not available, subscription cache and distributed rate limit disabled", "error", err)
		return nil
	}

	c.RedisClient = client
	c.Health.Register("redis", observability.RedisHealthChecker(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}))
	c.Logger.Info("connected to Redis")
	return nil
}

func (c *Container) wireBilling(factory *RepositoryFactory) error {
	cfg := c.Config

	subs, err := factory.SubscriptionRepository()
	if err != nil {
		return err
	}
	usage, err := factory.UsageRepository()
	if err != nil {
		return err
	}
	if c.OutboxRepo, err = factory.OutboxRepository(); err != nil {
		return err
	}
	if c.UnitOfWork, err = factory.UnitOfWork(); err != nil {
		return err
	}

	c.StorageBreaker = billingPersistence.NewBreaker(billingPersistence.BreakerConfig{
		Name:        "billing-storage",
		MaxFailures: uint32(max(cfg.BreakerMaxFailures, 0)),
		OpenTimeout: cfg.BreakerOpenTimeout,
	}, c.Logger, c.Metrics)
	subs = billingPersistence.NewBreakerSubscriptionRepository(subs, c.StorageBreaker)
	c.UsageRepo = billingPersistence.NewBreakerUsageRepository(usage, c.StorageBreaker)

	if c.RedisClient != nil {
		subs = billingCache.NewSubscriptionRepository(subs, c.RedisClient, cfg.SubscriptionCacheTTL, c.Logger, c.Metrics)
	}
	c.SubscriptionRepo = subs

	opts := []billingApp.Option{
		billingApp.WithLogger(c.Logger),
		billingApp.WithMetrics(c.Metrics),
		billingApp.WithStorageTimeout(cfg.StorageTimeout),
	}
	if cfg.HardQuota {
		locker, err := factory.QuotaLocker()
		if err != nil {
			return err
		}
		opts = append(opts, billingApp.WithHardQuota(locker))
	}

	c.PlanResolver = billingApp.NewPlanResolver(c.SubscriptionRepo, opts...)
	c.UsageCounter = billingApp.NewUsageCounter(c.UsageRepo, opts...)
	c.Gate = billingApp.NewGate(c.PlanResolver, c.UsageCounter, c.UsageRepo, c.OutboxRepo, c.UnitOfWork, opts...)
	c.StatusService = billingApp.NewStatusService(c.PlanResolver, c.UsageCounter, c.SubscriptionRepo, opts...)
	c.SyncService = billingApp.NewSyncService(c.SubscriptionRepo, c.OutboxRepo, c.UnitOfWork, opts...)

	stripe, err := provider.NewStripeTranslator(cfg.StripePricePlans)
	if err != nil {
		return err
	}
	shopify, err := provider.NewShopifyTranslator(cfg.ShopifyVariantPlans, cfg.ShopifyPeriod())
	if err != nil {
		return err
	}
	c.Providers = provider.NewRegistry(stripe, shopify)
	return nil
}

// NewEventPublisher connects to RabbitMQ, falling back to a noop publisher
// in development or when no broker is configured.
func NewEventPublisher(cfg *config.Config, logger *slog.Logger) (eventbus.Publisher, error) {
	if cfg.RabbitMQURL == "" {
		logger.Warn("RABBITMQ_URL not set, using noop publisher")
		return eventbus.NewNoopPublisher(logger), nil
	}

	publisher, err := eventbus.NewRabbitMQPublisher(eventbus.RabbitMQConfig{
		URL:   cfg.RabbitMQURL,
		AppID: "cadence",
	}, logger)
	if err != nil {
		if cfg.IsDevelopment() {
			logger.Warn("RabbitMQ not available, using noop publisher", "error", err)
			return eventbus.NewNoopPublisher(logger), nil
		}
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return publisher, nil
}

// Close releases all resources.
func (c *Container) Close() {
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Error("failed to close Redis client", "error", err)
		}
	}
	if c.DBConn != nil {
		if err := c.DBConn.Close(); err != nil {
			c.Logger.Error("failed to close database", "error", err)
		}
	}
}
