// Package bootstrap assembles the four security components from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DanielPopoola/payment-security-core/internal/application"
	"github.com/DanielPopoola/payment-security-core/internal/application/dispatch"
	"github.com/DanielPopoola/payment-security-core/internal/application/fraud"
	"github.com/DanielPopoola/payment-security-core/internal/application/threeds"
	"github.com/DanielPopoola/payment-security-core/internal/application/vault"
	"github.com/DanielPopoola/payment-security-core/internal/config"
	"github.com/DanielPopoola/payment-security-core/internal/infrastructure/events"
	"github.com/DanielPopoola/payment-security-core/internal/infrastructure/geo"
	"github.com/DanielPopoola/payment-security-core/internal/infrastructure/persistence/postgres"
	"github.com/DanielPopoola/payment-security-core/internal/infrastructure/processors"
	"github.com/DanielPopoola/payment-security-core/internal/infrastructure/redis"
	"github.com/DanielPopoola/payment-security-core/internal/infrastructure/telemetry"
	mpi "github.com/DanielPopoola/payment-security-core/internal/infrastructure/threeds"
	goredis "github.com/redis/go-redis/v9"
)

// Core holds the wired components and the connections they share.
type Core struct {
	DB        *postgres.DB
	Redis     *goredis.Client
	Blacklist *redis.Blacklist
	Metrics   *telemetry.Metrics

	Vault      *vault.Service
	Fraud      *fraud.Engine
	ThreeDS    *threeds.Orchestrator
	Dispatcher *dispatch.Dispatcher

	publisher application.EventPublisher
	logger    *slog.Logger
}

// Build connects to PostgreSQL and Redis and constructs every component.
// On error, anything already opened is closed.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Core, err error) {
	core := &Core{Metrics: telemetry.NewMetrics(), logger: logger}
	defer func() {
		if err != nil {
			core.Close()
		}
	}()

	core.DB, err = postgres.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	core.Redis, err = redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	core.Blacklist = redis.NewBlacklist(core.Redis)

	core.publisher = newPublisher(cfg.Kafka, logger)

	keys, err := vault.KeysFromConfig(cfg.Vault)
	if err != nil {
		return nil, err
	}
	core.Vault, err = vault.NewService(
		postgres.NewCardRepository(core.DB),
		core.publisher,
		keys,
		core.Metrics,
		logger.With("component", "vault"),
	)
	if err != nil {
		return nil, fmt.Errorf("build vault: %w", err)
	}

	var locator application.GeoLocator = geo.NewClient(cfg.Geo)
	locator = geo.NewRetryLocator(locator, cfg.Retry)
	locator = redis.NewCachingGeoLocator(locator, core.Redis, cfg.Geo.CacheTTL, logger)

	core.Fraud = fraud.NewEngine(
		postgres.NewTransactionHistory(core.DB),
		postgres.NewPaymentMethodRepository(core.DB),
		locator,
		core.Blacklist,
		fraud.Config{
			HighRiskCountries: cfg.Fraud.HighRiskCountryList(),
			Timeout:           cfg.Fraud.Timeout,
		},
		core.Metrics,
		logger.With("component", "fraud"),
	)

	providers, err := mpi.NewProviders(cfg.ThreeDS)
	if err != nil {
		return nil, fmt.Errorf("build 3-D Secure providers: %w", err)
	}
	core.ThreeDS = threeds.NewOrchestrator(
		postgres.NewAuthenticationRepository(core.DB),
		core.Vault,
		providers,
		core.publisher,
		core.Metrics,
		logger.With("component", "threeds"),
	)

	registry, err := dispatch.NewRegistry(Processors(cfg.Processors), dispatch.DefaultRoutes())
	if err != nil {
		return nil, fmt.Errorf("build processor registry: %w", err)
	}
	core.Dispatcher = dispatch.NewDispatcher(registry, core.Metrics, logger.With("component", "dispatch"))

	logger.Info("security core assembled",
		"processors", registry.Names(),
		"threeds_providers", len(providers),
		"kafka", cfg.Kafka.Enabled,
	)
	return core, nil
}

// Processors returns one client per supported processor.
func Processors(cfg config.ProcessorsConfig) []application.Processor {
	return []application.Processor{
		processors.NewStripe(cfg.Stripe, cfg.Timeout),
		processors.NewPayPal(cfg.PayPal, cfg.Timeout),
		processors.NewPlaid(cfg.Plaid, cfg.Timeout),
		processors.NewCoinbase(cfg.Coinbase, cfg.Timeout),
		processors.NewInternal(),
	}
}

func newPublisher(cfg config.KafkaConfig, logger *slog.Logger) application.EventPublisher {
	if cfg.Enabled {
		return events.NewKafkaPublisher(cfg, logger)
	}
	return events.NewLogPublisher(logger)
}

// Close releases connections in reverse order of acquisition.
func (c *Core) Close() {
	if closer, ok := c.publisher.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			c.logger.Error("failed to close event publisher", "error", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			c.logger.Error("failed to close redis", "error", err)
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
}
