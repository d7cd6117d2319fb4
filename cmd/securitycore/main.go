package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DanielPopoola/payment-security-core/internal/bootstrap"
	"github.com/DanielPopoola/payment-security-core/internal/config"
	"github.com/DanielPopoola/payment-security-core/internal/infrastructure/telemetry"
	"github.com/DanielPopoola/payment-security-core/internal/interfaces/rest"
	"github.com/DanielPopoola/payment-security-core/internal/interfaces/rest/middleware"
	"github.com/DanielPopoola/payment-security-core/internal/worker"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting security core",
		"env", cfg.Primary.Env,
		"port", cfg.Server.Port,
		"log_level", cfg.Logger.Level,
	)

	shutdownTracing, err := telemetry.InitTracing(cfg.Tracing, logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to assemble security core", "error", err)
		os.Exit(1)
	}
	defer core.Close()

	applied, err := core.DB.Migrate(ctx)
	if err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", "versions", applied)
	}

	health := rest.NewHealthHandler(5*time.Second, logger)
	health.Register("postgres", core.DB.Ping)
	health.Register("redis", func(ctx context.Context) error {
		return core.Redis.Ping(ctx).Err()
	})

	handler := middleware.Recovery(logger)(rest.NewOpsMux(health, core.Metrics.Handler()))
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Timeout(cfg.Server.WriteTimeout)(handler)

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	abandonment := worker.NewAbandonmentWorker(
		core.ThreeDS,
		cfg.ThreeDS.AbandonAfter,
		cfg.Worker.BatchSize,
		cfg.Worker.Interval,
		logger.With("component", "abandonment_worker"),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		abandonment.Start(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("ops server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server forced to shutdown", "error", err)
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("security core stopped with error", "error", err)
		core.Close()
		os.Exit(1)
	}

	logger.Info("security core exited")
}
