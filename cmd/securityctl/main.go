package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/DanielPopoola/payment-security-core/internal/application"
	"github.com/DanielPopoola/payment-security-core/internal/bootstrap"
	"github.com/DanielPopoola/payment-security-core/internal/config"
	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/DanielPopoola/payment-security-core/internal/infrastructure/persistence/postgres"
	"github.com/DanielPopoola/payment-security-core/internal/infrastructure/redis"
	"github.com/spf13/cobra"
)

var Version = "dev"

type cardStore interface {
	Revoke(ctx context.Context, token string) (bool, error)
	Purge(ctx context.Context, token string) error
	CardsForCustomer(ctx context.Context, customerID string) ([]*domain.Card, error)
}

type authLookup interface {
	Get(ctx context.Context, transactionID string) (*domain.Authentication, error)
}

type blacklistStore interface {
	application.BlacklistManager
	Members(ctx context.Context, kind application.BlacklistKind) ([]string, error)
}

// deps opens only what a command needs. Tests swap in fakes.
type deps struct {
	migrate   func(ctx context.Context) ([]string, error)
	cards     func(ctx context.Context) (cardStore, error)
	auths     func(ctx context.Context) (authLookup, error)
	blacklist func(ctx context.Context) (blacklistStore, error)
}

func main() {
	env := &runtimeEnv{}
	defer env.close()

	root := newRootCmd(env.deps())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		env.close()
		os.Exit(application.ExitCode(err))
	}
}

func newRootCmd(d *deps) *cobra.Command {
	root := &cobra.Command{
		Use:           "securityctl",
		Short:         "Operator tool for the payment security core",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(migrateCmd(d))
	root.AddCommand(cardCmd(d))
	root.AddCommand(threeDSCmd(d))
	root.AddCommand(blacklistCmd(d))
	return root
}

func migrateCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			applied, err := d.migrate(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(applied) == 0 {
				fmt.Fprintln(out, "schema is up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintln(out, "applied", v)
			}
			return nil
		},
	}
}

// runtimeEnv loads configuration once and keeps connections for reuse
// across the single command a process runs.
type runtimeEnv struct {
	once   sync.Once
	cfg    *config.Config
	logger *slog.Logger
	err    error

	core *bootstrap.Core
	db   *postgres.DB
	rdb  interface{ Close() error }
}

func (e *runtimeEnv) load() error {
	e.once.Do(func() {
		e.cfg, e.err = config.LoadConfig()
		if e.err != nil {
			return
		}
		// Keep stdout for command output.
		e.logger = e.cfg.Logger.NewLoggerTo(os.Stderr)
	})
	return e.err
}

func (e *runtimeEnv) assemble(ctx context.Context) (*bootstrap.Core, error) {
	if e.core != nil {
		return e.core, nil
	}
	if err := e.load(); err != nil {
		return nil, err
	}
	core, err := bootstrap.Build(ctx, e.cfg, e.logger)
	if err != nil {
		return nil, err
	}
	e.core = core
	return core, nil
}

func (e *runtimeEnv) deps() *deps {
	return &deps{
		migrate: func(ctx context.Context) ([]string, error) {
			if err := e.load(); err != nil {
				return nil, err
			}
			db, err := postgres.Connect(ctx, &e.cfg.Database, e.logger)
			if err != nil {
				return nil, err
			}
			e.db = db
			return db.Migrate(ctx)
		},
		cards: func(ctx context.Context) (cardStore, error) {
			core, err := e.assemble(ctx)
			if err != nil {
				return nil, err
			}
			return core.Vault, nil
		},
		auths: func(ctx context.Context) (authLookup, error) {
			core, err := e.assemble(ctx)
			if err != nil {
				return nil, err
			}
			return core.ThreeDS, nil
		},
		blacklist: func(ctx context.Context) (blacklistStore, error) {
			if err := e.load(); err != nil {
				return nil, err
			}
			client, err := redis.Connect(ctx, e.cfg.Redis)
			if err != nil {
				return nil, err
			}
			e.rdb = client
			return redis.NewBlacklist(client), nil
		},
	}
}

func (e *runtimeEnv) close() {
	if e.core != nil {
		e.core.Close()
		e.core = nil
	}
	if e.db != nil {
		e.db.Close()
		e.db = nil
	}
	if e.rdb != nil {
		_ = e.rdb.Close()
		e.rdb = nil
	}
}
