package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marketplace/catalog-api/config"
	"github.com/marketplace/catalog-api/internal/bootstrap"
	"github.com/marketplace/catalog-api/internal/devseed"
)

const defaultMigrationTimeout = 5 * time.Minute

// app is the state shared by every subcommand once the root command has loaded config.
type app struct {
	Logger *slog.Logger
	Config config.AppConfig
	// load is replaced in tests so commands can run without the environment.
	load func() (config.AppConfig, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{load: bootstrap.LoadConfig}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		logger := a.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.ErrorContext(ctx, "command failed", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo,gocritic // CLI must propagate command failure to callers
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "catalog-admin",
		Short:         "Operational tasks for the catalog API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := a.load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.Config = cfg
			a.Logger = bootstrap.InitLogger(cfg.Observability.Logging)
			return nil
		},
	}

	root.AddCommand(newMigrateCmd(a), newSeedCmd(a), newCacheCmd(a))
	return root
}

func newMigrateCmd(a *app) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if timeout <= 0 {
				return errors.New("--timeout must be positive")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			in, err := openInfra(ctx, a.Logger, &a.Config, infraNeeds{DB: true})
			if err != nil {
				return err
			}
			defer closeQuietly(ctx, a.Logger, in)

			a.Logger.InfoContext(ctx, "running database migrations")
			return bootstrap.RunMigrations(ctx, in.db, a.Logger)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", defaultMigrationTimeout, "maximum time to wait for migrations")
	return cmd
}

type seedFlags struct {
	count     int
	merchants int
	batchSize int
	seed      uint64
	migrate   bool
}

func (f seedFlags) options() (devseed.Options, error) {
	if f.count <= 0 {
		return devseed.Options{}, errors.New("--count must be positive")
	}
	if f.merchants <= 0 {
		return devseed.Options{}, errors.New("--merchants must be positive")
	}
	return devseed.Options{
		Count:     f.count,
		Merchants: f.merchants,
		BatchSize: f.batchSize,
		Seed:      f.seed,
	}, nil
}

func newSeedCmd(a *app) *cobra.Command {
	var flags seedFlags
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a generated demo catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			in, err := openInfra(ctx, a.Logger, &a.Config, infraNeeds{Redis: true, Services: true})
			if err != nil {
				return err
			}
			defer closeQuietly(ctx, a.Logger, in)

			if flags.migrate {
				if err := bootstrap.RunMigrations(ctx, in.db, a.Logger); err != nil {
					return err
				}
			}

			n, err := devseed.Run(ctx, in.services.Products, opts, a.Logger)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "seeded %d products\n", n)
			return err
		},
	}
	cmd.Flags().IntVar(&flags.count, "count", 200, "number of products to generate")
	cmd.Flags().IntVar(&flags.merchants, "merchants", 3, "number of merchants to spread products across")
	cmd.Flags().IntVar(&flags.batchSize, "batch-size", 500, "products per COPY batch")
	cmd.Flags().Uint64Var(&flags.seed, "seed", 1, "random seed; the same seed yields the same catalog")
	cmd.Flags().BoolVar(&flags.migrate, "migrate", false, "run migrations before seeding")
	return cmd
}

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the page cache",
	}

	flush := &cobra.Command{
		Use:   "flush",
		Short: "Delete every cached page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			in, err := openInfra(ctx, a.Logger, &a.Config, infraNeeds{Redis: true, Services: true})
			if err != nil {
				return err
			}
			defer closeQuietly(ctx, a.Logger, in)

			if !in.services.PageCache.Enabled() {
				return errors.New("page cache is not configured")
			}
			n, err := in.services.PageCache.Flush(ctx)
			if err != nil {
				return fmt.Errorf("flush page cache: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d cached keys\n", n)
			return err
		},
	}

	warm := &cobra.Command{
		Use:   "warm",
		Short: "Load the configured warm targets once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			in, err := openInfra(ctx, a.Logger, &a.Config, infraNeeds{Redis: true, Services: true})
			if err != nil {
				return err
			}
			defer closeQuietly(ctx, a.Logger, in)

			targets := len(in.services.Warmer.Targets())
			warmed := in.services.Warmer.WarmOnce(ctx)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "warmed %d of %d pages\n", warmed, targets)
			return err
		},
	}

	cmd.AddCommand(flush, warm)
	return cmd
}

func closeQuietly(ctx context.Context, logger *slog.Logger, in *infra) {
	if err := in.Close(); err != nil {
		logger.WarnContext(ctx, "close infrastructure failed", "error", err)
	}
}
