package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"attendancehub/internal/app"
	"attendancehub/internal/config"
	"attendancehub/internal/database"
	"attendancehub/internal/ledger"
	"attendancehub/internal/scheduler"
	"attendancehub/internal/sweeper"
)

var (
	Version   = "dev"
	BuildTime = "undefined"
	GitHash   = "undefined"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	configFile string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "attendancehub",
		Short:         "Biometric attendance device coordinator",
		Version:       fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, GitHash),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", os.Getenv("ATTENDANCEHUB_CONFIG_FILE"), "YAML or JSON config file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newSweepCmd(opts),
	)
	return root
}

func (o *options) load() (*config.Config, error) {
	if err := config.LoadDotEnv(o.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfigWithPrecedence(o.configFile)
	if err != nil {
		return nil, err
	}
	if err := config.ConfigureLogging(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket hub and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("application error: %w", err)
	}

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return application.Stop(shutdownCtx)
}

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
			return nil
		},
	}
}

func newSweepCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove unconfirmed enrollments and expired ongoing requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			requests, err := ledger.New(store, cfg.Ledger.TTL)
			if err != nil {
				return err
			}

			var removed, expired int
			var sweepErr error
			exec := scheduler.Inline{Ctx: cmd.Context()}
			if err := exec.Execute("pending-student-sweep", func(ctx context.Context) {
				removed, sweepErr = sweeper.New(store, cfg.Cleanup.PendingGrace).Run(ctx)
			}); err != nil || sweepErr != nil {
				return firstError(err, sweepErr)
			}
			if err := exec.Execute("ledger-sweep", func(ctx context.Context) {
				expired, sweepErr = requests.Sweep(ctx)
			}); err != nil || sweepErr != nil {
				return firstError(err, sweepErr)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "removed %d pending students and %d expired requests\n", removed, expired)
			return nil
		},
	}
}

func openStore(cfg *config.Config) (*database.Manager, error) {
	store, err := database.NewManager(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	applied, err := store.Migrate()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	log.WithField("applied", applied).Info("database migrations applied")
	return store, nil
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
