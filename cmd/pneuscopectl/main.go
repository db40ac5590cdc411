// Command pneuscopectl runs one-off maintenance tasks against the PneuScope
// database: schema migrations and demo data.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/rsyarsya/pneuscope/internal/config"
	"github.com/rsyarsya/pneuscope/internal/repository/postgres"
	"github.com/rsyarsya/pneuscope/internal/seed"
	"github.com/rsyarsya/pneuscope/pkg/security"
)

var (
	verbose bool
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pneuscopectl",
	Short: "Maintenance commands for the PneuScope backend",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(ctx context.Context, db *sqlx.DB) error {
			applied, err := postgres.Migrate(ctx, db)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				logger.Info("Schema is up to date")
				return nil
			}
			for _, name := range applied {
				logger.Info("Applied migration", zap.String("name", name))
			}
			return nil
		})
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create demo accounts and sample patients",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(ctx context.Context, db *sqlx.DB) error {
			if _, err := postgres.Migrate(ctx, db); err != nil {
				return err
			}
			base := postgres.NewBaseRepository(db)
			s := seed.NewSeeder(
				postgres.NewUserRepository(base),
				postgres.NewPatientRepository(base),
				security.NewBcryptHasher(bcrypt.DefaultCost),
				logger,
			)
			res, err := s.Run(ctx)
			if err != nil {
				return err
			}
			logger.Info("Seed complete", zap.Int("users", res.Users), zap.Int("patients", res.Patients))
			return nil
		})
	},
}

func withDB(ctx context.Context, fn func(context.Context, *sqlx.DB) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Debug("Connecting to database", zap.String("host", cfg.Database.Host), zap.String("name", cfg.Database.Name))

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, db)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(migrateCmd, seedCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
