package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"cacaowallet/internal/config"
	"cacaowallet/internal/db"
	"cacaowallet/internal/logger"
	"cacaowallet/internal/migrate"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrationsDir string

var rootCmd = &cobra.Command{
	Use:           "migrate",
	Short:         "Manage the cacao wallet database schema",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDatabase(cmd.Context(), func(ctx context.Context, database *sqlx.DB) error {
			applied, err := migrate.Up(ctx, database, migrationsDir)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and when they were applied",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDatabase(cmd.Context(), func(ctx context.Context, database *sqlx.DB) error {
			migrations, err := migrate.Status(ctx, database, migrationsDir)
			if err != nil {
				return err
			}
			for _, m := range migrations {
				state := "pending"
				if m.Applied() {
					state = m.AppliedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-40s %s\n", m.Name, state)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&migrationsDir, "dir", "migrations", "directory holding the .sql migrations")
	rootCmd.AddCommand(upCmd, statusCmd)
}

func withDatabase(ctx context.Context, fn func(context.Context, *sqlx.DB) error) error {
	cfg := config.Load()
	database, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolFromConfig(cfg.Database))
	if err != nil {
		return err
	}
	defer database.Close()
	return fn(ctx, database)
}

func main() {
	cfg := config.Load()
	if err := logger.Initialize(logger.Config{Debug: cfg.Debug}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Flush(2 * time.Second)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logger.Default().Error("migration failed", zap.Error(err))
		logger.Flush(2 * time.Second)
		os.Exit(1)
	}
}
