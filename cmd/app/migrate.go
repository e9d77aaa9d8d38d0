package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"activation-code-service/internal/config"
	pg "activation-code-service/internal/infra/db/postgres"
	"activation-code-service/internal/infra/logging"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *pg.Migrator) error {
				return m.Down(ctx, steps)
			})
		},
	}
	down.Flags().IntVarP(&steps, "steps", "n", 1, "number of migrations to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Run all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd.Context(), func(ctx context.Context, m *pg.Migrator) error {
					return m.Up(ctx)
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd.Context(), func(ctx context.Context, m *pg.Migrator) error {
					v, err := m.Version(ctx)
					if err != nil {
						return err
					}
					fmt.Printf("Current version: %d\n", v)
					return m.Status(ctx)
				})
			},
		},
	)
	return cmd
}

func withMigrator(ctx context.Context, fn func(ctx context.Context, m *pg.Migrator) error) error {
	cfg, err := config.LoadConfig(cfgPath, devMode)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 2)
	if err != nil {
		return err
	}
	defer pool.Close()

	m, err := pg.NewMigrator(pool)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := fn(ctx, m); err != nil {
		logger.Error().Err(err).Msg("migration failed")
		return err
	}
	logger.Info().Msg("migration finished")
	return nil
}
