package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"example.com/trip-budget-planner/backend/internal/config"
	"example.com/trip-budget-planner/backend/internal/database"
)

func migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply PostgreSQL schema migrations",
		Long:  `Applies the embedded goose migrations, or rolls back the last one with --down.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			down, _ := cmd.Flags().GetBool("down")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store.Driver != config.StoreDriverPostgres {
				slog.Info("migrations only apply to the postgres store", slog.String("driver", cfg.Store.Driver))
				return nil
			}

			if err := database.Migrate(cmd.Context(), cfg.Database.DSN(), down); err != nil {
				slog.Error("migration failed", slog.Bool("down", down), slog.String("error", err.Error()))
				return err
			}

			slog.Info("migrations completed", slog.Bool("down", down))
			return nil
		},
	}

	cmd.Flags().Bool("down", false, "roll back the last migration")
	return cmd
}
