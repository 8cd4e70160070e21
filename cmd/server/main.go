package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"example.com/trip-budget-planner/backend/internal/config"
)

func main() {
	ensureEnvFile()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := rootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "server",
		Short:         "trip budget planner backend",
		Long:          `Generates AI trip budgets and itineraries, stores plans and tracks expenses against them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}

	root.AddCommand(serveCommand())
	root.AddCommand(migrateCommand())
	root.AddCommand(tokenCommand())
	root.AddCommand(planCommand())

	return root
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		return cfg, err
	}
	return cfg, nil
}

func ensureEnvFile() {
	if os.Getenv("ENV_FILE") != "" {
		return
	}

	if _, err := os.Stat(".env"); err == nil {
		_ = os.Setenv("ENV_FILE", ".env")
		return
	}

	if _, err := os.Stat("../.env"); err == nil {
		_ = os.Setenv("ENV_FILE", "../.env")
	}
}
