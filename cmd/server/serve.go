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

	"github.com/spf13/cobra"

	"example.com/trip-budget-planner/backend/internal/server"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store", slog.String("driver", cfg.Store.Driver), slog.String("error", err.Error()))
		return err
	}
	defer closeStore()

	deps.AIClient, err = server.NewAIClient(cfg.AI)
	if err != nil {
		logger.Error("failed to create ai client", slog.String("error", err.Error()))
		return err
	}

	e := server.New(cfg, logger, deps)
	httpServer := server.NewHTTPServer(cfg.Server, cfg.CORS, e)

	go func() {
		logger.Info("http server started",
			slog.String("addr", httpServer.Addr),
			slog.String("store", cfg.Store.Driver),
			slog.String("ai_provider", cfg.AI.Provider),
		)
		if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.String("error", err.Error()))
		return err
	}

	return nil
}
