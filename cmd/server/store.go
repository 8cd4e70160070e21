package main

import (
	"context"
	"fmt"
	"log/slog"

	"example.com/trip-budget-planner/backend/internal/config"
	"example.com/trip-budget-planner/backend/internal/database"
	"example.com/trip-budget-planner/backend/internal/repository"
	"example.com/trip-budget-planner/backend/internal/repository/docstore"
	"example.com/trip-budget-planner/backend/internal/repository/memory"
	"example.com/trip-budget-planner/backend/internal/server"
)

// openStore подключает хранилище планов по STORE_DRIVER и возвращает функцию закрытия.
func openStore(ctx context.Context, cfg config.Config) (server.Deps, func(), error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		pool, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return server.Deps{}, nil, err
		}
		return server.Deps{
			Plans: repository.NewPlanRepository(pool),
			AILog: repository.NewAIRepository(pool),
		}, pool.Close, nil

	case config.StoreDriverMongo:
		client, db, err := database.OpenMongo(ctx, cfg.Mongo)
		if err != nil {
			return server.Deps{}, nil, err
		}
		store := docstore.New(db)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return server.Deps{}, nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		closeFn := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				slog.Warn("mongo disconnect failed", slog.String("error", err.Error()))
			}
		}
		return server.Deps{Plans: store, AILog: store}, closeFn, nil

	case config.StoreDriverMemory:
		store := memory.New()
		return server.Deps{Plans: store, AILog: store}, func() {}, nil

	default:
		return server.Deps{}, nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}
