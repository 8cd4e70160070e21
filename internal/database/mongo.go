package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"example.com/trip-budget-planner/backend/internal/config"
)

// OpenMongo подключается к MongoDB с ретраями и возвращает клиент и базу.
func OpenMongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, *mongo.Database, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.Timeout).
		SetServerSelectionTimeout(cfg.Timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}

	backoff := connectBackoff
	for i := 0; i < connectRetries; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		err = client.Ping(pingCtx, readpref.Primary())
		cancel()

		if err == nil {
			return client, client.Database(cfg.Database), nil
		}

		slog.Warn("mongo ping failed",
			slog.Int("attempt", i+1),
			slog.Int("retries", connectRetries),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			_ = client.Disconnect(context.Background())
			return nil, nil, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	_ = client.Disconnect(context.Background())
	return nil, nil, fmt.Errorf("не удалось подключиться к MongoDB после %d попыток: %w", connectRetries, err)
}
