package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/shoplens-ai/shoplens-engine/pkg/config"
	"github.com/shoplens-ai/shoplens-engine/pkg/retry"
)

const mongoConnectTimeout = 10 * time.Second

// NewMongoClient connects to the document store and verifies the connection
// with a ping, retrying transient failures so the engine survives starting
// before the store does. The caller owns the client and must Disconnect it
// on shutdown.
func NewMongoClient(ctx context.Context, cfg *config.MongoConfig) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(cfg.ConnectionString()).
		SetConnectTimeout(mongoConnectTimeout)

	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	return retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*mongo.Client, error) {
		client, err := mongo.Connect(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}

		pingCtx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
		defer cancel()

		if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
			// Best effort; the client never served traffic.
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
		}

		return client, nil
	})
}
