package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/shoplens-ai/shoplens-engine/pkg/apperrors"
)

// MongoStore implements DocumentStore over a mongo database handle.
type MongoStore struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
	logger  *zap.Logger
}

const defaultOpTimeout = 10 * time.Second

// NewMongoStore wraps an already-connected client. timeout bounds every
// individual operation; zero uses the default.
func NewMongoStore(client *mongo.Client, dbName string, timeout time.Duration, logger *zap.Logger) *MongoStore {
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MongoStore{
		client:  client,
		db:      client.Database(dbName),
		timeout: timeout,
		logger:  logger.Named("docstore"),
	}
}

// opContext bounds a single store operation.
func (s *MongoStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// wrapErr maps driver connectivity failures onto ErrStoreUnavailable so
// callers can distinguish "database down" from "bad query".
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return fmt.Errorf("%s: %w: %v", op, apperrors.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Aggregate implements DocumentStore.
func (s *MongoStore) Aggregate(ctx context.Context, collection string, pipeline mongo.Pipeline) ([]bson.M, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	start := time.Now()
	cursor, err := s.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, wrapErr("aggregate", err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, wrapErr("aggregate decode", err)
	}

	s.logger.Debug("aggregation executed",
		zap.String("collection", collection),
		zap.Int("stages", len(pipeline)),
		zap.Int("documents", len(docs)),
		zap.Duration("duration", time.Since(start)))

	return docs, nil
}

// Find implements DocumentStore.
func (s *MongoStore) Find(ctx context.Context, collection string, filter bson.D, opts FindOptions) ([]bson.M, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	findOpts := options.Find()
	if opts.Sort != nil {
		findOpts.SetSort(opts.Sort)
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	if opts.Projection != nil {
		findOpts.SetProjection(opts.Projection)
	}

	cursor, err := s.db.Collection(collection).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, wrapErr("find", err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, wrapErr("find decode", err)
	}
	return docs, nil
}

// FindOne implements DocumentStore.
func (s *MongoStore) FindOne(ctx context.Context, collection string, filter bson.D, sort bson.D) (bson.M, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	findOpts := options.FindOne()
	if sort != nil {
		findOpts.SetSort(sort)
	}

	var doc bson.M
	err := s.db.Collection(collection).FindOne(ctx, filter, findOpts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("find one", err)
	}
	return doc, nil
}

// Count implements DocumentStore.
func (s *MongoStore) Count(ctx context.Context, collection string, filter bson.D) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	n, err := s.db.Collection(collection).CountDocuments(ctx, filter)
	if err != nil {
		return 0, wrapErr("count", err)
	}
	return n, nil
}

// ListCollections implements DocumentStore.
func (s *MongoStore) ListCollections(ctx context.Context) ([]string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, wrapErr("list collections", err)
	}
	return names, nil
}

// Ping implements DocumentStore.
func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.client.Ping(ctx, nil); err != nil {
		return wrapErr("ping", err)
	}
	return nil
}

// Close implements DocumentStore.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var _ DocumentStore = (*MongoStore)(nil)
