// Package docstore abstracts the document database behind a narrow interface
// so services can be tested without a live MongoDB instance.
package docstore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// FindOptions shapes a Find call. Zero values mean "not set".
type FindOptions struct {
	Sort       bson.D
	Limit      int64
	Skip       int64
	Projection bson.D
}

// DocumentStore executes read operations against a document database.
// Implementations own their connection and must be closed when done.
type DocumentStore interface {
	// Aggregate runs an aggregation pipeline and returns all result documents.
	Aggregate(ctx context.Context, collection string, pipeline mongo.Pipeline) ([]bson.M, error)

	// Find returns documents matching the filter, shaped by opts.
	Find(ctx context.Context, collection string, filter bson.D, opts FindOptions) ([]bson.M, error)

	// FindOne returns the first document matching the filter in sort order.
	// Returns apperrors.ErrNotFound when nothing matches.
	FindOne(ctx context.Context, collection string, filter bson.D, sort bson.D) (bson.M, error)

	// Count returns the number of documents matching the filter.
	Count(ctx context.Context, collection string, filter bson.D) (int64, error)

	// ListCollections returns the collection names present in the database.
	ListCollections(ctx context.Context) ([]string, error)

	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}
