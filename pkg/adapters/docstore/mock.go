package docstore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MockStore is a configurable DocumentStore for tests. Set the function
// fields to control behavior; calls and their arguments are recorded so
// tests can assert on the pipelines services actually built.
type MockStore struct {
	AggregateFunc       func(ctx context.Context, collection string, pipeline mongo.Pipeline) ([]bson.M, error)
	FindFunc            func(ctx context.Context, collection string, filter bson.D, opts FindOptions) ([]bson.M, error)
	FindOneFunc         func(ctx context.Context, collection string, filter bson.D, sort bson.D) (bson.M, error)
	CountFunc           func(ctx context.Context, collection string, filter bson.D) (int64, error)
	ListCollectionsFunc func(ctx context.Context) ([]string, error)
	PingFunc            func(ctx context.Context) error

	AggregateCalls       int
	FindCalls            int
	FindOneCalls         int
	CountCalls           int
	ListCollectionsCalls int
	PingCalls            int
	CloseCalls           int

	LastCollection string
	LastPipeline   mongo.Pipeline
	LastFilter     bson.D
}

// NewMockStore creates an empty mock; unset functions return zero values.
func NewMockStore() *MockStore {
	return &MockStore{}
}

// Aggregate implements DocumentStore.
func (m *MockStore) Aggregate(ctx context.Context, collection string, pipeline mongo.Pipeline) ([]bson.M, error) {
	m.AggregateCalls++
	m.LastCollection = collection
	m.LastPipeline = pipeline
	if m.AggregateFunc != nil {
		return m.AggregateFunc(ctx, collection, pipeline)
	}
	return nil, nil
}

// Find implements DocumentStore.
func (m *MockStore) Find(ctx context.Context, collection string, filter bson.D, opts FindOptions) ([]bson.M, error) {
	m.FindCalls++
	m.LastCollection = collection
	m.LastFilter = filter
	if m.FindFunc != nil {
		return m.FindFunc(ctx, collection, filter, opts)
	}
	return nil, nil
}

// FindOne implements DocumentStore.
func (m *MockStore) FindOne(ctx context.Context, collection string, filter bson.D, sort bson.D) (bson.M, error) {
	m.FindOneCalls++
	m.LastCollection = collection
	m.LastFilter = filter
	if m.FindOneFunc != nil {
		return m.FindOneFunc(ctx, collection, filter, sort)
	}
	return nil, nil
}

// Count implements DocumentStore.
func (m *MockStore) Count(ctx context.Context, collection string, filter bson.D) (int64, error) {
	m.CountCalls++
	m.LastCollection = collection
	m.LastFilter = filter
	if m.CountFunc != nil {
		return m.CountFunc(ctx, collection, filter)
	}
	return 0, nil
}

// ListCollections implements DocumentStore.
func (m *MockStore) ListCollections(ctx context.Context) ([]string, error) {
	m.ListCollectionsCalls++
	if m.ListCollectionsFunc != nil {
		return m.ListCollectionsFunc(ctx)
	}
	return nil, nil
}

// Ping implements DocumentStore.
func (m *MockStore) Ping(ctx context.Context) error {
	m.PingCalls++
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// Close implements DocumentStore.
func (m *MockStore) Close(ctx context.Context) error {
	m.CloseCalls++
	return nil
}

var _ DocumentStore = (*MockStore)(nil)
