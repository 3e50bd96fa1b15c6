// Package testhelpers provides shared infrastructure for integration tests:
// a MongoDB test container, fixture seeding, and shop-scoped JWT generation.
package testhelpers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoTestImage is the MongoDB image integration tests run against.
const MongoTestImage = "mongo:7"

// TestStore holds a running MongoDB container and a connected client.
type TestStore struct {
	Container testcontainers.Container
	Client    *mongo.Client
	URI       string
}

var (
	sharedStore     *TestStore
	sharedStoreOnce sync.Once
	sharedStoreErr  error
)

// GetTestStore returns a shared MongoDB container for integration tests.
// The container starts once per test binary and is reused by every test;
// tests isolate themselves with per-test databases via ShopDatabase.
func GetTestStore(t *testing.T) *TestStore {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedStoreOnce.Do(func() {
		sharedStore, sharedStoreErr = setupTestStore()
	})

	if sharedStoreErr != nil {
		t.Fatalf("Failed to set up test store: %v", sharedStoreErr)
	}

	return sharedStore
}

func setupTestStore() (*TestStore, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        MongoTestImage,
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor: wait.ForLog("Waiting for connections").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start mongo container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "27017")
	if err != nil {
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	uri := fmt.Sprintf("mongodb://%s:%s", host, port.Port())

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", uri, err)
	}

	// The readiness log line lands slightly before the listener does.
	var pingErr error
	for i := 0; i < 10; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		pingErr = client.Ping(pingCtx, readpref.Primary())
		cancel()
		if pingErr == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if pingErr != nil {
		return nil, fmt.Errorf("mongo never became reachable at %s: %w", uri, pingErr)
	}

	return &TestStore{
		Container: container,
		Client:    client,
		URI:       uri,
	}, nil
}

// ShopDatabase returns a database named after the calling test, dropped on
// cleanup, so parallel integration tests never see each other's collections.
func (s *TestStore) ShopDatabase(t *testing.T) *mongo.Database {
	t.Helper()

	db := s.Client.Database("shoplens_test_" + sanitizeDBName(t.Name()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
	})
	return db
}

// sanitizeDBName maps a Go test name onto MongoDB's database name rules.
// Subtest names contain '/', which MongoDB rejects outright.
func sanitizeDBName(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, name)

	// Database names are capped at 63 bytes; leave room for the prefix.
	if len(mapped) > 40 {
		mapped = mapped[:40]
	}
	return mapped
}

// SeedOrders inserts n order documents for shopID, cycling through statuses
// (pending/shipped/delivered when none are given), with grand totals
// 10, 20, 30... and created_at stepping back one day per order from now.
func SeedOrders(t *testing.T, db *mongo.Database, shopID int64, n int, statuses ...string) {
	t.Helper()

	if len(statuses) == 0 {
		statuses = []string{"pending", "shipped", "delivered"}
	}

	now := time.Now().UTC()
	docs := make([]interface{}, 0, n)
	for i := 0; i < n; i++ {
		docs = append(docs, bson.M{
			"shop_id":     shopID,
			"status":      statuses[i%len(statuses)],
			"grand_total": float64((i + 1) * 10),
			"currency":    "USD",
			"created_at":  now.AddDate(0, 0, -i),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := db.Collection("orders").InsertMany(ctx, docs); err != nil {
		t.Fatalf("Failed to seed orders: %v", err)
	}
}

// SeedProducts inserts product documents for shopID with the given titles,
// priced 5, 10, 15... so price aggregations have distinct values to find.
func SeedProducts(t *testing.T, db *mongo.Database, shopID int64, titles ...string) {
	t.Helper()

	now := time.Now().UTC()
	docs := make([]interface{}, 0, len(titles))
	for i, title := range titles {
		docs = append(docs, bson.M{
			"shop_id":    shopID,
			"title":      title,
			"price":      float64((i + 1) * 5),
			"status":     "active",
			"created_at": now.AddDate(0, 0, -i),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := db.Collection("products").InsertMany(ctx, docs); err != nil {
		t.Fatalf("Failed to seed products: %v", err)
	}
}
