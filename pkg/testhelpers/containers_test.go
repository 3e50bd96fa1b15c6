//go:build integration

package testhelpers

import (
	"context"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestTestStore_Connection(t *testing.T) {
	store := GetTestStore(t)

	ctx := context.Background()

	// Verify the seeded fixtures land where queries will look for them
	db := store.ShopDatabase(t)
	SeedOrders(t, db, 101, 6)

	count, err := db.Collection("orders").CountDocuments(ctx, bson.M{"shop_id": int64(101)})
	if err != nil {
		t.Fatalf("failed to count orders: %v", err)
	}
	if count != 6 {
		t.Errorf("expected 6 seeded orders, got %d", count)
	}
}

func TestTestStore_ShopScoping(t *testing.T) {
	store := GetTestStore(t)

	ctx := context.Background()
	db := store.ShopDatabase(t)

	// Two shops in one collection; filters must keep them apart
	SeedOrders(t, db, 201, 4, "delivered")
	SeedOrders(t, db, 202, 9, "pending")
	SeedProducts(t, db, 201, "Walnut Desk", "Oak Shelf")

	tests := []struct {
		collection string
		shopID     int64
		expected   int64
	}{
		{"orders", 201, 4},
		{"orders", 202, 9},
		{"products", 201, 2},
		{"products", 202, 0},
	}

	for _, tt := range tests {
		count, err := db.Collection(tt.collection).CountDocuments(ctx, bson.M{"shop_id": tt.shopID})
		if err != nil {
			t.Errorf("failed to count %s for shop %d: %v", tt.collection, tt.shopID, err)
			continue
		}
		if count != tt.expected {
			t.Errorf("%s shop %d: expected %d documents, got %d", tt.collection, tt.shopID, tt.expected, count)
		}
	}
}
