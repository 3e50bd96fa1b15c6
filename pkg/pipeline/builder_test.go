package pipeline

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/shoplens-ai/shoplens-engine/pkg/models"
)

func findKey(t *testing.T, doc bson.D, key string) (any, bool) {
	t.Helper()
	for _, e := range doc {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func countKey(doc bson.D, key string) int {
	n := 0
	for _, e := range doc {
		if e.Key == key {
			n++
		}
	}
	return n
}

func TestBuildMatchFilter_AlwaysPinsTenant(t *testing.T) {
	lt := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	gt := 100.0

	tests := []struct {
		name    string
		filters models.ExtractedFilters
	}{
		{
			name:    "no filters",
			filters: models.ExtractedFilters{},
		},
		{
			name: "date only",
			filters: models.ExtractedFilters{
				Date: &models.DateRange{GTE: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), LT: &lt},
			},
		},
		{
			name: "status only",
			filters: models.ExtractedFilters{
				Status: []models.StatusFilter{{Field: models.FieldStatus, Value: "delivered"}},
			},
		},
		{
			name: "numeric only",
			filters: models.ExtractedFilters{
				Numeric: &models.NumericFilter{Field: models.FieldGrandTotal, GT: &gt},
			},
		},
		{
			name: "extra filters",
			filters: models.ExtractedFilters{
				Extra: map[string]string{"category": "electronics"},
			},
		},
		{
			name: "extra filter tries to override tenant",
			filters: models.ExtractedFilters{
				Extra: map[string]string{models.FieldShopID: "999"},
			},
		},
		{
			name: "everything at once",
			filters: models.ExtractedFilters{
				Date:    &models.DateRange{GTE: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
				Status:  []models.StatusFilter{{Field: models.FieldPaymentStatus, Value: "paid"}},
				Numeric: &models.NumericFilter{Field: models.FieldGrandTotal, GTE: &gt},
				Extra:   map[string]string{"category": "books", models.FieldShopID: "999"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter := BuildMatchFilter(13, tt.filters)

			v, ok := findKey(t, filter, models.FieldShopID)
			if !ok {
				t.Fatalf("filter missing %s: %v", models.FieldShopID, filter)
			}
			shopID, ok := v.(int64)
			if !ok || shopID != 13 {
				t.Errorf("expected %s=13 (int64), got %v (%T)", models.FieldShopID, v, v)
			}
			if n := countKey(filter, models.FieldShopID); n != 1 {
				t.Errorf("expected exactly one %s entry, got %d", models.FieldShopID, n)
			}
		})
	}
}

func TestBuildMatchFilter_DateRange(t *testing.T) {
	gte := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	lt := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	t.Run("closed range", func(t *testing.T) {
		filter := BuildMatchFilter(1, models.ExtractedFilters{
			Date: &models.DateRange{GTE: gte, LT: &lt},
		})
		v, ok := findKey(t, filter, models.FieldCreatedAt)
		if !ok {
			t.Fatal("expected a created_at predicate")
		}
		rng, ok := v.(bson.D)
		if !ok {
			t.Fatalf("expected bson.D range, got %T", v)
		}
		if len(rng) != 2 || rng[0].Key != "$gte" || rng[1].Key != "$lt" {
			t.Errorf("unexpected range shape: %v", rng)
		}
		if rng[0].Value != gte || rng[1].Value != lt {
			t.Errorf("range bounds wrong: %v", rng)
		}
	})

	t.Run("open-ended range", func(t *testing.T) {
		filter := BuildMatchFilter(1, models.ExtractedFilters{
			Date: &models.DateRange{GTE: gte},
		})
		v, _ := findKey(t, filter, models.FieldCreatedAt)
		rng, ok := v.(bson.D)
		if !ok || len(rng) != 1 || rng[0].Key != "$gte" {
			t.Errorf("expected single $gte bound, got %v", v)
		}
	})
}

func TestBuildMatchFilter_Numeric(t *testing.T) {
	gt := 50.0
	lte := 200.0
	filter := BuildMatchFilter(7, models.ExtractedFilters{
		Numeric: &models.NumericFilter{Field: models.FieldGrandTotal, GT: &gt, LTE: &lte},
	})

	v, ok := findKey(t, filter, models.FieldGrandTotal)
	if !ok {
		t.Fatal("expected a grand_total predicate")
	}
	cmp, ok := v.(bson.D)
	if !ok {
		t.Fatalf("expected bson.D comparison, got %T", v)
	}
	if len(cmp) != 2 {
		t.Fatalf("expected two operators, got %v", cmp)
	}
	got := map[string]any{}
	for _, e := range cmp {
		got[e.Key] = e.Value
	}
	if got["$gt"] != gt || got["$lte"] != lte {
		t.Errorf("comparison operators wrong: %v", got)
	}
}

func TestBuildMatchFilter_EmptyNumericDropped(t *testing.T) {
	filter := BuildMatchFilter(7, models.ExtractedFilters{
		Numeric: &models.NumericFilter{Field: models.FieldGrandTotal},
	})
	if _, ok := findKey(t, filter, models.FieldGrandTotal); ok {
		t.Error("numeric filter with no operators should not produce a predicate")
	}
}

func TestBuildMatchFilter_MultipleStatuses(t *testing.T) {
	filter := BuildMatchFilter(3, models.ExtractedFilters{
		Status: []models.StatusFilter{
			{Field: models.FieldStatus, Value: "delivered"},
			{Field: models.FieldPaymentStatus, Value: "paid"},
		},
	})

	if v, ok := findKey(t, filter, models.FieldStatus); !ok || v != "delivered" {
		t.Errorf("expected status=delivered, got %v (present=%v)", v, ok)
	}
	if v, ok := findKey(t, filter, models.FieldPaymentStatus); !ok || v != "paid" {
		t.Errorf("expected payment_status=paid, got %v (present=%v)", v, ok)
	}
}

func TestStageBuilders(t *testing.T) {
	t.Run("sort direction", func(t *testing.T) {
		asc := Sort("created_at", false)
		spec := asc[0].Value.(bson.D)
		if spec[0].Value != 1 {
			t.Errorf("ascending sort should be 1, got %v", spec[0].Value)
		}
		desc := Sort("total", true)
		spec = desc[0].Value.(bson.D)
		if spec[0].Value != -1 {
			t.Errorf("descending sort should be -1, got %v", spec[0].Value)
		}
	})

	t.Run("group with accumulator", func(t *testing.T) {
		g := Group("$status", bson.D{{Key: "count", Value: Sum(1)}})
		if g[0].Key != "$group" {
			t.Fatalf("expected $group, got %s", g[0].Key)
		}
		spec := g[0].Value.(bson.D)
		if spec[0].Key != "_id" || spec[0].Value != "$status" {
			t.Errorf("group _id wrong: %v", spec[0])
		}
		if spec[1].Key != "count" {
			t.Errorf("accumulator missing: %v", spec)
		}
	})

	t.Run("lookup shape", func(t *testing.T) {
		l := Lookup("products", "items.product_id", "_id", "product")
		spec := l[0].Value.(bson.D)
		want := map[string]string{
			"from": "products", "localField": "items.product_id",
			"foreignField": "_id", "as": "product",
		}
		for _, e := range spec {
			if want[e.Key] != e.Value {
				t.Errorf("lookup %s = %v, want %v", e.Key, e.Value, want[e.Key])
			}
		}
	})
}

func TestNewSkipsNilStages(t *testing.T) {
	p := New(
		Match(bson.D{{Key: models.FieldShopID, Value: int64(1)}}),
		nil,
		Limit(5),
	)
	if len(p) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(p))
	}
	if p[0][0].Key != "$match" || p[1][0].Key != "$limit" {
		t.Errorf("unexpected stage order: %v", p)
	}
}
