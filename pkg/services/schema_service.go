package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shoplens-ai/shoplens-engine/pkg/adapters/docstore"
	"github.com/shoplens-ai/shoplens-engine/pkg/models"
)

// SchemaService supplies classifiers and the generative prompt builder with a
// live description of the collections and fields available to query, so
// prompts and pattern sets stay grounded in actual data shape.
type SchemaService interface {
	// GetFormattedSchema returns a human-readable schema description. The
	// live collection list is merged with the field descriptors and cached
	// briefly; when the store is unreachable the static descriptors are
	// returned so classification can proceed.
	GetFormattedSchema(ctx context.Context) string

	// GetCollectionFields returns field name -> description for one
	// collection, or nil for an unknown collection.
	GetCollectionFields(name string) map[string]string
}

// collectionFields describes the queryable fields per collection. Static by
// design: the engine only aggregates over fields it understands, regardless
// of what else documents carry.
var collectionFields = map[string]map[string]string{
	models.CollectionOrders: {
		models.FieldShopID:         "int -owning shop, scopes every query",
		"order_number":             "string -human-readable order reference",
		models.FieldStatus:         "string -pending | confirmed | shipped | delivered | canceled",
		models.FieldPaymentStatus:  "string -paid | unpaid | pending",
		models.FieldGrandTotal:     "number -order total including delivery",
		models.FieldDeliveryCharge: "number -delivery fee portion of the total",
		"customer_id":              "id -reference into customers",
		"items":                    "array of {product_id, name, quantity, price}",
		models.FieldCreatedAt:      "datetime -when the order was placed",
	},
	models.CollectionProducts: {
		models.FieldShopID:    "int -owning shop, scopes every query",
		"name":                "string -product display name",
		"category":            "string -product category",
		"price":               "number -current unit price",
		"stock":               "int -units in stock",
		models.FieldCreatedAt: "datetime -when the product was added",
	},
	models.CollectionCustomers: {
		models.FieldShopID:    "int -owning shop, scopes every query",
		"name":                "string -customer display name",
		"email":               "string -contact email",
		"phone":               "string -contact phone",
		models.FieldCreatedAt: "datetime -when the customer registered",
	},
}

// schemaCacheTTL bounds how stale the formatted schema may be. Collections
// appear rarely, so a short in-memory cache avoids a store round-trip per
// generative classification without risking meaningfully stale prompts.
const schemaCacheTTL = 5 * time.Minute

type schemaService struct {
	store  docstore.DocumentStore
	logger *zap.Logger

	mu        sync.RWMutex
	formatted string
	expires   time.Time
}

// NewSchemaService creates a schema service over the document store.
func NewSchemaService(store docstore.DocumentStore, logger *zap.Logger) SchemaService {
	return &schemaService{
		store:  store,
		logger: logger.Named("schema"),
	}
}

var _ SchemaService = (*schemaService)(nil)

func (s *schemaService) GetFormattedSchema(ctx context.Context) string {
	s.mu.RLock()
	if s.formatted != "" && time.Now().Before(s.expires) {
		formatted := s.formatted
		s.mu.RUnlock()
		return formatted
	}
	s.mu.RUnlock()

	formatted := s.buildFormattedSchema(ctx)

	s.mu.Lock()
	s.formatted = formatted
	s.expires = time.Now().Add(schemaCacheTTL)
	s.mu.Unlock()

	return formatted
}

func (s *schemaService) GetCollectionFields(name string) map[string]string {
	fields, ok := collectionFields[name]
	if !ok {
		return nil
	}
	// Callers get a copy; the descriptor tables are shared.
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// buildFormattedSchema merges the live collection list with the field
// descriptors. Known collections are described field by field; live
// collections without descriptors are named so the model knows they exist.
func (s *schemaService) buildFormattedSchema(ctx context.Context) string {
	live, err := s.store.ListCollections(ctx)
	if err != nil {
		s.logger.Warn("listing collections failed, using static schema", zap.Error(err))
		live = models.ValidCollections
	}

	present := make(map[string]bool, len(live))
	for _, name := range live {
		present[name] = true
	}

	// Describe the known collections first, in a fixed order.
	var b strings.Builder
	for _, name := range models.ValidCollections {
		if !present[name] {
			continue
		}
		writeCollectionDescription(&b, name)
	}

	// The store may hold collections the engine has no descriptors for;
	// name them so the generative tier does not hallucinate their absence.
	var unknown []string
	for _, name := range live {
		if _, known := collectionFields[name]; !known && !strings.HasPrefix(name, "system.") {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		b.WriteString(fmt.Sprintf("Other collections (not queryable): %s\n", strings.Join(unknown, ", ")))
	}

	if b.Len() == 0 {
		// Empty database: describe what the engine supports anyway.
		for _, name := range models.ValidCollections {
			writeCollectionDescription(&b, name)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func writeCollectionDescription(b *strings.Builder, name string) {
	b.WriteString(fmt.Sprintf("Collection: %s\n", name))

	fields := collectionFields[name]
	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	sort.Strings(names)

	for _, f := range names {
		b.WriteString(fmt.Sprintf("  %s: %s\n", f, fields[f]))
	}
	b.WriteString("\n")
}
