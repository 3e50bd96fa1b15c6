package models

// Collection names in the shop analytics store.
const (
	CollectionOrders    = "orders"
	CollectionProducts  = "products"
	CollectionCustomers = "customers"
)

// Field names shared across tools and filters.
const (
	// FieldShopID scopes every document to its shop. Every executed
	// aggregation must match on it; no code path may drop it.
	FieldShopID = "shop_id"

	FieldStatus         = "status"
	FieldPaymentStatus  = "payment_status"
	FieldGrandTotal     = "grand_total"
	FieldDeliveryCharge = "delivery_charge"
	FieldCreatedAt      = "created_at"
)

// ValidCollections lists every queryable collection.
var ValidCollections = []string{
	CollectionOrders,
	CollectionProducts,
	CollectionCustomers,
}

// IsValidCollection checks if the given name is queryable.
func IsValidCollection(name string) bool {
	for _, c := range ValidCollections {
		if c == name {
			return true
		}
	}
	return false
}

// defaultGroupFields maps each collection to the field used when a caller
// asks for a breakdown without naming a usable field.
var defaultGroupFields = map[string]string{
	CollectionOrders:    FieldStatus,
	CollectionProducts:  "category",
	CollectionCustomers: "name",
}

// DefaultGroupBy returns the substitute grouping field for a collection.
// Used when a classifier hands over a malformed group_by (empty, wrong
// type); orders fall back to status so a breakdown is always possible.
func DefaultGroupBy(collection string) string {
	if f, ok := defaultGroupFields[collection]; ok {
		return f
	}
	return defaultGroupFields[CollectionOrders]
}
