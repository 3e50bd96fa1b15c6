// Context helpers for extracting the authenticated shop from request
// contexts. The auth middleware injects claims; services read them through
// these helpers instead of touching context keys directly.
//
// Example usage in a handler:
//
//	shopID, err := auth.RequireShopIDFromContext(r.Context())
//	if err != nil {
//	    // respond 401
//	}
package auth

import (
	"context"
	"fmt"
)

// GetShopIDFromContext extracts the shop ID from JWT claims in the context.
// Returns 0 if not authenticated or the token carries no shop.
// Use this when a zero value can be handled gracefully.
func GetShopIDFromContext(ctx context.Context) int64 {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return 0
	}
	return claims.ShopID
}

// RequireShopIDFromContext extracts the shop ID from context and returns an
// error if it is missing. Use this when the operation cannot proceed without
// a tenant scope.
func RequireShopIDFromContext(ctx context.Context) (int64, error) {
	shopID := GetShopIDFromContext(ctx)
	if shopID <= 0 {
		return 0, fmt.Errorf("shop ID not found in context")
	}
	return shopID, nil
}

// GetShopDomainFromContext extracts the storefront domain from JWT claims.
// Returns empty string when absent; intended for log enrichment only.
func GetShopDomainFromContext(ctx context.Context) string {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return ""
	}
	return claims.ShopDomain
}
