// Package auth provides JWT bearer-token authentication for shoplens-engine.
// Tokens are issued by the storefront backend (HS256 shared secret) or, when
// configured, by an external identity provider verified through JWKS.
package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
	// TokenKey is the context key for storing the raw JWT token string.
	TokenKey contextKey = "token"
)

// Claims is the JWT claims structure issued by the storefront backend.
// It embeds RegisteredClaims for standard JWT fields (sub, iss, exp, etc.)
// and adds the shop scope every analytics request is bound to.
type Claims struct {
	jwt.RegisteredClaims
	ShopID     int64  `json:"sid,omitempty"`    // Shop (tenant) identifier
	ShopDomain string `json:"domain,omitempty"` // Storefront domain, for logs
	Email      string `json:"email,omitempty"`  // Shop owner email address
}

// GetClaims retrieves JWT claims from the request context.
// Returns nil and false if claims are not present.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// GetToken retrieves the raw JWT token string from the request context.
// Returns empty string and false if token is not present.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}
