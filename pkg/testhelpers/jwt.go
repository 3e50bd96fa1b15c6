package testhelpers

import (
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shoplens-ai/shoplens-engine/pkg/auth"
)

// GenerateTestJWT creates a shop-scoped test token for use when verification
// is disabled. The token has a valid structure but no signature (alg: none),
// which the unverified parse path accepts. A shopID of 0 omits the sid claim,
// producing a token the shop check rejects.
func GenerateTestJWT(shopID int64, shopDomain, email string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))

	payload := fmt.Sprintf(`{"sub":"shop-%d"`, shopID)
	if shopID > 0 {
		payload += fmt.Sprintf(`,"sid":%d`, shopID)
	}
	if shopDomain != "" {
		payload += fmt.Sprintf(`,"domain":"%s"`, shopDomain)
	}
	if email != "" {
		payload += fmt.Sprintf(`,"email":"%s"`, email)
	}
	payload += "}"

	encodedPayload := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return fmt.Sprintf("%s.%s.", header, encodedPayload)
}

// GenerateTestJWTWithBearer returns token with "Bearer " prefix for Authorization header.
func GenerateTestJWTWithBearer(shopID int64, shopDomain, email string) string {
	return "Bearer " + GenerateTestJWT(shopID, shopDomain, email)
}

// GenerateSignedTestJWT creates an HS256 token signed with secret, matching
// what the storefront backend issues. Use this when the verifier under test
// has verification enabled.
func GenerateSignedTestJWT(t *testing.T, secret string, shopID int64, shopDomain, email string) string {
	t.Helper()

	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("shop-%d", shopID),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		ShopID:     shopID,
		ShopDomain: shopDomain,
		Email:      email,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign test token: %v", err)
	}
	return signed
}
