package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier defines the interface for JWT token validation.
// This abstraction enables testing with mock implementations.
type TokenVerifier interface {
	// ValidateToken validates a JWT token string and returns the claims.
	// Returns an error if the token is invalid, expired, signed with an
	// unsupported method, or issued by an unregistered issuer.
	ValidateToken(tokenString string) (*Claims, error)
	// Close releases any resources held by the verifier.
	Close()
}

// VerifierConfig contains configuration for the token verifier.
type VerifierConfig struct {
	// EnableVerification controls whether JWT signatures are verified.
	// Set to false for development mode (parses tokens without verification).
	EnableVerification bool
	// HMACSecret verifies HS256 tokens issued by the storefront backend.
	HMACSecret string
	// JWKSEndpoints maps issuer URLs to their JWKS endpoint URLs for RS256
	// tokens. Only tokens from issuers in this map are accepted on that path.
	JWKSEndpoints map[string]string
}

// Verifier validates JWT tokens. HS256 tokens are checked against the shared
// storefront secret; RS256 tokens are checked against the JWKS public keys of
// their issuer. Anything else is rejected.
type Verifier struct {
	endpoints map[string]keyfunc.Keyfunc
	config    *VerifierConfig
}

// NewVerifier creates a token verifier with the given configuration.
// If EnableVerification is true, it fetches JWKS from all configured
// endpoints up front. Returns an error if any JWKS endpoint fails to load.
func NewVerifier(config *VerifierConfig) (*Verifier, error) {
	v := &Verifier{
		endpoints: make(map[string]keyfunc.Keyfunc),
		config:    config,
	}

	if !config.EnableVerification {
		return v, nil
	}

	if config.HMACSecret == "" && len(config.JWKSEndpoints) == 0 {
		return nil, fmt.Errorf("verification enabled but neither AUTH_HMAC_SECRET nor JWKS endpoints configured")
	}

	for issuer, jwksURL := range config.JWKSEndpoints {
		jwks, err := keyfunc.NewDefaultCtx(context.Background(), []string{jwksURL})
		if err != nil {
			return nil, fmt.Errorf("failed to create JWKS client for %s: %w", issuer, err)
		}
		v.endpoints[issuer] = jwks
	}

	return v, nil
}

// ValidateToken validates a JWT token and returns the claims.
// If verification is disabled, it parses the token without signature
// validation. Otherwise the signing method picks the key source.
func (v *Verifier) ValidateToken(tokenString string) (*Claims, error) {
	if !v.config.EnableVerification {
		return v.parseUnverifiedToken(tokenString)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodHMAC:
			if v.config.HMACSecret == "" {
				return nil, errors.New("HS256 token received but no HMAC secret configured")
			}
			return []byte(v.config.HMACSecret), nil

		case *jwt.SigningMethodRSA:
			claims, ok := token.Claims.(*Claims)
			if !ok {
				return nil, errors.New("invalid claims type")
			}
			jwks, exists := v.endpoints[claims.Issuer]
			if !exists {
				return nil, fmt.Errorf("unauthorized issuer: %s", claims.Issuer)
			}
			return jwks.KeyfuncCtx(context.Background())(token)

		default:
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
	})

	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	return claims, nil
}

// parseUnverifiedToken parses a JWT without verifying the signature.
// Used in development mode when EnableVerification is false.
func (v *Verifier) parseUnverifiedToken(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, _, err := parser.ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	return claims, nil
}

// Close releases any resources held by the verifier.
// Currently a no-op as keyfunc v3 doesn't require explicit cleanup.
func (v *Verifier) Close() {
	// No cleanup required with keyfunc v3
}

// Ensure Verifier implements TokenVerifier at compile time.
var _ TokenVerifier = (*Verifier)(nil)
