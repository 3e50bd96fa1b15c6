package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

// stubVerifier satisfies TokenVerifier with canned results.
type stubVerifier struct {
	claims *Claims
	err    error
}

func (s *stubVerifier) ValidateToken(tokenString string) (*Claims, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.claims, nil
}

func (s *stubVerifier) Close() {}

func TestValidateRequest_BearerToken(t *testing.T) {
	want := &Claims{ShopID: 13}
	svc := NewAuthService(&stubVerifier{claims: want}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/query", nil)
	req.Header.Set("Authorization", "Bearer some-token")

	claims, token, err := svc.ValidateRequest(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.ShopID != 13 {
		t.Errorf("expected shop 13, got %d", claims.ShopID)
	}
	if token != "some-token" {
		t.Errorf("expected raw token to be returned, got %q", token)
	}
}

func TestValidateRequest_MissingHeader(t *testing.T) {
	svc := NewAuthService(&stubVerifier{claims: &Claims{}}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/query", nil)

	_, _, err := svc.ValidateRequest(req)
	if !errors.Is(err, ErrMissingAuthorization) {
		t.Errorf("expected ErrMissingAuthorization, got %v", err)
	}
}

func TestValidateRequest_MalformedHeader(t *testing.T) {
	svc := NewAuthService(&stubVerifier{claims: &Claims{}}, zap.NewNop())

	for _, header := range []string{"Basic dXNlcg==", "Bearer", "bearer token", "Bearer a b"} {
		req := httptest.NewRequest(http.MethodPost, "/api/query", nil)
		req.Header.Set("Authorization", header)

		_, _, err := svc.ValidateRequest(req)
		if !errors.Is(err, ErrInvalidAuthFormat) {
			t.Errorf("header %q: expected ErrInvalidAuthFormat, got %v", header, err)
		}
	}
}

func TestValidateRequest_VerifierErrorPropagates(t *testing.T) {
	verifyErr := errors.New("token validation failed: token is expired")
	svc := NewAuthService(&stubVerifier{err: verifyErr}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/query", nil)
	req.Header.Set("Authorization", "Bearer expired-token")

	_, _, err := svc.ValidateRequest(req)
	if !errors.Is(err, verifyErr) {
		t.Errorf("expected verifier error to propagate, got %v", err)
	}
}

func TestRequireShopID(t *testing.T) {
	svc := NewAuthService(&stubVerifier{}, zap.NewNop())

	if err := svc.RequireShopID(&Claims{ShopID: 42}); err != nil {
		t.Errorf("expected nil for valid shop, got %v", err)
	}

	if err := svc.RequireShopID(&Claims{}); !errors.Is(err, ErrMissingShop) {
		t.Errorf("expected ErrMissingShop for zero shop, got %v", err)
	}

	if err := svc.RequireShopID(&Claims{ShopID: -5}); !errors.Is(err, ErrMissingShop) {
		t.Errorf("expected ErrMissingShop for negative shop, got %v", err)
	}
}
