package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Middleware guards HTTP handlers behind bearer-token authentication.
// It is thin and delegates the actual validation to AuthService.
type Middleware struct {
	authService AuthService
	logger      *zap.Logger
}

// NewMiddleware creates a new auth middleware with the given AuthService.
func NewMiddleware(authService AuthService, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		logger:      logger,
	}
}

// RequireShop validates the bearer token and requires a shop claim, then
// stores claims and token in the request context. Every analytics endpoint
// goes through this; there is no unscoped access to shop data.
func (m *Middleware) RequireShop(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, token, err := m.authService.ValidateRequest(r)
		if err != nil {
			m.logger.Debug("Request rejected: invalid or missing token",
				zap.String("path", r.URL.Path),
				zap.Error(err))
			m.writeAuthError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
			return
		}

		if err := m.authService.RequireShopID(claims); err != nil {
			m.logger.Warn("Token without shop scope",
				zap.String("subject", claims.Subject),
				zap.String("path", r.URL.Path))
			m.writeAuthError(w, http.StatusForbidden, "forbidden", "Token does not grant access to a shop")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		ctx = context.WithValue(ctx, TokenKey, token)
		next(w, r.WithContext(ctx))
	}
}

func (m *Middleware) writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
