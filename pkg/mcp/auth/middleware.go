// Package mcpauth provides MCP-specific authentication middleware.
// It wraps the core auth service with RFC 6750 Bearer token error responses,
// which MCP clients understand well enough to prompt for fresh credentials.
package mcpauth

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/shoplens-ai/shoplens-engine/pkg/auth"
)

// realm names the protected surface in WWW-Authenticate challenges.
const realm = "shoplens-engine"

// Middleware guards the MCP transport. Unlike the HTTP API middleware it
// answers failures with RFC 6750 WWW-Authenticate headers instead of JSON
// bodies, since the JSON-RPC stream has no error envelope of its own at
// this layer.
type Middleware struct {
	authService auth.AuthService
	logger      *zap.Logger
}

// NewMiddleware creates a new MCP auth middleware.
func NewMiddleware(authService auth.AuthService, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		logger:      logger,
	}
}

// RequireShop validates the bearer token and requires a shop scope in its
// claims. The shop is identified by the token alone; MCP clients do not
// carry it in the URL.
func (m *Middleware) RequireShop() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, token, err := m.authService.ValidateRequest(r)
			if err != nil {
				m.logger.Debug("MCP auth failed: invalid or missing token",
					zap.String("path", r.URL.Path),
					zap.Error(err))
				m.challenge(w, http.StatusUnauthorized, "invalid_token", "The access token is invalid or expired")
				return
			}

			if err := m.authService.RequireShopID(claims); err != nil {
				m.logger.Warn("MCP auth failed: token without shop scope",
					zap.String("path", r.URL.Path),
					zap.String("subject", claims.Subject))
				m.challenge(w, http.StatusForbidden, "insufficient_scope", "The access token is not scoped to a shop")
				return
			}

			ctx := context.WithValue(r.Context(), auth.ClaimsKey, claims)
			ctx = context.WithValue(ctx, auth.TokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// challenge writes an RFC 6750 section 3 Bearer challenge.
func (m *Middleware) challenge(w http.ResponseWriter, status int, errorCode, description string) {
	w.Header().Set("WWW-Authenticate",
		fmt.Sprintf(`Bearer realm=%q, error=%q, error_description=%q`, realm, errorCode, description))
	w.WriteHeader(status)
}
