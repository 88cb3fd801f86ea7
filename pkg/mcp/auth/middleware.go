// Package mcpauth provides MCP-specific authentication middleware.
// It wraps the core auth service with RFC 6750 Bearer token error responses.
package mcpauth

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-merge/pkg/auth"
)

// Middleware provides MCP-specific authentication middleware.
// Unlike the general auth middleware, this returns RFC 6750 WWW-Authenticate
// headers for OAuth 2.0 Bearer token authentication errors.
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

// RequireAuth validates the JWT and requires a tenant claim. Tools read the tenant from
// the claims placed in the request context.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, token, err := m.authService.ValidateRequest(r)
		if err != nil {
			m.logger.Debug("MCP auth failed: invalid or missing token",
				zap.String("path", r.URL.Path),
				zap.Error(err))
			m.writeWWWAuthenticate(w, http.StatusUnauthorized, "invalid_token", "The access token is invalid or expired")
			return
		}

		if err := m.authService.RequireTenantID(claims); err != nil {
			m.logger.Debug("MCP auth failed: missing tenant",
				zap.String("path", r.URL.Path))
			m.writeWWWAuthenticate(w, http.StatusForbidden, "insufficient_scope", "The access token is missing the tenant claim")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims, token)))
	})
}

// writeWWWAuthenticate writes an RFC 6750 Bearer token error response.
// See: https://datatracker.ietf.org/doc/html/rfc6750#section-3
func (m *Middleware) writeWWWAuthenticate(w http.ResponseWriter, status int, errorCode, description string) {
	headerValue := `Bearer error="` + errorCode + `", error_description="` + description + `"`
	w.Header().Set("WWW-Authenticate", headerValue)
	w.WriteHeader(status)
}
