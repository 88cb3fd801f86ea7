package auth

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Middleware provides HTTP authentication middleware.
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

// RequireAuth validates the JWT and requires a tenant claim.
// Sets claims and token in context for downstream handlers.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, token, err := m.authService.ValidateRequest(r)
		if err != nil {
			m.writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
			return
		}

		if err := m.authService.RequireTenantID(claims); err != nil {
			m.logger.Warn("Token without tenant claim",
				zap.String("subject", claims.Subject),
				zap.String("path", r.URL.Path))
			m.writeError(w, http.StatusForbidden, "forbidden", "Missing tenant in token")
			return
		}

		next(w, r.WithContext(WithClaims(r.Context(), claims, token)))
	}
}

func (m *Middleware) writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
