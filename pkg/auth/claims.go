// Package auth validates bearer tokens and exposes the caller's tenant to handlers.
package auth

import (
	"context"
	"errors"

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

// Claims represents the JWT claims accepted by the merge service.
// The tenant claim is the only source of the tenant id used for filtering and storage.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tid,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// HasRole reports whether the claims carry the given role.
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// GetClaims retrieves JWT claims from the request context.
// Returns nil and false if claims are not present.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// GetToken retrieves the raw JWT token string from the request context.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}

// WithClaims returns a context carrying claims. Used by the HTTP middleware and by the
// MCP server when it authenticates a session.
func WithClaims(ctx context.Context, claims *Claims, token string) context.Context {
	ctx = context.WithValue(ctx, ClaimsKey, claims)
	return context.WithValue(ctx, TokenKey, token)
}

// ErrNoTenant is returned when a context carries no tenant claim.
var ErrNoTenant = errors.New("no tenant in context")
