package auth

import (
	"context"
)

// GetTenantIDFromContext extracts the tenant id from JWT claims in the context.
// Returns empty string if not authenticated or the claim is missing.
func GetTenantIDFromContext(ctx context.Context) string {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return ""
	}
	return claims.TenantID
}

// RequireTenantIDFromContext extracts the tenant id and returns ErrNoTenant if absent.
func RequireTenantIDFromContext(ctx context.Context) (string, error) {
	tenantID := GetTenantIDFromContext(ctx)
	if tenantID == "" {
		return "", ErrNoTenant
	}
	return tenantID, nil
}

// GetUserIDFromContext extracts the subject from JWT claims in the context.
func GetUserIDFromContext(ctx context.Context) string {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return ""
	}
	return claims.Subject
}
