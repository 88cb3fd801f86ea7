// Package testhelpers provides utilities for testing ekaya-merge components.
package testhelpers

import (
	"encoding/base64"
	"fmt"
)

// GenerateTestJWT creates an unsigned token accepted when verification is disabled.
func GenerateTestJWT(sub, tenantID string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))

	payload := fmt.Sprintf(`{"sub":"%s","aud":"merge"`, sub)
	if tenantID != "" {
		payload += fmt.Sprintf(`,"tid":"%s"`, tenantID)
	}
	payload += "}"

	encodedPayload := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return fmt.Sprintf("%s.%s.", header, encodedPayload)
}

// GenerateTestJWTWithBearer returns token with "Bearer " prefix for Authorization header.
func GenerateTestJWTWithBearer(sub, tenantID string) string {
	return "Bearer " + GenerateTestJWT(sub, tenantID)
}
