package auth

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Common authentication errors.
var (
	ErrMissingAuthorization = errors.New("missing authorization")
	ErrInvalidAuthFormat    = errors.New("invalid authorization header format")
	ErrMissingTenantID      = errors.New("missing tenant ID in token")
)

// AuthService extracts and validates the caller's token.
type AuthService interface {
	// ValidateRequest reads a Bearer token from the Authorization header and validates it.
	ValidateRequest(r *http.Request) (*Claims, string, error)
	// RequireTenantID validates that the claims name a tenant.
	RequireTenantID(claims *Claims) error
}

type authService struct {
	validator TokenValidator
	logger    *zap.Logger
}

// NewAuthService creates an AuthService.
func NewAuthService(validator TokenValidator, logger *zap.Logger) AuthService {
	return &authService{
		validator: validator,
		logger:    logger,
	}
}

func (s *authService) ValidateRequest(r *http.Request) (*Claims, string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		s.logger.Debug("No JWT found in request",
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method))
		return nil, "", ErrMissingAuthorization
	}

	tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || tokenString == "" || strings.Contains(tokenString, " ") {
		s.logger.Debug("Invalid Authorization header format",
			zap.String("path", r.URL.Path))
		return nil, "", ErrInvalidAuthFormat
	}

	claims, err := s.validator.ValidateToken(tokenString)
	if err != nil {
		s.logger.Debug("JWT validation failed",
			zap.Error(err),
			zap.String("path", r.URL.Path))
		return nil, "", err
	}
	return claims, tokenString, nil
}

func (s *authService) RequireTenantID(claims *Claims) error {
	if claims == nil || strings.TrimSpace(claims.TenantID) == "" {
		return ErrMissingTenantID
	}
	return nil
}

var _ AuthService = (*authService)(nil)
