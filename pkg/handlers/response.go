package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-merge/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-merge/pkg/logging"
)

// ApiResponse is the envelope for successful API responses.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorBody is the JSON shape of every error response.
// Stage names the request stage that failed (resolve, join, tenant_filter) when known.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Stage   string `json:"stage,omitempty"`
}

// TenantMiddleware wraps a handler with a tenant-scoped database connection.
type TenantMiddleware func(http.HandlerFunc) http.HandlerFunc

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	return writeErrorBody(w, statusCode, ErrorBody{Error: errorCode, Message: message})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

func writeErrorBody(w http.ResponseWriter, statusCode int, body ErrorBody) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(body)
}

// statusForError maps service errors onto HTTP status codes and error codes.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, apperrors.ErrUnknownEntity):
		return http.StatusNotFound, "unknown_entity"
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return 499, "canceled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeServiceError logs err and writes the mapped error response.
// Client errors are logged at warn, everything else at error.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error, message string, fields ...zap.Field) {
	status, code := statusForError(err)
	stage := apperrors.Op(err)

	fields = append(fields, zap.Int("status", status), zap.String("stage", stage), zap.Error(err))
	if status >= http.StatusInternalServerError {
		logger.Error(message, fields...)
	} else {
		logger.Warn(message, fields...)
	}

	body := ErrorBody{
		Error:   code,
		Message: message,
		Detail:  logging.SanitizeError(err),
		Stage:   stage,
	}
	if err := writeErrorBody(w, status, body); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
