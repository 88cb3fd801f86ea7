package tools

import (
	"encoding/json"
	"errors"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/ekaya-merge/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-merge/pkg/logging"
)

// ErrorResponse represents a structured error in tool results.
// Actionable errors are returned as tool results rather than protocol errors so the
// calling model sees the details and can correct its request.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// errorResult converts a service error into a tool result when the caller can act on it
// (bad arguments, unknown tables, SQL mistakes). Anything else is returned as a Go error.
func errorResult(err error) (*mcp.CallToolResult, error) {
	details := map[string]any{}
	if stage := apperrors.Op(err); stage != "" {
		details["stage"] = stage
	}
	message := logging.SanitizeError(err)

	switch {
	case errors.Is(err, apperrors.ErrInvalidArgument):
		return NewErrorResultWithDetails("invalid_parameters", message, details), nil
	case errors.Is(err, apperrors.ErrUnknownEntity):
		return NewErrorResultWithDetails("unknown_entity", message, details), nil
	case errors.Is(err, apperrors.ErrNotFound):
		return NewErrorResultWithDetails("not_found", message, details), nil
	case IsSQLUserError(err):
		return NewErrorResultWithDetails(SQLUserErrorCode(err), message, details), nil
	default:
		return nil, err
	}
}

// sqlStateRegex matches PostgreSQL SQLSTATE codes in error messages like "(SQLSTATE 42601)"
var sqlStateRegex = regexp.MustCompile(`\(SQLSTATE ([0-9A-Z]{5})\)`)

// IsSQLUserError returns true if the error is a SQL user error (bad SQL, missing column,
// invalid input) rather than a server error.
//
// PostgreSQL SQLSTATE class codes that indicate user errors:
//   - 22xxx: Data Exception
//   - 42xxx: Syntax Error or Access Rule Violation
func IsSQLUserError(err error) bool {
	code := sqlState(err)
	if len(code) < 2 {
		return false
	}
	switch code[:2] {
	case "22", "42":
		return true
	}
	return false
}

// SQLUserErrorCode returns an error code for a SQL user error, or "" if err is not one.
func SQLUserErrorCode(err error) string {
	if !IsSQLUserError(err) {
		return ""
	}
	switch code := sqlState(err); code {
	case "42601":
		return "syntax_error"
	case "42703":
		return "undefined_column"
	case "42P01":
		return "undefined_table"
	case "42501":
		return "permission_denied"
	case "22012":
		return "division_by_zero"
	case "22P02":
		return "invalid_input"
	default:
		if code[:2] == "22" {
			return "data_exception"
		}
		return "sql_error"
	}
}

func sqlState(err error) string {
	if err == nil {
		return ""
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	if matches := sqlStateRegex.FindStringSubmatch(err.Error()); len(matches) >= 2 {
		return matches[1]
	}
	return ""
}
