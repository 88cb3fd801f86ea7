// Package sql holds the text-level SQL utilities used to secure free-form report queries:
// statement validation, table reference extraction and top-level clause lookup.
package sql

import (
	"errors"
	"strings"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
	// ErrEmptyQuery indicates the query text is blank.
	ErrEmptyQuery = errors.New("query text is empty")
)

// ValidationResult contains the normalized SQL and any validation errors.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize checks SQL for multiple statements and strips the trailing semicolon.
//
// The validation order is:
// 1. Strip trailing semicolon and whitespace (normalize)
// 2. Check for multiple statements (any remaining semicolons outside literals and comments)
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return ValidationResult{Error: ErrEmptyQuery}
	}

	normalized := stripTrailingSemicolon(sqlQuery)

	if hasSemicolonOutsideStrings(normalized) {
		return ValidationResult{Error: ErrMultipleStatements}
	}

	return ValidationResult{NormalizedSQL: normalized}
}

func hasSemicolonOutsideStrings(sqlQuery string) bool {
	found := false
	walkCode(sqlQuery, func(i, _ int) bool {
		if sqlQuery[i] == ';' {
			found = true
			return false
		}
		return true
	})
	return found
}

// stripTrailingSemicolon removes a trailing semicolon and any whitespace after it.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")

	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimSuffix(sqlQuery, ";")
		sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	}

	return sqlQuery
}
