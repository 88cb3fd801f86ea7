package services

import (
	"regexp"
	"strings"

	"github.com/ekaya-inc/ekaya-merge/pkg/apperrors"
)

// SQLStatementType represents the type of SQL statement.
type SQLStatementType string

const (
	SQLTypeSelect  SQLStatementType = "SELECT"
	SQLTypeModify  SQLStatementType = "MODIFY"  // INSERT, UPDATE, DELETE, MERGE, CALL
	SQLTypeDDL     SQLStatementType = "DDL"     // CREATE, ALTER, DROP, TRUNCATE, GRANT
	SQLTypeUnknown SQLStatementType = "UNKNOWN" // anything else, including transaction control
)

// modifyingCTEPattern matches CTEs that contain data-modifying operations.
// Example: WITH deleted AS (DELETE FROM ...) SELECT * FROM deleted
var modifyingCTEPattern = regexp.MustCompile(`(?i)\bAS\s*(?:NOT\s+)?(?:MATERIALIZED\s*)?\(\s*(INSERT|UPDATE|DELETE|MERGE)\b`)

var statementPrefixes = []struct {
	keyword string
	kind    SQLStatementType
}{
	{"SELECT", SQLTypeSelect},
	{"WITH", SQLTypeSelect},
	{"VALUES", SQLTypeSelect},
	{"TABLE", SQLTypeSelect},
	{"INSERT", SQLTypeModify},
	{"UPDATE", SQLTypeModify},
	{"DELETE", SQLTypeModify},
	{"MERGE", SQLTypeModify},
	{"CALL", SQLTypeModify},
	{"CREATE", SQLTypeDDL},
	{"ALTER", SQLTypeDDL},
	{"DROP", SQLTypeDDL},
	{"TRUNCATE", SQLTypeDDL},
	{"GRANT", SQLTypeDDL},
	{"REVOKE", SQLTypeDDL},
}

// DetectSQLType determines the type of SQL statement based on its first keyword.
// Leading parentheses are skipped so "(SELECT ...) UNION (SELECT ...)" reads as a SELECT.
func DetectSQLType(sql string) SQLStatementType {
	normalized := strings.ToUpper(strings.TrimLeft(strings.TrimSpace(sql), "( \t\r\n"))

	for _, p := range statementPrefixes {
		if !strings.HasPrefix(normalized, p.keyword) {
			continue
		}
		rest := normalized[len(p.keyword):]
		if rest != "" && !isKeywordEnd(rest[0]) {
			continue
		}
		if p.keyword == "WITH" && modifyingCTEPattern.MatchString(sql) {
			return SQLTypeModify
		}
		return p.kind
	}
	return SQLTypeUnknown
}

func isKeywordEnd(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '(' || c == '*'
}

// RequireReadOnly rejects anything but a read-only statement. Report queries run on the
// caller's tenant connection, so they must never change data.
func RequireReadOnly(sql string) error {
	switch kind := DetectSQLType(sql); kind {
	case SQLTypeSelect:
		return nil
	case SQLTypeDDL:
		return apperrors.InvalidArgument("DDL statements are not allowed in report queries")
	case SQLTypeModify:
		return apperrors.InvalidArgument("report queries cannot modify data")
	default:
		return apperrors.InvalidArgument("unrecognized SQL statement; only SELECT queries are allowed")
	}
}
