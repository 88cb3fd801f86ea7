package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult contains the result of an injection check on a value that is
// about to be embedded in query text.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Name        string // Name of the value that failed the check
	Value       string
}

// CheckValueForInjection uses libinjection to detect SQL injection patterns in a value
// that will be written into query text as a literal, such as a tenant id.
//
// Returns nil if no injection is detected.
//
// Example:
//
//	result := CheckValueForInjection("tenantId", "t-1")
//	// result == nil
//
//	result := CheckValueForInjection("tenantId", "x' OR '1'='1")
//	// result.IsSQLi == true
func CheckValueForInjection(name, value string) *InjectionCheckResult {
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		IsSQLi:      true,
		Fingerprint: string(fingerprint),
		Name:        name,
		Value:       value,
	}
}
