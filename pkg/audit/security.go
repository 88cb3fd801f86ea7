// Package audit provides security audit logging for SIEM consumption.
// Events are written as structured JSON on a dedicated "security_audit" logger so they can
// be filtered apart from request logs.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-merge/pkg/auth"
	"github.com/ekaya-inc/ekaya-merge/pkg/logging"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventTenantIDInjection is logged when libinjection flags a tenant id handed to the filter.
	EventTenantIDInjection SecurityEventType = "tenant_id_injection_attempt"
	// EventQueryRejected is logged when a report query is refused before it runs.
	EventQueryRejected SecurityEventType = "report_query_rejected"
	// EventTenantPredicateInjected is logged when a query had to be rewritten to isolate a tenant.
	EventTenantPredicateInjected SecurityEventType = "tenant_predicate_injected"
)

// SecurityEvent is one auditable event.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	TenantID  string            `json:"tenant_id,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// InjectionDetails describes a rejected tenant id.
type InjectionDetails struct {
	Fingerprint string `json:"fingerprint"`
}

// QueryDetails carries the sanitized query text and why it was flagged.
type QueryDetails struct {
	Query  string `json:"query"`
	Reason string `json:"reason,omitempty"`
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates an auditor logging under the "security_audit" namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogTenantIDInjection records a tenant id that libinjection classified as SQL injection.
// The raw tenant id is not logged.
func (a *SecurityAuditor) LogTenantIDInjection(ctx context.Context, fingerprint string) {
	event := a.newEvent(ctx, EventTenantIDInjection, "", InjectionDetails{Fingerprint: fingerprint}, "critical")
	a.logger.Error("Tenant id injection attempt detected", a.fields(event,
		zap.String("fingerprint", fingerprint))...)
}

// LogQueryRejected records a report query refused before execution.
func (a *SecurityAuditor) LogQueryRejected(ctx context.Context, tenantID, query, reason string) {
	details := QueryDetails{Query: logging.SanitizeQuery(query), Reason: reason}
	event := a.newEvent(ctx, EventQueryRejected, tenantID, details, "warning")
	a.logger.Warn("Report query rejected", a.fields(event,
		zap.String("reason", reason))...)
}

// LogPredicateInjected records that a query was rewritten because it did not isolate the
// tenant on its own. High volume when clients rely on the rewrite.
func (a *SecurityAuditor) LogPredicateInjected(ctx context.Context, tenantID, securedQuery string) {
	details := QueryDetails{Query: logging.SanitizeQuery(securedQuery)}
	event := a.newEvent(ctx, EventTenantPredicateInjected, tenantID, details, "info")
	a.logger.Info("Tenant predicate injected", a.fields(event)...)
}

func (a *SecurityAuditor) newEvent(ctx context.Context, eventType SecurityEventType, tenantID string, details any, severity string) SecurityEvent {
	if tenantID == "" {
		tenantID = auth.GetTenantIDFromContext(ctx)
	}
	return SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		TenantID:  tenantID,
		UserID:    auth.GetUserIDFromContext(ctx),
		Details:   details,
		Severity:  severity,
	}
}

func (a *SecurityAuditor) fields(event SecurityEvent, extra ...zap.Field) []zap.Field {
	// Marshaling known types cannot fail.
	eventJSON, _ := json.Marshal(event)
	return append([]zap.Field{
		zap.String("event_json", string(eventJSON)),
		zap.String("event_type", string(event.EventType)),
		zap.String("tenant_id", event.TenantID),
		zap.String("user_id", event.UserID),
		zap.String("severity", event.Severity),
	}, extra...)
}
