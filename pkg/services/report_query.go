package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-merge/pkg/adapters/entitystore"
	"github.com/ekaya-inc/ekaya-merge/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-merge/pkg/audit"
	"github.com/ekaya-inc/ekaya-merge/pkg/logging"
	"github.com/ekaya-inc/ekaya-merge/pkg/metrics"
	pgsql "github.com/ekaya-inc/ekaya-merge/pkg/sql"
	"github.com/ekaya-inc/ekaya-merge/pkg/tenant"
)

// Row bounds for free-form report queries.
const (
	DefaultReportQueryLimit = 100
	MaxReportQueryLimit     = 1000
)

// QueryExecutor runs secured query text on a tenant connection.
type QueryExecutor interface {
	ExecuteQuery(ctx context.Context, tenantID, sqlQuery string, limit int) (*entitystore.QueryResult, error)
}

// ReportQueryResult is a secured query's rows, serialized the same way merge results are.
type ReportQueryResult struct {
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"rowCount"`
	// SecuredQuery is the text that actually ran, before the row bound was applied.
	SecuredQuery string `json:"securedQuery"`
}

// QueryValidation reports whether query text already isolates a tenant.
type QueryValidation struct {
	Valid        bool     `json:"valid"`
	TenantTables []string `json:"tenantTables"`
	SecuredQuery string   `json:"securedQuery,omitempty"`
}

// ReportQueryService secures and runs free-form report queries.
type ReportQueryService interface {
	Execute(ctx context.Context, tenantID, query string, limit int) (*ReportQueryResult, error)
	Secure(ctx context.Context, tenantID, query string) (string, error)
	Validate(ctx context.Context, tenantID, query string) (*QueryValidation, error)
}

type reportQueryService struct {
	filter   *tenant.Filter
	executor QueryExecutor
	auditor  *audit.SecurityAuditor
	logger   *zap.Logger
}

var _ ReportQueryService = (*reportQueryService)(nil)

// NewReportQueryService creates a ReportQueryService. executor may be nil for deployments
// that only secure and validate query text.
func NewReportQueryService(filter *tenant.Filter, executor QueryExecutor, logger *zap.Logger) ReportQueryService {
	return &reportQueryService{
		filter:   filter,
		executor: executor,
		auditor:  audit.NewSecurityAuditor(logger),
		logger:   logger.Named("report-query"),
	}
}

func (s *reportQueryService) Secure(ctx context.Context, tenantID, query string) (string, error) {
	if result := pgsql.CheckValueForInjection("tenantId", tenantID); result != nil {
		s.auditor.LogTenantIDInjection(ctx, result.Fingerprint)
	}
	if err := RequireReadOnly(query); err != nil {
		s.auditor.LogQueryRejected(ctx, tenantID, query, err.Error())
		metrics.TenantFilterTotal.WithLabelValues("rejected").Inc()
		return "", apperrors.WithOp(apperrors.OpTenantFilter, err)
	}

	secured, err := s.filter.Secure(query, tenantID)
	if err != nil {
		metrics.TenantFilterTotal.WithLabelValues("rejected").Inc()
		return "", err
	}

	switch {
	case len(s.filter.TenantTables(query)) == 0:
		metrics.TenantFilterTotal.WithLabelValues("no_tenant_tables").Inc()
	case secured == query:
		metrics.TenantFilterTotal.WithLabelValues("already_filtered").Inc()
	default:
		s.auditor.LogPredicateInjected(ctx, tenantID, secured)
		metrics.TenantFilterTotal.WithLabelValues("injected").Inc()
	}
	return secured, nil
}

func (s *reportQueryService) Execute(ctx context.Context, tenantID, query string, limit int) (*ReportQueryResult, error) {
	if s.executor == nil {
		return nil, errors.New("query execution is not configured")
	}

	secured, err := s.Secure(ctx, tenantID, query)
	if err != nil {
		return nil, err
	}

	switch {
	case limit < 0:
		return nil, apperrors.InvalidArgument("limit must be positive")
	case limit == 0:
		limit = DefaultReportQueryLimit
	case limit > MaxReportQueryLimit:
		limit = MaxReportQueryLimit
	}

	// Secure may hand back the caller's text verbatim, trailing semicolon included.
	secured = pgsql.ValidateAndNormalize(secured).NormalizedSQL

	result, err := s.executor.ExecuteQuery(ctx, tenantID, secured, limit)
	if err != nil {
		s.logger.Error("Report query failed",
			zap.String("tenant_id", tenantID),
			zap.String("query", logging.SanitizeQuery(secured)),
			zap.Error(err))
		return nil, fmt.Errorf("execute report query: %w", err)
	}

	columns := make([]string, len(result.Columns))
	for i, c := range result.Columns {
		columns[i] = c.Name
	}
	rows := make([][]any, len(result.Rows))
	for i, row := range result.Rows {
		out := make([]any, len(columns))
		for j, col := range columns {
			v, ok := row.Get(col)
			out[j] = SerializeValue(v, ok)
		}
		rows[i] = out
	}

	return &ReportQueryResult{
		Columns:      columns,
		Rows:         rows,
		RowCount:     len(rows),
		SecuredQuery: secured,
	}, nil
}

func (s *reportQueryService) Validate(ctx context.Context, tenantID, query string) (*QueryValidation, error) {
	valid, err := s.filter.Validate(query, tenantID)
	if err != nil {
		return nil, err
	}

	refs := s.filter.TenantTables(query)
	names := make([]string, 0, len(refs))
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if seen[ref.Name] {
			continue
		}
		seen[ref.Name] = true
		names = append(names, ref.Name)
	}

	out := &QueryValidation{Valid: valid, TenantTables: names}
	if !valid {
		secured, err := s.filter.Inject(query, tenantID)
		if err != nil {
			return nil, err
		}
		out.SecuredQuery = secured
	}
	return out, nil
}
