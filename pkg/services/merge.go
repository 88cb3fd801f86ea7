package services

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-merge/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-merge/pkg/join"
	"github.com/ekaya-inc/ekaya-merge/pkg/metrics"
	"github.com/ekaya-inc/ekaya-merge/pkg/models"
	"github.com/ekaya-inc/ekaya-merge/pkg/resolver"
)

// Messages attached to empty but successful merge results.
const (
	MessageNoData    = "No data found in source table"
	MessageNoMatches = "No matching records found"
)

// MaxMergeLimit caps the per-source row limit when no other cap is configured.
const MaxMergeLimit = 10000

// TenantScopeProvider hands out a context carrying a tenant-scoped DB connection.
// Every concurrent source fetch gets its own scope since a connection serves one query at a time.
type TenantScopeProvider interface {
	WithTenantScope(ctx context.Context, tenantID string) (context.Context, func(), error)
}

// MergeOptions configures the merge orchestrator.
type MergeOptions struct {
	DefaultLimit int
	MaxLimit     int
}

// MergeService validates merge requests, resolves their sources and folds the joins.
type MergeService interface {
	Merge(ctx context.Context, tenantID string, req *models.MergeRequest) (*models.MergeResult, error)
}

type mergeService struct {
	resolver resolver.Resolver
	engine   *join.Engine
	scopes   TenantScopeProvider
	opts     MergeOptions
	logger   *zap.Logger
}

var _ MergeService = (*mergeService)(nil)

// NewMergeService creates a MergeService. scopes may be nil when the resolver's stores
// manage their own connections.
func NewMergeService(res resolver.Resolver, engine *join.Engine, scopes TenantScopeProvider, opts MergeOptions, logger *zap.Logger) MergeService {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = models.DefaultMergeLimit
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = MaxMergeLimit
	}
	if opts.DefaultLimit > opts.MaxLimit {
		opts.DefaultLimit = opts.MaxLimit
	}
	return &mergeService{
		resolver: res,
		engine:   engine,
		scopes:   scopes,
		opts:     opts,
		logger:   logger.Named("merge"),
	}
}

func (s *mergeService) Merge(ctx context.Context, tenantID string, req *models.MergeRequest) (*models.MergeResult, error) {
	start := time.Now()
	result, err := s.merge(ctx, tenantID, req)
	outcome := "error"
	if err == nil {
		outcome = string(result.Outcome)
	}
	metrics.ObserveMerge(outcome, time.Since(start))
	return result, err
}

func (s *mergeService) merge(ctx context.Context, tenantID string, req *models.MergeRequest) (*models.MergeResult, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, apperrors.InvalidArgument("tenant id is required")
	}
	joins, limit, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	tables, err := s.resolveAll(ctx, tenantID, joins, limit)
	if err != nil {
		return nil, err
	}

	first := tables[joins[0].LeftTable]
	steps := make([]join.Step, len(joins))
	for i, spec := range joins {
		steps[i] = join.Step{Right: tables[spec.RightTable], Spec: spec}
	}

	folded, err := s.engine.Fold(first, steps)
	if err != nil {
		return nil, apperrors.WithOp(apperrors.OpJoin, err)
	}

	result := SerializeTable(folded.Table)
	result.TotalLeft = folded.TotalLeft
	result.TotalRight = folded.TotalRight
	result.Outcome = models.MergeOutcomeOK

	switch {
	case len(first.Rows) == 0:
		result = &models.MergeResult{
			Columns:    []string{},
			Rows:       [][]any{},
			TotalLeft:  folded.TotalLeft,
			TotalRight: folded.TotalRight,
			Message:    MessageNoData,
			Outcome:    models.MergeOutcomeNoData,
		}
	case result.RowCount == 0:
		result.Message = MessageNoMatches
		result.Outcome = models.MergeOutcomeNoMatches
	}

	s.logger.Info("Merge completed",
		zap.String("tenant_id", tenantID),
		zap.Int("joins", len(joins)),
		zap.Int("rows", result.RowCount),
		zap.String("outcome", string(result.Outcome)))
	return result, nil
}

// validate checks the request and returns a normalized copy of its joins plus the
// effective per-source limit. The request itself is left untouched.
func (s *mergeService) validate(req *models.MergeRequest) ([]models.JoinSpec, int, error) {
	if req == nil || len(req.Joins) == 0 {
		return nil, 0, apperrors.InvalidArgument("at least one join is required")
	}

	joins := make([]models.JoinSpec, len(req.Joins))
	for i, spec := range req.Joins {
		if i == 0 && spec.LeftTable.ID == "" {
			return nil, 0, apperrors.InvalidArgument("join %d: left table is required", i)
		}
		if spec.RightTable.ID == "" {
			return nil, 0, apperrors.InvalidArgument("join %d: right table is required", i)
		}
		joinType, err := models.ParseJoinType(string(spec.JoinType))
		if err != nil {
			return nil, 0, apperrors.InvalidArgument("join %d: %v", i, err)
		}
		spec.JoinType = joinType
		if strings.TrimSpace(spec.LeftKey) == "" || strings.TrimSpace(spec.RightKey) == "" {
			return nil, 0, apperrors.InvalidArgument("join %d: left and right keys are required", i)
		}
		if sel := spec.SelectedColumns; sel != nil {
			for _, col := range append(append([]string{}, sel.Left...), sel.Right...) {
				if strings.TrimSpace(col) == "" {
					return nil, 0, apperrors.InvalidArgument("join %d: selected column names must not be empty", i)
				}
			}
		}
		joins[i] = spec
	}

	switch {
	case req.Limit < 0:
		return nil, 0, apperrors.InvalidArgument("limit must be positive")
	case req.Limit == 0:
		return joins, s.opts.DefaultLimit, nil
	case req.Limit > s.opts.MaxLimit:
		return joins, s.opts.MaxLimit, nil
	default:
		return joins, req.Limit, nil
	}
}

// resolveAll fetches every distinct source concurrently. A reference used twice (a self
// join) is read once and shared, which is safe because tables are never mutated.
func (s *mergeService) resolveAll(ctx context.Context, tenantID string, joins []models.JoinSpec, limit int) (map[models.TableReference]*models.Table, error) {
	refs := []models.TableReference{joins[0].LeftTable}
	for _, spec := range joins {
		refs = append(refs, spec.RightTable)
	}

	seen := make(map[models.TableReference]bool, len(refs))
	distinct := refs[:0:0]
	for _, ref := range refs {
		if seen[ref] {
			continue
		}
		seen[ref] = true
		distinct = append(distinct, ref)
	}

	results := make([]*models.Table, len(distinct))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range distinct {
		g.Go(func() error {
			table, err := s.resolveOne(gctx, ref, tenantID, limit)
			if err != nil {
				return apperrors.WithOp(apperrors.OpResolve, fmt.Errorf("table %q: %w", ref.ID, err))
			}
			results[i] = table
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("Source resolution failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return nil, err
	}

	tables := make(map[models.TableReference]*models.Table, len(distinct))
	for i, ref := range distinct {
		tables[ref] = results[i]
	}
	return tables, nil
}

func (s *mergeService) resolveOne(ctx context.Context, ref models.TableReference, tenantID string, limit int) (*models.Table, error) {
	if s.scopes != nil {
		scoped, release, err := s.scopes.WithTenantScope(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("acquire tenant scope: %w", err)
		}
		defer release()
		ctx = scoped
	}
	return s.resolver.Resolve(ctx, ref, tenantID, limit)
}

// SerializeTable flattens a table into the column-ordered wire form. Columns are the union
// over all rows in order of first appearance; cells a row lacks serialize as "".
func SerializeTable(t *models.Table) *models.MergeResult {
	columns := t.ObservedColumns()
	if columns == nil {
		columns = []string{}
	}
	rows := make([][]any, len(t.Rows))
	for i, row := range t.Rows {
		out := make([]any, len(columns))
		for j, col := range columns {
			v, ok := row.Get(col)
			out[j] = SerializeValue(v, ok)
		}
		rows[i] = out
	}
	return &models.MergeResult{
		Columns:  columns,
		Rows:     rows,
		RowCount: len(rows),
	}
}

// SerializeValue renders a cell for JSON output: absent and null become "", dates become
// RFC 3339 text, and structured values become text. Numbers, booleans and strings pass through.
func SerializeValue(v any, present bool) any {
	if !present || v == nil {
		return ""
	}

	switch val := v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return ""
		}
		return val.Format(time.RFC3339)
	case []byte:
		return string(val)
	case fmt.Stringer:
		return val.String()
	case error:
		return val.Error()
	}

	switch reflect.TypeOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}
