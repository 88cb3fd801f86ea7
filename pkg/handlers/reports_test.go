package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-merge/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-merge/pkg/auth"
	"github.com/ekaya-inc/ekaya-merge/pkg/models"
	"github.com/ekaya-inc/ekaya-merge/pkg/services"
)

const mergeBody = `{
	"joins": [{
		"leftTable": "project",
		"rightTable": "6f1c3a9e-9c1d-4d84-9b4f-2f8e1d7c5a10",
		"joinType": "LEFT",
		"leftKey": "id",
		"rightKey": "project_id"
	}],
	"limit": 50
}`

func newReportsHandler(merge *mockMergeService, query *mockReportQueryService, sources *mockSourcesService) *ReportsHandler {
	if merge == nil {
		merge = &mockMergeService{}
	}
	if query == nil {
		query = &mockReportQueryService{}
	}
	if sources == nil {
		sources = &mockSourcesService{}
	}
	return NewReportsHandler(merge, query, sources, zap.NewNop())
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestReportsHandler_Merge_Success(t *testing.T) {
	merge := &mockMergeService{result: &models.MergeResult{
		Columns:  []string{"id", "amount"},
		Rows:     [][]any{{1, 10}},
		RowCount: 1,
		Outcome:  models.MergeOutcomeOK,
	}}
	h := newReportsHandler(merge, nil, nil)

	req := withTenant(httptest.NewRequest(http.MethodPost, "/api/reports/merge", strings.NewReader(mergeBody)), "tenant-a")
	rec := httptest.NewRecorder()
	h.Merge(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tenant-a", merge.tenantID)
	require.Len(t, merge.req.Joins, 1)
	assert.Equal(t, models.LiveTable("project"), merge.req.Joins[0].LeftTable)
	assert.True(t, merge.req.Joins[0].RightTable.IsUploaded())
	assert.Equal(t, 50, merge.req.Limit)

	var result models.MergeResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, []string{"id", "amount"}, result.Columns)
	assert.Equal(t, 1, result.RowCount)
}

func TestReportsHandler_Merge_MissingTenant(t *testing.T) {
	h := newReportsHandler(nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/reports/merge", strings.NewReader(mergeBody))
	rec := httptest.NewRecorder()
	h.Merge(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReportsHandler_Merge_InvalidBody(t *testing.T) {
	h := newReportsHandler(nil, nil, nil)

	req := withTenant(httptest.NewRequest(http.MethodPost, "/api/reports/merge", strings.NewReader("{")), "t")
	rec := httptest.NewRecorder()
	h.Merge(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeError(t, rec).Error)
}

func TestReportsHandler_Merge_BadTableType(t *testing.T) {
	merge := &mockMergeService{}
	h := newReportsHandler(merge, nil, nil)

	body := `{"joins":[{"leftTable":"a","leftTableType":"view","rightTable":"b","joinType":"INNER","leftKey":"id","rightKey":"id"}]}`
	req := withTenant(httptest.NewRequest(http.MethodPost, "/api/reports/merge", strings.NewReader(body)), "t")
	rec := httptest.NewRecorder()
	h.Merge(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.OpResolve, decodeError(t, rec).Stage)
	assert.Nil(t, merge.req, "service must not be called")
}

func TestReportsHandler_Merge_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantStage  string
	}{
		{
			name:       "bad join configuration",
			err:        apperrors.WithOp(apperrors.OpJoin, apperrors.InvalidArgument("join 0: unsupported join type")),
			wantStatus: http.StatusBadRequest,
			wantStage:  apperrors.OpJoin,
		},
		{
			name:       "missing file",
			err:        apperrors.WithOp(apperrors.OpResolve, fmt.Errorf("table %q: %w", "x", apperrors.ErrNotFound)),
			wantStatus: http.StatusNotFound,
			wantStage:  apperrors.OpResolve,
		},
		{
			name:       "unknown entity",
			err:        apperrors.WithOp(apperrors.OpResolve, apperrors.ErrUnknownEntity),
			wantStatus: http.StatusNotFound,
			wantStage:  apperrors.OpResolve,
		},
		{
			name:       "store failure",
			err:        apperrors.WithOp(apperrors.OpResolve, fmt.Errorf("connection reset")),
			wantStatus: http.StatusInternalServerError,
			wantStage:  apperrors.OpResolve,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newReportsHandler(&mockMergeService{err: tt.err}, nil, nil)

			req := withTenant(httptest.NewRequest(http.MethodPost, "/api/reports/merge", strings.NewReader(mergeBody)), "t")
			rec := httptest.NewRecorder()
			h.Merge(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.wantStage, body.Stage)
			assert.NotEmpty(t, body.Detail)
		})
	}
}

func TestReportsHandler_Query(t *testing.T) {
	query := &mockReportQueryService{result: &services.ReportQueryResult{
		Columns:      []string{"id"},
		Rows:         [][]any{{"p1"}},
		RowCount:     1,
		SecuredQuery: `SELECT id FROM "Project" WHERE "Project"."tenantId" = 't'`,
	}}
	h := newReportsHandler(nil, query, nil)

	body := `{"query": "SELECT id FROM \"Project\"", "limit": "5"}`
	req := withTenant(httptest.NewRequest(http.MethodPost, "/api/reports/query", strings.NewReader(body)), "t")
	rec := httptest.NewRecorder()
	h.Query(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, query.limit)
	assert.Equal(t, `SELECT id FROM "Project"`, query.query)

	var resp struct {
		Success bool                       `json:"success"`
		Data    services.ReportQueryResult `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Data.RowCount)
}

func TestReportsHandler_Query_Errors(t *testing.T) {
	t.Run("missing query", func(t *testing.T) {
		h := newReportsHandler(nil, nil, nil)
		req := withTenant(httptest.NewRequest(http.MethodPost, "/api/reports/query", strings.NewReader(`{}`)), "t")
		rec := httptest.NewRecorder()
		h.Query(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "missing_query", decodeError(t, rec).Error)
	})

	t.Run("rewrite rejected", func(t *testing.T) {
		query := &mockReportQueryService{err: apperrors.WithOp(apperrors.OpTenantFilter, apperrors.InvalidArgument("multiple statements"))}
		h := newReportsHandler(nil, query, nil)
		req := withTenant(httptest.NewRequest(http.MethodPost, "/api/reports/query", strings.NewReader(`{"query":"SELECT 1; DROP TABLE x"}`)), "t")
		rec := httptest.NewRecorder()
		h.Query(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, apperrors.OpTenantFilter, decodeError(t, rec).Stage)
	})
}

func TestReportsHandler_ValidateQuery(t *testing.T) {
	query := &mockReportQueryService{validation: &services.QueryValidation{
		Valid:        false,
		TenantTables: []string{"Project"},
		SecuredQuery: `SELECT * FROM "Project" WHERE "Project"."tenantId" = 't'`,
	}}
	h := newReportsHandler(nil, query, nil)

	req := withTenant(httptest.NewRequest(http.MethodPost, "/api/reports/query/validate",
		strings.NewReader(`{"query":"SELECT * FROM \"Project\""}`)), "t")
	rec := httptest.NewRecorder()
	h.ValidateQuery(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data services.QueryValidation `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Data.Valid)
	assert.Equal(t, []string{"Project"}, resp.Data.TenantTables)
}

func TestReportsHandler_ListSources(t *testing.T) {
	sources := &mockSourcesService{sources: []models.ReportSource{
		{ID: "Project", Name: "Project", Type: models.TableRefLive},
		{ID: "f1", Name: "budget.csv", Type: models.TableRefUploaded, ContentType: "text/csv"},
	}}
	h := newReportsHandler(nil, nil, sources)

	req := withTenant(httptest.NewRequest(http.MethodGet, "/api/reports/sources", nil), "t")
	rec := httptest.NewRecorder()
	h.ListSources(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data ListSourcesResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Data.Sources, 2)
	assert.Equal(t, models.TableRefUploaded, resp.Data.Sources[1].Type)
}

func TestReportsHandler_RegisterRoutes(t *testing.T) {
	merge := &mockMergeService{result: &models.MergeResult{Outcome: models.MergeOutcomeNoData}}
	h := newReportsHandler(merge, &mockReportQueryService{validation: &services.QueryValidation{Valid: true}}, &mockSourcesService{})

	var tenantWrapped []string
	tenantMiddleware := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			tenantWrapped = append(tenantWrapped, r.URL.Path)
			next(w, r)
		}
	}

	mux := http.NewServeMux()
	h.RegisterRoutes(mux, auth.NewMiddleware(&mockAuthService{}, zap.NewNop()), tenantMiddleware)

	t.Run("unauthenticated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/reports/merge", strings.NewReader(mergeBody))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("merge skips tenant middleware", func(t *testing.T) {
		tenantWrapped = nil
		req := httptest.NewRequest(http.MethodPost, "/api/reports/merge", strings.NewReader(mergeBody))
		req.Header.Set("Authorization", "Bearer ok")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "tenant-1", merge.tenantID)
		assert.Empty(t, tenantWrapped)
	})

	t.Run("sources uses tenant middleware", func(t *testing.T) {
		tenantWrapped = nil
		req := httptest.NewRequest(http.MethodGet, "/api/reports/sources", nil)
		req.Header.Set("Authorization", "Bearer ok")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"/api/reports/sources"}, tenantWrapped)
	})

	t.Run("wrong method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/reports/merge", bytes.NewReader(nil))
		req.Header.Set("Authorization", "Bearer ok")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}
