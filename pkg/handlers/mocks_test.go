package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/ekaya-inc/ekaya-merge/pkg/auth"
	"github.com/ekaya-inc/ekaya-merge/pkg/models"
	"github.com/ekaya-inc/ekaya-merge/pkg/services"
)

type mockMergeService struct {
	result   *models.MergeResult
	err      error
	tenantID string
	req      *models.MergeRequest
}

func (m *mockMergeService) Merge(ctx context.Context, tenantID string, req *models.MergeRequest) (*models.MergeResult, error) {
	m.tenantID = tenantID
	m.req = req
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockReportQueryService struct {
	result     *services.ReportQueryResult
	validation *services.QueryValidation
	err        error
	query      string
	limit      int
}

func (m *mockReportQueryService) Execute(ctx context.Context, tenantID, query string, limit int) (*services.ReportQueryResult, error) {
	m.query, m.limit = query, limit
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockReportQueryService) Secure(ctx context.Context, tenantID, query string) (string, error) {
	m.query = query
	if m.err != nil {
		return "", m.err
	}
	return query, nil
}

func (m *mockReportQueryService) Validate(ctx context.Context, tenantID, query string) (*services.QueryValidation, error) {
	m.query = query
	if m.err != nil {
		return nil, m.err
	}
	return m.validation, nil
}

type mockSourcesService struct {
	sources []models.ReportSource
	err     error
}

func (m *mockSourcesService) List(ctx context.Context, tenantID string) ([]models.ReportSource, error) {
	return m.sources, m.err
}

type mockUploadService struct {
	err     error
	input   services.UploadInput
	content []byte
}

func (m *mockUploadService) Upload(ctx context.Context, tenantID string, in services.UploadInput) (*models.UploadedFile, error) {
	m.input = in
	if in.Body != nil {
		m.content, _ = io.ReadAll(in.Body)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &models.UploadedFile{TenantID: tenantID, Name: in.Name, DeclaredContentType: in.ContentType, SizeBytes: in.Size}, nil
}

// mockAuthService accepts any request carrying "Bearer ok" and issues claims for tenant-1.
type mockAuthService struct{}

func (m *mockAuthService) ValidateRequest(r *http.Request) (*auth.Claims, string, error) {
	if r.Header.Get("Authorization") != "Bearer ok" {
		return nil, "", errors.New("unauthorized")
	}
	return &auth.Claims{TenantID: "tenant-1"}, "ok", nil
}

func (m *mockAuthService) RequireTenantID(claims *auth.Claims) error {
	if claims.TenantID == "" {
		return auth.ErrNoTenant
	}
	return nil
}

// withTenant attaches claims for tenantID to the request.
func withTenant(r *http.Request, tenantID string) *http.Request {
	ctx := auth.WithClaims(r.Context(), &auth.Claims{TenantID: tenantID}, "token")
	return r.WithContext(ctx)
}
