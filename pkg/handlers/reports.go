package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-merge/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-merge/pkg/auth"
	"github.com/ekaya-inc/ekaya-merge/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-merge/pkg/logging"
	"github.com/ekaya-inc/ekaya-merge/pkg/models"
	"github.com/ekaya-inc/ekaya-merge/pkg/services"
)

// ReportQueryRequest is the POST body for /api/reports/query.
type ReportQueryRequest struct {
	Query string               `json:"query"`
	Limit jsonutil.FlexibleInt `json:"limit,omitempty"`
}

// ValidateReportQueryRequest is the POST body for /api/reports/query/validate.
type ValidateReportQueryRequest struct {
	Query string `json:"query"`
}

// ListSourcesResponse wraps the table picker entries.
type ListSourcesResponse struct {
	Sources []models.ReportSource `json:"sources"`
}

// ReportsHandler serves the report builder API: merges, secured queries and sources.
type ReportsHandler struct {
	mergeService   services.MergeService
	queryService   services.ReportQueryService
	sourcesService services.SourcesService
	logger         *zap.Logger
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(
	mergeService services.MergeService,
	queryService services.ReportQueryService,
	sourcesService services.SourcesService,
	logger *zap.Logger,
) *ReportsHandler {
	return &ReportsHandler{
		mergeService:   mergeService,
		queryService:   queryService,
		sourcesService: sourcesService,
		logger:         logger,
	}
}

// RegisterRoutes registers the reports handler's routes on the given mux.
// Merge fetches sources concurrently and scopes each fetch itself, so it skips tenantMiddleware.
func (h *ReportsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	base := "/api/reports"

	mux.HandleFunc("POST "+base+"/merge", authMiddleware.RequireAuth(h.Merge))
	mux.HandleFunc("POST "+base+"/query", authMiddleware.RequireAuth(tenantMiddleware(h.Query)))
	mux.HandleFunc("POST "+base+"/query/validate", authMiddleware.RequireAuth(h.ValidateQuery))
	mux.HandleFunc("GET "+base+"/sources", authMiddleware.RequireAuth(tenantMiddleware(h.ListSources)))
}

// Merge handles POST /api/reports/merge
func (h *ReportsHandler) Merge(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.requireTenant(w, r)
	if !ok {
		return
	}

	var body models.MergeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.badRequest(w, "invalid_request", "Invalid request body")
		return
	}

	req, err := body.ToMergeRequest()
	if err != nil {
		writeServiceError(w, h.logger, apperrors.WithOp(apperrors.OpResolve, apperrors.InvalidArgument("%v", err)),
			"Invalid table reference", zap.String("tenant_id", tenantID))
		return
	}

	result, err := h.mergeService.Merge(r.Context(), tenantID, req)
	if err != nil {
		writeServiceError(w, h.logger, err, "Merge failed",
			zap.String("tenant_id", tenantID),
			zap.Int("joins", len(req.Joins)))
		return
	}

	if err := WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Query handles POST /api/reports/query
func (h *ReportsHandler) Query(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.requireTenant(w, r)
	if !ok {
		return
	}

	var req ReportQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid_request", "Invalid request body")
		return
	}
	if req.Query == "" {
		h.badRequest(w, "missing_query", "Query is required")
		return
	}

	result, err := h.queryService.Execute(r.Context(), tenantID, req.Query, int(req.Limit))
	if err != nil {
		writeServiceError(w, h.logger, err, "Query failed",
			zap.String("tenant_id", tenantID),
			zap.String("query", logging.SanitizeQuery(req.Query)))
		return
	}

	response := ApiResponse{Success: true, Data: result}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ValidateQuery handles POST /api/reports/query/validate
func (h *ReportsHandler) ValidateQuery(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.requireTenant(w, r)
	if !ok {
		return
	}

	var req ValidateReportQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid_request", "Invalid request body")
		return
	}

	validation, err := h.queryService.Validate(r.Context(), tenantID, req.Query)
	if err != nil {
		writeServiceError(w, h.logger, err, "Validation failed", zap.String("tenant_id", tenantID))
		return
	}

	response := ApiResponse{Success: true, Data: validation}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListSources handles GET /api/reports/sources
func (h *ReportsHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.requireTenant(w, r)
	if !ok {
		return
	}

	sources, err := h.sourcesService.List(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to list sources", zap.String("tenant_id", tenantID))
		return
	}

	response := ApiResponse{Success: true, Data: ListSourcesResponse{Sources: sources}}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *ReportsHandler) requireTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID, err := auth.RequireTenantIDFromContext(r.Context())
	if err != nil {
		if err := ErrorResponse(w, http.StatusForbidden, "forbidden", "Missing tenant context"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return "", false
	}
	return tenantID, true
}

func (h *ReportsHandler) badRequest(w http.ResponseWriter, code, message string) {
	if err := ErrorResponse(w, http.StatusBadRequest, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
