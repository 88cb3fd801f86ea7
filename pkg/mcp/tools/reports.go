// Package tools provides MCP tool implementations for ekaya-merge.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-merge/pkg/auth"
	"github.com/ekaya-inc/ekaya-merge/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-merge/pkg/logging"
	"github.com/ekaya-inc/ekaya-merge/pkg/models"
	"github.com/ekaya-inc/ekaya-merge/pkg/services"
)

// ReportToolDeps defines dependencies for the report MCP tools.
type ReportToolDeps struct {
	MergeService   services.MergeService
	QueryService   services.ReportQueryService
	SourcesService services.SourcesService
	// Scopes opens a tenant-scoped connection for tools that read tenant rows directly.
	Scopes services.TenantScopeProvider
	Logger *zap.Logger
}

// RegisterReportTools registers merge_tables, secure_query, validate_query,
// run_report_query and list_sources.
func RegisterReportTools(s *server.MCPServer, deps *ReportToolDeps) {
	registerMergeTablesTool(s, deps)
	registerSecureQueryTool(s, deps)
	registerValidateQueryTool(s, deps)
	registerRunReportQueryTool(s, deps)
	registerListSourcesTool(s, deps)
}

// tenantFromContext reads the tenant placed in the context by the MCP auth middleware.
func tenantFromContext(ctx context.Context) (string, error) {
	tenantID, err := auth.RequireTenantIDFromContext(ctx)
	if err != nil {
		return "", fmt.Errorf("authentication required: %w", err)
	}
	return tenantID, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func registerMergeTablesTool(s *server.MCPServer, deps *ReportToolDeps) {
	tool := mcp.NewTool(
		"merge_tables",
		mcp.WithDescription(`Join live entity collections and uploaded files into one table.
Each join step is {leftTable, rightTable, joinType (INNER|LEFT|RIGHT|FULL), leftKey, rightKey},
optionally with leftTableType/rightTableType ("entity" or "file") and
selectedColumns {left: [...], right: [...]}. Steps after the first use the previous result
as their left side. Colliding right-side columns are prefixed with the right table's alias.`),
		mcp.WithArray(
			"joins",
			mcp.Required(),
			mcp.Description("Ordered join steps"),
			mcp.Items(map[string]any{"type": "object"}),
		),
		mcp.WithNumber(
			"limit",
			mcp.Description("Rows read from each source table (default 100)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tenantID, err := tenantFromContext(ctx)
		if err != nil {
			return nil, err
		}

		args := req.GetArguments()
		raw, err := json.Marshal(map[string]any{"joins": args["joins"]})
		if err != nil {
			return NewErrorResult("invalid_parameters", "joins must be an array of objects"), nil
		}
		var body models.MergeRequestBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return NewErrorResultWithDetails("invalid_parameters", "joins must be an array of join objects",
				map[string]any{"parameter": "joins", "error": err.Error()}), nil
		}
		body.Limit = jsonutil.FlexibleInt(req.GetInt("limit", 0))

		mergeReq, err := body.ToMergeRequest()
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		result, err := deps.MergeService.Merge(ctx, tenantID, mergeReq)
		if err != nil {
			deps.Logger.Warn("merge_tables failed",
				zap.String("tenant_id", tenantID),
				zap.Error(err))
			return errorResult(err)
		}
		return jsonResult(result)
	})
}

func registerSecureQueryTool(s *server.MCPServer, deps *ReportToolDeps) {
	tool := mcp.NewTool(
		"secure_query",
		mcp.WithDescription(`Rewrite SQL so every tenant-scoped table is filtered to the caller's tenant.
Returns the rewritten text without executing it. Text that already filters correctly is returned unchanged.`),
		mcp.WithString("sql", mcp.Required(), mcp.Description("SQL query text")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tenantID, err := tenantFromContext(ctx)
		if err != nil {
			return nil, err
		}
		sqlText, err := req.RequireString("sql")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		secured, err := deps.QueryService.Secure(ctx, tenantID, sqlText)
		if err != nil {
			deps.Logger.Warn("secure_query failed",
				zap.String("tenant_id", tenantID),
				zap.String("query", logging.SanitizeQuery(sqlText)),
				zap.Error(err))
			return errorResult(err)
		}
		return jsonResult(map[string]string{"secured_query": secured})
	})
}

func registerValidateQueryTool(s *server.MCPServer, deps *ReportToolDeps) {
	tool := mcp.NewTool(
		"validate_query",
		mcp.WithDescription("Report whether SQL already filters every tenant-scoped table by the caller's tenant, and show the secured form if not."),
		mcp.WithString("sql", mcp.Required(), mcp.Description("SQL query text")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tenantID, err := tenantFromContext(ctx)
		if err != nil {
			return nil, err
		}
		sqlText, err := req.RequireString("sql")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		validation, err := deps.QueryService.Validate(ctx, tenantID, sqlText)
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(validation)
	})
}

func registerRunReportQueryTool(s *server.MCPServer, deps *ReportToolDeps) {
	tool := mcp.NewTool(
		"run_report_query",
		mcp.WithDescription("Secure a read-only SQL query for the caller's tenant and run it. Results are bounded by limit (default 100, max 1000)."),
		mcp.WithString("sql", mcp.Required(), mcp.Description("SELECT statement")),
		mcp.WithNumber("limit", mcp.Description("Maximum rows to return")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tenantID, err := tenantFromContext(ctx)
		if err != nil {
			return nil, err
		}
		sqlText, err := req.RequireString("sql")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		tenantCtx, cleanup, err := deps.Scopes.WithTenantScope(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire tenant connection: %w", err)
		}
		defer cleanup()

		result, err := deps.QueryService.Execute(tenantCtx, tenantID, sqlText, req.GetInt("limit", 0))
		if err != nil {
			deps.Logger.Warn("run_report_query failed",
				zap.String("tenant_id", tenantID),
				zap.String("query", logging.SanitizeQuery(sqlText)),
				zap.Error(err))
			return errorResult(err)
		}
		return jsonResult(result)
	})
}

func registerListSourcesTool(s *server.MCPServer, deps *ReportToolDeps) {
	tool := mcp.NewTool(
		"list_sources",
		mcp.WithDescription("List the live entities and uploaded files that can be used as merge_tables sources."),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tenantID, err := tenantFromContext(ctx)
		if err != nil {
			return nil, err
		}

		tenantCtx, cleanup, err := deps.Scopes.WithTenantScope(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire tenant connection: %w", err)
		}
		defer cleanup()

		sources, err := deps.SourcesService.List(tenantCtx, tenantID)
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(map[string]any{"sources": sources, "count": len(sources)})
	})
}
