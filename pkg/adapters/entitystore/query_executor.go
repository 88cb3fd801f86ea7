package entitystore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-merge/pkg/database"
	"github.com/ekaya-inc/ekaya-merge/pkg/models"
)

// QueryResult is the output of a bounded report query.
type QueryResult struct {
	Columns  []ColumnInfo
	Rows     []models.Row
	RowCount int
}

// QueryExecutor runs already-secured report queries on a tenant connection.
type QueryExecutor struct {
	db     *database.DB
	logger *zap.Logger
}

// NewQueryExecutor creates an executor over db.
func NewQueryExecutor(db *database.DB, logger *zap.Logger) *QueryExecutor {
	return &QueryExecutor{db: db, logger: logger.Named("query-executor")}
}

// LimitQuery bounds sqlQuery to limit rows. limit <= 0 returns the query unchanged.
func LimitQuery(sqlQuery string, limit int) string {
	if limit <= 0 {
		return sqlQuery
	}
	return fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", sqlQuery, limit)
}

// ExecuteQuery runs sqlQuery for tenantID, returning at most limit rows.
// The caller must have secured the query text for the tenant first.
func (e *QueryExecutor) ExecuteQuery(ctx context.Context, tenantID, sqlQuery string, limit int) (*QueryResult, error) {
	var q querier
	if scope, ok := database.GetTenantScope(ctx); ok && scope.Conn != nil {
		q = scope.Conn
	} else {
		scope, err := e.db.WithTenant(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire tenant connection: %w", err)
		}
		defer scope.Close()
		q = scope.Conn
	}

	rows, err := q.Query(ctx, LimitQuery(sqlQuery, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, result, err := collectRows(rows)
	if err != nil {
		return nil, err
	}

	return &QueryResult{
		Columns:  columns,
		Rows:     result,
		RowCount: len(result),
	}, nil
}
