// Package entitystore reads live entity collections from PostgreSQL.
package entitystore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-merge/pkg/database"
	"github.com/ekaya-inc/ekaya-merge/pkg/models"
	"github.com/ekaya-inc/ekaya-merge/pkg/retry"
	pgsql "github.com/ekaya-inc/ekaya-merge/pkg/sql"
	"github.com/ekaya-inc/ekaya-merge/pkg/tenant"
)

// querier is satisfied by *pgxpool.Conn and *pgxpool.Pool.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore fetches entity rows, each table addressed by its registry definition.
type PostgresStore struct {
	db       *database.DB
	retryCfg *retry.Config
	logger   *zap.Logger
}

// NewPostgresStore creates a store over db.
func NewPostgresStore(db *database.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:       db,
		retryCfg: retry.DefaultConfig(),
		logger:   logger.Named("entity-store"),
	}
}

// FindMany returns up to limit rows of entity belonging to tenantID.
// The tenant-scoped connection on ctx is used when present, otherwise one is acquired for
// the call. Tenant-scoped entities are also filtered explicitly so RLS is not the only guard.
func (s *PostgresStore) FindMany(ctx context.Context, entity models.EntityDefinition, tenantID string, limit int) ([]models.Row, error) {
	query, args := findManyQuery(entity, tenantID, limit)

	var rows []models.Row
	err := retry.DoIfRetryable(ctx, s.retryCfg, func() error {
		q, release, err := s.conn(ctx, tenantID)
		if err != nil {
			return err
		}
		defer release()

		pgRows, err := q.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to query %s: %w", entity.Name, err)
		}
		defer pgRows.Close()

		_, rows, err = collectRows(pgRows)
		return err
	})
	if err != nil {
		s.logger.Error("Entity fetch failed",
			zap.String("entity", entity.Name),
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return nil, err
	}

	s.logger.Debug("Fetched entity rows",
		zap.String("entity", entity.Name),
		zap.Int("rows", len(rows)))
	return rows, nil
}

func (s *PostgresStore) conn(ctx context.Context, tenantID string) (querier, func(), error) {
	if scope, ok := database.GetTenantScope(ctx); ok && scope.Conn != nil {
		return scope.Conn, func() {}, nil
	}
	scope, err := s.db.WithTenant(ctx, tenantID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to acquire tenant connection: %w", err)
	}
	return scope.Conn, scope.Close, nil
}

func findManyQuery(entity models.EntityDefinition, tenantID string, limit int) (string, []any) {
	table := quoteQualified(entity.TableName())
	if entity.TenantScoped {
		return fmt.Sprintf(`SELECT * FROM %s WHERE %s = $1 LIMIT $2`,
			table, pgsql.QuoteIdentifier(tenant.TenantColumn)), []any{tenantID, limit}
	}
	return fmt.Sprintf(`SELECT * FROM %s LIMIT $1`, table), []any{limit}
}

// quoteQualified quotes each dot-separated part of a configured table name.
func quoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pgsql.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}
