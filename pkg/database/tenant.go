package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TenantSetting is the session variable RLS policies compare tenant_id against.
const TenantSetting = "app.current_tenant_id"

// TenantScope wraps a connection with tenant context and ensures cleanup.
// The connection has app.current_tenant_id set for RLS policy evaluation.
type TenantScope struct {
	Conn     *pgxpool.Conn
	TenantID string
}

// Close resets tenant context and releases connection to pool.
// This MUST be called to prevent tenant context from leaking to the next request.
func (s *TenantScope) Close() {
	if s.Conn == nil {
		return
	}
	_, _ = s.Conn.Exec(context.Background(), "RESET "+TenantSetting)
	s.Conn.Release()
}

// WithTenant acquires a connection and sets the tenant context for RLS.
// The returned TenantScope MUST be closed with defer scope.Close().
func (db *DB) WithTenant(ctx context.Context, tenantID string) (*TenantScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	_, err = conn.Exec(ctx, "SELECT set_config('"+TenantSetting+"', $1, false)", tenantID)
	if err != nil {
		conn.Release()
		return nil, err
	}

	return &TenantScope{Conn: conn, TenantID: tenantID}, nil
}

// WithoutTenant acquires a connection without tenant context.
// Used by migrations and the sources listing of non tenant-scoped entities.
// The returned TenantScope MUST be closed with defer scope.Close().
func (db *DB) WithoutTenant(ctx context.Context) (*TenantScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &TenantScope{Conn: conn}, nil
}
