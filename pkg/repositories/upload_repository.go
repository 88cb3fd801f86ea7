package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-merge/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-merge/pkg/database"
	"github.com/ekaya-inc/ekaya-merge/pkg/models"
)

// UploadRepository provides data access for uploaded-file metadata.
type UploadRepository interface {
	Create(ctx context.Context, file *models.UploadedFile) error
	GetByID(ctx context.Context, tenantID string, fileID uuid.UUID) (*models.UploadedFile, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*models.UploadedFile, error)
	Delete(ctx context.Context, tenantID string, fileID uuid.UUID) error
}

type uploadRepository struct{}

// NewUploadRepository creates a new UploadRepository.
func NewUploadRepository() UploadRepository {
	return &uploadRepository{}
}

var _ UploadRepository = (*uploadRepository)(nil)

const uploadColumns = `id, tenant_id, name, storage_path, declared_content_type, size_bytes, created_at`

func (r *uploadRepository) Create(ctx context.Context, file *models.UploadedFile) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	file.CreatedAt = time.Now().UTC()

	sql := `
		INSERT INTO uploaded_files (` + uploadColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := scope.Conn.Exec(ctx, sql,
		file.ID, file.TenantID, file.Name, file.StoragePath,
		file.DeclaredContentType, file.SizeBytes, file.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create uploaded file: %w", err)
	}
	return nil
}

func (r *uploadRepository) GetByID(ctx context.Context, tenantID string, fileID uuid.UUID) (*models.UploadedFile, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	sql := `SELECT ` + uploadColumns + ` FROM uploaded_files WHERE tenant_id = $1 AND id = $2`

	file, err := scanUpload(scope.Conn.QueryRow(ctx, sql, tenantID, fileID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("uploaded file %s: %w", fileID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get uploaded file: %w", err)
	}
	return file, nil
}

func (r *uploadRepository) ListByTenant(ctx context.Context, tenantID string) ([]*models.UploadedFile, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	sql := `SELECT ` + uploadColumns + ` FROM uploaded_files WHERE tenant_id = $1 ORDER BY created_at DESC`

	rows, err := scope.Conn.Query(ctx, sql, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploaded files: %w", err)
	}
	defer rows.Close()

	files := make([]*models.UploadedFile, 0)
	for rows.Next() {
		f, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan uploaded file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating uploaded files: %w", err)
	}
	return files, nil
}

func (r *uploadRepository) Delete(ctx context.Context, tenantID string, fileID uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	tag, err := scope.Conn.Exec(ctx, `DELETE FROM uploaded_files WHERE tenant_id = $1 AND id = $2`, tenantID, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete uploaded file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("uploaded file %s: %w", fileID, apperrors.ErrNotFound)
	}
	return nil
}

func scanUpload(row pgx.Row) (*models.UploadedFile, error) {
	var f models.UploadedFile
	err := row.Scan(&f.ID, &f.TenantID, &f.Name, &f.StoragePath,
		&f.DeclaredContentType, &f.SizeBytes, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
