package services

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-merge/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-merge/pkg/models"
	"github.com/ekaya-inc/ekaya-merge/pkg/storage"
)

// UploadRecorder persists uploaded-file metadata.
type UploadRecorder interface {
	Create(ctx context.Context, file *models.UploadedFile) error
}

// UploadInput describes one file being uploaded.
type UploadInput struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadService stores dataset files so they can be referenced as merge sources.
type UploadService interface {
	Upload(ctx context.Context, tenantID string, in UploadInput) (*models.UploadedFile, error)
}

type uploadService struct {
	blobs    storage.BlobStore
	recorder UploadRecorder
	maxBytes int64
	logger   *zap.Logger
}

var _ UploadService = (*uploadService)(nil)

// NewUploadService creates an UploadService. maxBytes <= 0 selects storage.DefaultMaxObjectBytes.
func NewUploadService(blobs storage.BlobStore, recorder UploadRecorder, maxBytes int64, logger *zap.Logger) UploadService {
	if maxBytes <= 0 {
		maxBytes = storage.DefaultMaxObjectBytes
	}
	return &uploadService{
		blobs:    blobs,
		recorder: recorder,
		maxBytes: maxBytes,
		logger:   logger.Named("upload"),
	}
}

// Upload writes the bytes first and the metadata second, so a recorded file always has content.
func (s *uploadService) Upload(ctx context.Context, tenantID string, in UploadInput) (*models.UploadedFile, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, apperrors.InvalidArgument("tenant id is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, apperrors.InvalidArgument("file name is required")
	}
	if in.Size > s.maxBytes {
		return nil, apperrors.InvalidArgument("file exceeds %d bytes", s.maxBytes)
	}

	fileID := uuid.New()
	file := &models.UploadedFile{
		ID:                  fileID,
		TenantID:            tenantID,
		Name:                in.Name,
		StoragePath:         storage.ObjectKey(tenantID, fileID.String(), in.Name),
		DeclaredContentType: in.ContentType,
		SizeBytes:           in.Size,
	}
	if file.Format() == models.FileFormatUnknown {
		return nil, apperrors.InvalidArgument("unsupported file type %q", in.Name)
	}

	if err := s.blobs.Put(ctx, file.StoragePath, in.Body, in.Size, in.ContentType); err != nil {
		return nil, fmt.Errorf("store uploaded file: %w", err)
	}
	if err := s.recorder.Create(ctx, file); err != nil {
		return nil, fmt.Errorf("record uploaded file: %w", err)
	}

	s.logger.Info("Stored uploaded file",
		zap.String("tenant_id", tenantID),
		zap.String("file_id", fileID.String()),
		zap.String("format", string(file.Format())),
		zap.Int64("size_bytes", in.Size))
	return file, nil
}
