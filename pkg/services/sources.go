package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-merge/pkg/models"
	"github.com/ekaya-inc/ekaya-merge/pkg/tenant"
)

// UploadLister lists a tenant's uploaded files.
type UploadLister interface {
	ListByTenant(ctx context.Context, tenantID string) ([]*models.UploadedFile, error)
}

// SourcesService lists the tables a tenant can pick in the report builder.
type SourcesService interface {
	List(ctx context.Context, tenantID string) ([]models.ReportSource, error)
}

type sourcesService struct {
	registry *tenant.Registry
	uploads  UploadLister
	logger   *zap.Logger
}

var _ SourcesService = (*sourcesService)(nil)

// NewSourcesService creates a SourcesService.
func NewSourcesService(registry *tenant.Registry, uploads UploadLister, logger *zap.Logger) SourcesService {
	return &sourcesService{
		registry: registry,
		uploads:  uploads,
		logger:   logger.Named("sources"),
	}
}

// List returns registered live entities first, then the tenant's uploads newest first.
func (s *sourcesService) List(ctx context.Context, tenantID string) ([]models.ReportSource, error) {
	entities := s.registry.Entities()
	sources := make([]models.ReportSource, 0, len(entities))
	for _, e := range entities {
		sources = append(sources, models.ReportSource{
			ID:   e.Name,
			Name: e.Name,
			Type: models.TableRefLive,
		})
	}

	if s.uploads == nil {
		return sources, nil
	}

	files, err := s.uploads.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list uploaded files: %w", err)
	}
	for _, f := range files {
		sources = append(sources, models.ReportSource{
			ID:          f.ID.String(),
			Name:        f.Name,
			Type:        models.TableRefUploaded,
			ContentType: f.DeclaredContentType,
		})
	}
	return sources, nil
}
