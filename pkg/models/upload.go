package models

import (
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Declared content types understood by the file parsers.
const (
	ContentTypeCSV  = "text/csv"
	ContentTypeTSV  = "text/tab-separated-values"
	ContentTypeText = "text/plain"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// UploadedFile is the metadata record for a dataset file a tenant uploaded earlier.
// StoragePath is the object key inside the blob store.
type UploadedFile struct {
	ID                  uuid.UUID `json:"id"`
	TenantID            string    `json:"tenant_id"`
	Name                string    `json:"name"`
	StoragePath         string    `json:"storage_path"`
	DeclaredContentType string    `json:"declared_content_type"`
	SizeBytes           int64     `json:"size_bytes"`
	CreatedAt           time.Time `json:"created_at"`
}

// FileFormat is the parser family chosen for an uploaded file.
type FileFormat string

const (
	FileFormatUnknown     FileFormat = ""
	FileFormatDelimited   FileFormat = "delimited"
	FileFormatSpreadsheet FileFormat = "spreadsheet"
)

// Format resolves the parser family from the declared content type, falling back to the
// file extension when the declared type is missing or generic.
func (f *UploadedFile) Format() FileFormat {
	contentType := strings.ToLower(strings.TrimSpace(f.DeclaredContentType))
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	switch contentType {
	case ContentTypeCSV, ContentTypeTSV, ContentTypeText, "application/csv":
		return FileFormatDelimited
	case ContentTypeXLSX:
		return FileFormatSpreadsheet
	}

	name := f.StoragePath
	if name == "" {
		name = f.Name
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".csv", ".tsv", ".txt":
		return FileFormatDelimited
	case ".xlsx", ".xlsm":
		return FileFormatSpreadsheet
	}
	return FileFormatUnknown
}

// Delimiter returns the field separator for delimited files.
func (f *UploadedFile) Delimiter() rune {
	contentType := strings.ToLower(f.DeclaredContentType)
	if strings.HasPrefix(contentType, ContentTypeTSV) || strings.EqualFold(path.Ext(f.StoragePath), ".tsv") {
		return '\t'
	}
	return ','
}

// EntityDefinition describes a live entity collection known to the entity store.
type EntityDefinition struct {
	// Name is the canonical entity name, e.g. "Project".
	Name string `yaml:"name" json:"name"`
	// Table is the physical table; defaults to Name.
	Table string `yaml:"table" json:"table"`
	// TenantScoped marks entities whose rows carry a tenantId column.
	TenantScoped bool `yaml:"tenant_scoped" json:"tenant_scoped"`
}

// TableName returns the physical table backing the entity.
func (e EntityDefinition) TableName() string {
	if e.Table != "" {
		return e.Table
	}
	return e.Name
}

// ReportSource is one entry of the table picker listing.
type ReportSource struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Type        TableRefKind `json:"type"`
	ContentType string       `json:"content_type,omitempty"`
}
