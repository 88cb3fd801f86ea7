package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-merge/pkg/auth"
	"github.com/ekaya-inc/ekaya-merge/pkg/services"
)

// multipartMemory is how much of a multipart body is buffered in memory before spilling to disk.
const multipartMemory = 8 << 20

// UploadsHandler accepts dataset files that later act as merge sources.
type UploadsHandler struct {
	uploadService services.UploadService
	maxBytes      int64
	logger        *zap.Logger
}

// NewUploadsHandler creates a new uploads handler. maxBytes bounds a single file.
func NewUploadsHandler(uploadService services.UploadService, maxBytes int64, logger *zap.Logger) *UploadsHandler {
	return &UploadsHandler{
		uploadService: uploadService,
		maxBytes:      maxBytes,
		logger:        logger,
	}
}

// RegisterRoutes registers the uploads handler's routes on the given mux.
func (h *UploadsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("POST /api/reports/uploads", authMiddleware.RequireAuth(tenantMiddleware(h.Upload)))
}

// Upload handles POST /api/reports/uploads with a multipart "file" field.
func (h *UploadsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	tenantID, err := auth.RequireTenantIDFromContext(r.Context())
	if err != nil {
		if err := ErrorResponse(w, http.StatusForbidden, "forbidden", "Missing tenant context"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	// Leave headroom for the multipart envelope; the service enforces the file size itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Expected multipart form with a file field"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_file", "File is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	defer file.Close()

	uploaded, err := h.uploadService.Upload(r.Context(), tenantID, services.UploadInput{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "Upload failed",
			zap.String("tenant_id", tenantID),
			zap.String("file_name", header.Filename))
		return
	}

	response := ApiResponse{Success: true, Data: uploaded}
	if err := WriteJSON(w, http.StatusCreated, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
