package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-merge/pkg/config"
)

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// ReadyResponse reports whether dependencies are reachable.
type ReadyResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// Pinger is satisfied by *database.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	db     Pinger
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db may be nil, in which case /ready
// only reports the process as up.
func NewHealthHandler(cfg *config.Config, db Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, db: db, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health requests.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready handles GET /ready. Returns 503 when the database does not answer within two seconds.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{Status: "ok", Database: "skipped"}
	status := http.StatusOK

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.Error(err))
			resp = ReadyResponse{Status: "unavailable", Database: "unreachable"}
			status = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
		}
	}

	if err := WriteJSON(w, status, resp); err != nil {
		h.logger.Error("Failed to encode ready response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-merge",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
