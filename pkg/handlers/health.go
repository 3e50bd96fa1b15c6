package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shoplens-ai/shoplens-engine/pkg/adapters/docstore"
	"github.com/shoplens-ai/shoplens-engine/pkg/config"
)

// dependencyProbeTimeout bounds the store and cache pings on /ping.
const dependencyProbeTimeout = 2 * time.Second

// PingResponse contains service status, version, and dependency health.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
	Store       string `json:"store"`
	Cache       string `json:"cache"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	store  docstore.DocumentStore
	cache  *redis.Client // nil when caching is disabled
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler with the given dependencies.
func NewHealthHandler(cfg *config.Config, store docstore.DocumentStore, cache *redis.Client, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, store: store, cache: cache, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/ping", h.Ping)
}

// Health handles GET /health requests.
// Returns a simple "ok" status for load balancer liveness checks.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ping handles GET /ping requests.
// Returns service information plus the reachability of the document store
// and the answer cache. Status degrades when the store is unreachable; a
// missing cache is normal (caching is optional).
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), dependencyProbeTimeout)
	defer cancel()

	status := "ok"

	storeStatus := "ok"
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("Document store unreachable", zap.Error(err))
		storeStatus = "unreachable"
		status = "degraded"
	}

	cacheStatus := "disabled"
	if h.cache != nil {
		cacheStatus = "ok"
		if err := h.cache.Ping(ctx).Err(); err != nil {
			h.logger.Warn("Answer cache unreachable", zap.Error(err))
			cacheStatus = "unreachable"
		}
	}

	response := PingResponse{
		Status:      status,
		Version:     h.cfg.Version,
		Service:     "shoplens-engine",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
		Store:       storeStatus,
		Cache:       cacheStatus,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
