package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/pollenlabs/nectar-gateway/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// TrustPinger checks that the trust service answers at all
type TrustPinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db     *sql.DB
	trust  TrustPinger
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db and trust may be nil when
// the corresponding dependency is not configured.
func NewHealthHandler(db *sql.DB, trust TrustPinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		trust:  trust,
		logger: logger,
	}
}

// HandleHealth handles GET /healthz
// Basic liveness check - always returns 200 if the process is serving
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz
// Readiness check - validates that configured dependencies answer
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			h.logger.Warn("database readiness check failed", zap.Error(err))
			checks["database"] = "unhealthy"
			allHealthy = false
		} else {
			checks["database"] = "healthy"
		}
	}

	if h.trust != nil {
		if err := h.trust.Ping(ctx); err != nil {
			h.logger.Warn("trust service readiness check failed", zap.Error(err))
			checks["trust_service"] = "unhealthy"
			allHealthy = false
		} else {
			checks["trust_service"] = "healthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	_ = utils.WriteJSON(w, httpStatus, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}
