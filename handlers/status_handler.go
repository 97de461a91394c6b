package handlers

import (
	"net/http"

	"github.com/pollenlabs/nectar-gateway/services/access"
	"github.com/pollenlabs/nectar-gateway/trust"
	"github.com/pollenlabs/nectar-gateway/utils"
	"go.uber.org/zap"
)

// ModelLister lists the registered models and their tier requirements
type ModelLister interface {
	Models() []access.ModelEntry
}

// CacheStatser reports trust lookup cache statistics
type CacheStatser interface {
	Stats() trust.CacheStats
}

// QueueStatser reports admission queue occupancy
type QueueStatser interface {
	ActiveKeys() int
}

// StatusResponse is the body of GET /api/v1/status
type StatusResponse struct {
	Models []access.ModelEntry `json:"models"`
	Queue  QueueStats          `json:"queue"`
}

// QueueStats is the public slice of admission queue state
type QueueStats struct {
	ActiveKeys int `json:"active_keys"`
}

// AdminStatsResponse is the body of GET /api/v1/admin/stats
type AdminStatsResponse struct {
	Cache        trust.CacheStats `json:"cache"`
	Queue        QueueStats       `json:"queue"`
	AuditEnabled bool             `json:"audit_enabled"`
}

// StatusHandler exposes gateway state for clients and operators
type StatusHandler struct {
	models       ModelLister
	cache        CacheStatser
	queue        QueueStatser
	auditEnabled bool
	logger       *zap.Logger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(models ModelLister, cache CacheStatser, queue QueueStatser, auditEnabled bool, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		models:       models,
		cache:        cache,
		queue:        queue,
		auditEnabled: auditEnabled,
		logger:       logger,
	}
}

// HandleStatus handles GET /api/v1/status
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, StatusResponse{
		Models: h.models.Models(),
		Queue:  QueueStats{ActiveKeys: h.queue.ActiveKeys()},
	})
}

// HandleAdminStats handles GET /api/v1/admin/stats. Routed behind the admin
// tier gate.
func (h *StatusHandler) HandleAdminStats(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, AdminStatsResponse{
		Cache:        h.cache.Stats(),
		Queue:        QueueStats{ActiveKeys: h.queue.ActiveKeys()},
		AuditEnabled: h.auditEnabled,
	})
}
