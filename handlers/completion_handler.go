package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/pollenlabs/nectar-gateway/middleware"
	"github.com/pollenlabs/nectar-gateway/models"
	"github.com/pollenlabs/nectar-gateway/services"
	"github.com/pollenlabs/nectar-gateway/upstream"
	"github.com/pollenlabs/nectar-gateway/utils"
	"go.uber.org/zap"
)

// CompletionRequest is the request body for POST /api/v1/completions
type CompletionRequest struct {
	Model     string `json:"model" validate:"required"`
	Prompt    string `json:"prompt" validate:"required"`
	MaxTokens int    `json:"max_tokens" validate:"gte=0,lte=4096"`
}

// ModelAuthorizer decides whether a tier may use a model
type ModelAuthorizer interface {
	Authorize(tier models.Tier, model string) error
}

// Admitter runs a task through the per-key admission queue
type Admitter interface {
	Admit(ctx context.Context, key string, verdict *models.AuthVerdict, task func(ctx context.Context) error) error
	ClassFor(method models.AuthMethod) models.AdmissionClass
}

// CompletionBackend forwards an admitted request to the shared backend
type CompletionBackend interface {
	Complete(ctx context.Context, req upstream.CompletionRequest) (json.RawMessage, error)
}

// CompletionHandler handles completion proxy requests
type CompletionHandler struct {
	access    ModelAuthorizer
	admission Admitter
	backend   CompletionBackend
	logger    *zap.Logger
}

// NewCompletionHandler creates a new CompletionHandler
func NewCompletionHandler(access ModelAuthorizer, admission Admitter, backend CompletionBackend, logger *zap.Logger) *CompletionHandler {
	return &CompletionHandler{
		access:    access,
		admission: admission,
		backend:   backend,
		logger:    logger,
	}
}

// HandleCompletion handles POST /api/v1/completions. The request is tier-
// gated against the model registry, spaced through the caller's admission
// queue, then forwarded to the completion backend.
func (h *CompletionHandler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	var req CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	verdict := middleware.GetVerdictFromContext(r.Context())

	if err := h.access.Authorize(verdict.Identity.Tier, req.Model); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	key := middleware.ClientKey(r, verdict)

	var result json.RawMessage
	err := h.admission.Admit(r.Context(), key, verdict, func(ctx context.Context) error {
		raw, err := h.backend.Complete(ctx, upstream.CompletionRequest{
			Model:     req.Model,
			Prompt:    req.Prompt,
			MaxTokens: req.MaxTokens,
		})
		if err != nil {
			return err
		}
		result = raw
		return nil
	})
	if err != nil {
		if errors.Is(err, services.ErrQueueFull) {
			interval := h.admission.ClassFor(verdict.Method).Interval
			_ = utils.WriteTooManyRequests(w, err.Error(), retryAfterSeconds(interval))
			return
		}
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Debug("completion relayed",
		zap.String("key", key),
		zap.String("model", req.Model),
		zap.String("tier", verdict.Identity.Tier.String()))

	_ = utils.WriteOK(w, result)
}

// retryAfterSeconds rounds an admission interval up to whole seconds for
// the Retry-After header, never below one
func retryAfterSeconds(interval time.Duration) int {
	seconds := int((interval + time.Second - 1) / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}
