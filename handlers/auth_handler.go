package handlers

import (
	"net/http"

	"github.com/pollenlabs/nectar-gateway/middleware"
	"github.com/pollenlabs/nectar-gateway/models"
	"github.com/pollenlabs/nectar-gateway/utils"
	"go.uber.org/zap"
)

// WhoAmIResponse is the debug view of a resolved verdict. The trace only
// ever carries redacted credentials, so the whole thing is safe to return.
type WhoAmIResponse struct {
	Authenticated bool               `json:"authenticated"`
	Method        models.AuthMethod  `json:"method"`
	Identity      models.Identity    `json:"identity"`
	Trace         []models.TraceStep `json:"trace"`
}

// AuthHandler exposes the resolved verdict for debugging integrations
type AuthHandler struct {
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(logger *zap.Logger) *AuthHandler {
	return &AuthHandler{logger: logger}
}

// HandleWhoAmI handles GET /api/v1/auth/whoami
func (h *AuthHandler) HandleWhoAmI(w http.ResponseWriter, r *http.Request) {
	verdict := middleware.GetVerdictFromContext(r.Context())

	response := WhoAmIResponse{
		Authenticated: verdict.Authenticated,
		Method:        verdict.Method,
		Identity:      verdict.Identity,
	}
	if verdict.Trace != nil {
		response.Trace = verdict.Trace.Steps
	}

	w.Header().Set("X-Auth-Method", string(verdict.Method))
	_ = utils.WriteOK(w, response)
}
