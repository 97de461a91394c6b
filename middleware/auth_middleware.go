package middleware

import (
	"net/http"

	"github.com/pollenlabs/nectar-gateway/models"
	"github.com/pollenlabs/nectar-gateway/services/audit"
	"github.com/pollenlabs/nectar-gateway/utils"
	"go.uber.org/zap"
)

// AuthResolver resolves the authentication verdict for a request
type AuthResolver interface {
	Resolve(r *http.Request) *models.AuthVerdict
}

// DecisionRecorder persists resolved verdicts without blocking the request
type DecisionRecorder interface {
	RecordAsync(d audit.Decision)
}

// AuthMiddleware attaches authentication verdicts to requests
type AuthMiddleware struct {
	resolver AuthResolver
	recorder DecisionRecorder
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware. recorder may be nil when
// decision auditing is disabled.
func NewAuthMiddleware(resolver AuthResolver, recorder DecisionRecorder, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		resolver: resolver,
		recorder: recorder,
		logger:   logger,
	}
}

// ResolveAuth resolves the caller's identity and stores the verdict in the
// request context. It never rejects: unauthenticated requests continue with
// an anonymous verdict, and downstream layers decide what that is worth.
func (m *AuthMiddleware) ResolveAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		verdict := m.resolver.Resolve(r)
		ctx := WithVerdict(r.Context(), verdict)

		if m.recorder != nil {
			m.recorder.RecordAsync(audit.Decision{
				Key:           ClientKey(r, verdict),
				Path:          r.URL.Path,
				Method:        verdict.Method,
				Tier:          verdict.Identity.Tier,
				UserID:        verdict.Identity.UserID,
				Authenticated: verdict.Authenticated,
			})
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireTier rejects requests whose resolved tier is below min.
// This should be called after ResolveAuth.
func (m *AuthMiddleware) RequireTier(min models.Tier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			verdict := GetVerdictFromContext(r.Context())

			if !verdict.Authenticated {
				m.logger.Warn("unauthenticated request to gated route",
					zap.String("path", r.URL.Path))
				_ = utils.WriteUnauthorized(w, "Authentication required")
				return
			}

			if !verdict.Identity.Tier.AtLeast(min) {
				m.logger.Warn("tier below route requirement",
					zap.String("path", r.URL.Path),
					zap.String("tier", verdict.Identity.Tier.String()),
					zap.String("required", min.String()))
				_ = utils.WriteForbidden(w, "Insufficient tier", map[string]interface{}{
					"current_tier":  verdict.Identity.Tier.String(),
					"required_tier": min.String(),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
