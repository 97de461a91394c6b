package authn

import (
	"net/http"

	"github.com/pollenlabs/nectar-gateway/models"
	"go.uber.org/zap"
)

// ResolverConfig holds the locally verified material the cascade needs
type ResolverConfig struct {
	// EnterTokenSecret is the shared secret trusted backend callers present
	// in x-enter-token. Empty disables the elevated strategies.
	EnterTokenSecret string

	// ElevatedDefaultTier is assigned when a valid enter token arrives
	// without a resolvable upstream identity
	ElevatedDefaultTier models.Tier
}

// Resolver runs the ordered authentication cascade. Strategies are tried
// strictly in priority order, first success wins, and the terminal state is
// an unauthenticated anonymous verdict. Resolution itself never fails.
type Resolver struct {
	strategies []Strategy
	logger     *zap.Logger
}

// NewResolver wires the cascade in its fixed priority order:
// elevated token, bearer token, referrer.
func NewResolver(cfg ResolverConfig, lookups TrustLookups, logger *zap.Logger) *Resolver {
	if cfg.EnterTokenSecret == "" {
		// Missing secret silently disables an entire auth tier.
		logger.Error("ENTER_TOKEN_SECRET is not configured; elevated authentication is disabled")
	}

	return &Resolver{
		logger: logger,
		strategies: []Strategy{
			&elevatedStrategy{
				secret:      cfg.EnterTokenSecret,
				defaultTier: cfg.ElevatedDefaultTier,
				lookups:     lookups,
				logger:      logger,
			},
			&bearerStrategy{lookups: lookups, logger: logger},
			&referrerStrategy{lookups: lookups, logger: logger},
		},
	}
}

// Resolve extracts credentials from the request and runs the cascade.
// The returned verdict is immutable and safe to attach to the request
// context for the remainder of its lifetime.
func (r *Resolver) Resolve(req *http.Request) *models.AuthVerdict {
	ctx := req.Context()
	creds := ExtractCredentials(req)
	trace := models.NewTrace()

	for _, strategy := range r.strategies {
		if verdict := strategy.Attempt(ctx, creds, trace); verdict != nil {
			r.logger.Debug("authentication resolved",
				zap.String("strategy", strategy.Name()),
				zap.String("method", string(verdict.Method)),
				zap.String("tier", verdict.Identity.Tier.String()),
				zap.String("user_id", verdict.Identity.UserID))
			return verdict
		}
	}

	trace.Add("none", "", "no credential accepted")
	return models.UnauthenticatedVerdict(trace)
}
