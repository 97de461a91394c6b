package authn

import (
	"context"
	"crypto/subtle"
	"net/url"

	"github.com/pollenlabs/nectar-gateway/models"
	"go.uber.org/zap"
)

// TrustLookups is the cached trust-service surface the strategies consult.
// Implemented by *trust.Cache. A nil identity means "not verified by this
// method" whether the service said no or could not be reached.
type TrustLookups interface {
	ValidateToken(ctx context.Context, token string) *models.Identity
	ValidateReferrerDomain(ctx context.Context, domain string) *models.Identity
	LookupUpstreamID(ctx context.Context, id string) *models.Identity
}

// Strategy is one step of the authentication cascade. A nil verdict means
// the strategy did not apply or its credential failed validation; the
// cascade falls through to the next strategy either way.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, creds models.Credentials, trace *models.Trace) *models.AuthVerdict
}

// elevatedStrategy validates the x-enter-token shared secret locally and,
// when an upstream identity id rides along, resolves it through the trust
// service. Highest priority in the cascade.
type elevatedStrategy struct {
	secret      string
	defaultTier models.Tier
	lookups     TrustLookups
	logger      *zap.Logger
}

func (s *elevatedStrategy) Name() string { return "elevated" }

func (s *elevatedStrategy) Attempt(ctx context.Context, creds models.Credentials, trace *models.Trace) *models.AuthVerdict {
	if !creds.HasEnterToken() {
		return nil
	}

	redacted := models.RedactSecret(creds.EnterToken)

	if s.secret == "" {
		// Operational misconfiguration: an entire auth tier is unusable.
		s.logger.Error("enter token presented but no secret is configured")
		trace.Add(s.Name(), redacted, "disabled")
		return nil
	}

	if subtle.ConstantTimeCompare([]byte(creds.EnterToken), []byte(s.secret)) != 1 {
		// An invalid elevated token does not short-circuit the cascade;
		// the request proceeds as if no elevated token were present.
		s.logger.Warn("invalid enter token presented",
			zap.String("enter_token", redacted))
		trace.Add(s.Name(), redacted, "invalid")
		return nil
	}

	if creds.HasUpstreamID() {
		if identity := s.lookups.LookupUpstreamID(ctx, creds.UpstreamID); identity != nil {
			trace.Add(s.Name(), redacted, "valid, upstream identity "+creds.UpstreamID+" resolved")
			return models.NewVerdict(models.MethodElevatedWithIdentity, *identity, trace)
		}
		trace.Add(s.Name(), redacted, "valid, upstream identity "+creds.UpstreamID+" unresolved")
		return models.NewVerdict(models.MethodElevated, models.Identity{Tier: s.defaultTier}, trace)
	}

	trace.Add(s.Name(), redacted, "valid")
	return models.NewVerdict(models.MethodElevated, models.Identity{Tier: s.defaultTier}, trace)
}

// bearerStrategy validates a presented bearer token against the trust
// service. A rejected token is a failed strategy, not a failed request.
type bearerStrategy struct {
	lookups TrustLookups
	logger  *zap.Logger
}

func (s *bearerStrategy) Name() string { return "bearer" }

func (s *bearerStrategy) Attempt(ctx context.Context, creds models.Credentials, trace *models.Trace) *models.AuthVerdict {
	if !creds.HasBearer() {
		return nil
	}

	redacted := models.RedactToken(creds.BearerToken)

	identity := s.lookups.ValidateToken(ctx, creds.BearerToken)
	if identity == nil {
		s.logger.Warn("unrecognized bearer token",
			zap.String("token", redacted),
			zap.String("source", string(creds.BearerSource)))
		trace.Add(s.Name(), redacted, "rejected via "+string(creds.BearerSource))
		return nil
	}

	trace.Add(s.Name(), redacted, "accepted via "+string(creds.BearerSource))
	return models.NewVerdict(models.MethodToken, *identity, trace)
}

// referrerStrategy validates the request's referring page against the
// registered-domain list in the trust service. Lowest-priority credential:
// a weak, revocable signal for frontends that cannot hold a secret.
type referrerStrategy struct {
	lookups TrustLookups
	logger  *zap.Logger
}

func (s *referrerStrategy) Name() string { return "referrer" }

func (s *referrerStrategy) Attempt(ctx context.Context, creds models.Credentials, trace *models.Trace) *models.AuthVerdict {
	if !creds.HasReferer() {
		return nil
	}

	domain := normalizeReferrer(creds.Referer)

	identity := s.lookups.ValidateReferrerDomain(ctx, domain)
	if identity == nil {
		trace.Add(s.Name(), creds.Referer, "domain "+domain+" not registered")
		return nil
	}

	trace.Add(s.Name(), creds.Referer, "domain "+domain+" registered")
	return models.NewVerdict(models.MethodReferrer, *identity, trace)
}

// normalizeReferrer reduces a referring URL to its bare hostname. When the
// value does not parse as a URL with a host, the raw string is used as a
// domain literal.
func normalizeReferrer(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return raw
}
