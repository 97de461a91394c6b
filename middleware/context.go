package middleware

import (
	"context"
	"net"
	"net/http"

	"github.com/pollenlabs/nectar-gateway/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	// VerdictKey is the context key for the authentication verdict
	VerdictKey contextKey = "auth_verdict"
)

// WithVerdict adds an authentication verdict to the context
func WithVerdict(ctx context.Context, verdict *models.AuthVerdict) context.Context {
	return context.WithValue(ctx, VerdictKey, verdict)
}

// GetVerdictFromContext retrieves the authentication verdict from context.
// Returns an unauthenticated verdict when no resolver ran for this request.
func GetVerdictFromContext(ctx context.Context) *models.AuthVerdict {
	if val := ctx.Value(VerdictKey); val != nil {
		if verdict, ok := val.(*models.AuthVerdict); ok {
			return verdict
		}
	}
	return models.UnauthenticatedVerdict(nil)
}

// ClientKey derives the admission key for a request. Authenticated callers
// queue per user, everyone else queues per client IP.
func ClientKey(r *http.Request, verdict *models.AuthVerdict) string {
	if verdict != nil && verdict.Authenticated && verdict.Identity.UserID != "" {
		return "user:" + verdict.Identity.UserID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
