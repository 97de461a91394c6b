package authn

import (
	"net/http"
	"strings"

	"github.com/pollenlabs/nectar-gateway/models"
)

// Header and query conventions consumed by the extractor. Header matching
// is case-insensitive per net/http canonicalization.
const (
	headerAuthorization = "Authorization"
	headerEnterToken    = "x-enter-token"
	headerUpstreamID    = "x-github-id"
	headerReferer       = "Referer"
	queryParamToken     = "token"
)

// ExtractCredentials pulls every candidate credential out of a request
// without validating any of them. Each extraction is independent; absence
// is an empty field, never an error, and malformed input never panics.
func ExtractCredentials(r *http.Request) models.Credentials {
	creds := models.Credentials{
		Referer:    r.Header.Get(headerReferer),
		EnterToken: r.Header.Get(headerEnterToken),
		UpstreamID: r.Header.Get(headerUpstreamID),
	}

	// The Authorization header takes precedence over the query parameter.
	// Which transport supplied the token is recorded for the debug trace
	// only; resolution never branches on it.
	if token := bearerFromHeader(r); token != "" {
		creds.BearerToken = token
		creds.BearerSource = models.BearerSourceHeader
	} else if token := r.URL.Query().Get(queryParamToken); token != "" {
		creds.BearerToken = token
		creds.BearerSource = models.BearerSourceQuery
	}

	return creds
}

// bearerFromHeader extracts the token from an "Authorization: Bearer ..." header
func bearerFromHeader(r *http.Request) string {
	authHeader := r.Header.Get(headerAuthorization)
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
