package authn

import (
	"net/http/httptest"
	"testing"

	"github.com/pollenlabs/nectar-gateway/models"
	"github.com/stretchr/testify/assert"
)

func TestExtractCredentials(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		headers  map[string]string
		expected models.Credentials
	}{
		{
			name:     "no credentials at all",
			url:      "/v1/completions",
			expected: models.Credentials{},
		},
		{
			name: "bearer token from Authorization header",
			url:  "/v1/completions",
			headers: map[string]string{
				"Authorization": "Bearer tok-123",
			},
			expected: models.Credentials{
				BearerToken:  "tok-123",
				BearerSource: models.BearerSourceHeader,
			},
		},
		{
			name: "bearer token from query parameter",
			url:  "/v1/completions?token=tok-456",
			expected: models.Credentials{
				BearerToken:  "tok-456",
				BearerSource: models.BearerSourceQuery,
			},
		},
		{
			name: "header takes precedence over query parameter",
			url:  "/v1/completions?token=from-query",
			headers: map[string]string{
				"Authorization": "Bearer from-header",
			},
			expected: models.Credentials{
				BearerToken:  "from-header",
				BearerSource: models.BearerSourceHeader,
			},
		},
		{
			name: "lowercase bearer scheme accepted",
			url:  "/",
			headers: map[string]string{
				"Authorization": "bearer tok-789",
			},
			expected: models.Credentials{
				BearerToken:  "tok-789",
				BearerSource: models.BearerSourceHeader,
			},
		},
		{
			name: "malformed Authorization header is absence, not an error",
			url:  "/",
			headers: map[string]string{
				"Authorization": "Bearertok-nospace",
			},
			expected: models.Credentials{},
		},
		{
			name: "non-bearer scheme ignored",
			url:  "/",
			headers: map[string]string{
				"Authorization": "Basic dXNlcjpwYXNz",
			},
			expected: models.Credentials{},
		},
		{
			name: "referer extracted raw, normalization happens later",
			url:  "/",
			headers: map[string]string{
				"Referer": "https://example.com/page?q=1",
			},
			expected: models.Credentials{
				Referer: "https://example.com/page?q=1",
			},
		},
		{
			name: "enter token and upstream id headers",
			url:  "/",
			headers: map[string]string{
				"x-enter-token": "sekrit",
				"x-github-id":   "u1",
			},
			expected: models.Credentials{
				EnterToken: "sekrit",
				UpstreamID: "u1",
			},
		},
		{
			name: "header names are case-insensitive",
			url:  "/",
			headers: map[string]string{
				"X-Enter-Token": "sekrit",
				"X-GitHub-Id":   "u1",
				"referer":       "https://example.com",
			},
			expected: models.Credentials{
				EnterToken: "sekrit",
				UpstreamID: "u1",
				Referer:    "https://example.com",
			},
		},
		{
			name: "everything at once, each extraction independent",
			url:  "/v1/completions?token=ignored",
			headers: map[string]string{
				"Authorization": "Bearer tok-1",
				"Referer":       "https://example.com",
				"x-enter-token": "sekrit",
				"x-github-id":   "u1",
			},
			expected: models.Credentials{
				BearerToken:  "tok-1",
				BearerSource: models.BearerSourceHeader,
				Referer:      "https://example.com",
				EnterToken:   "sekrit",
				UpstreamID:   "u1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.url, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			assert.Equal(t, tt.expected, ExtractCredentials(req))
		})
	}
}

func TestNormalizeReferrer(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
	}{
		{"https://example.com/page", "example.com"},
		{"http://example.com", "example.com"},
		{"https://sub.example.com:8443/a/b?c=d", "sub.example.com"},
		// No scheme: not parseable into a host, raw value used as domain literal
		{"example.com", "example.com"},
		{"not a url at all", "not a url at all"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeReferrer(tt.raw))
		})
	}
}
