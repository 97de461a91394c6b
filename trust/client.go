package trust

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pollenlabs/nectar-gateway/models"
	"go.uber.org/zap"
)

var (
	// ErrRequestFailed is returned when the trust service cannot be reached
	// or answers with an unexpected status
	ErrRequestFailed = errors.New("trust service request failed")

	// ErrMalformedResponse is returned when the trust service answers with
	// a payload that cannot be decoded
	ErrMalformedResponse = errors.New("trust service returned malformed response")
)

// Client talks to the external trust service. All lookups return
// (nil, nil) when the service definitively reports no match; an error means
// the answer is unknown (timeout, 5xx, malformed payload) and the caller
// must degrade to "not verified by this method".
type Client struct {
	baseURL    string
	adminKey   string
	httpClient *http.Client
	logger     *zap.Logger
}

// Config holds configuration for the trust service client
type Config struct {
	BaseURL  string
	AdminKey string
	Timeout  time.Duration
}

// NewClient creates a new trust service client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		baseURL:  cfg.BaseURL,
		adminKey: cfg.AdminKey,
		logger:   logger,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// tokenResponse is the wire shape of GET /validate-token/{token}
type tokenResponse struct {
	Valid    bool   `json:"valid"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Tier     string `json:"tier"`
}

// referrerResponse is the wire shape of GET /validate-referrer
type referrerResponse struct {
	Valid    bool   `json:"valid"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Tier     string `json:"tier"`
}

// userInfoResponse is the wire shape of GET /admin/user-info
type userInfoResponse struct {
	User *struct {
		GithubUserID string `json:"github_user_id"`
		Username     string `json:"username"`
	} `json:"user"`
	UserTier *struct {
		Tier string `json:"tier"`
	} `json:"userTier"`
}

// ValidateToken resolves a bearer token to an identity
func (c *Client) ValidateToken(ctx context.Context, token string) (*models.Identity, error) {
	endpoint := fmt.Sprintf("%s/validate-token/%s", c.baseURL, url.PathEscape(token))

	var payload tokenResponse
	if err := c.get(ctx, endpoint, "", &payload); err != nil {
		return nil, err
	}

	if !payload.Valid {
		return nil, nil
	}

	tier, _ := models.ParseTier(payload.Tier)
	return &models.Identity{
		UserID:   payload.UserID,
		Username: payload.Username,
		Tier:     tier,
	}, nil
}

// ValidateReferrerDomain resolves a registered referrer domain to the
// identity it is bound to
func (c *Client) ValidateReferrerDomain(ctx context.Context, domain string) (*models.Identity, error) {
	endpoint := fmt.Sprintf("%s/validate-referrer?referrer=%s", c.baseURL, url.QueryEscape(domain))

	var payload referrerResponse
	if err := c.get(ctx, endpoint, "", &payload); err != nil {
		return nil, err
	}

	if !payload.Valid {
		return nil, nil
	}

	tier, _ := models.ParseTier(payload.Tier)
	return &models.Identity{
		UserID:   payload.UserID,
		Username: payload.Username,
		Tier:     tier,
	}, nil
}

// LookupUpstreamID resolves a pre-verified upstream identity id via the
// admin endpoint. Requires the admin API key.
func (c *Client) LookupUpstreamID(ctx context.Context, id string) (*models.Identity, error) {
	endpoint := fmt.Sprintf("%s/admin/user-info?user_id=%s", c.baseURL, url.QueryEscape(id))

	var payload userInfoResponse
	if err := c.get(ctx, endpoint, c.adminKey, &payload); err != nil {
		return nil, err
	}

	if payload.User == nil {
		return nil, nil
	}

	identity := &models.Identity{
		UserID:   payload.User.GithubUserID,
		Username: payload.User.Username,
	}
	if payload.UserTier != nil {
		identity.Tier, _ = models.ParseTier(payload.UserTier.Tier)
	}
	return identity, nil
}

// Ping reports whether the trust service answers HTTP at all. Any status
// counts as reachable; only a transport failure is an error.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	return nil
}

// get performs a GET request and decodes the JSON body into out.
// A 404 is a definitive no-match and leaves out at its zero value; any
// other non-2xx status or an undecodable body is an error.
func (c *Client) get(ctx context.Context, endpoint, bearer string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status code %d", ErrRequestFailed, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return nil
}
