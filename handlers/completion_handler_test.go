package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pollenlabs/nectar-gateway/middleware"
	"github.com/pollenlabs/nectar-gateway/models"
	"github.com/pollenlabs/nectar-gateway/services"
	"github.com/pollenlabs/nectar-gateway/upstream"
	"github.com/pollenlabs/nectar-gateway/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockModelAuthorizer is a mock implementation of ModelAuthorizer
type MockModelAuthorizer struct {
	mock.Mock
}

func (m *MockModelAuthorizer) Authorize(tier models.Tier, model string) error {
	args := m.Called(tier, model)
	return args.Error(0)
}

// MockAdmitter is a mock implementation of Admitter. Unless primed with an
// error it runs the task inline.
type MockAdmitter struct {
	mock.Mock
}

func (m *MockAdmitter) Admit(ctx context.Context, key string, verdict *models.AuthVerdict, task func(ctx context.Context) error) error {
	args := m.Called(ctx, key, verdict)
	if err := args.Error(0); err != nil {
		return err
	}
	return task(ctx)
}

func (m *MockAdmitter) ClassFor(method models.AuthMethod) models.AdmissionClass {
	args := m.Called(method)
	return args.Get(0).(models.AdmissionClass)
}

// MockCompletionBackend is a mock implementation of CompletionBackend
type MockCompletionBackend struct {
	mock.Mock
}

func (m *MockCompletionBackend) Complete(ctx context.Context, req upstream.CompletionRequest) (json.RawMessage, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func completionRequest(t *testing.T, body string, verdict *models.AuthVerdict) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/completions", strings.NewReader(body))
	req.RemoteAddr = "203.0.113.9:52114"
	if verdict != nil {
		req = req.WithContext(middleware.WithVerdict(req.Context(), verdict))
	}
	return req
}

func TestHandleCompletion(t *testing.T) {
	logger := zap.NewNop()
	nectarVerdict := models.NewVerdict(models.MethodToken, models.Identity{
		UserID: "u9", Username: "dave", Tier: models.TierNectar,
	}, nil)

	t.Run("authorized request is admitted and relayed", func(t *testing.T) {
		mockAccess := new(MockModelAuthorizer)
		mockAdmit := new(MockAdmitter)
		mockBackend := new(MockCompletionBackend)
		handler := NewCompletionHandler(mockAccess, mockAdmit, mockBackend, logger)

		mockAccess.On("Authorize", models.TierNectar, "pollen-bloom").Return(nil)
		mockAdmit.On("Admit", mock.Anything, "user:u9", nectarVerdict).Return(nil)
		mockBackend.On("Complete", mock.Anything, upstream.CompletionRequest{
			Model: "pollen-bloom", Prompt: "hello", MaxTokens: 64,
		}).Return(json.RawMessage(`{"id":"cmpl-1"}`), nil)

		w := httptest.NewRecorder()
		handler.HandleCompletion(w, completionRequest(t, `{"model":"pollen-bloom","prompt":"hello","max_tokens":64}`, nectarVerdict))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"id":"cmpl-1"}`, w.Body.String())
		mockAccess.AssertExpectations(t)
		mockAdmit.AssertExpectations(t)
		mockBackend.AssertExpectations(t)
	})

	t.Run("invalid JSON body is a bad request", func(t *testing.T) {
		handler := NewCompletionHandler(new(MockModelAuthorizer), new(MockAdmitter), new(MockCompletionBackend), logger)

		w := httptest.NewRecorder()
		handler.HandleCompletion(w, completionRequest(t, `{not json`, nectarVerdict))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing fields fail validation with per-field details", func(t *testing.T) {
		handler := NewCompletionHandler(new(MockModelAuthorizer), new(MockAdmitter), new(MockCompletionBackend), logger)

		w := httptest.NewRecorder()
		handler.HandleCompletion(w, completionRequest(t, `{"max_tokens":10}`, nectarVerdict))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Contains(t, resp.Details, "Model")
		assert.Contains(t, resp.Details, "Prompt")
	})

	t.Run("unknown model is not found", func(t *testing.T) {
		mockAccess := new(MockModelAuthorizer)
		handler := NewCompletionHandler(mockAccess, new(MockAdmitter), new(MockCompletionBackend), logger)

		mockAccess.On("Authorize", models.TierNectar, "no-such-model").Return(services.ErrModelNotFound)

		w := httptest.NewRecorder()
		handler.HandleCompletion(w, completionRequest(t, `{"model":"no-such-model","prompt":"hello"}`, nectarVerdict))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("insufficient tier is forbidden with upgrade details", func(t *testing.T) {
		mockAccess := new(MockModelAuthorizer)
		handler := NewCompletionHandler(mockAccess, new(MockAdmitter), new(MockCompletionBackend), logger)

		denial := services.NewDomainError(services.ErrorTypeForbidden, "tier does not permit this model", nil).
			WithDetail("current_tier", "seed").
			WithDetail("required_tier", "nectar").
			WithDetail("upgrade_url", "https://pollenlabs.dev/upgrade")
		mockAccess.On("Authorize", mock.Anything, "pollen-grand").Return(denial)

		seedVerdict := models.NewVerdict(models.MethodReferrer, models.Identity{UserID: "u7", Tier: models.TierSeed}, nil)
		w := httptest.NewRecorder()
		handler.HandleCompletion(w, completionRequest(t, `{"model":"pollen-grand","prompt":"hello"}`, seedVerdict))

		assert.Equal(t, http.StatusForbidden, w.Code)
		var resp utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "nectar", resp.Details["required_tier"])
		assert.Equal(t, "https://pollenlabs.dev/upgrade", resp.Details["upgrade_url"])
	})

	t.Run("full queue returns 429 with retry-after", func(t *testing.T) {
		mockAccess := new(MockModelAuthorizer)
		mockAdmit := new(MockAdmitter)
		handler := NewCompletionHandler(mockAccess, mockAdmit, new(MockCompletionBackend), logger)

		mockAccess.On("Authorize", mock.Anything, "pollen-bloom").Return(nil)
		mockAdmit.On("Admit", mock.Anything, "user:u9", nectarVerdict).Return(services.ErrQueueFull)
		mockAdmit.On("ClassFor", models.MethodToken).Return(models.AdmissionClass{Interval: 1500 * time.Millisecond, Capacity: 2})

		w := httptest.NewRecorder()
		handler.HandleCompletion(w, completionRequest(t, `{"model":"pollen-bloom","prompt":"hello"}`, nectarVerdict))

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "2", w.Header().Get("Retry-After"))
	})

	t.Run("backend failure is a bad gateway", func(t *testing.T) {
		mockAccess := new(MockModelAuthorizer)
		mockAdmit := new(MockAdmitter)
		mockBackend := new(MockCompletionBackend)
		handler := NewCompletionHandler(mockAccess, mockAdmit, mockBackend, logger)

		mockAccess.On("Authorize", mock.Anything, "pollen-bloom").Return(nil)
		mockAdmit.On("Admit", mock.Anything, "user:u9", nectarVerdict).Return(nil)
		mockBackend.On("Complete", mock.Anything, mock.Anything).Return(nil, services.ErrUpstreamUnavailable)

		w := httptest.NewRecorder()
		handler.HandleCompletion(w, completionRequest(t, `{"model":"pollen-bloom","prompt":"hello"}`, nectarVerdict))

		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("anonymous caller is admitted per client IP", func(t *testing.T) {
		mockAccess := new(MockModelAuthorizer)
		mockAdmit := new(MockAdmitter)
		mockBackend := new(MockCompletionBackend)
		handler := NewCompletionHandler(mockAccess, mockAdmit, mockBackend, logger)

		anon := models.UnauthenticatedVerdict(nil)
		mockAccess.On("Authorize", models.TierAnonymous, "pollen-mini").Return(nil)
		mockAdmit.On("Admit", mock.Anything, "ip:203.0.113.9", anon).Return(nil)
		mockBackend.On("Complete", mock.Anything, mock.Anything).Return(json.RawMessage(`{}`), nil)

		w := httptest.NewRecorder()
		handler.HandleCompletion(w, completionRequest(t, `{"model":"pollen-mini","prompt":"hello"}`, anon))

		assert.Equal(t, http.StatusOK, w.Code)
		mockAdmit.AssertExpectations(t)
	})
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, retryAfterSeconds(0))
	assert.Equal(t, 1, retryAfterSeconds(200*time.Millisecond))
	assert.Equal(t, 1, retryAfterSeconds(time.Second))
	assert.Equal(t, 2, retryAfterSeconds(1500*time.Millisecond))
	assert.Equal(t, 5, retryAfterSeconds(5*time.Second))
}
