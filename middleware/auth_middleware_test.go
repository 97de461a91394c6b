package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pollenlabs/nectar-gateway/models"
	"github.com/pollenlabs/nectar-gateway/services/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockAuthResolver is a mock implementation of AuthResolver
type MockAuthResolver struct {
	mock.Mock
}

func (m *MockAuthResolver) Resolve(r *http.Request) *models.AuthVerdict {
	args := m.Called(r)
	return args.Get(0).(*models.AuthVerdict)
}

// MockDecisionRecorder is a mock implementation of DecisionRecorder
type MockDecisionRecorder struct {
	mock.Mock
}

func (m *MockDecisionRecorder) RecordAsync(d audit.Decision) {
	m.Called(d)
}

func TestResolveAuth(t *testing.T) {
	logger := zap.NewNop()

	t.Run("verdict is attached to context", func(t *testing.T) {
		mockResolver := new(MockAuthResolver)
		middleware := NewAuthMiddleware(mockResolver, nil, logger)

		verdict := models.NewVerdict(models.MethodToken, models.Identity{
			UserID:   "u9",
			Username: "dave",
			Tier:     models.TierNectar,
		}, nil)
		mockResolver.On("Resolve", mock.Anything).Return(verdict)

		handler := middleware.ResolveAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := GetVerdictFromContext(r.Context())
			assert.True(t, got.Authenticated)
			assert.Equal(t, models.MethodToken, got.Method)
			assert.Equal(t, "u9", got.Identity.UserID)
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		mockResolver.AssertExpectations(t)
	})

	t.Run("unauthenticated request is never rejected", func(t *testing.T) {
		mockResolver := new(MockAuthResolver)
		middleware := NewAuthMiddleware(mockResolver, nil, logger)

		mockResolver.On("Resolve", mock.Anything).Return(models.UnauthenticatedVerdict(nil))

		handler := middleware.ResolveAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := GetVerdictFromContext(r.Context())
			assert.False(t, got.Authenticated)
			assert.Equal(t, models.TierAnonymous, got.Identity.Tier)
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("decision recorded without blocking the request", func(t *testing.T) {
		mockResolver := new(MockAuthResolver)
		mockRecorder := new(MockDecisionRecorder)
		middleware := NewAuthMiddleware(mockResolver, mockRecorder, logger)

		verdict := models.NewVerdict(models.MethodReferrer, models.Identity{
			UserID: "u7",
			Tier:   models.TierSeed,
		}, nil)
		mockResolver.On("Resolve", mock.Anything).Return(verdict)
		mockRecorder.On("RecordAsync", mock.MatchedBy(func(d audit.Decision) bool {
			return d.Key == "user:u7" &&
				d.Path == "/api/v1/completions" &&
				d.Method == models.MethodReferrer &&
				d.Tier == models.TierSeed &&
				d.Authenticated
		})).Return()

		handler := middleware.ResolveAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodPost, "/api/v1/completions", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		mockRecorder.AssertExpectations(t)
	})
}

func TestRequireTier(t *testing.T) {
	logger := zap.NewNop()
	middleware := NewAuthMiddleware(nil, nil, logger)

	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	serveWithVerdict := func(t *testing.T, verdict *models.AuthVerdict, required models.Tier) *httptest.ResponseRecorder {
		t.Helper()
		handler := middleware.RequireTier(required)(okHandler)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil)
		req = req.WithContext(WithVerdict(req.Context(), verdict))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	t.Run("tier at requirement passes", func(t *testing.T) {
		verdict := models.NewVerdict(models.MethodToken, models.Identity{UserID: "u1", Tier: models.TierAdmin}, nil)
		w := serveWithVerdict(t, verdict, models.TierAdmin)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("tier above requirement passes", func(t *testing.T) {
		verdict := models.NewVerdict(models.MethodToken, models.Identity{UserID: "u1", Tier: models.TierAdmin}, nil)
		w := serveWithVerdict(t, verdict, models.TierFlower)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("tier below requirement is forbidden", func(t *testing.T) {
		verdict := models.NewVerdict(models.MethodToken, models.Identity{UserID: "u9", Tier: models.TierNectar}, nil)
		w := serveWithVerdict(t, verdict, models.TierAdmin)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("unauthenticated request is unauthorized", func(t *testing.T) {
		w := serveWithVerdict(t, models.UnauthenticatedVerdict(nil), models.TierAdmin)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing verdict defaults to unauthenticated", func(t *testing.T) {
		handler := middleware.RequireTier(models.TierAdmin)(okHandler)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestClientKey(t *testing.T) {
	t.Run("authenticated caller keys by user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		verdict := models.NewVerdict(models.MethodToken, models.Identity{UserID: "u9", Tier: models.TierNectar}, nil)
		assert.Equal(t, "user:u9", ClientKey(req, verdict))
	})

	t.Run("anonymous caller keys by client IP", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "203.0.113.9:52114"
		assert.Equal(t, "ip:203.0.113.9", ClientKey(req, models.UnauthenticatedVerdict(nil)))
	})

	t.Run("remote addr without port is used verbatim", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "203.0.113.9"
		assert.Equal(t, "ip:203.0.113.9", ClientKey(req, nil))
	})
}
