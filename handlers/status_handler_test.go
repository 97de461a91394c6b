package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pollenlabs/nectar-gateway/services/access"
	"github.com/pollenlabs/nectar-gateway/trust"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockModelLister is a mock implementation of ModelLister
type MockModelLister struct {
	mock.Mock
}

func (m *MockModelLister) Models() []access.ModelEntry {
	args := m.Called()
	return args.Get(0).([]access.ModelEntry)
}

// MockCacheStatser is a mock implementation of CacheStatser
type MockCacheStatser struct {
	mock.Mock
}

func (m *MockCacheStatser) Stats() trust.CacheStats {
	args := m.Called()
	return args.Get(0).(trust.CacheStats)
}

// MockQueueStatser is a mock implementation of QueueStatser
type MockQueueStatser struct {
	mock.Mock
}

func (m *MockQueueStatser) ActiveKeys() int {
	args := m.Called()
	return args.Int(0)
}

func TestHandleStatus(t *testing.T) {
	mockModels := new(MockModelLister)
	mockQueue := new(MockQueueStatser)
	handler := NewStatusHandler(mockModels, new(MockCacheStatser), mockQueue, false, zap.NewNop())

	mockModels.On("Models").Return([]access.ModelEntry{
		{Name: "pollen-mini", MinTier: "anonymous"},
		{Name: "pollen-swift", MinTier: "seed"},
	})
	mockQueue.On("ActiveKeys").Return(3)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	handler.HandleStatus(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Models, 2)
	assert.Equal(t, "pollen-mini", resp.Models[0].Name)
	assert.Equal(t, 3, resp.Queue.ActiveKeys)
}

func TestHandleAdminStats(t *testing.T) {
	mockCache := new(MockCacheStatser)
	mockQueue := new(MockQueueStatser)
	handler := NewStatusHandler(new(MockModelLister), mockCache, mockQueue, true, zap.NewNop())

	mockCache.On("Stats").Return(trust.CacheStats{Size: 12, Hits: 90, Misses: 10, HitRate: 0.9})
	mockQueue.On("ActiveKeys").Return(5)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil)
	w := httptest.NewRecorder()
	handler.HandleAdminStats(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp AdminStatsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 12, resp.Cache.Size)
	assert.InDelta(t, 0.9, resp.Cache.HitRate, 0.0001)
	assert.Equal(t, 5, resp.Queue.ActiveKeys)
	assert.True(t, resp.AuditEnabled)
}
