package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/IANDYI/breeding-service/internal/adapters/handler"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPinger is a mock implementation of handler.Pinger
type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) PingContext(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestHealthHandler_Health(t *testing.T) {
	healthHandler := handler.NewHealthHandler(new(MockPinger), zerolog.Nop())

	w := httptest.NewRecorder()
	healthHandler.Health(w, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp handler.HealthResponse
	require.NoError(t, decodeBody(w, &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHealthHandler_Ready(t *testing.T) {
	pinger := new(MockPinger)
	pinger.On("PingContext", mock.Anything).Return(nil)
	healthHandler := handler.NewHealthHandler(pinger, zerolog.Nop())

	w := httptest.NewRecorder()
	healthHandler.Ready(w, httptest.NewRequest("GET", "/health/ready", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ready")
	pinger.AssertExpectations(t)
}

func TestHealthHandler_NotReady(t *testing.T) {
	pinger := new(MockPinger)
	pinger.On("PingContext", mock.Anything).Return(errors.New("connection refused"))
	healthHandler := handler.NewHealthHandler(pinger, zerolog.Nop())

	w := httptest.NewRecorder()
	healthHandler.Ready(w, httptest.NewRequest("GET", "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "not ready")
}

func TestHealthHandler_Live(t *testing.T) {
	healthHandler := handler.NewHealthHandler(new(MockPinger), zerolog.Nop())

	w := httptest.NewRecorder()
	healthHandler.Live(w, httptest.NewRequest("GET", "/health/live", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alive")
}

func TestMetrics(t *testing.T) {
	w := httptest.NewRecorder()
	handler.Metrics(w, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}
