package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/IANDYI/breeding-service/internal/adapters/middleware"
	"github.com/IANDYI/breeding-service/internal/core/domain"
	"github.com/IANDYI/breeding-service/internal/core/ports"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

var testFarmID = uuid.MustParse("6f1c2b3a-0000-4000-8000-000000000001")

// MockProtocolService is a mock implementation of ports.ProtocolService
type MockProtocolService struct {
	mock.Mock
}

func (m *MockProtocolService) ApplyProtocol(ctx context.Context, farmID uuid.UUID, req ports.ApplyProtocolRequest) (domain.BatchResult, error) {
	args := m.Called(ctx, farmID, req)
	return args.Get(0).(domain.BatchResult), args.Error(1)
}

func (m *MockProtocolService) GetSchedule(ctx context.Context, farmID uuid.UUID, applicationID uuid.UUID) (domain.Schedule, error) {
	args := m.Called(ctx, farmID, applicationID)
	return args.Get(0).(domain.Schedule), args.Error(1)
}

func (m *MockProtocolService) PreviewSchedule(steps []domain.Step, startDate domain.Date) (domain.Schedule, error) {
	args := m.Called(steps, startDate)
	return args.Get(0).(domain.Schedule), args.Error(1)
}

// MockEventService is a mock implementation of ports.EventService
type MockEventService struct {
	mock.Mock
}

func (m *MockEventService) RegisterInseminations(ctx context.Context, farmID uuid.UUID, req ports.RegisterInseminationsRequest) (domain.BatchResult, error) {
	args := m.Called(ctx, farmID, req)
	return args.Get(0).(domain.BatchResult), args.Error(1)
}

func (m *MockEventService) RegisterDiagnoses(ctx context.Context, farmID uuid.UUID, req ports.RegisterDiagnosesRequest) (domain.BatchResult, error) {
	args := m.Called(ctx, farmID, req)
	return args.Get(0).(domain.BatchResult), args.Error(1)
}

func (m *MockEventService) EvaluateDiagnosis(ctx context.Context, farmID uuid.UUID, req ports.EvaluateDiagnosisRequest) (domain.WindowResult, error) {
	args := m.Called(ctx, farmID, req)
	return args.Get(0).(domain.WindowResult), args.Error(1)
}

// authenticated returns a request carrying the identity RequireAuth would set
func authenticated(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	ctx := context.WithValue(req.Context(), middleware.UserIDKey, uuid.New().String())
	ctx = context.WithValue(ctx, middleware.RoleKey, middleware.RoleVet)
	ctx = context.WithValue(ctx, middleware.FarmIDKey, testFarmID)
	return req.WithContext(ctx)
}

func decodeBody(w *httptest.ResponseRecorder, v any) error {
	return json.NewDecoder(w.Body).Decode(v)
}
