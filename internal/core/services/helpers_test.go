package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/IANDYI/breeding-service/internal/core/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	testFarmID = uuid.MustParse("6f1c2b3a-0000-4000-8000-000000000001")
	testNow    = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
)

func fixedNow() time.Time { return testNow }

func date(s string) domain.Date { return domain.MustParseDate(s) }

// iatfSteps is a 9-day IATF protocol with one insemination on day 9
func iatfSteps(t *testing.T) []domain.Step {
	t.Helper()
	steps := make([]domain.Step, 0, 5)
	for _, f := range []struct {
		offset  int
		hormone string
		action  string
	}{
		{0, "Benzoato de Estradiol", ""},
		{0, "", "Inserir Dispositivo"},
		{7, "PGF2α", ""},
		{7, "", "Retirar Dispositivo"},
		{9, "", "Inseminação"},
	} {
		s, err := domain.StepFromFields(f.offset, f.hormone, nil, f.action)
		require.NoError(t, err)
		steps = append(steps, s)
	}
	return steps
}

func iatfTemplate(t *testing.T) domain.ProtocolTemplate {
	return domain.ProtocolTemplate{
		ID:       uuid.New(),
		FarmID:   testFarmID,
		Name:     "IATF 9 dias",
		Category: domain.CategoryIATF,
		Steps:    iatfSteps(t),
	}
}

func activeApplication(t *testing.T, subjectID uuid.UUID, start string) domain.ProtocolApplication {
	t.Helper()
	app, err := domain.NewProtocolApplication(iatfTemplate(t), subjectID, date(start), "08:00", testNow)
	require.NoError(t, err)
	return app
}

func insemination(t *testing.T, subjectID uuid.UUID, on string) domain.Event {
	t.Helper()
	e, err := domain.NewInseminationEvent(testFarmID, subjectID, date(on), "IATF", "Ana", "Bull 7", testNow)
	require.NoError(t, err)
	return e
}

// MockTemplateRepository is a mock implementation of ports.TemplateRepository
type MockTemplateRepository struct {
	mock.Mock
}

func (m *MockTemplateRepository) GetTemplate(ctx context.Context, farmID uuid.UUID, templateID uuid.UUID) (*domain.ProtocolTemplate, error) {
	args := m.Called(ctx, farmID, templateID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProtocolTemplate), args.Error(1)
}

// MockApplicationRepository is a mock implementation of ports.ApplicationRepository
type MockApplicationRepository struct {
	mock.Mock
}

func (m *MockApplicationRepository) CreateApplications(ctx context.Context, apps []domain.ProtocolApplication) error {
	args := m.Called(ctx, apps)
	return args.Error(0)
}

func (m *MockApplicationRepository) GetApplication(ctx context.Context, farmID uuid.UUID, applicationID uuid.UUID) (*domain.ProtocolApplication, error) {
	args := m.Called(ctx, farmID, applicationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProtocolApplication), args.Error(1)
}

func (m *MockApplicationRepository) ListActiveApplications(ctx context.Context, farmID uuid.UUID, subjectIDs []uuid.UUID) ([]domain.ProtocolApplication, error) {
	args := m.Called(ctx, farmID, subjectIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ProtocolApplication), args.Error(1)
}

// MockEventRepository is a mock implementation of ports.EventRepository
type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) ListEvents(ctx context.Context, farmID uuid.UUID, subjectIDs []uuid.UUID) ([]domain.Event, error) {
	args := m.Called(ctx, farmID, subjectIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Event), args.Error(1)
}

func (m *MockEventRepository) CreateEvents(ctx context.Context, events []domain.Event) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}
