package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IANDYI/breeding-service/internal/core/domain"
	"github.com/IANDYI/breeding-service/internal/core/ports"
	"github.com/IANDYI/breeding-service/internal/core/services"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockEventPublisher is a mock implementation of ports.EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishEvents(ctx context.Context, events []domain.Event) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

func (m *MockEventPublisher) PublishApplications(ctx context.Context, apps []domain.ProtocolApplication) error {
	args := m.Called(ctx, apps)
	return args.Error(0)
}

func newProtocolService(tmplRepo *MockTemplateRepository, appRepo *MockApplicationRepository, publisher ports.EventPublisher) *services.ProtocolService {
	return services.NewProtocolService(tmplRepo, appRepo, publisher, newOrchestrator(), fixedNow, zerolog.Nop())
}

func TestProtocolService_ApplyProtocol_Success(t *testing.T) {
	tmplRepo := new(MockTemplateRepository)
	appRepo := new(MockApplicationRepository)
	publisher := new(MockEventPublisher)
	service := newProtocolService(tmplRepo, appRepo, publisher)

	tmpl := iatfTemplate(t)
	a, b := uuid.New(), uuid.New()
	subjects := []uuid.UUID{a, b}

	published := make(chan []domain.ProtocolApplication, 1)
	tmplRepo.On("GetTemplate", mock.Anything, testFarmID, tmpl.ID).Return(&tmpl, nil)
	appRepo.On("ListActiveApplications", mock.Anything, testFarmID, subjects).Return([]domain.ProtocolApplication{}, nil)
	appRepo.On("CreateApplications", mock.Anything, mock.MatchedBy(func(apps []domain.ProtocolApplication) bool {
		return len(apps) == 2 && apps[0].SubjectID == a && apps[1].SubjectID == b
	})).Return(nil)
	publisher.On("PublishApplications", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		published <- args.Get(1).([]domain.ProtocolApplication)
	}).Return(nil)

	result, err := service.ApplyProtocol(context.Background(), testFarmID, ports.ApplyProtocolRequest{
		TemplateID: tmpl.ID,
		SubjectIDs: subjects,
		StartDate:  date("2024-01-01"),
		StartHour:  "07:30",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.BatchReady, result.Status)
	require.Len(t, result.Applications, 2)
	assert.Equal(t, "07:30", result.Applications[0].StartHour)
	assert.Equal(t, testNow, result.Applications[0].CreatedAt)

	select {
	case apps := <-published:
		assert.Len(t, apps, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("applications were not published")
	}
	tmplRepo.AssertExpectations(t)
	appRepo.AssertExpectations(t)
}

func TestProtocolService_ApplyProtocol_RejectedBatchWritesNothing(t *testing.T) {
	tmplRepo := new(MockTemplateRepository)
	appRepo := new(MockApplicationRepository)
	service := newProtocolService(tmplRepo, appRepo, nil)

	tmpl := iatfTemplate(t)
	a := uuid.New()
	existing := activeApplication(t, a, "2023-12-01")

	tmplRepo.On("GetTemplate", mock.Anything, testFarmID, tmpl.ID).Return(&tmpl, nil)
	appRepo.On("ListActiveApplications", mock.Anything, testFarmID, []uuid.UUID{a}).Return([]domain.ProtocolApplication{existing}, nil)

	result, err := service.ApplyProtocol(context.Background(), testFarmID, ports.ApplyProtocolRequest{
		TemplateID: tmpl.ID,
		SubjectIDs: []uuid.UUID{a},
		StartDate:  date("2024-01-01"),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.BatchRejected, result.Status)
	assert.Equal(t, domain.KindDuplicateActiveApplication, result.Decisions[0].ErrorKind)
	appRepo.AssertNotCalled(t, "CreateApplications", mock.Anything, mock.Anything)
}

func TestProtocolService_ApplyProtocol_LostRace(t *testing.T) {
	tmplRepo := new(MockTemplateRepository)
	appRepo := new(MockApplicationRepository)
	service := newProtocolService(tmplRepo, appRepo, nil)

	tmpl := iatfTemplate(t)
	a := uuid.New()

	tmplRepo.On("GetTemplate", mock.Anything, testFarmID, tmpl.ID).Return(&tmpl, nil)
	appRepo.On("ListActiveApplications", mock.Anything, testFarmID, []uuid.UUID{a}).Return([]domain.ProtocolApplication{}, nil)
	appRepo.On("CreateApplications", mock.Anything, mock.Anything).
		Return(domain.NewDecisionError(domain.KindDuplicateActiveApplication, "subject already has an active protocol").WithSubject(a))

	_, err := service.ApplyProtocol(context.Background(), testFarmID, ports.ApplyProtocolRequest{
		TemplateID: tmpl.ID,
		SubjectIDs: []uuid.UUID{a},
		StartDate:  date("2024-01-01"),
	})
	assert.True(t, errors.Is(err, domain.ErrDuplicateActiveApplication))
}

func TestProtocolService_ApplyProtocol_TemplateNotFound(t *testing.T) {
	tmplRepo := new(MockTemplateRepository)
	appRepo := new(MockApplicationRepository)
	service := newProtocolService(tmplRepo, appRepo, nil)

	templateID := uuid.New()
	tmplRepo.On("GetTemplate", mock.Anything, testFarmID, templateID).Return(nil, domain.NewDecisionError(domain.KindNotFound, "template not found"))

	_, err := service.ApplyProtocol(context.Background(), testFarmID, ports.ApplyProtocolRequest{
		TemplateID: templateID,
		SubjectIDs: []uuid.UUID{uuid.New()},
		StartDate:  date("2024-01-01"),
	})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	appRepo.AssertNotCalled(t, "ListActiveApplications", mock.Anything, mock.Anything, mock.Anything)
}

func TestProtocolService_ApplyProtocol_RepositoryFailure(t *testing.T) {
	tmplRepo := new(MockTemplateRepository)
	appRepo := new(MockApplicationRepository)
	service := newProtocolService(tmplRepo, appRepo, nil)

	tmpl := iatfTemplate(t)
	tmplRepo.On("GetTemplate", mock.Anything, testFarmID, tmpl.ID).Return(&tmpl, nil)
	appRepo.On("ListActiveApplications", mock.Anything, testFarmID, mock.Anything).Return(nil, errors.New("connection refused"))

	_, err := service.ApplyProtocol(context.Background(), testFarmID, ports.ApplyProtocolRequest{
		TemplateID: tmpl.ID,
		SubjectIDs: []uuid.UUID{uuid.New()},
		StartDate:  date("2024-01-01"),
	})
	require.Error(t, err)
	assert.Equal(t, domain.ErrorKind(""), domain.KindOf(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestProtocolService_GetSchedule(t *testing.T) {
	appRepo := new(MockApplicationRepository)
	service := newProtocolService(new(MockTemplateRepository), appRepo, nil)

	app := activeApplication(t, uuid.New(), "2024-01-01")
	appRepo.On("GetApplication", mock.Anything, testFarmID, app.ID).Return(&app, nil)

	schedule, err := service.GetSchedule(context.Background(), testFarmID, app.ID)
	require.NoError(t, err)
	require.Len(t, schedule.InseminationDates(), 1)
	assert.Equal(t, "2024-01-10", schedule.InseminationDates()[0].String())
}

func TestProtocolService_PreviewSchedule(t *testing.T) {
	service := newProtocolService(new(MockTemplateRepository), new(MockApplicationRepository), nil)

	schedule, err := service.PreviewSchedule(iatfSteps(t), date("2024-01-01"))
	require.NoError(t, err)
	assert.Len(t, schedule.Days(), 10)

	_, err = service.PreviewSchedule(iatfSteps(t), domain.Date{})
	assert.True(t, errors.Is(err, domain.ErrInvalidDate))

	_, err = service.PreviewSchedule(nil, date("2024-01-01"))
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}
