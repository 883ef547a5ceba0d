package services

import (
	"context"
	"fmt"
	"time"

	"github.com/IANDYI/breeding-service/internal/core/domain"
	"github.com/IANDYI/breeding-service/internal/core/ports"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventService implements business logic for inseminations and diagnoses.
// Reads collaborator data, lets the orchestrator decide, then persists ready
// payloads as a single batch.
type EventService struct {
	applicationRepo ports.ApplicationRepository
	eventRepo       ports.EventRepository
	publisher       ports.EventPublisher
	orchestrator    *BulkOrchestrator
	window          domain.WindowConfig
	now             func() time.Time
	logger          zerolog.Logger
}

// NewEventService creates a new event service
func NewEventService(
	applicationRepo ports.ApplicationRepository,
	eventRepo ports.EventRepository,
	publisher ports.EventPublisher,
	orchestrator *BulkOrchestrator,
	window domain.WindowConfig,
	now func() time.Time,
	logger zerolog.Logger,
) *EventService {
	if now == nil {
		now = time.Now
	}
	return &EventService{
		applicationRepo: applicationRepo,
		eventRepo:       eventRepo,
		publisher:       publisher,
		orchestrator:    orchestrator,
		window:          window,
		now:             now,
		logger:          logger.With().Str("component", "event_service").Logger(),
	}
}

// RegisterInseminations links and persists one insemination for every subject
func (s *EventService) RegisterInseminations(ctx context.Context, farmID uuid.UUID, req ports.RegisterInseminationsRequest) (domain.BatchResult, error) {
	active, err := s.applicationRepo.ListActiveApplications(ctx, farmID, req.SubjectIDs)
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("failed to list active applications: %w", err)
	}

	now := s.now()
	result, err := s.orchestrator.PlanInseminations(ctx, InseminationBatch{
		FarmID:       farmID,
		SubjectIDs:   req.SubjectIDs,
		EventDate:    req.EventDate,
		ReasonCode:   req.ReasonCode,
		Inseminator:  req.Inseminator,
		Sire:         req.Sire,
		Note:         req.Note,
		Choices:      req.Choices,
		AllowPartial: req.AllowPartial,
		Today:        domain.DateOf(now),
		CreatedAt:    now,
	}, groupSnapshots(req.SubjectIDs, active, nil))
	if err != nil {
		return domain.BatchResult{}, err
	}

	if err := s.persist(ctx, result); err != nil {
		return domain.BatchResult{}, err
	}
	return result, nil
}

// RegisterDiagnoses validates and persists one diagnosis for every subject
func (s *EventService) RegisterDiagnoses(ctx context.Context, farmID uuid.UUID, req ports.RegisterDiagnosesRequest) (domain.BatchResult, error) {
	result, err := domain.ParseDiagnosisResult(req.Result)
	if err != nil {
		return domain.BatchResult{}, err
	}
	exam, err := domain.ParseExamType(req.ExamType)
	if err != nil {
		return domain.BatchResult{}, err
	}

	events, err := s.eventRepo.ListEvents(ctx, farmID, req.SubjectIDs)
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("failed to list events: %w", err)
	}

	batch, err := s.orchestrator.PlanDiagnoses(ctx, DiagnosisBatch{
		FarmID:        farmID,
		SubjectIDs:    req.SubjectIDs,
		DiagnosisDate: req.DiagnosisDate,
		ExamType:      exam,
		Result:        result,
		Note:          req.Note,
		Window:        s.window.Apply(req.Window),
		AllowPartial:  req.AllowPartial,
		CreatedAt:     s.now(),
	}, groupSnapshots(req.SubjectIDs, nil, events))
	if err != nil {
		return domain.BatchResult{}, err
	}

	if err := s.persist(ctx, batch); err != nil {
		return domain.BatchResult{}, err
	}
	return batch, nil
}

// EvaluateDiagnosis validates a diagnosis for one subject without persisting it
func (s *EventService) EvaluateDiagnosis(ctx context.Context, farmID uuid.UUID, req ports.EvaluateDiagnosisRequest) (domain.WindowResult, error) {
	if req.SubjectID == uuid.Nil {
		return domain.WindowResult{}, domain.NewDecisionError(domain.KindInvalidInput, "subject_id is required")
	}
	if req.DiagnosisDate.IsZero() {
		return domain.WindowResult{}, domain.NewDecisionError(domain.KindInvalidDate, "diagnosis date is required")
	}
	result, err := domain.ParseDiagnosisResult(req.Result)
	if err != nil {
		return domain.WindowResult{}, err
	}
	exam, err := domain.ParseExamType(req.ExamType)
	if err != nil {
		return domain.WindowResult{}, err
	}
	cfg := s.window.Apply(req.Window)
	if err := cfg.Validate(); err != nil {
		return domain.WindowResult{}, err
	}

	events, err := s.eventRepo.ListEvents(ctx, farmID, []uuid.UUID{req.SubjectID})
	if err != nil {
		return domain.WindowResult{}, fmt.Errorf("failed to list events: %w", err)
	}

	eval := EvaluateDiagnosis(cfg, DiagnosisRequest{
		SubjectID:     req.SubjectID,
		DiagnosisDate: req.DiagnosisDate,
		ExamType:      exam,
		Result:        result,
	}, events)
	return eval.Window, nil
}

// persist writes the batch payloads in one call; nothing is written unless the
// batch is ready or an accepted partial
func (s *EventService) persist(ctx context.Context, result domain.BatchResult) error {
	if !result.Persistable() || len(result.Events) == 0 {
		return nil
	}
	if err := s.eventRepo.CreateEvents(ctx, result.Events); err != nil {
		return fmt.Errorf("failed to create events: %w", err)
	}

	for _, e := range result.Events {
		entry := s.logger.Info().
			Str("event", "event_recorded").
			Str("event_id", e.ID.String()).
			Str("subject_id", e.SubjectID.String()).
			Str("kind", string(e.Kind)).
			Str("event_date", e.EventDate.String())
		if e.LinkedApplicationID != nil {
			entry = entry.Str("linked_application_id", e.LinkedApplicationID.String())
		}
		entry.Msg("reproductive event recorded")
	}

	if s.publisher != nil {
		events := result.Events
		go func() {
			if err := s.publisher.PublishEvents(context.Background(), events); err != nil {
				s.logger.Error().Err(err).Int("events", len(events)).Msg("failed to publish recorded events")
			}
		}()
	}
	return nil
}

var _ ports.EventService = (*EventService)(nil)
