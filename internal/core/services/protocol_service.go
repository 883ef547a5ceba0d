package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IANDYI/breeding-service/internal/core/domain"
	"github.com/IANDYI/breeding-service/internal/core/ports"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ProtocolService implements business logic for protocol applications.
// Enforces one ACTIVE application per subject and announces new applications.
type ProtocolService struct {
	templateRepo    ports.TemplateRepository
	applicationRepo ports.ApplicationRepository
	publisher       ports.EventPublisher
	orchestrator    *BulkOrchestrator
	now             func() time.Time
	logger          zerolog.Logger
}

// NewProtocolService creates a new protocol service
func NewProtocolService(
	templateRepo ports.TemplateRepository,
	applicationRepo ports.ApplicationRepository,
	publisher ports.EventPublisher,
	orchestrator *BulkOrchestrator,
	now func() time.Time,
	logger zerolog.Logger,
) *ProtocolService {
	if now == nil {
		now = time.Now
	}
	return &ProtocolService{
		templateRepo:    templateRepo,
		applicationRepo: applicationRepo,
		publisher:       publisher,
		orchestrator:    orchestrator,
		now:             now,
		logger:          logger.With().Str("component", "protocol_service").Logger(),
	}
}

// ApplyProtocol snapshots a template onto every requested subject
func (s *ProtocolService) ApplyProtocol(ctx context.Context, farmID uuid.UUID, req ports.ApplyProtocolRequest) (domain.BatchResult, error) {
	if req.TemplateID == uuid.Nil {
		return domain.BatchResult{}, domain.NewDecisionError(domain.KindInvalidInput, "template_id is required")
	}

	tmpl, err := s.templateRepo.GetTemplate(ctx, farmID, req.TemplateID)
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("failed to load template: %w", err)
	}

	active, err := s.applicationRepo.ListActiveApplications(ctx, farmID, req.SubjectIDs)
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("failed to list active applications: %w", err)
	}

	result, err := s.orchestrator.PlanApplications(ctx, ApplicationBatch{
		Template:     *tmpl,
		SubjectIDs:   req.SubjectIDs,
		StartDate:    req.StartDate,
		StartHour:    req.StartHour,
		AllowPartial: req.AllowPartial,
		CreatedAt:    s.now(),
	}, groupSnapshots(req.SubjectIDs, active, nil))
	if err != nil {
		return domain.BatchResult{}, err
	}
	if !result.Persistable() || len(result.Applications) == 0 {
		return result, nil
	}

	if err := s.applicationRepo.CreateApplications(ctx, result.Applications); err != nil {
		if errors.Is(err, domain.ErrDuplicateActiveApplication) {
			// Lost a race with a concurrent apply for one of the subjects
			return domain.BatchResult{}, err
		}
		return domain.BatchResult{}, fmt.Errorf("failed to create applications: %w", err)
	}

	for _, app := range result.Applications {
		s.logger.Info().
			Str("event", "protocol_applied").
			Str("application_id", app.ID.String()).
			Str("subject_id", app.SubjectID.String()).
			Str("protocol_id", app.ProtocolID.String()).
			Str("start_date", app.StartDate.String()).
			Msg("protocol application created")
	}
	s.publishApplications(result.Applications)

	return result, nil
}

// GetSchedule expands an application's frozen steps into calendar dates
func (s *ProtocolService) GetSchedule(ctx context.Context, farmID uuid.UUID, applicationID uuid.UUID) (domain.Schedule, error) {
	app, err := s.applicationRepo.GetApplication(ctx, farmID, applicationID)
	if err != nil {
		return domain.Schedule{}, fmt.Errorf("failed to get application: %w", err)
	}
	return app.Schedule(), nil
}

// PreviewSchedule expands steps from a start date without touching storage
func (s *ProtocolService) PreviewSchedule(steps []domain.Step, startDate domain.Date) (domain.Schedule, error) {
	if startDate.IsZero() {
		return domain.Schedule{}, domain.NewDecisionError(domain.KindInvalidDate, "start date is required")
	}
	if len(steps) == 0 {
		return domain.Schedule{}, domain.NewDecisionError(domain.KindInvalidInput, "at least one step is required")
	}
	return domain.Instantiate(steps, startDate), nil
}

// publishApplications announces applications without blocking the response
func (s *ProtocolService) publishApplications(apps []domain.ProtocolApplication) {
	if s.publisher == nil {
		return
	}
	go func() {
		// Use background context so the request cancelling does not drop the message
		if err := s.publisher.PublishApplications(context.Background(), apps); err != nil {
			s.logger.Error().Err(err).Int("applications", len(apps)).Msg("failed to publish protocol applications")
		}
	}()
}

// groupSnapshots splits repository rows per subject
func groupSnapshots(subjectIDs []uuid.UUID, apps []domain.ProtocolApplication, events []domain.Event) map[uuid.UUID]SubjectSnapshot {
	out := make(map[uuid.UUID]SubjectSnapshot, len(subjectIDs))
	for _, id := range subjectIDs {
		out[id] = SubjectSnapshot{SubjectID: id}
	}
	for _, app := range apps {
		snap, ok := out[app.SubjectID]
		if !ok {
			continue
		}
		snap.ActiveApplications = append(snap.ActiveApplications, app)
		out[app.SubjectID] = snap
	}
	for _, e := range events {
		snap, ok := out[e.SubjectID]
		if !ok {
			continue
		}
		snap.Events = append(snap.Events, e)
		out[e.SubjectID] = snap
	}
	return out
}

var _ ports.ProtocolService = (*ProtocolService)(nil)
