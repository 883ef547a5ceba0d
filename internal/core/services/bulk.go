package services

import (
	"context"
	"errors"
	"time"

	"github.com/IANDYI/breeding-service/internal/core/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultBulkWorkers bounds per-subject evaluation when no limit is configured
const DefaultBulkWorkers = 8

// SubjectSnapshot is the collaborator data read for one subject before deciding
type SubjectSnapshot struct {
	SubjectID          uuid.UUID
	ActiveApplications []domain.ProtocolApplication
	Events             []domain.Event
}

// InseminationBatch is one insemination submitted for many subjects
type InseminationBatch struct {
	FarmID       uuid.UUID
	SubjectIDs   []uuid.UUID
	EventDate    domain.Date
	ReasonCode   string
	Inseminator  string
	Sire         string
	Note         string
	Choices      map[uuid.UUID]uuid.UUID // subject -> chosen application
	AllowPartial bool
	Today        domain.Date
	CreatedAt    time.Time
}

// DiagnosisBatch is one diagnosis submitted for many subjects
type DiagnosisBatch struct {
	FarmID        uuid.UUID
	SubjectIDs    []uuid.UUID
	DiagnosisDate domain.Date
	ExamType      domain.ExamType
	Result        domain.DiagnosisResult
	Note          string
	Window        domain.WindowConfig
	AllowPartial  bool
	CreatedAt     time.Time
}

// ApplicationBatch is one template applied to many subjects
type ApplicationBatch struct {
	Template     domain.ProtocolTemplate
	SubjectIDs   []uuid.UUID
	StartDate    domain.Date
	StartHour    string
	AllowPartial bool
	CreatedAt    time.Time
}

// BulkOrchestrator evaluates one shared input independently per subject and
// aggregates the outcomes. It never persists anything.
type BulkOrchestrator struct {
	workers int
	logger  zerolog.Logger
}

// NewBulkOrchestrator creates an orchestrator evaluating at most workers subjects at once
func NewBulkOrchestrator(workers int, logger zerolog.Logger) *BulkOrchestrator {
	if workers <= 0 {
		workers = DefaultBulkWorkers
	}
	return &BulkOrchestrator{
		workers: workers,
		logger:  logger.With().Str("component", "bulk_orchestrator").Logger(),
	}
}

// PlanInseminations links an insemination for every subject of the batch
func (o *BulkOrchestrator) PlanInseminations(ctx context.Context, batch InseminationBatch, subjects map[uuid.UUID]SubjectSnapshot) (domain.BatchResult, error) {
	if batch.EventDate.IsZero() {
		return domain.BatchResult{}, domain.NewDecisionError(domain.KindInvalidDate, "insemination date is required")
	}
	if err := validateSubjects(batch.SubjectIDs); err != nil {
		return domain.BatchResult{}, err
	}
	reason := domain.ParseReasonCode(batch.ReasonCode)

	decisions, err := o.evaluate(ctx, batch.SubjectIDs, func(subjectID uuid.UUID) domain.SubjectDecision {
		snapshot := subjects[subjectID]
		decision := LinkInsemination(LinkRequest{
			SubjectID:  subjectID,
			EventDate:  batch.EventDate,
			ReasonCode: reason,
			Today:      batch.Today,
		}, snapshot.ActiveApplications)

		if pick, ok := batch.Choices[subjectID]; ok && decision.Outcome == domain.OutcomeNeedsChoice {
			resolved, err := ResolveChoice(decision, pick)
			if err != nil {
				var de *domain.DecisionError
				errors.As(err, &de)
				blocked := domain.Blocked(subjectID, de)
				blocked.Candidates = decision.Candidates
				return blocked
			}
			decision = resolved
		}
		if !decision.IsReady() {
			return decision
		}

		event, err := domain.NewInseminationEvent(batch.FarmID, subjectID, batch.EventDate, batch.ReasonCode, batch.Inseminator, batch.Sire, batch.CreatedAt)
		if err != nil {
			var de *domain.DecisionError
			if errors.As(err, &de) {
				return domain.Blocked(subjectID, de)
			}
			return domain.Blocked(subjectID, domain.NewDecisionError(domain.KindInvalidInput, "%v", err))
		}
		event.Note = batch.Note
		if decision.LinkedApplicationID != nil {
			for _, app := range snapshot.ActiveApplications {
				if app.ID == *decision.LinkedApplicationID {
					event = event.WithLinkedApplication(app)
					break
				}
			}
		}
		decision.Event = &event
		return decision
	})
	if err != nil {
		return domain.BatchResult{}, err
	}
	return o.finalize("insemination", decisions, batch.AllowPartial), nil
}

// PlanDiagnoses validates a diagnosis for every subject of the batch
func (o *BulkOrchestrator) PlanDiagnoses(ctx context.Context, batch DiagnosisBatch, subjects map[uuid.UUID]SubjectSnapshot) (domain.BatchResult, error) {
	if batch.DiagnosisDate.IsZero() {
		return domain.BatchResult{}, domain.NewDecisionError(domain.KindInvalidDate, "diagnosis date is required")
	}
	if err := batch.Window.Validate(); err != nil {
		return domain.BatchResult{}, err
	}
	if err := validateSubjects(batch.SubjectIDs); err != nil {
		return domain.BatchResult{}, err
	}

	decisions, err := o.evaluate(ctx, batch.SubjectIDs, func(subjectID uuid.UUID) domain.SubjectDecision {
		req := DiagnosisRequest{
			SubjectID:     subjectID,
			DiagnosisDate: batch.DiagnosisDate,
			ExamType:      batch.ExamType,
			Result:        batch.Result,
			Note:          batch.Note,
		}
		eval := EvaluateDiagnosis(batch.Window, req, subjects[subjectID].Events)
		window := eval.Window

		event, err := BuildDiagnosisEvent(batch.FarmID, req, eval, batch.CreatedAt)
		if err != nil {
			var de *domain.DecisionError
			errors.As(err, &de)
			blocked := domain.Blocked(subjectID, de)
			blocked.Window = &window
			return blocked
		}
		return domain.SubjectDecision{
			SubjectID:           subjectID,
			Outcome:             domain.OutcomeAccepted,
			LinkedApplicationID: event.LinkedApplicationID,
			Window:              &window,
			Event:               &event,
		}
	})
	if err != nil {
		return domain.BatchResult{}, err
	}
	return o.finalize("diagnosis", decisions, batch.AllowPartial), nil
}

// PlanApplications snapshots the template for every subject of the batch.
// A subject that already has an ACTIVE application is blocked.
func (o *BulkOrchestrator) PlanApplications(ctx context.Context, batch ApplicationBatch, subjects map[uuid.UUID]SubjectSnapshot) (domain.BatchResult, error) {
	if err := batch.Template.Validate(); err != nil {
		return domain.BatchResult{}, err
	}
	if batch.StartDate.IsZero() {
		return domain.BatchResult{}, domain.NewDecisionError(domain.KindInvalidDate, "start date is required")
	}
	if _, err := domain.ParseStartHour(batch.StartHour); err != nil {
		return domain.BatchResult{}, err
	}
	if err := validateSubjects(batch.SubjectIDs); err != nil {
		return domain.BatchResult{}, err
	}

	decisions, err := o.evaluate(ctx, batch.SubjectIDs, func(subjectID uuid.UUID) domain.SubjectDecision {
		for _, app := range subjects[subjectID].ActiveApplications {
			if app.SubjectID == subjectID && app.IsActive() {
				return domain.Blocked(subjectID, domain.NewDecisionError(
					domain.KindDuplicateActiveApplication,
					"protocol %q started on %s is still active", app.ProtocolName, app.StartDate,
				))
			}
		}
		app, err := domain.NewProtocolApplication(batch.Template, subjectID, batch.StartDate, batch.StartHour, batch.CreatedAt)
		if err != nil {
			var de *domain.DecisionError
			if errors.As(err, &de) {
				return domain.Blocked(subjectID, de)
			}
			return domain.Blocked(subjectID, domain.NewDecisionError(domain.KindInvalidInput, "%v", err))
		}
		return domain.SubjectDecision{
			SubjectID:   subjectID,
			Outcome:     domain.OutcomeAccepted,
			Application: &app,
		}
	})
	if err != nil {
		return domain.BatchResult{}, err
	}
	return o.finalize("application", decisions, batch.AllowPartial), nil
}

// evaluate runs fn once per subject; results keep the input order
func (o *BulkOrchestrator) evaluate(ctx context.Context, subjectIDs []uuid.UUID, fn func(uuid.UUID) domain.SubjectDecision) ([]domain.SubjectDecision, error) {
	decisions := make([]domain.SubjectDecision, len(subjectIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i, subjectID := range subjectIDs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			decisions[i] = fn(subjectID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return decisions, nil
}

// finalize classifies the batch. Blocked subjects reject everything unless the
// caller accepted a partial batch; any needs-choice subject holds every payload.
func (o *BulkOrchestrator) finalize(operation string, decisions []domain.SubjectDecision, allowPartial bool) domain.BatchResult {
	var blocked, pending int
	for _, d := range decisions {
		switch d.Outcome {
		case domain.OutcomeBlocked:
			blocked++
		case domain.OutcomeNeedsChoice:
			pending++
		}
	}

	result := domain.BatchResult{Decisions: decisions}
	switch {
	case blocked > 0 && !allowPartial:
		result.Status = domain.BatchRejected
	case pending > 0:
		result.Status = domain.BatchNeedsChoice
	case blocked > 0:
		result.Status = domain.BatchPartial
	default:
		result.Status = domain.BatchReady
	}

	if result.Persistable() {
		for _, d := range decisions {
			if !d.IsReady() {
				continue
			}
			if d.Event != nil {
				result.Events = append(result.Events, *d.Event)
			}
			if d.Application != nil {
				result.Applications = append(result.Applications, *d.Application)
			}
		}
	}

	o.logger.Info().
		Str("event", "batch_planned").
		Str("operation", operation).
		Str("status", string(result.Status)).
		Int("subjects", len(decisions)).
		Int("blocked", blocked).
		Int("needs_choice", pending).
		Msg("bulk decision computed")
	return result
}

func validateSubjects(subjectIDs []uuid.UUID) error {
	if len(subjectIDs) == 0 {
		return domain.NewDecisionError(domain.KindInvalidInput, "at least one subject is required")
	}
	seen := make(map[uuid.UUID]struct{}, len(subjectIDs))
	for _, id := range subjectIDs {
		if id == uuid.Nil {
			return domain.NewDecisionError(domain.KindInvalidInput, "subject id cannot be empty")
		}
		if _, dup := seen[id]; dup {
			return domain.NewDecisionError(domain.KindInvalidInput, "subject %s listed more than once", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
