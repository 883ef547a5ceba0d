package services

import (
	"strings"
	"time"

	"github.com/IANDYI/breeding-service/internal/core/domain"
	"github.com/google/uuid"
)

// DiagnosisRequest is a pregnancy diagnosis proposed for one subject
type DiagnosisRequest struct {
	SubjectID     uuid.UUID
	DiagnosisDate domain.Date
	ExamType      domain.ExamType // empty uses the suggested type
	Result        domain.DiagnosisResult
	Note          string
}

// DiagnosisEvaluation pairs the window verdict with the insemination it was computed from
type DiagnosisEvaluation struct {
	Window domain.WindowResult
	Target *domain.Event
}

// ResolveDiagnosisTarget picks the latest insemination of the subject dated on
// or before date. On equal dates the later-inserted event wins.
func ResolveDiagnosisTarget(subjectID uuid.UUID, date domain.Date, events []domain.Event) (domain.Event, error) {
	var target domain.Event
	found := false
	for _, e := range events {
		if e.SubjectID != subjectID || !e.IsInsemination() || e.EventDate.After(date) {
			continue
		}
		if !found || !e.EventDate.Before(target.EventDate) {
			target = e
			found = true
		}
	}
	if !found {
		return domain.Event{}, domain.NewDecisionError(domain.KindNoPriorInsemination,
			"no insemination to diagnose on or before %s; register an insemination first", date).WithSubject(subjectID)
	}
	return target, nil
}

// EvaluateDiagnosis resolves the target insemination and checks the diagnosis window
func EvaluateDiagnosis(cfg domain.WindowConfig, req DiagnosisRequest, events []domain.Event) DiagnosisEvaluation {
	target, err := ResolveDiagnosisTarget(req.SubjectID, req.DiagnosisDate, events)
	if err != nil {
		return DiagnosisEvaluation{
			Window: domain.ValidateDiagnosisWindow(cfg, nil, req.ExamType, req.Result),
		}
	}
	days := domain.DayDiff(req.DiagnosisDate, target.EventDate)
	return DiagnosisEvaluation{
		Window: domain.ValidateDiagnosisWindow(cfg, &days, req.ExamType, req.Result),
		Target: &target,
	}
}

// BuildDiagnosisEvent creates the diagnosis payload from a valid evaluation.
// Inseminator, sire and protocol reference are copied from the target once.
func BuildDiagnosisEvent(farmID uuid.UUID, req DiagnosisRequest, eval DiagnosisEvaluation, createdAt time.Time) (domain.Event, error) {
	if err := eval.Window.Err(); err != nil {
		return domain.Event{}, err
	}
	if eval.Target == nil {
		return domain.Event{}, domain.NewDecisionError(domain.KindNoPriorInsemination, "no insemination to diagnose")
	}
	parentID := eval.Target.ID
	days := *eval.Window.DaysSinceInsemination
	event := domain.Event{
		ID:                    uuid.New(),
		FarmID:                farmID,
		SubjectID:             req.SubjectID,
		Kind:                  domain.EventDiagnosis,
		EventDate:             req.DiagnosisDate,
		Result:                req.Result,
		ExamType:              eval.Window.ExamType,
		ParentInseminationID:  &parentID,
		DaysSinceInsemination: &days,
		Inseminator:           eval.Target.Inseminator,
		Sire:                  eval.Target.Sire,
		Note:                  strings.TrimSpace(req.Note),
		CreatedAt:             createdAt,
	}
	if eval.Target.LinkedApplicationID != nil {
		linked := *eval.Target.LinkedApplicationID
		event.LinkedApplicationID = &linked
	}
	if eval.Target.ProtocolID != nil {
		protocolID := *eval.Target.ProtocolID
		event.ProtocolID = &protocolID
	}
	return event, nil
}
