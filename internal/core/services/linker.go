package services

import (
	"github.com/IANDYI/breeding-service/internal/core/domain"
	"github.com/google/uuid"
)

// LinkRequest is the insemination being linked
type LinkRequest struct {
	SubjectID  uuid.UUID
	EventDate  domain.Date
	ReasonCode domain.ReasonCode
	// Today bounds the search for the next expected insemination date
	Today domain.Date
}

// LinkInsemination decides which ACTIVE application an insemination belongs to.
// When linking is required the result is always auto-linked, blocked or needs-choice.
func LinkInsemination(req LinkRequest, applications []domain.ProtocolApplication) domain.SubjectDecision {
	if !req.ReasonCode.RequiresLink() {
		return domain.SubjectDecision{SubjectID: req.SubjectID, Outcome: domain.OutcomeUnlinked}
	}

	var active []domain.ProtocolApplication
	for _, app := range applications {
		if app.SubjectID == req.SubjectID && app.IsActive() {
			active = append(active, app)
		}
	}
	if len(active) == 0 {
		return domain.Blocked(req.SubjectID, domain.NewDecisionError(
			domain.KindNoActiveApplication,
			"no active protocol for a %s insemination; apply a protocol first", req.ReasonCode,
		))
	}

	var started []domain.ProtocolApplication
	var candidates []domain.LinkCandidate
	for _, app := range active {
		if app.StartDate.After(req.EventDate) {
			continue
		}
		started = append(started, app)
		offset := domain.DayDiff(req.EventDate, app.StartDate)
		if hasInseminationOn(app.Steps, offset) {
			candidates = append(candidates, domain.LinkCandidate{
				ApplicationID: app.ID,
				ProtocolID:    app.ProtocolID,
				ProtocolName:  app.ProtocolName,
				StartDate:     app.StartDate,
				DayOffset:     offset,
			})
		}
	}

	switch len(candidates) {
	case 0:
		decision := domain.Blocked(req.SubjectID, domain.NewDecisionError(
			domain.KindOutOfWindow,
			"no insemination step scheduled on %s", req.EventDate,
		))
		if next, ok := nextExpectedInsemination(started, req.Today); ok {
			decision.NextExpectedDate = &next
			decision.BlockingReason += "; expected on " + next.String()
		}
		return decision
	case 1:
		id := candidates[0].ApplicationID
		return domain.SubjectDecision{
			SubjectID:           req.SubjectID,
			Outcome:             domain.OutcomeAutoLinked,
			LinkedApplicationID: &id,
			Candidates:          candidates,
		}
	default:
		return domain.SubjectDecision{
			SubjectID:      req.SubjectID,
			Outcome:        domain.OutcomeNeedsChoice,
			Candidates:     candidates,
			ErrorKind:      domain.KindAmbiguousLink,
			BlockingReason: "more than one active protocol schedules an insemination on this day",
		}
	}
}

// ResolveChoice applies a manual pick to a needs-choice decision.
// The pick must be one of the candidates.
func ResolveChoice(decision domain.SubjectDecision, applicationID uuid.UUID) (domain.SubjectDecision, error) {
	if decision.Outcome != domain.OutcomeNeedsChoice {
		return decision, nil
	}
	for _, c := range decision.Candidates {
		if c.ApplicationID == applicationID {
			id := applicationID
			decision.Outcome = domain.OutcomeAutoLinked
			decision.LinkedApplicationID = &id
			decision.ErrorKind = ""
			decision.BlockingReason = ""
			return decision, nil
		}
	}
	return decision, domain.NewDecisionError(domain.KindAmbiguousLink,
		"application %s is not a candidate for subject %s", applicationID, decision.SubjectID).WithSubject(decision.SubjectID)
}

func hasInseminationOn(steps []domain.Step, offset int) bool {
	for _, s := range steps {
		if s.DayOffset == offset && s.IsInsemination() {
			return true
		}
	}
	return false
}

// nextExpectedInsemination is the earliest insemination date on or after today
// across applications already started at the event date
func nextExpectedInsemination(active []domain.ProtocolApplication, today domain.Date) (domain.Date, bool) {
	var next domain.Date
	found := false
	for _, app := range active {
		for _, s := range app.Steps {
			if !s.IsInsemination() {
				continue
			}
			date := app.StartDate.AddDays(s.DayOffset)
			if date.Before(today) {
				continue
			}
			if !found || date.Before(next) {
				next = date
				found = true
			}
		}
	}
	return next, found
}
