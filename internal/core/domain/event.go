package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventKind represents the type of a reproductive event
type EventKind string

const (
	EventInsemination  EventKind = "INSEMINATION"
	EventDiagnosis     EventKind = "DIAGNOSIS"
	EventClinical      EventKind = "CLINICAL"
	EventProtocolStart EventKind = "PROTOCOL_START"
)

// DiagnosisResult is the outcome of a pregnancy diagnosis
type DiagnosisResult string

const (
	ResultPregnant DiagnosisResult = "PREGNANT"
	ResultEmpty    DiagnosisResult = "EMPTY"
	ResultNotSeen  DiagnosisResult = "NOT_SEEN"
)

// ParseDiagnosisResult normalizes free text into a DiagnosisResult
func ParseDiagnosisResult(raw string) (DiagnosisResult, error) {
	switch strings.ReplaceAll(Normalize(raw), " ", "_") {
	case "pregnant", "prenhe", "positive":
		return ResultPregnant, nil
	case "empty", "vazia", "negative":
		return ResultEmpty, nil
	case "not_seen", "notseen", "nao_vista", "nao_visto":
		return ResultNotSeen, nil
	default:
		return "", NewDecisionError(KindInvalidInput, "invalid diagnosis result: %q", raw)
	}
}

// IsConclusive reports whether the result asserts pregnancy status
func (r DiagnosisResult) IsConclusive() bool {
	return r != ResultNotSeen
}

// Event is a reproductive event recorded for one subject.
// Events are created once; only LinkedApplicationID is decided at creation.
type Event struct {
	ID        uuid.UUID `json:"id"`
	FarmID    uuid.UUID `json:"farm_id"`
	SubjectID uuid.UUID `json:"subject_id"`
	Kind      EventKind `json:"kind"`
	EventDate Date      `json:"event_date"`

	// Insemination fields
	ReasonCode          ReasonCode `json:"reason_code,omitempty"`
	RawReasonCode       string     `json:"raw_reason_code,omitempty"`
	LinkedApplicationID *uuid.UUID `json:"linked_application_id,omitempty"`
	Inseminator         string     `json:"inseminator,omitempty"`
	Sire                string     `json:"sire,omitempty"`
	ProtocolID          *uuid.UUID `json:"protocol_id,omitempty"`

	// Diagnosis fields
	Result                DiagnosisResult `json:"result,omitempty"`
	ExamType              ExamType        `json:"exam_type,omitempty"`
	ParentInseminationID  *uuid.UUID      `json:"parent_insemination_id,omitempty"`
	DaysSinceInsemination *int            `json:"days_since_insemination,omitempty"`

	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IsInsemination reports whether the event is an insemination
func (e Event) IsInsemination() bool {
	return e.Kind == EventInsemination
}

// WithLinkedApplication returns a copy linked to app
func (e Event) WithLinkedApplication(app ProtocolApplication) Event {
	id := app.ID
	protocolID := app.ProtocolID
	e.LinkedApplicationID = &id
	e.ProtocolID = &protocolID
	return e
}

// NewInseminationEvent creates an unlinked insemination event
func NewInseminationEvent(farmID, subjectID uuid.UUID, date Date, rawReason, inseminator, sire string, createdAt time.Time) (Event, error) {
	if date.IsZero() {
		return Event{}, NewDecisionError(KindInvalidDate, "insemination date is required")
	}
	return Event{
		ID:            uuid.New(),
		FarmID:        farmID,
		SubjectID:     subjectID,
		Kind:          EventInsemination,
		EventDate:     date,
		ReasonCode:    ParseReasonCode(rawReason),
		RawReasonCode: strings.TrimSpace(rawReason),
		Inseminator:   strings.TrimSpace(inseminator),
		Sire:          strings.TrimSpace(sire),
		CreatedAt:     createdAt,
	}, nil
}
