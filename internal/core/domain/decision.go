package domain

import "github.com/google/uuid"

// Outcome is the per-subject classification of a decision
type Outcome string

const (
	OutcomeAutoLinked  Outcome = "auto-linked"
	OutcomeNeedsChoice Outcome = "needs-choice"
	OutcomeBlocked     Outcome = "blocked"
	// OutcomeUnlinked is an insemination whose reason code does not require linking
	OutcomeUnlinked Outcome = "unlinked"
	// OutcomeAccepted is a diagnosis or protocol application that passed validation
	OutcomeAccepted Outcome = "accepted"
)

// LinkCandidate is an active application matching an insemination day
type LinkCandidate struct {
	ApplicationID uuid.UUID `json:"application_id"`
	ProtocolID    uuid.UUID `json:"protocol_id"`
	ProtocolName  string    `json:"protocol_name"`
	StartDate     Date      `json:"start_date"`
	DayOffset     int       `json:"day_offset"`
}

// SubjectDecision is the decision record for one subject
type SubjectDecision struct {
	SubjectID           uuid.UUID       `json:"subject_id"`
	Outcome             Outcome         `json:"outcome"`
	LinkedApplicationID *uuid.UUID      `json:"linked_application_id,omitempty"`
	Candidates          []LinkCandidate `json:"candidates,omitempty"`
	BlockingReason      string          `json:"blocking_reason,omitempty"`
	ErrorKind           ErrorKind       `json:"error_kind,omitempty"`
	Threshold           *int            `json:"threshold,omitempty"`
	NextExpectedDate    *Date           `json:"next_expected_date,omitempty"`
	Window              *WindowResult   `json:"window,omitempty"`

	// Ready-to-persist payloads; at most one is set
	Event       *Event               `json:"event,omitempty"`
	Application *ProtocolApplication `json:"application,omitempty"`
}

// IsReady reports whether the subject can be persisted as is
func (d SubjectDecision) IsReady() bool {
	switch d.Outcome {
	case OutcomeAutoLinked, OutcomeUnlinked, OutcomeAccepted:
		return true
	default:
		return false
	}
}

// Blocked builds a blocked decision from a decision error
func Blocked(subjectID uuid.UUID, err *DecisionError) SubjectDecision {
	return SubjectDecision{
		SubjectID:      subjectID,
		Outcome:        OutcomeBlocked,
		BlockingReason: err.Message,
		ErrorKind:      err.Kind,
		Threshold:      err.Threshold,
	}
}

// BatchStatus summarises a bulk operation
type BatchStatus string

const (
	BatchReady       BatchStatus = "ready"
	BatchNeedsChoice BatchStatus = "needs-choice"
	BatchRejected    BatchStatus = "rejected"
	BatchPartial     BatchStatus = "partial"
)

// BatchResult is the aggregated outcome of a bulk operation.
// Events and Applications are only filled when Status is ready or partial.
type BatchResult struct {
	Status       BatchStatus           `json:"status"`
	Decisions    []SubjectDecision     `json:"decisions"`
	Events       []Event               `json:"events,omitempty"`
	Applications []ProtocolApplication `json:"applications,omitempty"`
}

// NeedsChoice returns every subject waiting for a manual pick
func (b BatchResult) NeedsChoice() []SubjectDecision {
	return b.filter(OutcomeNeedsChoice)
}

// Blocked returns every blocked subject
func (b BatchResult) Blocked() []SubjectDecision {
	return b.filter(OutcomeBlocked)
}

func (b BatchResult) filter(outcome Outcome) []SubjectDecision {
	var out []SubjectDecision
	for _, d := range b.Decisions {
		if d.Outcome == outcome {
			out = append(out, d)
		}
	}
	return out
}

// Err maps a non-persistable status to its decision error
func (b BatchResult) Err() error {
	switch b.Status {
	case BatchRejected:
		return NewDecisionError(KindPartialBatchFailure, "%d subject(s) blocked", len(b.Blocked()))
	case BatchNeedsChoice:
		return NewDecisionError(KindAmbiguousLink, "%d subject(s) need a protocol choice", len(b.NeedsChoice()))
	default:
		return nil
	}
}

// Persistable reports whether the payloads may be written
func (b BatchResult) Persistable() bool {
	return b.Status == BatchReady || b.Status == BatchPartial
}
