package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrorKind classifies a decision failure so callers can render it without
// falling back to a generic "unknown error"
type ErrorKind string

const (
	KindInvalidDate                ErrorKind = "INVALID_DATE"
	KindInvalidInput               ErrorKind = "INVALID_INPUT"
	KindNotFound                   ErrorKind = "NOT_FOUND"
	KindNoActiveApplication        ErrorKind = "NO_ACTIVE_APPLICATION"
	KindNoPriorInsemination        ErrorKind = "NO_PRIOR_INSEMINATION"
	KindOutOfWindow                ErrorKind = "OUT_OF_WINDOW"
	KindDuplicateActiveApplication ErrorKind = "DUPLICATE_ACTIVE_APPLICATION"
	KindAmbiguousLink              ErrorKind = "AMBIGUOUS_LINK"
	KindPartialBatchFailure        ErrorKind = "PARTIAL_BATCH_FAILURE"
)

// DecisionError is a computed, first-class failure of a validation or linking decision
type DecisionError struct {
	Kind    ErrorKind
	Message string
	// Threshold is the minimum day count that was violated (OutOfWindow only)
	Threshold *int
	SubjectID uuid.UUID
}

// Sentinels for errors.Is; matching is by Kind only
var (
	ErrInvalidDate                = &DecisionError{Kind: KindInvalidDate}
	ErrInvalidInput               = &DecisionError{Kind: KindInvalidInput}
	ErrNotFound                   = &DecisionError{Kind: KindNotFound}
	ErrNoActiveApplication        = &DecisionError{Kind: KindNoActiveApplication}
	ErrNoPriorInsemination        = &DecisionError{Kind: KindNoPriorInsemination}
	ErrOutOfWindow                = &DecisionError{Kind: KindOutOfWindow}
	ErrDuplicateActiveApplication = &DecisionError{Kind: KindDuplicateActiveApplication}
	ErrAmbiguousLink              = &DecisionError{Kind: KindAmbiguousLink}
	ErrPartialBatchFailure        = &DecisionError{Kind: KindPartialBatchFailure}
)

func (e *DecisionError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is reports whether target is a DecisionError of the same kind
func (e *DecisionError) Is(target error) bool {
	t, ok := target.(*DecisionError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewDecisionError creates a DecisionError with a formatted message
func NewDecisionError(kind ErrorKind, format string, args ...interface{}) *DecisionError {
	return &DecisionError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithSubject returns a copy of the error scoped to a subject
func (e *DecisionError) WithSubject(subjectID uuid.UUID) *DecisionError {
	c := *e
	c.SubjectID = subjectID
	return &c
}

// KindOf extracts the decision kind from err, or "" when err is not a decision error
func KindOf(err error) ErrorKind {
	var de *DecisionError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
