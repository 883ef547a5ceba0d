package domain

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProtocolCategory represents the kind of reproductive protocol
type ProtocolCategory string

const (
	CategoryIATF    ProtocolCategory = "IATF"    // Fixed-time artificial insemination
	CategoryPresync ProtocolCategory = "PRESYNC" // Pre-synchronization, run before IATF
	CategoryCustom  ProtocolCategory = "CUSTOM"
)

// ValidProtocolCategories returns all valid protocol categories
func ValidProtocolCategories() []ProtocolCategory {
	return []ProtocolCategory{CategoryIATF, CategoryPresync, CategoryCustom}
}

// ParseProtocolCategory normalizes raw text into a category
func ParseProtocolCategory(raw string) (ProtocolCategory, error) {
	normalized := ProtocolCategory(strings.ToUpper(Normalize(raw)))
	for _, c := range ValidProtocolCategories() {
		if c == normalized {
			return c, nil
		}
	}
	return "", NewDecisionError(KindInvalidInput, "invalid protocol category: %q", raw)
}

// StepKind tags which role a step plays
type StepKind string

const (
	StepHormone StepKind = "HORMONE"
	StepAction  StepKind = "ACTION"
)

// Step is one entry of a protocol: either a hormone application or an action.
// Kind is the tag; Hormone/Dose are only meaningful for display on action steps.
type Step struct {
	DayOffset  int              `json:"day_offset"`
	Kind       StepKind         `json:"kind"`
	Hormone    string           `json:"hormone,omitempty"`
	Dose       *decimal.Decimal `json:"dose,omitempty"`
	Action     string           `json:"action,omitempty"`
	ActionKind ActionKind       `json:"action_kind,omitempty"`
}

// NewHormoneStep creates a hormone application step
func NewHormoneStep(dayOffset int, hormone string, dose *decimal.Decimal) (Step, error) {
	return StepFromFields(dayOffset, hormone, dose, "")
}

// NewActionStep creates an action step
func NewActionStep(dayOffset int, action string) (Step, error) {
	return StepFromFields(dayOffset, "", nil, action)
}

// StepFromFields builds a Step from loosely-typed input.
// Both hormone and action absent is rejected; both present yields an action step.
func StepFromFields(dayOffset int, hormone string, dose *decimal.Decimal, action string) (Step, error) {
	if dayOffset < 0 {
		return Step{}, NewDecisionError(KindInvalidInput, "step day_offset must be >= 0, got %d", dayOffset)
	}
	hormone = strings.TrimSpace(hormone)
	action = strings.TrimSpace(action)
	if dose != nil && dose.IsNegative() {
		return Step{}, NewDecisionError(KindInvalidInput, "step dose must not be negative")
	}

	switch {
	case action != "":
		return Step{
			DayOffset:  dayOffset,
			Kind:       StepAction,
			Hormone:    hormone,
			Dose:       dose,
			Action:     action,
			ActionKind: ParseActionKind(action),
		}, nil
	case hormone != "":
		return Step{
			DayOffset: dayOffset,
			Kind:      StepHormone,
			Hormone:   hormone,
			Dose:      dose,
		}, nil
	default:
		return Step{}, NewDecisionError(KindInvalidInput, "step on day %d needs a hormone or an action", dayOffset)
	}
}

// IsInsemination reports whether the step is an insemination action
func (s Step) IsInsemination() bool {
	return s.Kind == StepAction && s.ActionKind == ActionInsemination
}

// Label returns the text shown for the step
func (s Step) Label() string {
	if s.Kind == StepAction {
		return s.Action
	}
	if s.Dose != nil {
		return s.Hormone + " " + s.Dose.String()
	}
	return s.Hormone
}

type stepJSON struct {
	DayOffset int              `json:"day_offset"`
	Hormone   string           `json:"hormone,omitempty"`
	Dose      *decimal.Decimal `json:"dose,omitempty"`
	Action    string           `json:"action,omitempty"`
}

// UnmarshalJSON validates steps coming from collaborators; the kind is derived
func (s *Step) UnmarshalJSON(data []byte) error {
	var raw stepJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return NewDecisionError(KindInvalidInput, "invalid step: %v", err)
	}
	step, err := StepFromFields(raw.DayOffset, raw.Hormone, raw.Dose, raw.Action)
	if err != nil {
		return err
	}
	*s = step
	return nil
}

// SnapshotSteps returns a detached copy of steps ordered by day offset.
// Template order is kept for steps on the same day.
func SnapshotSteps(steps []Step) []Step {
	out := make([]Step, len(steps))
	for i, s := range steps {
		if s.Dose != nil {
			d := *s.Dose
			s.Dose = &d
		}
		out[i] = s
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DayOffset < out[j].DayOffset
	})
	return out
}

// ProtocolTemplate is a declarative hormone/action protocol
type ProtocolTemplate struct {
	ID       uuid.UUID        `json:"id"`
	FarmID   uuid.UUID        `json:"farm_id"`
	Name     string           `json:"name"`
	Category ProtocolCategory `json:"category"`
	Steps    []Step           `json:"steps"`
}

// Validate checks the template can be instantiated
func (t ProtocolTemplate) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return NewDecisionError(KindInvalidInput, "protocol name cannot be empty")
	}
	if len(t.Steps) == 0 {
		return NewDecisionError(KindInvalidInput, "protocol %q has no steps", t.Name)
	}
	for _, s := range t.Steps {
		if s.DayOffset < 0 {
			return NewDecisionError(KindInvalidInput, "step day_offset must be >= 0, got %d", s.DayOffset)
		}
		if s.Kind != StepHormone && s.Kind != StepAction {
			return NewDecisionError(KindInvalidInput, "step on day %d needs a hormone or an action", s.DayOffset)
		}
	}
	return nil
}

// ApplicationStatus represents the lifecycle state of a protocol application
type ApplicationStatus string

const (
	ApplicationActive    ApplicationStatus = "ACTIVE"
	ApplicationCompleted ApplicationStatus = "COMPLETED"
	ApplicationCancelled ApplicationStatus = "CANCELLED"
)

// ProtocolApplication is a template applied to one subject from a start date.
// Steps is a frozen snapshot; later template edits never reach it.
type ProtocolApplication struct {
	ID           uuid.UUID         `json:"id"`
	FarmID       uuid.UUID         `json:"farm_id"`
	SubjectID    uuid.UUID         `json:"subject_id"`
	ProtocolID   uuid.UUID         `json:"protocol_id"`
	ProtocolName string            `json:"protocol_name"`
	Category     ProtocolCategory  `json:"category"`
	Steps        []Step            `json:"steps"`
	StartDate    Date              `json:"start_date"`
	StartHour    string            `json:"start_hour"` // HH:MM, display ordering only
	Status       ApplicationStatus `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
}

// NewProtocolApplication snapshots tmpl for subjectID as an ACTIVE application
func NewProtocolApplication(tmpl ProtocolTemplate, subjectID uuid.UUID, startDate Date, startHour string, createdAt time.Time) (ProtocolApplication, error) {
	if err := tmpl.Validate(); err != nil {
		return ProtocolApplication{}, err
	}
	if startDate.IsZero() {
		return ProtocolApplication{}, NewDecisionError(KindInvalidDate, "start date is required")
	}
	hour, err := ParseStartHour(startHour)
	if err != nil {
		return ProtocolApplication{}, err
	}
	return ProtocolApplication{
		ID:           uuid.New(),
		FarmID:       tmpl.FarmID,
		SubjectID:    subjectID,
		ProtocolID:   tmpl.ID,
		ProtocolName: tmpl.Name,
		Category:     tmpl.Category,
		Steps:        SnapshotSteps(tmpl.Steps),
		StartDate:    startDate,
		StartHour:    hour,
		Status:       ApplicationActive,
		CreatedAt:    createdAt,
	}, nil
}

// WithStatus returns a copy of the application in a new status
func (a ProtocolApplication) WithStatus(status ApplicationStatus) ProtocolApplication {
	a.Steps = SnapshotSteps(a.Steps)
	a.Status = status
	return a
}

// IsActive reports whether the application is ACTIVE
func (a ProtocolApplication) IsActive() bool {
	return a.Status == ApplicationActive
}

// Schedule instantiates the frozen snapshot from the start date
func (a ProtocolApplication) Schedule() Schedule {
	return Instantiate(a.Steps, a.StartDate)
}

// ParseStartHour validates an "HH:MM" clock value; empty defaults to "00:00"
func ParseStartHour(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "00:00", nil
	}
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return "", NewDecisionError(KindInvalidInput, "start hour must be HH:MM, got %q", raw)
	}
	return t.Format("15:04"), nil
}
