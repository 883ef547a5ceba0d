package domain

import (
	"fmt"
	"strings"
)

// ExamType is a named diagnosis-timing window relative to the insemination
type ExamType string

const (
	ExamDoppler  ExamType = "DOPPLER"
	ExamDG30     ExamType = "DG30"
	ExamDG60     ExamType = "DG60"
	ExamAdvanced ExamType = "ADVANCED"
	ExamOther    ExamType = "OTHER"
)

// ValidExamTypes returns all exam types
func ValidExamTypes() []ExamType {
	return []ExamType{ExamDoppler, ExamDG30, ExamDG60, ExamAdvanced, ExamOther}
}

// ParseExamType normalizes an exam label; empty input yields "" so the caller
// can fall back to the suggestion
func ParseExamType(raw string) (ExamType, error) {
	n := strings.ReplaceAll(Normalize(raw), " ", "")
	switch n {
	case "":
		return "", nil
	case "doppler":
		return ExamDoppler, nil
	case "dg30", "dg-30":
		return ExamDG30, nil
	case "dg60", "dg-60":
		return ExamDG60, nil
	case "advanced", "avancado":
		return ExamAdvanced, nil
	case "other", "outro":
		return ExamOther, nil
	default:
		return "", NewDecisionError(KindInvalidInput, "invalid exam type: %q", raw)
	}
}

// DayWindow is an inclusive range of days since insemination
type DayWindow struct {
	Min int `json:"min" mapstructure:"min"`
	Max int `json:"max" mapstructure:"max"`
}

// Contains reports whether days falls inside the window
func (w DayWindow) Contains(days int) bool {
	return days >= w.Min && days <= w.Max
}

// WindowConfig holds the diagnosis window thresholds
type WindowConfig struct {
	DopplerMinDays    int       `json:"doppler_min_days"`
	DG30Window        DayWindow `json:"dg30_window"`
	DG60Window        DayWindow `json:"dg60_window"`
	AdvancedMinDays   int       `json:"advanced_min_days"`
	AllowNotSeenEarly bool      `json:"allow_not_seen_early"`
}

// DefaultWindowConfig returns the standard thresholds
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		DopplerMinDays:    20,
		DG30Window:        DayWindow{Min: 28, Max: 35},
		DG60Window:        DayWindow{Min: 55, Max: 75},
		AdvancedMinDays:   90,
		AllowNotSeenEarly: true,
	}
}

// Validate rejects windows that cannot be evaluated
func (c WindowConfig) Validate() error {
	if c.DopplerMinDays < 0 || c.AdvancedMinDays < 0 {
		return NewDecisionError(KindInvalidInput, "window thresholds must not be negative")
	}
	if c.DG30Window.Min > c.DG30Window.Max {
		return NewDecisionError(KindInvalidInput, "dg30 window min %d exceeds max %d", c.DG30Window.Min, c.DG30Window.Max)
	}
	if c.DG60Window.Min > c.DG60Window.Max {
		return NewDecisionError(KindInvalidInput, "dg60 window min %d exceeds max %d", c.DG60Window.Min, c.DG60Window.Max)
	}
	return nil
}

// DopplerWindow is derived: it ends the day before the DG30 window opens
func (c WindowConfig) DopplerWindow() DayWindow {
	return DayWindow{Min: c.DopplerMinDays, Max: c.DG30Window.Min - 1}
}

// MinDaysFor returns the minimum day count of an exam type
func (c WindowConfig) MinDaysFor(exam ExamType) int {
	switch exam {
	case ExamDG30:
		return c.DG30Window.Min
	case ExamDG60:
		return c.DG60Window.Min
	case ExamAdvanced:
		return c.AdvancedMinDays
	default:
		return c.DopplerMinDays
	}
}

// maxDaysFor returns the informational upper bound of an exam type, if any
func (c WindowConfig) maxDaysFor(exam ExamType) (int, bool) {
	switch exam {
	case ExamDoppler:
		return c.DopplerWindow().Max, true
	case ExamDG30:
		return c.DG30Window.Max, true
	case ExamDG60:
		return c.DG60Window.Max, true
	default:
		return 0, false
	}
}

// WindowResult is the outcome of a diagnosis window check
type WindowResult struct {
	Valid                 bool     `json:"valid"`
	Reason                string   `json:"reason,omitempty"`
	Threshold             *int     `json:"threshold,omitempty"`
	Late                  bool     `json:"late"`
	DaysSinceInsemination *int     `json:"days_since_insemination"`
	ExamType              ExamType `json:"exam_type"`
	SuggestedExamType     ExamType `json:"suggested_exam_type,omitempty"`
}

// Err converts an invalid result into its decision error, or nil when valid
func (r WindowResult) Err() error {
	if r.Valid {
		return nil
	}
	if r.DaysSinceInsemination == nil {
		return &DecisionError{Kind: KindNoPriorInsemination, Message: r.Reason}
	}
	return &DecisionError{Kind: KindOutOfWindow, Message: r.Reason, Threshold: r.Threshold}
}

// ValidateDiagnosisWindow decides whether a diagnosis of exam type with result
// is allowed days after its insemination. days == nil means no insemination.
//
// Non-conclusive results (NOT_SEEN while AllowNotSeenEarly) skip both the
// Doppler floor and the exam type's own minimum.
func ValidateDiagnosisWindow(cfg WindowConfig, days *int, exam ExamType, result DiagnosisResult) WindowResult {
	out := WindowResult{DaysSinceInsemination: days, ExamType: exam}
	if days == nil {
		out.Reason = "no insemination to compute window"
		return out
	}
	d := *days
	out.SuggestedExamType = SuggestExamType(cfg, d)
	if exam == "" {
		exam = out.SuggestedExamType
		out.ExamType = exam
	}

	blocksConclusive := !cfg.AllowNotSeenEarly || result != ResultNotSeen

	if d < cfg.DopplerMinDays && blocksConclusive {
		threshold := cfg.DopplerMinDays
		out.Threshold = &threshold
		out.Reason = fmt.Sprintf("conclusive exam requires ≥ %d days", threshold)
		return out
	}

	if minDays := cfg.MinDaysFor(exam); d < minDays && blocksConclusive {
		out.Threshold = &minDays
		out.Reason = fmt.Sprintf("%s requires ≥%d days", exam, minDays)
		return out
	}

	out.Valid = true
	if maxDays, ok := cfg.maxDaysFor(exam); ok && d > maxDays {
		out.Late = true
		out.Reason = fmt.Sprintf("%s is late: window closes at %d days", exam, maxDays)
	}
	return out
}

// SuggestExamType proposes an exam label for a day count.
// Rules are checked in fixed priority: DG30, DG60, Advanced, Doppler, Other.
func SuggestExamType(cfg WindowConfig, days int) ExamType {
	switch {
	case cfg.DG30Window.Contains(days):
		return ExamDG30
	case cfg.DG60Window.Contains(days):
		return ExamDG60
	case days >= cfg.AdvancedMinDays:
		return ExamAdvanced
	case cfg.DopplerWindow().Contains(days):
		return ExamDoppler
	default:
		return ExamOther
	}
}

// WindowOverride carries per-call overrides; nil fields keep the base value
type WindowOverride struct {
	DopplerMinDays    *int       `json:"doppler_min_days,omitempty"`
	DG30Window        *DayWindow `json:"dg30_window,omitempty"`
	DG60Window        *DayWindow `json:"dg60_window,omitempty"`
	AdvancedMinDays   *int       `json:"advanced_min_days,omitempty"`
	AllowNotSeenEarly *bool      `json:"allow_not_seen_early,omitempty"`
}

// Apply returns c with every set override replaced
func (c WindowConfig) Apply(o *WindowOverride) WindowConfig {
	if o == nil {
		return c
	}
	if o.DopplerMinDays != nil {
		c.DopplerMinDays = *o.DopplerMinDays
	}
	if o.DG30Window != nil {
		c.DG30Window = *o.DG30Window
	}
	if o.DG60Window != nil {
		c.DG60Window = *o.DG60Window
	}
	if o.AdvancedMinDays != nil {
		c.AdvancedMinDays = *o.AdvancedMinDays
	}
	if o.AllowNotSeenEarly != nil {
		c.AllowNotSeenEarly = *o.AllowNotSeenEarly
	}
	return c
}
