package domain

// ScheduledStep is a step pinned to its calendar date
type ScheduledStep struct {
	Step         Step `json:"step"`
	ExpectedDate Date `json:"expected_date"`
}

// ScheduleDay groups the steps falling on one protocol day.
// Days without steps are still present with an empty Steps slice.
type ScheduleDay struct {
	DayOffset int             `json:"day_offset"`
	Date      Date            `json:"date"`
	Steps     []ScheduledStep `json:"steps"`
}

// Schedule is a template expanded from a start date
type Schedule struct {
	StartDate Date            `json:"start_date"`
	Steps     []ScheduledStep `json:"steps"`
}

// Instantiate expands steps from start. The result depends only on its inputs.
func Instantiate(steps []Step, start Date) Schedule {
	ordered := SnapshotSteps(steps)
	scheduled := make([]ScheduledStep, len(ordered))
	for i, s := range ordered {
		scheduled[i] = ScheduledStep{
			Step:         s,
			ExpectedDate: start.AddDays(s.DayOffset),
		}
	}
	return Schedule{StartDate: start, Steps: scheduled}
}

// Days returns one slot per day from day 0 to the last step's day
func (s Schedule) Days() []ScheduleDay {
	if len(s.Steps) == 0 {
		return nil
	}
	last := s.Steps[len(s.Steps)-1].Step.DayOffset
	days := make([]ScheduleDay, last+1)
	for offset := range days {
		days[offset] = ScheduleDay{
			DayOffset: offset,
			Date:      s.StartDate.AddDays(offset),
			Steps:     []ScheduledStep{},
		}
	}
	for _, st := range s.Steps {
		days[st.Step.DayOffset].Steps = append(days[st.Step.DayOffset].Steps, st)
	}
	return days
}

// InseminationDates lists the dates of every insemination step, in order
func (s Schedule) InseminationDates() []Date {
	var dates []Date
	for _, st := range s.Steps {
		if st.Step.IsInsemination() {
			dates = append(dates, st.ExpectedDate)
		}
	}
	return dates
}

// StepsOn returns the steps scheduled exactly dayOffset days after the start
func (s Schedule) StepsOn(dayOffset int) []ScheduledStep {
	var out []ScheduledStep
	for _, st := range s.Steps {
		if st.Step.DayOffset == dayOffset {
			out = append(out, st)
		}
	}
	return out
}
