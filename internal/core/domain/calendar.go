package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the only calendar format accepted at the boundary
const DateLayout = "2006-01-02"

const secondsPerDay = 24 * 60 * 60

// Date is a calendar date with no time-of-day and no time zone.
// Internally it is midnight UTC so day arithmetic never crosses a DST edge.
type Date struct {
	t time.Time
}

// NewDate builds a Date from its components; out-of-range values normalize like time.Date
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf strips the time-of-day from t, keeping t's own calendar day
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses a YYYY-MM-DD calendar date.
// An unparsable value yields ErrInvalidDate, never a zero date.
func ParseDate(text string) (Date, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Date{}, NewDecisionError(KindInvalidDate, "date is empty")
	}
	t, err := time.Parse(DateLayout, trimmed)
	if err != nil {
		return Date{}, NewDecisionError(KindInvalidDate, "cannot parse %q as %s", text, DateLayout)
	}
	return Date{t: t}, nil
}

// MustParseDate is ParseDate for constants; it panics on invalid input
func MustParseDate(text string) Date {
	d, err := ParseDate(text)
	if err != nil {
		panic(err)
	}
	return d
}

// FormatDate renders d in DateLayout
func FormatDate(d Date) string {
	return d.String()
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

// IsZero reports whether d was never set
func (d Date) IsZero() bool {
	return d.t.IsZero()
}

// Time returns midnight UTC of d
func (d Date) Time() time.Time {
	return d.t
}

// AddDays returns d shifted by n calendar days
func (d Date) AddDays(n int) Date {
	return Date{t: d.t.AddDate(0, 0, n)}
}

// DayDiff returns the number of whole calendar days from b to a
func DayDiff(a, b Date) int {
	return int((a.t.Unix() - b.t.Unix()) / secondsPerDay)
}

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool  { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool  { return d.t.Equal(o.t) }

// Compare returns -1, 0 or +1
func (d Date) Compare(o Date) int {
	return d.t.Compare(o.t)
}

// MarshalJSON encodes d as "YYYY-MM-DD", or null when zero
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "YYYY-MM-DD" or null
func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return NewDecisionError(KindInvalidDate, "date must be a string")
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Scan implements sql.Scanner for DATE columns
func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = DateOf(v)
		return nil
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case []byte:
		parsed, err := ParseDate(string(v))
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

// Value implements driver.Valuer; the date travels as text so no offset is applied
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}
