package planning

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar day (the planning granularity)
// =============================================================================

// Date is a calendar day with no time-of-day or zone component.
// It is comparable and usable as a map key, which the minute ledger
// and availability lookups rely on.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// DateOf truncates a timestamp to its UTC calendar day.
// All event timestamps in the system are stored UTC, so the local
// date of a proposal is its UTC date.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return Date{Year: u.Year(), Month: u.Month(), Day: u.Day()}
}

func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) AddDays(n int) Date   { return DateOf(d.Time().AddDate(0, 0, n)) }
func (d Date) Before(o Date) bool   { return d.Time().Before(o.Time()) }
func (d Date) After(o Date) bool    { return d.Time().After(o.Time()) }
func (d Date) Equal(o Date) bool    { return d == o }
func (d Date) IsZero() bool         { return d == Date{} }
func (d Date) String() string       { return d.Time().Format("2006-01-02") }
func (d Date) Weekday() time.Weekday { return d.Time().Weekday() }

// MarshalText makes Date usable as a JSON object key, which the
// serialized planning context depends on (current_minutes_by_day).
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// DATE RANGE - Inclusive [Start, End] window
// =============================================================================

type DateRange struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// Window computes the planning window for a week start and horizon:
// end = start + 7*horizonWeeks days.
func Window(start Date, horizonWeeks int) DateRange {
	return DateRange{Start: start, End: start.AddDays(7 * horizonWeeks)}
}

func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// Days returns every date in the range, inclusive.
func (r DateRange) Days() []Date {
	if r.End.Before(r.Start) {
		return nil
	}
	var days []Date
	for d := r.Start; !d.After(r.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

func (r DateRange) String() string {
	return r.Start.String() + ".." + r.End.String()
}
