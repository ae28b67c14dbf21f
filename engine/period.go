package engine

import "time"

// =============================================================================
// PERIOD - The date window a payslip covers
// =============================================================================

// Period is a closed date range [Start, End] at day granularity (UTC).
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod builds a day-granular period.
func NewPeriod(start, end time.Time) Period {
	return Period{Start: dateOf(start), End: dateOf(end)}
}

// MonthOf returns the calendar-month period containing t.
func MonthOf(t time.Time) Period {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: first, End: first.AddDate(0, 1, -1)}
}

// Validate enforces the payslip date invariant: Start must not be after End.
func (p Period) Validate() error {
	if p.Start.After(p.End) {
		return ErrInvalidPeriod
	}
	return nil
}

// Contains reports whether t falls within [Start, End].
func (p Period) Contains(t time.Time) bool {
	d := dateOf(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

// Days returns every day in the period.
func (p Period) Days() []time.Time {
	var days []time.Time
	for d := p.Start; !d.After(p.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func (p Period) String() string {
	return "[" + p.Start.Format("2006-01-02") + ", " + p.End.Format("2006-01-02") + "]"
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
