/*
workdays.go - Worked-day line generation

PURPOSE:
  Builds the worked-day lines of a payslip from a work calendar and the
  employee's leave records: one WORK100 attendance line for the days
  actually worked, plus one line per leave code taken in the period.

KEY CONCEPTS:
  - Leave lines carry negative day and hour counts unless the service
    is configured to report them positive.
  - The source period can be shifted to the month before the payslip
    period, for payrolls that pay current month but settle attendance
    in arrears.
*/
package payroll

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
)

// CodeAttendance is the worked-day code for regular attendance.
const CodeAttendance = "WORK100"

// =============================================================================
// CALENDAR
// =============================================================================

// Calendar decides which days count as working days.
type Calendar struct {
	Weekend     map[time.Weekday]bool
	Holidays    map[string]bool // "YYYY-MM-DD"
	HoursPerDay decimal.Decimal
}

// DefaultCalendar is a Monday-to-Friday, eight-hour calendar.
func DefaultCalendar() *Calendar {
	return &Calendar{
		Weekend:     map[time.Weekday]bool{time.Saturday: true, time.Sunday: true},
		Holidays:    map[string]bool{},
		HoursPerDay: decimal.NewFromInt(8),
	}
}

func (c *Calendar) IsWorkday(t time.Time) bool {
	if c.Weekend[t.Weekday()] {
		return false
	}
	return !c.Holidays[t.Format("2006-01-02")]
}

// WorkingDays counts working days in the period, both ends included.
func (c *Calendar) WorkingDays(p engine.Period) int {
	days := 0
	for _, d := range p.Days() {
		if c.IsWorkday(d) {
			days++
		}
	}
	return days
}

// =============================================================================
// GENERATION
// =============================================================================

// WorkedDayLines builds the worked-day lines for one contract over the
// payslip period. leaves may include records outside the period; only
// overlapping ones for this contract count.
func WorkedDayLines(cal *Calendar, cfg Config, contract engine.Contract, period engine.Period, leaves []Leave) []engine.WorkedDays {
	if cfg.WorkedDaysFromPrevMonth {
		// The whole previous calendar month, not the payslip period
		// shifted back: a Feb 1-28 slip must cover Jan 29-31 too.
		period = engine.MonthOf(period.Start.AddDate(0, -1, 0))
	}

	sign := decimal.NewFromInt(-1)
	if cfg.LeavesPositive {
		sign = decimal.NewFromInt(1)
	}

	type bucket struct {
		name  string
		days  decimal.Decimal
		hours decimal.Decimal
	}
	byCode := make(map[string]*bucket)
	var codes []string
	leaveDays := decimal.Zero

	for _, lv := range leaves {
		if lv.ContractID != "" && lv.ContractID != contract.ID {
			continue
		}
		if lv.DateTo.Before(period.Start) || lv.DateFrom.After(period.End) {
			continue
		}
		b, ok := byCode[lv.Code]
		if !ok {
			b = &bucket{name: lv.Name}
			byCode[lv.Code] = b
			codes = append(codes, lv.Code)
		}
		b.days = b.days.Add(lv.Days)
		b.hours = b.hours.Add(lv.Hours)
		leaveDays = leaveDays.Add(lv.Days)
	}
	sort.Strings(codes)

	workDays := decimal.NewFromInt(int64(cal.WorkingDays(period))).Sub(leaveDays)
	if workDays.IsNegative() {
		workDays = decimal.Zero
	}

	lines := []engine.WorkedDays{{
		Code:       CodeAttendance,
		Name:       "Normal Working Days",
		Sequence:   1,
		ContractID: contract.ID,
		Days:       workDays,
		Hours:      workDays.Mul(cal.HoursPerDay),
	}}
	for _, code := range codes {
		b := byCode[code]
		lines = append(lines, engine.WorkedDays{
			Code:       code,
			Name:       b.name,
			Sequence:   5,
			ContractID: contract.ID,
			Days:       b.days.Mul(sign),
			Hours:      b.hours.Mul(sign),
		})
	}
	return lines
}
