/*
types.go - Payroll domain records

PURPOSE:
  The records the payroll service manages around the evaluation engine:
  employees, leave taken against a contract, payslip batch runs, and
  time-versioned rule parameters, plus the service-level configuration
  knobs.

SEE ALSO:
  - service.go: the lifecycle operations over these records
  - workdays.go: turning calendars and leaves into worked-day lines
*/
package payroll

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	LeaveID string
	RunID   string
)

// RunState tracks a batch run through its life.
type RunState string

const (
	RunDraft  RunState = "draft"
	RunClosed RunState = "close"
)

// =============================================================================
// RECORDS
// =============================================================================

// Employee is the minimal employee reference payroll needs.
type Employee struct {
	ID     engine.EmployeeID
	Name   string
	Active bool
}

// Leave is time off taken against a contract, feeding worked-day lines.
// Days and Hours are the absolute magnitudes; sign is applied at
// generation time.
type Leave struct {
	ID         LeaveID
	EmployeeID engine.EmployeeID
	ContractID engine.ContractID
	Code       string
	Name       string
	DateFrom   time.Time
	DateTo     time.Time
	Days       decimal.Decimal
	Hours      decimal.Decimal
}

// Run is a payslip batch: one period, many employees, computed and
// confirmed together.
type Run struct {
	ID         RunID
	Name       string
	Period     engine.Period
	State      RunState
	CreditNote bool
}

// ParameterVersion is one dated value of a rule parameter.
type ParameterVersion struct {
	DateFrom time.Time
	Value    decimal.Decimal
}

// RuleParameter is a named value rules read through payroll.parameter.
// Versions let the value change over time without editing rules.
type RuleParameter struct {
	Code     string
	Name     string
	Versions []ParameterVersion
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config carries the payroll behavior knobs.
type Config struct {
	// WorkedDaysFromPrevMonth generates worked-day lines from the month
	// before the payslip period instead of the period itself.
	WorkedDaysFromPrevMonth bool

	// LeavesPositive reports leave day and hour counts as positive
	// numbers. By default they are negative.
	LeavesPositive bool

	// AllowCancelDone permits cancelling confirmed payslips.
	AllowCancelDone bool

	// LockConfirmedRecompute refuses recomputation of non-draft slips.
	LockConfirmedRecompute bool
}
