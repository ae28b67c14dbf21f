/*
Package engine provides the core payroll rule evaluation engine.

PURPOSE:
  This package contains the domain types and algorithms for computing
  employee pay: salary rules organized in structures, a per-computation
  evaluation context, category roll-up, and the compute pipeline that
  turns a payslip's facts into payslip lines.

KEY CONCEPTS IN THIS FILE (types.go):
  - Contract: wage + structure reference, the unit rules evaluate against
  - Payslip: a pay period for one employee with facts and computed lines
  - PayslipLine: the output of evaluating one rule for one contract
  - WorkedDays / Input: period-scoped facts exposed to rule expressions
  - Entity IDs: type-safe identifiers

DESIGN PRINCIPLES:
  1. Precision: all money uses decimal.Decimal, never float64
  2. Replacement: computed lines are replaced wholesale, never patched
  3. Type Safety: strong ID types prevent mixing employees and contracts
  4. Purity: the engine computes; persistence and transport live elsewhere

SEE ALSO:
  - rule.go: SalaryRule definitions and per-rule evaluation
  - structure.go: structures, hierarchy resolution, the rule catalog
  - compute.go: the payslip compute pipeline
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type ContractID string
type StructureID string
type RuleID string
type PayslipID string

// =============================================================================
// PAYSLIP STATE
// =============================================================================

type PayslipState string

const (
	StateDraft     PayslipState = "draft"
	StateWaiting   PayslipState = "verify"
	StateDone      PayslipState = "done"
	StateCancelled PayslipState = "cancel"
)

// =============================================================================
// CONTRACT - What an employee is paid under
// =============================================================================

// Contract references the salary structure whose rules apply to it and
// carries the attributes rule expressions read (wage, schedule).
type Contract struct {
	ID          ContractID
	EmployeeID  EmployeeID
	Name        string
	StructureID StructureID // empty means no structure, no rules
	Wage        decimal.Decimal
	SchedulePay string // "monthly", "weekly", ...
	DateStart   time.Time
	DateEnd     time.Time // zero means open-ended

	// Advantages are contract-scoped extras keyed by template code,
	// exposed to expressions as contract.advantages.CODE.
	Advantages map[string]decimal.Decimal
}

// ActiveIn reports whether the contract overlaps the period.
func (c Contract) ActiveIn(p Period) bool {
	if c.DateStart.After(p.End) {
		return false
	}
	if !c.DateEnd.IsZero() && c.DateEnd.Before(p.Start) {
		return false
	}
	return true
}

// =============================================================================
// PERIOD FACTS - Worked days and inputs
// =============================================================================

// WorkedDays is one attendance or leave fact for a payslip period,
// keyed by a short code (e.g. WORK100).
type WorkedDays struct {
	Code       string
	Name       string
	Sequence   int
	ContractID ContractID
	Days       decimal.Decimal
	Hours      decimal.Decimal
}

// Input is a manually supplied amount for a payslip period (commission,
// expense reimbursement, ...), keyed by a short code.
type Input struct {
	Code       string
	Name       string
	ContractID ContractID
	Amount     decimal.Decimal
}

// =============================================================================
// PAYSLIP
// =============================================================================

// Payslip is one employee's pay computation for one period.
//
// ContractID, when set, pins the computation to a single contract;
// otherwise all contracts active in the period participate.
// StructureID, when set together with a single contract, overrides the
// contract's own structure.
type Payslip struct {
	ID          PayslipID
	Number      string // sequence reference, assigned on first compute
	Name        string
	EmployeeID  EmployeeID
	ContractID  ContractID  // optional fixed contract
	StructureID StructureID // optional structure override
	Period      Period
	State       PayslipState
	CreditNote  bool      // refund payslip: totals count negated in history
	RefundedID  PayslipID // for credit notes: the payslip being refunded
	RunID       string    // optional batch run membership

	WorkedDays []WorkedDays
	Inputs     []Input
	Lines      []PayslipLine
}

// =============================================================================
// PAYSLIP LINE - Output of evaluating one rule for one contract
// =============================================================================

// PayslipLine records one rule's contribution. Total is always
// Quantity x Amount x Rate / 100.
type PayslipLine struct {
	RuleID           RuleID
	Code             string
	Name             string
	Category         string
	Sequence         int
	EmployeeID       EmployeeID
	ContractID       ContractID
	ParentCode       string // parent rule's code, for display filtering
	AppearsOnPayslip bool

	Quantity decimal.Decimal
	Rate     decimal.Decimal // percent
	Amount   decimal.Decimal
	Total    decimal.Decimal
}

// LineTotal computes quantity x amount x rate / 100.
func LineTotal(quantity, amount, rate decimal.Decimal) decimal.Decimal {
	return quantity.Mul(amount).Mul(rate).Div(decimal.NewFromInt(100))
}

// =============================================================================
// COMPUTE RESULT
// =============================================================================

// Result is what one compute pass produces: the full replacement line set
// plus the category roll-up.
type Result struct {
	Number     string
	Lines      []PayslipLine
	Categories map[string]decimal.Decimal
}

// Category returns the rolled-up total for a category code, zero if the
// category received no contributions.
func (r *Result) Category(code string) decimal.Decimal {
	if v, ok := r.Categories[code]; ok {
		return v
	}
	return decimal.Zero
}

// LineByCode returns the first line with the given rule code, if any.
func (r *Result) LineByCode(code string) (PayslipLine, bool) {
	for _, line := range r.Lines {
		if line.Code == code {
			return line, true
		}
	}
	return PayslipLine{}, false
}
