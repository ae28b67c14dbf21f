/*
history.go - Read-only queries over confirmed payslips

PURPOSE:
  Rule expressions can ask for aggregates of past results: "sum of the
  SALEURO input this year", "average NET over the last 3 months". Those
  queries only see payslips in state done; credit notes contribute their
  negated totals.

  History is an interface so the engine stays persistence-free: the
  SQLite store implements it with SQL aggregates, the in-memory store
  by replay, and ZeroHistory answers zero to everything (pure unit
  tests, first-ever payroll run).

CONCURRENCY:
  History reads only already-committed payslips, so implementations are
  safe to call from concurrent compute passes without locking beyond
  the store's own.

SEE ALSO:
  - browsable.go: exposes these queries as expression member helpers
  - store/sqlite: the production implementation
*/
package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Aggregate selects how historical values are combined.
type Aggregate string

const (
	AggSum Aggregate = "sum"
	AggAvg Aggregate = "avg"
	AggMin Aggregate = "min"
	AggMax Aggregate = "max"
)

// History answers aggregate queries over confirmed (done) payslips for one
// employee within a date range. Credit-note payslips contribute negated
// totals. Absent data aggregates to zero, never an error.
type History interface {
	// RuleTotal aggregates payslip line totals with the given rule code.
	RuleTotal(ctx context.Context, employee EmployeeID, code string, agg Aggregate, from, to time.Time) (decimal.Decimal, error)

	// CategoryTotal aggregates payslip line totals whose category is any of
	// the given codes (callers pass a category subtree).
	CategoryTotal(ctx context.Context, employee EmployeeID, codes []string, agg Aggregate, from, to time.Time) (decimal.Decimal, error)

	// InputSum sums input line amounts with the given code.
	InputSum(ctx context.Context, employee EmployeeID, code string, from, to time.Time) (decimal.Decimal, error)

	// WorkedDaysSum sums worked-day lines with the given code.
	WorkedDaysSum(ctx context.Context, employee EmployeeID, code string, from, to time.Time) (days, hours decimal.Decimal, err error)
}

// ZeroHistory is a History with no past: every query answers zero.
type ZeroHistory struct{}

func (ZeroHistory) RuleTotal(context.Context, EmployeeID, string, Aggregate, time.Time, time.Time) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (ZeroHistory) CategoryTotal(context.Context, EmployeeID, []string, Aggregate, time.Time, time.Time) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (ZeroHistory) InputSum(context.Context, EmployeeID, string, time.Time, time.Time) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (ZeroHistory) WorkedDaysSum(context.Context, EmployeeID, string, time.Time, time.Time) (decimal.Decimal, decimal.Decimal, error) {
	return decimal.Zero, decimal.Zero, nil
}
