/*
store.go - Persistence contract for the payroll service

PURPOSE:
  What the service needs a backing store to do. Implementations live in
  store/memory (tests, demos) and store/sqlite (durable).

KEY CONCEPTS:
  - ReplaceLines swaps a payslip's computed lines atomically: a reader
    never observes a half-replaced slip.
  - Stores also serve the engine: contract resolution, historical
    aggregates over confirmed slips, and number sequences are provided
    by the same implementations.
*/
package payroll

import (
	"context"

	"github.com/warp/payroll-engine/engine"
)

// PayslipFilter narrows a payslip listing. Zero values match everything.
type PayslipFilter struct {
	EmployeeID engine.EmployeeID
	RunID      string
	State      engine.PayslipState
}

// Store persists payroll records.
type Store interface {
	// Payslips. SavePayslip inserts or updates the slip's metadata and
	// worked-day/input facts; computed lines go through ReplaceLines.
	SavePayslip(ctx context.Context, slip *engine.Payslip) error
	Payslip(ctx context.Context, id engine.PayslipID) (*engine.Payslip, error)
	Payslips(ctx context.Context, filter PayslipFilter) ([]*engine.Payslip, error)
	ReplaceLines(ctx context.Context, id engine.PayslipID, number string, lines []engine.PayslipLine) error
	SetPayslipState(ctx context.Context, id engine.PayslipID, state engine.PayslipState) error
	DeletePayslip(ctx context.Context, id engine.PayslipID) error

	// Employees and contracts.
	SaveEmployee(ctx context.Context, e Employee) error
	Employee(ctx context.Context, id engine.EmployeeID) (Employee, error)
	Employees(ctx context.Context) ([]Employee, error)
	SaveContract(ctx context.Context, c engine.Contract) error

	// Leaves.
	SaveLeave(ctx context.Context, lv Leave) error
	LeavesFor(ctx context.Context, employee engine.EmployeeID, p engine.Period) ([]Leave, error)

	// Runs.
	SaveRun(ctx context.Context, run *Run) error
	Run(ctx context.Context, id RunID) (*Run, error)
	Runs(ctx context.Context) ([]*Run, error)

	// Reset clears all stored data. Used by demo scenarios and tests.
	Reset(ctx context.Context) error

	// Engine-facing views over the same data.
	engine.ContractSource
	engine.History
	engine.Sequence
}
