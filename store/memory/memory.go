/*
memory.go - In-memory payroll store

PURPOSE:
  A mutex-guarded, map-backed payroll.Store for tests, demos and
  single-process setups. Implements the engine-facing views too:
  contract resolution, historical aggregates over confirmed payslips,
  and the payslip number sequence.

KEY CONCEPTS:
  - History reads cover payslips in state done whose period falls inside
    the asked window; credit notes contribute negated values.
  - Everything returned is a copy. Callers never share map-backed state.
*/
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/payroll"
)

type Store struct {
	mu sync.RWMutex

	payslips  map[engine.PayslipID]*engine.Payslip
	slipOrder []engine.PayslipID
	employees map[engine.EmployeeID]payroll.Employee
	contracts map[engine.ContractID]engine.Contract
	leaves    map[payroll.LeaveID]payroll.Leave
	runs      map[payroll.RunID]*payroll.Run

	seqPrefix string
	seqNext   int
}

func New() *Store {
	return &Store{
		payslips:  make(map[engine.PayslipID]*engine.Payslip),
		employees: make(map[engine.EmployeeID]payroll.Employee),
		contracts: make(map[engine.ContractID]engine.Contract),
		leaves:    make(map[payroll.LeaveID]payroll.Leave),
		runs:      make(map[payroll.RunID]*payroll.Run),
		seqPrefix: "SLIP",
	}
}

// =============================================================================
// PAYSLIPS
// =============================================================================

func (s *Store) SavePayslip(_ context.Context, slip *engine.Payslip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payslips[slip.ID]; !ok {
		s.slipOrder = append(s.slipOrder, slip.ID)
	}
	s.payslips[slip.ID] = copySlip(slip)
	return nil
}

func (s *Store) Payslip(_ context.Context, id engine.PayslipID) (*engine.Payslip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slip, ok := s.payslips[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrPayslipNotFound, id)
	}
	return copySlip(slip), nil
}

func (s *Store) Payslips(_ context.Context, f payroll.PayslipFilter) ([]*engine.Payslip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*engine.Payslip
	for _, id := range s.slipOrder {
		slip := s.payslips[id]
		if f.EmployeeID != "" && slip.EmployeeID != f.EmployeeID {
			continue
		}
		if f.RunID != "" && slip.RunID != f.RunID {
			continue
		}
		if f.State != "" && slip.State != f.State {
			continue
		}
		out = append(out, copySlip(slip))
	}
	return out, nil
}

func (s *Store) ReplaceLines(_ context.Context, id engine.PayslipID, number string, lines []engine.PayslipLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slip, ok := s.payslips[id]
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrPayslipNotFound, id)
	}
	slip.Number = number
	slip.Lines = append([]engine.PayslipLine(nil), lines...)
	return nil
}

func (s *Store) SetPayslipState(_ context.Context, id engine.PayslipID, state engine.PayslipState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slip, ok := s.payslips[id]
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrPayslipNotFound, id)
	}
	slip.State = state
	return nil
}

func (s *Store) DeletePayslip(_ context.Context, id engine.PayslipID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payslips[id]; !ok {
		return fmt.Errorf("%w: %s", engine.ErrPayslipNotFound, id)
	}
	delete(s.payslips, id)
	for i, sid := range s.slipOrder {
		if sid == id {
			s.slipOrder = append(s.slipOrder[:i], s.slipOrder[i+1:]...)
			break
		}
	}
	return nil
}

func copySlip(slip *engine.Payslip) *engine.Payslip {
	cp := *slip
	cp.WorkedDays = append([]engine.WorkedDays(nil), slip.WorkedDays...)
	cp.Inputs = append([]engine.Input(nil), slip.Inputs...)
	cp.Lines = append([]engine.PayslipLine(nil), slip.Lines...)
	return &cp
}

// =============================================================================
// EMPLOYEES AND CONTRACTS
// =============================================================================

func (s *Store) SaveEmployee(_ context.Context, e payroll.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[e.ID] = e
	return nil
}

func (s *Store) Employee(_ context.Context, id engine.EmployeeID) (payroll.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.employees[id]
	if !ok {
		return payroll.Employee{}, fmt.Errorf("employee %s: %w", id, engine.ErrNotFound)
	}
	return e, nil
}

func (s *Store) Employees(_ context.Context) ([]payroll.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]payroll.Employee, 0, len(s.employees))
	for _, e := range s.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SaveContract(_ context.Context, c engine.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contracts[c.ID] = c
	return nil
}

func (s *Store) Contract(_ context.Context, id engine.ContractID) (engine.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contracts[id]
	if !ok {
		return engine.Contract{}, fmt.Errorf("contract %s: %w", id, engine.ErrNotFound)
	}
	return c, nil
}

func (s *Store) ContractsFor(_ context.Context, employee engine.EmployeeID, p engine.Period) ([]engine.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []engine.Contract
	for _, c := range s.contracts {
		if c.EmployeeID == employee && c.ActiveIn(p) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// LEAVES AND RUNS
// =============================================================================

func (s *Store) SaveLeave(_ context.Context, lv payroll.Leave) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaves[lv.ID] = lv
	return nil
}

func (s *Store) LeavesFor(_ context.Context, employee engine.EmployeeID, p engine.Period) ([]payroll.Leave, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []payroll.Leave
	for _, lv := range s.leaves {
		if lv.EmployeeID != employee {
			continue
		}
		if lv.DateTo.Before(p.Start) || lv.DateFrom.After(p.End) {
			continue
		}
		out = append(out, lv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SaveRun(_ context.Context, run *payroll.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *Store) Run(_ context.Context, id payroll.RunID) (*payroll.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, engine.ErrNotFound)
	}
	cp := *run
	return &cp, nil
}

func (s *Store) Runs(_ context.Context) ([]*payroll.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*payroll.Run, 0, len(s.runs))
	for _, run := range s.runs {
		cp := *run
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// HISTORY - Aggregates over confirmed payslips
// =============================================================================

func (s *Store) doneSlipsIn(employee engine.EmployeeID, from, to time.Time) []*engine.Payslip {
	window := engine.NewPeriod(from, to)
	var out []*engine.Payslip
	for _, id := range s.slipOrder {
		slip := s.payslips[id]
		if slip.EmployeeID != employee || slip.State != engine.StateDone {
			continue
		}
		if !window.Contains(slip.Period.Start) || !window.Contains(slip.Period.End) {
			continue
		}
		out = append(out, slip)
	}
	return out
}

func creditSign(slip *engine.Payslip) decimal.Decimal {
	if slip.CreditNote {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

func aggregate(agg engine.Aggregate, values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	switch agg {
	case engine.AggAvg:
		sum := decimal.Zero
		for _, v := range values {
			sum = sum.Add(v)
		}
		return sum.Div(decimal.NewFromInt(int64(len(values))))
	case engine.AggMin:
		min := values[0]
		for _, v := range values[1:] {
			if v.LessThan(min) {
				min = v
			}
		}
		return min
	case engine.AggMax:
		max := values[0]
		for _, v := range values[1:] {
			if v.GreaterThan(max) {
				max = v
			}
		}
		return max
	default:
		sum := decimal.Zero
		for _, v := range values {
			sum = sum.Add(v)
		}
		return sum
	}
}

func (s *Store) RuleTotal(_ context.Context, employee engine.EmployeeID, code string, agg engine.Aggregate, from, to time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var values []decimal.Decimal
	for _, slip := range s.doneSlipsIn(employee, from, to) {
		sign := creditSign(slip)
		for _, line := range slip.Lines {
			if line.Code == code {
				values = append(values, line.Total.Mul(sign))
			}
		}
	}
	return aggregate(agg, values), nil
}

func (s *Store) CategoryTotal(_ context.Context, employee engine.EmployeeID, categories []string, agg engine.Aggregate, from, to time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in := make(map[string]bool, len(categories))
	for _, c := range categories {
		in[c] = true
	}
	var values []decimal.Decimal
	for _, slip := range s.doneSlipsIn(employee, from, to) {
		sign := creditSign(slip)
		for _, line := range slip.Lines {
			if in[line.Category] {
				values = append(values, line.Total.Mul(sign))
			}
		}
	}
	return aggregate(agg, values), nil
}

func (s *Store) InputSum(_ context.Context, employee engine.EmployeeID, code string, from, to time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := decimal.Zero
	for _, slip := range s.doneSlipsIn(employee, from, to) {
		sign := creditSign(slip)
		for _, in := range slip.Inputs {
			if in.Code == code {
				sum = sum.Add(in.Amount.Mul(sign))
			}
		}
	}
	return sum, nil
}

func (s *Store) WorkedDaysSum(_ context.Context, employee engine.EmployeeID, code string, from, to time.Time) (decimal.Decimal, decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	days, hours := decimal.Zero, decimal.Zero
	for _, slip := range s.doneSlipsIn(employee, from, to) {
		for _, wd := range slip.WorkedDays {
			if wd.Code == code {
				days = days.Add(wd.Days)
				hours = hours.Add(wd.Hours)
			}
		}
	}
	return days, hours, nil
}

// =============================================================================
// SEQUENCE
// =============================================================================

// Next implements engine.Sequence: SLIP/000001, SLIP/000002, ...
func (s *Store) Next(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqNext++
	return fmt.Sprintf("%s/%06d", s.seqPrefix, s.seqNext), nil
}

// =============================================================================
// RESET
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payslips = make(map[engine.PayslipID]*engine.Payslip)
	s.slipOrder = nil
	s.employees = make(map[engine.EmployeeID]payroll.Employee)
	s.contracts = make(map[engine.ContractID]engine.Contract)
	s.leaves = make(map[payroll.LeaveID]payroll.Leave)
	s.runs = make(map[payroll.RunID]*payroll.Run)
	s.seqNext = 0
	return nil
}
