/*
service.go - Payslip lifecycle service

PURPOSE:
  The operations around the engine: creating draft payslips with
  generated worked-day lines, computing and recomputing sheets,
  confirming, cancelling, refunding through credit notes, and driving
  batch runs.

KEY CONCEPTS:
  - States move draft -> verify -> done, with cancel reachable from
    draft and verify always, and from done only when configured.
  - A refund is a credit-note copy of a confirmed payslip. Its history
    contributions count negative, and the original cannot be cancelled
    while an uncancelled refund points at it.
  - Deleting is restricted to draft and cancelled slips.

USAGE:
    svc := payroll.NewService(store, eng, cfg)
    slip, err := svc.CreatePayslip(ctx, employeeID, period)
    res, err := svc.ComputeSheet(ctx, slip.ID)
    err = svc.Confirm(ctx, slip.ID)
*/
package payroll

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
)

type Service struct {
	store  Store
	engine *engine.Engine
	cfg    Config
	cal    *Calendar
	logger *log.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCalendar replaces the default work calendar.
func WithCalendar(cal *Calendar) ServiceOption { return func(s *Service) { s.cal = cal } }

// WithLogger sets the service logger.
func WithLogger(l *log.Logger) ServiceOption { return func(s *Service) { s.logger = l } }

func NewService(store Store, eng *engine.Engine, cfg Config, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		engine: eng,
		cfg:    cfg,
		cal:    DefaultCalendar(),
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the service's evaluation engine.
func (s *Service) Engine() *engine.Engine { return s.engine }

// Config returns the service configuration.
func (s *Service) Config() Config { return s.cfg }

// =============================================================================
// CREATION
// =============================================================================

// PayslipRequest describes a payslip to create.
type PayslipRequest struct {
	EmployeeID  engine.EmployeeID
	Period      engine.Period
	ContractID  engine.ContractID  // optional: pin to one contract
	StructureID engine.StructureID // optional: override the structure
	RunID       string
	CreditNote  bool
	Inputs      []engine.Input
}

// CreatePayslip creates a draft payslip with generated worked-day lines.
func (s *Service) CreatePayslip(ctx context.Context, req PayslipRequest) (*engine.Payslip, error) {
	if err := req.Period.Validate(); err != nil {
		return nil, err
	}
	emp, err := s.store.Employee(ctx, req.EmployeeID)
	if err != nil {
		return nil, err
	}

	slip := &engine.Payslip{
		ID:          engine.PayslipID(uuid.NewString()),
		Name:        fmt.Sprintf("Salary Slip of %s for %s", emp.Name, req.Period),
		EmployeeID:  req.EmployeeID,
		ContractID:  req.ContractID,
		StructureID: req.StructureID,
		Period:      req.Period,
		State:       engine.StateDraft,
		CreditNote:  req.CreditNote,
		RunID:       req.RunID,
		Inputs:      req.Inputs,
	}

	contracts, err := s.contractsFor(ctx, slip)
	if err != nil {
		return nil, err
	}
	leaves, err := s.store.LeavesFor(ctx, req.EmployeeID, leavePeriod(req.Period, s.cfg))
	if err != nil {
		return nil, err
	}
	for _, c := range contracts {
		slip.WorkedDays = append(slip.WorkedDays, WorkedDayLines(s.cal, s.cfg, c, req.Period, leaves)...)
	}
	slip.Inputs = fillDeclaredInputs(s.engine.Rules(), slip.StructureID, contracts, slip.Inputs)

	if err := s.store.SavePayslip(ctx, slip); err != nil {
		return nil, err
	}
	return slip, nil
}

func (s *Service) contractsFor(ctx context.Context, slip *engine.Payslip) ([]engine.Contract, error) {
	if slip.ContractID != "" {
		c, err := s.store.Contract(ctx, slip.ContractID)
		if err != nil {
			return nil, err
		}
		return []engine.Contract{c}, nil
	}
	return s.store.ContractsFor(ctx, slip.EmployeeID, slip.Period)
}

// leavePeriod widens the leave query when worked days come from the
// previous month.
func leavePeriod(p engine.Period, cfg Config) engine.Period {
	if cfg.WorkedDaysFromPrevMonth {
		return engine.MonthOf(p.Start.AddDate(0, -1, 0))
	}
	return p
}

// fillDeclaredInputs appends one zero input line per rule-declared code
// per contract, keeping any amount the caller already supplied. A caller
// input with an empty ContractID counts for every contract.
func fillDeclaredInputs(rules *engine.RuleSet, override engine.StructureID, contracts []engine.Contract, inputs []engine.Input) []engine.Input {
	specs := rules.InputSpecs(rules.StructuresFor(contracts, override))
	for _, c := range contracts {
		for _, spec := range specs {
			if hasInput(inputs, spec.Code, c.ID) {
				continue
			}
			inputs = append(inputs, engine.Input{
				Code:       spec.Code,
				Name:       spec.Name,
				ContractID: c.ID,
				Amount:     decimal.Zero,
			})
		}
	}
	return inputs
}

func hasInput(inputs []engine.Input, code string, contract engine.ContractID) bool {
	for _, in := range inputs {
		if in.Code == code && (in.ContractID == "" || in.ContractID == contract) {
			return true
		}
	}
	return false
}

// =============================================================================
// COMPUTATION
// =============================================================================

// ComputeSheet evaluates the payslip and atomically replaces its lines.
// Draft and verify slips recompute freely; confirmed ones never do, and
// the lock knob restricts recomputation to drafts only.
func (s *Service) ComputeSheet(ctx context.Context, id engine.PayslipID) (*engine.Result, error) {
	slip, err := s.store.Payslip(ctx, id)
	if err != nil {
		return nil, err
	}
	switch slip.State {
	case engine.StateDraft:
	case engine.StateWaiting:
		if s.cfg.LockConfirmedRecompute {
			return nil, fmt.Errorf("%w: payslip %s is under verification", engine.ErrPayslipLocked, id)
		}
	default:
		return nil, fmt.Errorf("%w: payslip %s is %s", engine.ErrPayslipNotDraft, id, slip.State)
	}

	res, err := s.engine.Compute(ctx, slip)
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplaceLines(ctx, id, res.Number, res.Lines); err != nil {
		return nil, err
	}
	return res, nil
}

// =============================================================================
// STATE TRANSITIONS
// =============================================================================

// Confirm moves a draft or verifying payslip to done, computing it
// first when it carries no lines yet.
func (s *Service) Confirm(ctx context.Context, id engine.PayslipID) error {
	slip, err := s.store.Payslip(ctx, id)
	if err != nil {
		return err
	}
	if slip.State != engine.StateDraft && slip.State != engine.StateWaiting {
		return fmt.Errorf("%w: payslip %s is %s", engine.ErrPayslipNotDraft, id, slip.State)
	}
	if len(slip.Lines) == 0 {
		res, err := s.engine.Compute(ctx, slip)
		if err != nil {
			return err
		}
		if err := s.store.ReplaceLines(ctx, id, res.Number, res.Lines); err != nil {
			return err
		}
	}
	return s.store.SetPayslipState(ctx, id, engine.StateDone)
}

// Verify moves a draft payslip to verification.
func (s *Service) Verify(ctx context.Context, id engine.PayslipID) error {
	slip, err := s.store.Payslip(ctx, id)
	if err != nil {
		return err
	}
	if slip.State != engine.StateDraft {
		return fmt.Errorf("%w: payslip %s is %s", engine.ErrPayslipNotDraft, id, slip.State)
	}
	return s.store.SetPayslipState(ctx, id, engine.StateWaiting)
}

// Cancel cancels a payslip. Confirmed slips cancel only when configured,
// and never while an uncancelled refund points at them.
func (s *Service) Cancel(ctx context.Context, id engine.PayslipID) error {
	slip, err := s.store.Payslip(ctx, id)
	if err != nil {
		return err
	}
	if slip.State == engine.StateDone {
		if !s.cfg.AllowCancelDone {
			return fmt.Errorf("%w: payslip %s", engine.ErrCancelDone, id)
		}
		refunds, err := s.activeRefundsOf(ctx, id)
		if err != nil {
			return err
		}
		if len(refunds) > 0 {
			return fmt.Errorf("%w: payslip %s is refunded by %s", engine.ErrRefundNotCancelled, id, refunds[0])
		}
	}
	return s.store.SetPayslipState(ctx, id, engine.StateCancelled)
}

func (s *Service) activeRefundsOf(ctx context.Context, id engine.PayslipID) ([]engine.PayslipID, error) {
	slips, err := s.store.Payslips(ctx, PayslipFilter{})
	if err != nil {
		return nil, err
	}
	var out []engine.PayslipID
	for _, sl := range slips {
		if sl.RefundedID == id && sl.State != engine.StateCancelled {
			out = append(out, sl.ID)
		}
	}
	return out, nil
}

// SetToDraft returns a cancelled or verifying payslip to draft.
func (s *Service) SetToDraft(ctx context.Context, id engine.PayslipID) error {
	slip, err := s.store.Payslip(ctx, id)
	if err != nil {
		return err
	}
	if slip.State == engine.StateDone {
		return fmt.Errorf("%w: payslip %s", engine.ErrCancelDone, id)
	}
	return s.store.SetPayslipState(ctx, id, engine.StateDraft)
}

// Delete removes a payslip. Only draft and cancelled slips delete.
func (s *Service) Delete(ctx context.Context, id engine.PayslipID) error {
	slip, err := s.store.Payslip(ctx, id)
	if err != nil {
		return err
	}
	if slip.State != engine.StateDraft && slip.State != engine.StateCancelled {
		return fmt.Errorf("%w: payslip %s is %s", engine.ErrDeleteNonDraft, id, slip.State)
	}
	return s.store.DeletePayslip(ctx, id)
}

// =============================================================================
// REFUNDS
// =============================================================================

// Refund creates, computes and confirms a credit-note copy of a
// confirmed payslip. The copy's history contributions count negative.
func (s *Service) Refund(ctx context.Context, id engine.PayslipID) (*engine.Payslip, error) {
	orig, err := s.store.Payslip(ctx, id)
	if err != nil {
		return nil, err
	}
	if orig.State != engine.StateDone {
		return nil, fmt.Errorf("%w: payslip %s is %s", engine.ErrNotDone, id, orig.State)
	}

	refund := &engine.Payslip{
		ID:          engine.PayslipID(uuid.NewString()),
		Name:        "Refund: " + orig.Name,
		EmployeeID:  orig.EmployeeID,
		ContractID:  orig.ContractID,
		StructureID: orig.StructureID,
		Period:      orig.Period,
		State:       engine.StateDraft,
		CreditNote:  true,
		RefundedID:  orig.ID,
		WorkedDays:  append([]engine.WorkedDays(nil), orig.WorkedDays...),
		Inputs:      append([]engine.Input(nil), orig.Inputs...),
	}
	if err := s.store.SavePayslip(ctx, refund); err != nil {
		return nil, err
	}
	res, err := s.engine.Compute(ctx, refund)
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplaceLines(ctx, refund.ID, res.Number, res.Lines); err != nil {
		return nil, err
	}
	if err := s.store.SetPayslipState(ctx, refund.ID, engine.StateDone); err != nil {
		return nil, err
	}
	return s.store.Payslip(ctx, refund.ID)
}

// =============================================================================
// BATCH RUNS
// =============================================================================

// CreateRun opens a batch run and drafts one payslip per employee.
func (s *Service) CreateRun(ctx context.Context, name string, period engine.Period, employees []engine.EmployeeID) (*Run, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	run := &Run{
		ID:     RunID(uuid.NewString()),
		Name:   name,
		Period: period,
		State:  RunDraft,
	}
	if err := s.store.SaveRun(ctx, run); err != nil {
		return nil, err
	}
	for _, emp := range employees {
		if _, err := s.CreatePayslip(ctx, PayslipRequest{
			EmployeeID: emp,
			Period:     period,
			RunID:      string(run.ID),
		}); err != nil {
			return nil, fmt.Errorf("drafting payslip for %s: %w", emp, err)
		}
	}
	return run, nil
}

// ComputeRun computes every payslip of the run concurrently.
func (s *Service) ComputeRun(ctx context.Context, id RunID) error {
	run, err := s.store.Run(ctx, id)
	if err != nil {
		return err
	}
	if run.State != RunDraft {
		return fmt.Errorf("run %s is already %s", id, run.State)
	}
	slips, err := s.store.Payslips(ctx, PayslipFilter{RunID: string(id)})
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	errs := make([]error, len(slips))
	for i, slip := range slips {
		wg.Add(1)
		go func(i int, slipID engine.PayslipID) {
			defer wg.Done()
			if _, err := s.ComputeSheet(ctx, slipID); err != nil {
				errs[i] = fmt.Errorf("payslip %s: %w", slipID, err)
			}
		}(i, slip.ID)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Printf("run %s: computed %d payslips", id, len(slips))
	return nil
}

// CloseRun confirms every payslip of the run and closes it.
func (s *Service) CloseRun(ctx context.Context, id RunID) error {
	run, err := s.store.Run(ctx, id)
	if err != nil {
		return err
	}
	slips, err := s.store.Payslips(ctx, PayslipFilter{RunID: string(id)})
	if err != nil {
		return err
	}
	for _, slip := range slips {
		if slip.State == engine.StateDone || slip.State == engine.StateCancelled {
			continue
		}
		if err := s.Confirm(ctx, slip.ID); err != nil {
			return fmt.Errorf("confirming payslip %s: %w", slip.ID, err)
		}
	}
	run.State = RunClosed
	return s.store.SaveRun(ctx, run)
}
