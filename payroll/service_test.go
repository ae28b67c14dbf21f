package payroll_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// testRuleSet is a minimal catalog: BASIC reads the wage, PREV reads
// January's confirmed BASIC from history, COMM pays a declared input
// when one is supplied, NET rolls everything up.
func testRuleSet(t *testing.T) *engine.RuleSet {
	t.Helper()
	rules := []*engine.SalaryRule{
		{
			ID: "r-basic", Code: "BASIC", Name: "Basic Salary",
			Sequence: 1, Category: "BASIC", Active: true, AppearsOnPayslip: true,
			Condition: engine.ConditionAlways,
			Amount:    engine.AmountExpression, AmountExpr: "contract.wage",
		},
		{
			ID: "r-prev", Code: "PREV", Name: "Prior Basic",
			Sequence: 50, Category: "ALW", Active: true, AppearsOnPayslip: true,
			Condition: engine.ConditionAlways,
			Amount:    engine.AmountExpression,
			AmountExpr: `payslip.sum("BASIC", "2025-01-01", "2025-01-31")`,
		},
		{
			ID: "r-comm", Code: "COMM", Name: "Commission",
			Sequence: 60, Category: "ALW", Active: true, AppearsOnPayslip: true,
			Condition: engine.ConditionExpression, ConditionExpr: "inputs.COMM.amount != 0.0",
			Amount: engine.AmountExpression, AmountExpr: "inputs.COMM.amount",
			Inputs: []engine.InputSpec{{Code: "COMM", Name: "Commission"}},
		},
		{
			ID: "r-net", Code: "NET", Name: "Net Salary",
			Sequence: 200, Category: "NET", Active: true, AppearsOnPayslip: true,
			Condition: engine.ConditionAlways,
			Amount:    engine.AmountExpression,
			AmountExpr: "categories.BASIC + categories.ALW + categories.DED",
		},
	}
	structures := []*engine.Structure{
		{ID: "S", Name: "Test Structure", Rules: []engine.RuleID{"r-basic", "r-prev", "r-comm", "r-net"}},
	}
	categories := []engine.Category{
		{Code: "BASIC", Name: "Basic", Parent: "GROSS"},
		{Code: "ALW", Name: "Allowance", Parent: "GROSS"},
		{Code: "GROSS", Name: "Gross"},
		{Code: "DED", Name: "Deduction"},
		{Code: "NET", Name: "Net"},
	}
	rs, err := engine.NewRuleSet(categories, rules, structures)
	require.NoError(t, err)
	return rs
}

func newTestService(t *testing.T, cfg payroll.Config) (*payroll.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	eng, err := engine.New(testRuleSet(t),
		engine.WithContracts(store),
		engine.WithHistory(store),
		engine.WithSequence(store))
	require.NoError(t, err)

	svc := payroll.NewService(store, eng, cfg)

	ctx := context.Background()
	require.NoError(t, store.SaveEmployee(ctx, payroll.Employee{
		ID: "emp-1", Name: "Alice Johnson", Active: true,
	}))
	require.NoError(t, store.SaveContract(ctx, engine.Contract{
		ID: "c1", EmployeeID: "emp-1", Name: "Alice's Contract",
		StructureID: "S", Wage: decimal.NewFromInt(5000), SchedulePay: "monthly",
		DateStart: date(2024, time.January, 1),
	}))
	return svc, store
}

func draftSlip(t *testing.T, svc *payroll.Service, p engine.Period) *engine.Payslip {
	t.Helper()
	slip, err := svc.CreatePayslip(context.Background(), payroll.PayslipRequest{
		EmployeeID: "emp-1", Period: p,
	})
	require.NoError(t, err)
	return slip
}

// =============================================================================
// CREATION AND COMPUTATION
// =============================================================================

func TestService_CreatePayslip(t *testing.T) {
	svc, _ := newTestService(t, payroll.Config{})

	slip := draftSlip(t, svc, january2025())

	assert.Equal(t, engine.StateDraft, slip.State)
	assert.Contains(t, slip.Name, "Alice Johnson")
	require.NotEmpty(t, slip.WorkedDays, "worked days should be generated")
	assert.Equal(t, payroll.CodeAttendance, slip.WorkedDays[0].Code)
	assert.True(t, slip.WorkedDays[0].Days.Equal(decimal.NewFromInt(23)))
}

func TestService_CreatePayslip_UnknownEmployee(t *testing.T) {
	svc, _ := newTestService(t, payroll.Config{})

	_, err := svc.CreatePayslip(context.Background(), payroll.PayslipRequest{
		EmployeeID: "ghost", Period: january2025(),
	})
	assert.True(t, engine.IsNotFound(err), "expected not-found, got %v", err)
}

func TestService_CreatePayslip_PrefillsDeclaredInputs(t *testing.T) {
	// GIVEN: A structure whose COMM rule declares a COMM input
	// WHEN: Creating a draft without supplying that input
	// THEN: A zero input line is pre-filled for the contract

	svc, _ := newTestService(t, payroll.Config{})

	slip := draftSlip(t, svc, january2025())
	require.Len(t, slip.Inputs, 1)
	assert.Equal(t, "COMM", slip.Inputs[0].Code)
	assert.Equal(t, engine.ContractID("c1"), slip.Inputs[0].ContractID)
	assert.True(t, slip.Inputs[0].Amount.IsZero())
}

func TestService_CreatePayslip_KeepsSuppliedInputs(t *testing.T) {
	// GIVEN: The caller already supplies an amount for a declared input
	// WHEN: Creating and computing the payslip
	// THEN: No zero line is added and the supplied amount pays out

	svc, _ := newTestService(t, payroll.Config{})
	ctx := context.Background()

	slip, err := svc.CreatePayslip(ctx, payroll.PayslipRequest{
		EmployeeID: "emp-1", Period: january2025(),
		Inputs: []engine.Input{{Code: "COMM", ContractID: "c1", Amount: decimal.NewFromInt(300)}},
	})
	require.NoError(t, err)
	require.Len(t, slip.Inputs, 1)
	assert.True(t, slip.Inputs[0].Amount.Equal(decimal.NewFromInt(300)))

	res, err := svc.ComputeSheet(ctx, slip.ID)
	require.NoError(t, err)
	comm, ok := res.LineByCode("COMM")
	require.True(t, ok)
	assert.True(t, comm.Total.Equal(decimal.NewFromInt(300)))
}

func TestService_ComputeSheet(t *testing.T) {
	// GIVEN: A draft payslip for a 5000-wage contract
	// WHEN: Computing the sheet
	// THEN: Lines are stored atomically and a number is assigned

	svc, store := newTestService(t, payroll.Config{})
	slip := draftSlip(t, svc, january2025())

	res, err := svc.ComputeSheet(context.Background(), slip.ID)
	require.NoError(t, err)
	assert.Equal(t, "SLIP/000001", res.Number)

	stored, err := store.Payslip(context.Background(), slip.ID)
	require.NoError(t, err)
	assert.Equal(t, "SLIP/000001", stored.Number)
	require.Len(t, stored.Lines, 3)

	basic, ok := res.LineByCode("BASIC")
	require.True(t, ok)
	assert.True(t, basic.Total.Equal(decimal.NewFromInt(5000)))
}

func TestService_ComputeSheet_States(t *testing.T) {
	// GIVEN: A confirmed payslip
	// WHEN: Recomputing
	// THEN: Rejected; a verifying slip recomputes unless locked down

	svc, store := newTestService(t, payroll.Config{})
	ctx := context.Background()

	slip := draftSlip(t, svc, january2025())
	require.NoError(t, svc.Confirm(ctx, slip.ID))
	_, err := svc.ComputeSheet(ctx, slip.ID)
	assert.ErrorIs(t, err, engine.ErrPayslipNotDraft)

	verifying := draftSlip(t, svc, engine.NewPeriod(date(2025, time.February, 1), date(2025, time.February, 28)))
	require.NoError(t, svc.Verify(ctx, verifying.ID))
	_, err = svc.ComputeSheet(ctx, verifying.ID)
	assert.NoError(t, err, "verifying slips recompute by default")

	locked := payroll.NewService(store, svc.Engine(), payroll.Config{LockConfirmedRecompute: true})
	_, err = locked.ComputeSheet(ctx, verifying.ID)
	assert.ErrorIs(t, err, engine.ErrPayslipLocked)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestService_Confirm_ComputesWhenEmpty(t *testing.T) {
	svc, store := newTestService(t, payroll.Config{})
	ctx := context.Background()

	slip := draftSlip(t, svc, january2025())
	require.NoError(t, svc.Confirm(ctx, slip.ID))

	stored, err := store.Payslip(ctx, slip.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StateDone, stored.State)
	assert.NotEmpty(t, stored.Lines, "confirm should compute an uncomputed slip")
}

func TestService_Verify_ThenConfirm(t *testing.T) {
	svc, store := newTestService(t, payroll.Config{})
	ctx := context.Background()

	slip := draftSlip(t, svc, january2025())
	require.NoError(t, svc.Verify(ctx, slip.ID))

	stored, _ := store.Payslip(ctx, slip.ID)
	assert.Equal(t, engine.StateWaiting, stored.State)

	require.NoError(t, svc.Confirm(ctx, slip.ID))
	stored, _ = store.Payslip(ctx, slip.ID)
	assert.Equal(t, engine.StateDone, stored.State)
}

func TestService_Cancel_DoneNeedsOverride(t *testing.T) {
	svc, _ := newTestService(t, payroll.Config{})
	ctx := context.Background()

	slip := draftSlip(t, svc, january2025())
	require.NoError(t, svc.Confirm(ctx, slip.ID))

	err := svc.Cancel(ctx, slip.ID)
	assert.ErrorIs(t, err, engine.ErrCancelDone)
}

func TestService_Cancel_WithOverride(t *testing.T) {
	svc, store := newTestService(t, payroll.Config{AllowCancelDone: true})
	ctx := context.Background()

	slip := draftSlip(t, svc, january2025())
	require.NoError(t, svc.Confirm(ctx, slip.ID))
	require.NoError(t, svc.Cancel(ctx, slip.ID))

	stored, _ := store.Payslip(ctx, slip.ID)
	assert.Equal(t, engine.StateCancelled, stored.State)
}

func TestService_SetToDraft(t *testing.T) {
	svc, store := newTestService(t, payroll.Config{})
	ctx := context.Background()

	slip := draftSlip(t, svc, january2025())
	require.NoError(t, svc.Verify(ctx, slip.ID))
	require.NoError(t, svc.SetToDraft(ctx, slip.ID))

	stored, _ := store.Payslip(ctx, slip.ID)
	assert.Equal(t, engine.StateDraft, stored.State)

	require.NoError(t, svc.Confirm(ctx, slip.ID))
	assert.Error(t, svc.SetToDraft(ctx, slip.ID), "done slips must not go back to draft")
}

func TestService_Delete_OnlyDraftOrCancelled(t *testing.T) {
	svc, store := newTestService(t, payroll.Config{AllowCancelDone: true})
	ctx := context.Background()

	done := draftSlip(t, svc, january2025())
	require.NoError(t, svc.Confirm(ctx, done.ID))
	assert.ErrorIs(t, svc.Delete(ctx, done.ID), engine.ErrDeleteNonDraft)

	require.NoError(t, svc.Cancel(ctx, done.ID))
	assert.NoError(t, svc.Delete(ctx, done.ID))

	_, err := store.Payslip(ctx, done.ID)
	assert.True(t, engine.IsNotFound(err))
}

// =============================================================================
// REFUNDS
// =============================================================================

func TestService_Refund(t *testing.T) {
	// GIVEN: A confirmed payslip
	// WHEN: Refunding it
	// THEN: A confirmed credit-note copy points back at the original

	svc, _ := newTestService(t, payroll.Config{})
	ctx := context.Background()

	orig := draftSlip(t, svc, january2025())
	require.NoError(t, svc.Confirm(ctx, orig.ID))

	refund, err := svc.Refund(ctx, orig.ID)
	require.NoError(t, err)
	assert.True(t, refund.CreditNote)
	assert.Equal(t, orig.ID, refund.RefundedID)
	assert.Equal(t, engine.StateDone, refund.State)
	assert.NotEmpty(t, refund.Lines)
}

func TestService_Refund_RequiresDone(t *testing.T) {
	svc, _ := newTestService(t, payroll.Config{})

	slip := draftSlip(t, svc, january2025())
	_, err := svc.Refund(context.Background(), slip.ID)
	assert.ErrorIs(t, err, engine.ErrNotDone)
}

func TestService_Cancel_BlockedByActiveRefund(t *testing.T) {
	// GIVEN: A confirmed payslip with a live refund, cancel-done allowed
	// WHEN: Cancelling the original
	// THEN: Blocked until the refund itself is cancelled

	svc, _ := newTestService(t, payroll.Config{AllowCancelDone: true})
	ctx := context.Background()

	orig := draftSlip(t, svc, january2025())
	require.NoError(t, svc.Confirm(ctx, orig.ID))
	refund, err := svc.Refund(ctx, orig.ID)
	require.NoError(t, err)

	err = svc.Cancel(ctx, orig.ID)
	assert.ErrorIs(t, err, engine.ErrRefundNotCancelled)

	require.NoError(t, svc.Cancel(ctx, refund.ID))
	assert.NoError(t, svc.Cancel(ctx, orig.ID))
}

// =============================================================================
// HISTORY ACROSS MONTHS
// =============================================================================

func TestService_HistoryFeedsLaterMonths(t *testing.T) {
	// GIVEN: A confirmed January slip (BASIC 5000)
	// WHEN: Computing February, whose PREV rule sums January's BASIC
	// THEN: PREV carries 5000; after refunding January it nets to zero

	svc, _ := newTestService(t, payroll.Config{})
	ctx := context.Background()

	jan := draftSlip(t, svc, january2025())
	require.NoError(t, svc.Confirm(ctx, jan.ID))

	feb := draftSlip(t, svc, engine.NewPeriod(date(2025, time.February, 1), date(2025, time.February, 28)))
	res, err := svc.ComputeSheet(ctx, feb.ID)
	require.NoError(t, err)

	prev, ok := res.LineByCode("PREV")
	require.True(t, ok)
	assert.True(t, prev.Total.Equal(decimal.NewFromInt(5000)),
		"PREV = %s, want January's 5000", prev.Total)

	_, err = svc.Refund(ctx, jan.ID)
	require.NoError(t, err)

	res, err = svc.ComputeSheet(ctx, feb.ID)
	require.NoError(t, err)
	prev, _ = res.LineByCode("PREV")
	assert.True(t, prev.Total.IsZero(),
		"PREV = %s, want 0 after the credit note", prev.Total)
}

// =============================================================================
// BATCH RUNS
// =============================================================================

func TestService_RunLifecycle(t *testing.T) {
	// GIVEN: Two employees with contracts
	// WHEN: Creating, computing and closing a run
	// THEN: Every slip ends done and the run closes

	svc, store := newTestService(t, payroll.Config{})
	ctx := context.Background()

	require.NoError(t, store.SaveEmployee(ctx, payroll.Employee{
		ID: "emp-2", Name: "Bob Chen", Active: true,
	}))
	require.NoError(t, store.SaveContract(ctx, engine.Contract{
		ID: "c2", EmployeeID: "emp-2", Name: "Bob's Contract",
		StructureID: "S", Wage: decimal.NewFromInt(4000), SchedulePay: "monthly",
		DateStart: date(2024, time.January, 1),
	}))

	run, err := svc.CreateRun(ctx, "January Payroll", january2025(),
		[]engine.EmployeeID{"emp-1", "emp-2"})
	require.NoError(t, err)
	assert.Equal(t, payroll.RunDraft, run.State)

	slips, err := store.Payslips(ctx, payroll.PayslipFilter{RunID: string(run.ID)})
	require.NoError(t, err)
	require.Len(t, slips, 2)
	for _, slip := range slips {
		assert.Equal(t, engine.StateDraft, slip.State)
	}

	require.NoError(t, svc.ComputeRun(ctx, run.ID))
	slips, _ = store.Payslips(ctx, payroll.PayslipFilter{RunID: string(run.ID)})
	for _, slip := range slips {
		assert.NotEmpty(t, slip.Lines, "run compute should fill every slip")
	}

	require.NoError(t, svc.CloseRun(ctx, run.ID))
	closed, err := store.Run(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.RunClosed, closed.State)

	slips, _ = store.Payslips(ctx, payroll.PayslipFilter{RunID: string(run.ID)})
	for _, slip := range slips {
		assert.Equal(t, engine.StateDone, slip.State)
	}

	assert.Error(t, svc.ComputeRun(ctx, run.ID), "closed runs must not recompute")
}
