package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/payroll"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func date(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func january2025() engine.Period {
	return engine.NewPeriod(date(2025, time.January, 1), date(2025, time.January, 31))
}

func doneSlip(t *testing.T, s *Store, id engine.PayslipID, creditNote bool, netTotal float64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.SavePayslip(ctx, &engine.Payslip{
		ID: id, Name: string(id), EmployeeID: "emp-1",
		Period: january2025(), State: engine.StateDone, CreditNote: creditNote,
		WorkedDays: []engine.WorkedDays{
			{Code: "WORK100", ContractID: "c1", Days: d(23), Hours: d(184)},
		},
		Inputs: []engine.Input{
			{Code: "COMM", ContractID: "c1", Amount: d(300)},
		},
	}))
	require.NoError(t, s.ReplaceLines(ctx, id, "SLIP/000099", []engine.PayslipLine{
		{RuleID: "r-net", Code: "NET", Category: "NET", EmployeeID: "emp-1",
			ContractID: "c1", Quantity: d(1), Rate: d(100),
			Amount: d(netTotal), Total: d(netTotal)},
	}))
}

func TestCopySemantics(t *testing.T) {
	// Mutating a returned slip must not leak back into the store.
	s := New()
	ctx := context.Background()

	doneSlip(t, s, "ps-1", false, 5000)

	got, err := s.Payslip(ctx, "ps-1")
	require.NoError(t, err)
	got.Lines[0].Total = d(999)
	got.State = engine.StateCancelled

	again, err := s.Payslip(ctx, "ps-1")
	require.NoError(t, err)
	assert.True(t, again.Lines[0].Total.Equal(d(5000)))
	assert.Equal(t, engine.StateDone, again.State)
}

func TestPayslipsKeepInsertionOrder(t *testing.T) {
	s := New()
	ctx := context.Background()

	doneSlip(t, s, "ps-b", false, 1)
	doneSlip(t, s, "ps-a", false, 2)

	slips, err := s.Payslips(ctx, payroll.PayslipFilter{})
	require.NoError(t, err)
	require.Len(t, slips, 2)
	assert.Equal(t, engine.PayslipID("ps-b"), slips[0].ID)
	assert.Equal(t, engine.PayslipID("ps-a"), slips[1].ID)

	require.NoError(t, s.DeletePayslip(ctx, "ps-b"))
	slips, err = s.Payslips(ctx, payroll.PayslipFilter{})
	require.NoError(t, err)
	require.Len(t, slips, 1)
	assert.Equal(t, engine.PayslipID("ps-a"), slips[0].ID)
}

func TestHistoryCreditNoteNegation(t *testing.T) {
	s := New()
	ctx := context.Background()

	doneSlip(t, s, "ps-orig", false, 5000)
	doneSlip(t, s, "ps-refund", true, 5000)

	from, to := date(2025, time.January, 1), date(2025, time.January, 31)

	rule, err := s.RuleTotal(ctx, "emp-1", "NET", engine.AggSum, from, to)
	require.NoError(t, err)
	assert.True(t, rule.IsZero(), "rule total = %s", rule)

	cat, err := s.CategoryTotal(ctx, "emp-1", []string{"NET"}, engine.AggSum, from, to)
	require.NoError(t, err)
	assert.True(t, cat.IsZero(), "category total = %s", cat)

	input, err := s.InputSum(ctx, "emp-1", "COMM", from, to)
	require.NoError(t, err)
	assert.True(t, input.IsZero(), "input sum = %s", input)

	// Time worked is not money: refunds do not subtract it.
	days, hours, err := s.WorkedDaysSum(ctx, "emp-1", "WORK100", from, to)
	require.NoError(t, err)
	assert.True(t, days.Equal(d(46)))
	assert.True(t, hours.Equal(d(368)))
}

func TestHistoryExcludesDrafts(t *testing.T) {
	s := New()
	ctx := context.Background()

	doneSlip(t, s, "ps-done", false, 5000)
	require.NoError(t, s.SetPayslipState(ctx, "ps-done", engine.StateDraft))

	sum, err := s.RuleTotal(ctx, "emp-1", "NET", engine.AggSum,
		date(2025, time.January, 1), date(2025, time.January, 31))
	require.NoError(t, err)
	assert.True(t, sum.IsZero())
}

func TestSequenceAndReset(t *testing.T) {
	s := New()
	ctx := context.Background()

	n, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SLIP/000001", n)

	doneSlip(t, s, "ps-1", false, 5000)
	require.NoError(t, s.SaveEmployee(ctx, payroll.Employee{ID: "emp-1", Name: "Alice", Active: true}))

	require.NoError(t, s.Reset(ctx))

	slips, err := s.Payslips(ctx, payroll.PayslipFilter{})
	require.NoError(t, err)
	assert.Empty(t, slips)

	_, err = s.Employee(ctx, "emp-1")
	assert.True(t, engine.IsNotFound(err))

	n, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SLIP/000001", n, "sequence restarts after reset")
}
