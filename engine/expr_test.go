package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EXPRESSION EVALUATION TESTS (internal: exercise the cache directly)
// =============================================================================

func exprVars() map[string]any {
	totals := map[string]decimal.Decimal{"BASIC": decimal.NewFromInt(1000)}
	hs := historyScope{ctx: context.Background(), history: ZeroHistory{}, employee: "emp-1"}
	return map[string]any{
		"rules": newAmountsNamespace("rules", func(code string) (decimal.Decimal, bool) {
			v, ok := totals[code]
			return v, ok
		}),
		"categories": newAmountsNamespace("categories", func(string) (decimal.Decimal, bool) {
			return decimal.Zero, true
		}),
		"worked_days": newWorkedDaysNamespace([]WorkedDays{
			{Code: "WORK100", Days: decimal.NewFromInt(20), Hours: decimal.NewFromInt(160)},
		}, hs),
		"inputs":   newInputsNamespace(nil, hs),
		"payslip":  newPayslipNamespace(&Payslip{Period: MonthOf(time.Now())}, hs, mustTree()),
		"employee": newEmployeeNamespace("emp-1", "Alice"),
		"contract": newContractNamespace(Contract{
			ID: "c1", Wage: decimal.NewFromInt(5000), SchedulePay: "monthly",
			DateStart: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		}),
		"payroll": newPayrollNamespace(nil, nil, time.Now()),
	}
}

func mustTree() *CategoryTree {
	tree, err := NewCategoryTree([]Category{{Code: "NET"}})
	if err != nil {
		panic(err)
	}
	return tree
}

func newTestCache(t *testing.T) *exprCache {
	t.Helper()
	cache, err := newExprCache()
	if err != nil {
		t.Fatalf("newExprCache: %v", err)
	}
	return cache
}

func TestEvalNumber_NamespaceLookups(t *testing.T) {
	cache := newTestCache(t)
	vars := exprVars()

	cases := []struct {
		expr string
		want float64
	}{
		{"contract.wage * 0.40", 2000},
		{"rules.BASIC", 1000},
		{"rules.NEVER_COMPUTED", 0},
		{"worked_days.WORK100.number_of_days", 20},
		{"worked_days.MISSING.number_of_days", 0},
		{"inputs.MISSING.amount", 0},
	}
	for _, tc := range cases {
		got, err := cache.evalNumber(tc.expr, vars)
		if err != nil {
			t.Errorf("%s: %v", tc.expr, err)
			continue
		}
		if !got.Equal(decimal.NewFromFloat(tc.want)) {
			t.Errorf("%s = %s, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestEvalCondition_Truthiness(t *testing.T) {
	cache := newTestCache(t)
	vars := exprVars()

	cases := []struct {
		expr string
		want bool
	}{
		{"true", true},
		{"false", false},
		{"contract.wage > 1000.0", true},
		{"rules.BASIC", true},          // non-zero number is truthy
		{"rules.NEVER_COMPUTED", false}, // zero is falsy
	}
	for _, tc := range cases {
		got, err := cache.evalCondition(tc.expr, vars)
		if err != nil {
			t.Errorf("%s: %v", tc.expr, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestEvalCondition_RejectsString(t *testing.T) {
	cache := newTestCache(t)
	if _, err := cache.evalCondition(`"yes"`, exprVars()); err == nil {
		t.Fatal("string condition should error")
	}
}

func TestEval_CompileErrorSurfaces(t *testing.T) {
	cache := newTestCache(t)
	if _, err := cache.eval("contract.wage +", exprVars()); err == nil {
		t.Fatal("broken expression should fail to compile")
	}
}

func TestEval_MissingParameterIsError(t *testing.T) {
	// payroll.parameter on an engine without a parameter source must error,
	// not silently read zero: a misconfigured rule should be loud.
	cache := newTestCache(t)
	if _, err := cache.evalNumber(`payroll.parameter("prof_tax")`, exprVars()); err == nil {
		t.Fatal("missing parameter source should error")
	}
}

func TestEval_ProgramsAreCached(t *testing.T) {
	cache := newTestCache(t)
	vars := exprVars()

	if _, err := cache.evalNumber("contract.wage", vars); err != nil {
		t.Fatalf("first eval: %v", err)
	}
	cache.mu.RLock()
	_, ok := cache.programs["contract.wage"]
	cache.mu.RUnlock()
	if !ok {
		t.Fatal("program was not cached after evaluation")
	}
}
