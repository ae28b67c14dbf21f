/*
context.go - Per-computation evaluation state

PURPOSE:
  Holds the mutable state threaded through one payslip computation: the
  running rule totals visible to later rules, the category totals rolled
  up the category tree, and the namespace variables handed to every
  expression evaluation.

KEY CONCEPTS:
  - Duplicate codes: when a later rule re-emits a code, its line replaces
    the earlier one, and only the difference against the earlier
    contribution (tracked per code and category) reaches the category
    totals. Totals never double-count a code.
  - The base variable set is shared across contracts; only the contract
    namespace is swapped per contract.
*/
package engine

import (
	"context"

	"github.com/shopspring/decimal"
)

type evalContext struct {
	cache      *exprCache
	tree       *CategoryTree
	categories *CategoryTotals

	// ruleTotals is the rules namespace backing: code -> latest total.
	ruleTotals map[string]decimal.Decimal
	// prev tracks each code's last contribution per category, so an
	// overwrite adjusts its category by the delta only.
	prev map[string]decimal.Decimal

	base map[string]any
}

func newEvalContext(ctx context.Context, e *Engine, slip *Payslip, employeeName string) *evalContext {
	ec := &evalContext{
		cache:      e.cache,
		tree:       e.rules.Categories(),
		categories: NewCategoryTotals(e.rules.Categories()),
		ruleTotals: make(map[string]decimal.Decimal),
		prev:       make(map[string]decimal.Decimal),
	}

	hs := historyScope{ctx: ctx, history: e.history, employee: slip.EmployeeID}
	ec.base = map[string]any{
		"rules": newAmountsNamespace("rules", func(code string) (decimal.Decimal, bool) {
			v, ok := ec.ruleTotals[code]
			return v, ok
		}),
		"categories": newAmountsNamespace("categories", func(code string) (decimal.Decimal, bool) {
			return ec.categories.Total(code), true
		}),
		"worked_days": newWorkedDaysNamespace(slip.WorkedDays, hs),
		"inputs":      newInputsNamespace(slip.Inputs, hs),
		"payslip":     newPayslipNamespace(slip, hs, ec.tree),
		"employee":    newEmployeeNamespace(slip.EmployeeID, employeeName),
		"payroll":     newPayrollNamespace(e.extras, e.params, slip.Period.Start),
	}
	return ec
}

// varsFor returns the variable set for evaluating rules under one contract.
// Each contract starts a fresh overwrite-tracking scope: the delta
// adjustment applies within one contract's pass only, so two contracts
// contributing under the same code both count toward the category.
func (ec *evalContext) varsFor(c Contract) map[string]any {
	ec.prev = make(map[string]decimal.Decimal)
	vars := make(map[string]any, len(ec.base)+1)
	for k, v := range ec.base {
		vars[k] = v
	}
	vars["contract"] = newContractNamespace(c)
	return vars
}

// register records a rule's total for its code and category. Only the
// delta against the code's previous contribution under the same category
// reaches the category totals.
func (ec *evalContext) register(code, category string, total decimal.Decimal) {
	key := code + "\x00" + category
	delta := total.Sub(ec.prev[key])
	ec.prev[key] = total
	ec.ruleTotals[code] = total
	ec.categories.Add(category, delta)
}
