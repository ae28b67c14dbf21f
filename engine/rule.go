/*
rule.go - Salary rule definition and evaluation

PURPOSE:
  A salary rule decides whether it applies to a payslip (its condition)
  and, when it does, what quantity, rate and amount it contributes (its
  amount). Conditions come in three kinds: always true, a numeric range
  check, or an expression. Amounts come in three kinds: a fixed value
  scaled by a quantity expression, a percentage of an expression base,
  or a free-form expression.

KEY CONCEPTS:
  - Expression amounts may return a bare number, a map carrying result /
    result_qty / result_rate / result_name, or a list of such maps. The
    list form lets one rule emit several payslip lines (or none).
  - Any failure inside a rule is wrapped in a ConfigurationError naming
    the rule and the stage that broke, so a misconfigured catalog points
    at the guilty rule instead of surfacing a bare evaluation error.

USAGE:
    applies, err := rule.applies(cache, vars)
    results, err := rule.amounts(cache, vars)
*/
package engine

import (
	"fmt"

	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"github.com/shopspring/decimal"
)

// ConditionKind selects how a rule decides applicability.
type ConditionKind string

const (
	ConditionAlways     ConditionKind = "always"
	ConditionRange      ConditionKind = "range"
	ConditionExpression ConditionKind = "expression"
)

// AmountKind selects how a rule computes its contribution.
type AmountKind string

const (
	AmountFixed      AmountKind = "fixed"
	AmountPercentage AmountKind = "percentage"
	AmountExpression AmountKind = "expression"
)

// InputSpec declares an input code a structure's payslips expect to carry.
type InputSpec struct {
	Code string
	Name string
}

// SalaryRule is one entry of the rule catalog.
type SalaryRule struct {
	ID       RuleID
	Code     string
	Name     string
	Sequence int
	Category string
	Parent   RuleID
	Active   bool

	// AppearsOnPayslip controls rendering only; hidden lines still compute
	// and still feed category totals and the rules namespace.
	AppearsOnPayslip bool

	Condition         ConditionKind
	ConditionExpr     string
	ConditionRangeMin decimal.Decimal
	ConditionRangeMax decimal.Decimal

	Amount           AmountKind
	AmountFixed      decimal.Decimal
	AmountPercentage decimal.Decimal
	AmountExpr       string

	// Quantity scales fixed and percentage amounts. Empty means 1.
	Quantity string

	Inputs []InputSpec
}

// ruleResult is one line's worth of contribution from a rule.
type ruleResult struct {
	Quantity decimal.Decimal
	Rate     decimal.Decimal
	Amount   decimal.Decimal
	Name     string // optional line name override
}

func (r *SalaryRule) configErr(stage string, err error) error {
	return &ConfigurationError{RuleName: r.Name, RuleCode: r.Code, Stage: stage, Err: err}
}

// applies evaluates the rule's condition against the namespaces in vars.
func (r *SalaryRule) applies(cache *exprCache, vars map[string]any) (bool, error) {
	switch r.Condition {
	case ConditionAlways:
		return true, nil
	case ConditionRange:
		v, err := cache.evalNumber(r.ConditionExpr, vars)
		if err != nil {
			return false, r.configErr("condition", err)
		}
		return v.GreaterThanOrEqual(r.ConditionRangeMin) && v.LessThanOrEqual(r.ConditionRangeMax), nil
	case ConditionExpression:
		ok, err := cache.evalCondition(r.ConditionExpr, vars)
		if err != nil {
			return false, r.configErr("condition", err)
		}
		return ok, nil
	default:
		return false, r.configErr("condition", fmt.Errorf("unknown condition kind %q", r.Condition))
	}
}

// quantity evaluates the rule's quantity expression, defaulting to 1.
func (r *SalaryRule) quantity(cache *exprCache, vars map[string]any) (decimal.Decimal, error) {
	if r.Quantity == "" {
		return decimal.NewFromInt(1), nil
	}
	qty, err := cache.evalNumber(r.Quantity, vars)
	if err != nil {
		return decimal.Zero, r.configErr("quantity", err)
	}
	return qty, nil
}

// amounts evaluates the rule's amount and returns zero or more results.
// Fixed and percentage rules always yield exactly one; expression rules
// yield one per map when the expression returns a list.
func (r *SalaryRule) amounts(cache *exprCache, vars map[string]any) ([]ruleResult, error) {
	hundred := decimal.NewFromInt(100)

	switch r.Amount {
	case AmountFixed:
		qty, err := r.quantity(cache, vars)
		if err != nil {
			return nil, err
		}
		return []ruleResult{{Quantity: qty, Rate: hundred, Amount: r.AmountFixed}}, nil

	case AmountPercentage:
		base, err := cache.evalNumber(r.AmountExpr, vars)
		if err != nil {
			return nil, r.configErr("amount", err)
		}
		qty, err := r.quantity(cache, vars)
		if err != nil {
			return nil, err
		}
		return []ruleResult{{Quantity: qty, Rate: r.AmountPercentage, Amount: base}}, nil

	case AmountExpression:
		out, err := cache.eval(r.AmountExpr, vars)
		if err != nil {
			return nil, r.configErr("amount", err)
		}
		results, err := r.expressionResults(out)
		if err != nil {
			return nil, r.configErr("amount", err)
		}
		return results, nil

	default:
		return nil, r.configErr("amount", fmt.Errorf("unknown amount kind %q", r.Amount))
	}
}

func (r *SalaryRule) expressionResults(out ref.Val) ([]ruleResult, error) {
	one := decimal.NewFromInt(1)
	hundred := decimal.NewFromInt(100)

	if amount, ok := refToDecimal(out); ok {
		return []ruleResult{{Quantity: one, Rate: hundred, Amount: amount}}, nil
	}

	switch v := out.(type) {
	case traits.Mapper:
		res, err := r.mapResult(v, one, hundred)
		if err != nil {
			return nil, err
		}
		return []ruleResult{res}, nil
	case traits.Lister:
		var results []ruleResult
		it := v.Iterator()
		for it.HasNext() == types.True {
			elem := it.Next()
			m, ok := elem.(traits.Mapper)
			if !ok {
				return nil, fmt.Errorf("list result entries must be maps, got %s", elem.Type().TypeName())
			}
			res, err := r.mapResult(m, one, hundred)
			if err != nil {
				return nil, err
			}
			results = append(results, res)
		}
		return results, nil
	}
	return nil, fmt.Errorf("expression must return a number, a map or a list of maps, got %s", out.Type().TypeName())
}

func (r *SalaryRule) mapResult(m traits.Mapper, defaultQty, defaultRate decimal.Decimal) (ruleResult, error) {
	av, ok := mapField(m, "result")
	if !ok {
		return ruleResult{}, fmt.Errorf("map result is missing the %q key", "result")
	}
	amount, ok := refToDecimal(av)
	if !ok {
		return ruleResult{}, fmt.Errorf("%q must be a number, got %s", "result", av.Type().TypeName())
	}

	res := ruleResult{Quantity: defaultQty, Rate: defaultRate, Amount: amount}
	if qv, ok := mapField(m, "result_qty"); ok {
		if res.Quantity, ok = refToDecimal(qv); !ok {
			return ruleResult{}, fmt.Errorf("%q must be a number, got %s", "result_qty", qv.Type().TypeName())
		}
	}
	if rv, ok := mapField(m, "result_rate"); ok {
		if res.Rate, ok = refToDecimal(rv); !ok {
			return ruleResult{}, fmt.Errorf("%q must be a number, got %s", "result_rate", rv.Type().TypeName())
		}
	}
	if nv, ok := mapField(m, "result_name"); ok {
		if res.Name, ok = refToString(nv); !ok {
			return ruleResult{}, fmt.Errorf("%q must be a string, got %s", "result_name", nv.Type().TypeName())
		}
	}
	return res, nil
}
