/*
expr.go - Sandboxed rule expression evaluation

PURPOSE:
  Compiles and evaluates salary rule expressions with CEL. Expressions
  are pure: they can read the browsable namespaces and call the helper
  functions declared here, and nothing else. The environment is built
  once per engine; compiled programs are cached by source text, so the
  per-payslip cost of an expression rule is a single Eval.

KEY CONCEPTS:
  - All namespace variables are dynamically typed. Helpers are member
    overloads on dyn that dispatch through the namespace's call method,
    so "worked_days.sum(...)" and "payslip.sum(...)" share one declaration.
  - Numbers cross the CEL boundary as doubles and come back as decimals.

SEE ALSO:
  - browsable.go: the values behind the namespace variables
  - rule.go: the condition/amount contracts layered on top of eval
*/
package engine

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"github.com/shopspring/decimal"
)

// celCallable is what a helper receiver must implement. Both namespace
// values and future receiver types satisfy it.
type celCallable interface {
	call(fn string, args []ref.Val) ref.Val
}

// nsCall binds a helper name to the receiver's dispatch method.
func nsCall(fn string) func(args ...ref.Val) ref.Val {
	return func(args ...ref.Val) ref.Val {
		target, ok := args[0].(celCallable)
		if !ok {
			return types.NewErr("%s: receiver %s has no methods", fn, args[0].Type().TypeName())
		}
		return target.call(fn, args[1:])
	}
}

// helperFns declares one member helper with both the (code, from) and the
// (code, from, to) arities.
func helperFn(name string) cel.EnvOption {
	return cel.Function(name,
		cel.MemberOverload(name+"_code_from",
			[]*cel.Type{cel.DynType, cel.StringType, cel.StringType}, cel.DoubleType,
			cel.FunctionBinding(nsCall(name))),
		cel.MemberOverload(name+"_code_from_to",
			[]*cel.Type{cel.DynType, cel.StringType, cel.StringType, cel.StringType}, cel.DoubleType,
			cel.FunctionBinding(nsCall(name))),
	)
}

func newExprEnv() (*cel.Env, error) {
	opts := []cel.EnvOption{
		cel.Variable("payslip", cel.DynType),
		cel.Variable("employee", cel.DynType),
		cel.Variable("contract", cel.DynType),
		cel.Variable("rules", cel.DynType),
		cel.Variable("categories", cel.DynType),
		cel.Variable("worked_days", cel.DynType),
		cel.Variable("inputs", cel.DynType),
		cel.Variable("payroll", cel.DynType),
		helperFn("sum"),
		helperFn("avg"),
		helperFn("min"),
		helperFn("max"),
		helperFn("sum_hours"),
		helperFn("sum_category"),
		cel.Function("parameter",
			cel.MemberOverload("parameter_code",
				[]*cel.Type{cel.DynType, cel.StringType}, cel.DoubleType,
				cel.FunctionBinding(nsCall("parameter"))),
			cel.MemberOverload("parameter_code_date",
				[]*cel.Type{cel.DynType, cel.StringType, cel.StringType}, cel.DoubleType,
				cel.FunctionBinding(nsCall("parameter"))),
		),
	}
	return cel.NewEnv(opts...)
}

// =============================================================================
// PROGRAM CACHE
// =============================================================================

type exprCache struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

func newExprCache() (*exprCache, error) {
	env, err := newExprEnv()
	if err != nil {
		return nil, fmt.Errorf("building expression environment: %w", err)
	}
	return &exprCache{env: env, programs: make(map[string]cel.Program)}, nil
}

func (c *exprCache) program(src string) (cel.Program, error) {
	c.mu.RLock()
	prg, ok := c.programs[src]
	c.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, iss := c.env.Compile(src)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compiling expression: %w", iss.Err())
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("building expression program: %w", err)
	}

	c.mu.Lock()
	c.programs[src] = prg
	c.mu.Unlock()
	return prg, nil
}

// =============================================================================
// EVALUATION HELPERS
// =============================================================================

func (c *exprCache) eval(src string, vars map[string]any) (ref.Val, error) {
	prg, err := c.program(src)
	if err != nil {
		return nil, err
	}
	out, _, err := prg.Eval(vars)
	if err != nil {
		return nil, fmt.Errorf("evaluating expression: %w", err)
	}
	return out, nil
}

// evalNumber evaluates an expression expected to yield a numeric result.
func (c *exprCache) evalNumber(src string, vars map[string]any) (decimal.Decimal, error) {
	out, err := c.eval(src, vars)
	if err != nil {
		return decimal.Zero, err
	}
	v, ok := refToDecimal(out)
	if !ok {
		return decimal.Zero, fmt.Errorf("expression must return a number, got %s", out.Type().TypeName())
	}
	return v, nil
}

// evalCondition evaluates a condition expression. Booleans are taken as-is;
// numbers are truthy when non-zero.
func (c *exprCache) evalCondition(src string, vars map[string]any) (bool, error) {
	out, err := c.eval(src, vars)
	if err != nil {
		return false, err
	}
	if b, ok := out.(types.Bool); ok {
		return bool(b), nil
	}
	if v, ok := refToDecimal(out); ok {
		return !v.IsZero(), nil
	}
	return false, fmt.Errorf("condition must return a boolean or a number, got %s", out.Type().TypeName())
}

func refToDecimal(v ref.Val) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case types.Double:
		return decimal.NewFromFloat(float64(x)), true
	case types.Int:
		return decimal.NewFromInt(int64(x)), true
	case types.Uint:
		return decimal.NewFromInt(int64(x)), true
	}
	return decimal.Decimal{}, false
}

func refToString(v ref.Val) (string, bool) {
	s, ok := v.(types.String)
	return string(s), ok
}

// mapField reads one field from a CEL map result.
func mapField(m traits.Mapper, key string) (ref.Val, bool) {
	return m.Find(types.String(key))
}
