/*
browsable.go - Expression-visible namespace values

PURPOSE:
  Rule expressions see a handful of named lookups: rules, categories,
  worked_days, inputs, payslip, contract, employee, payroll. Each one is
  a "browsable" value: selecting an unknown code yields a zero-valued
  entry instead of an error, so expressions referencing not-yet-computed
  or absent codes short-circuit to 0 rather than crash.

  Browsables are CEL values (ref.Val with the Indexer trait) so that
  field-style access works inside expressions:

    contract.wage * 0.40
    worked_days.WORK100.number_of_days
    inputs.NONEXISTENT.amount        // 0.0, not an error

  Member helpers (sum, avg, min, max, sum_hours, sum_category,
  parameter) dispatch through call(); they close over the History scope
  of the computation.

SEE ALSO:
  - expr.go: the CEL environment declaring the helper functions
  - context.go: builds the namespaces for one compute pass
*/
package engine

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"github.com/shopspring/decimal"
)

var (
	namespaceType = types.NewObjectType("payroll.namespace", traits.IndexerType)
	recordType    = types.NewObjectType("payroll.record", traits.IndexerType)
)

// =============================================================================
// NAMESPACE - Lookup-by-code with default-zero misses and member helpers
// =============================================================================

type nsMethod func(args []ref.Val) ref.Val

// namespace is a browsable CEL value. lookup resolves known codes; missing
// builds the zero entry for unknown ones.
type namespace struct {
	name    string
	lookup  func(code string) (ref.Val, bool)
	missing func() ref.Val
	methods map[string]nsMethod
}

func (n *namespace) Get(index ref.Val) ref.Val {
	code, ok := index.Value().(string)
	if !ok {
		return types.NewErr("%s: lookup key must be a string", n.name)
	}
	if v, found := n.lookup(code); found {
		return v
	}
	return n.missing()
}

// call dispatches a member helper by name.
func (n *namespace) call(fn string, args []ref.Val) ref.Val {
	m, ok := n.methods[fn]
	if !ok {
		return types.NewErr("%s has no method %q", n.name, fn)
	}
	return m(args)
}

func (n *namespace) ConvertToNative(typeDesc reflect.Type) (any, error) {
	return nil, fmt.Errorf("%s is not convertible to %v", n.name, typeDesc)
}

func (n *namespace) ConvertToType(typeVal ref.Type) ref.Val {
	if typeVal == types.TypeType {
		return namespaceType
	}
	return types.NewErr("type conversion error from '%s' to '%s'", namespaceType, typeVal)
}

func (n *namespace) Equal(other ref.Val) ref.Val { return types.Bool(n == other) }
func (n *namespace) Type() ref.Type              { return namespaceType }
func (n *namespace) Value() any                  { return n }

// =============================================================================
// RECORD - A browsable entry with fixed fields, zero on unknown field
// =============================================================================

type record struct {
	fields map[string]ref.Val
}

func (r *record) Get(index ref.Val) ref.Val {
	name, ok := index.Value().(string)
	if !ok {
		return types.NewErr("record field name must be a string")
	}
	if v, found := r.fields[name]; found {
		return v
	}
	return types.Double(0)
}

func (r *record) ConvertToNative(typeDesc reflect.Type) (any, error) {
	return nil, fmt.Errorf("record is not convertible to %v", typeDesc)
}

func (r *record) ConvertToType(typeVal ref.Type) ref.Val {
	if typeVal == types.TypeType {
		return recordType
	}
	return types.NewErr("type conversion error from '%s' to '%s'", recordType, typeVal)
}

func (r *record) Equal(other ref.Val) ref.Val { return types.Bool(r == other) }
func (r *record) Type() ref.Type              { return recordType }
func (r *record) Value() any                  { return r }

// =============================================================================
// HISTORY SCOPE - Employee-bound handle on past confirmed payslips
// =============================================================================

// historyScope binds History queries to the computation's employee, after
// the way the original keeps the employee on every browsable object.
type historyScope struct {
	ctx      context.Context
	history  History
	employee EmployeeID
}

// dateArgs parses (code, from[, to]) helper arguments. to defaults to today.
func (hs historyScope) dateArgs(args []ref.Val) (code string, from, to time.Time, err ref.Val) {
	if len(args) < 2 || len(args) > 3 {
		return "", time.Time{}, time.Time{}, types.NewErr("expected (code, from) or (code, from, to)")
	}
	code, ok := args[0].Value().(string)
	if !ok {
		return "", time.Time{}, time.Time{}, types.NewErr("code must be a string")
	}
	from, perr := parseExprDate(args[1])
	if perr != nil {
		return "", time.Time{}, time.Time{}, types.WrapErr(perr)
	}
	to = dateOf(time.Now().UTC())
	if len(args) == 3 {
		if to, perr = parseExprDate(args[2]); perr != nil {
			return "", time.Time{}, time.Time{}, types.WrapErr(perr)
		}
	}
	return code, from, to, nil
}

func parseExprDate(v ref.Val) (time.Time, error) {
	s, ok := v.Value().(string)
	if !ok {
		return time.Time{}, fmt.Errorf("date must be a %q string", "YYYY-MM-DD")
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

// =============================================================================
// NAMESPACE CONSTRUCTORS
// =============================================================================

func amountVal(d decimal.Decimal) ref.Val { return types.Double(d.InexactFloat64()) }

// newAmountsNamespace exposes a live code -> amount lookup (the rules and
// categories namespaces). Unknown codes read as 0.0.
func newAmountsNamespace(name string, get func(code string) (decimal.Decimal, bool)) *namespace {
	return &namespace{
		name: name,
		lookup: func(code string) (ref.Val, bool) {
			if v, ok := get(code); ok {
				return amountVal(v), true
			}
			return nil, false
		},
		missing: func() ref.Val { return types.Double(0) },
	}
}

func workedDaysRecord(wd WorkedDays) *record {
	days := amountVal(wd.Days)
	hours := amountVal(wd.Hours)
	return &record{fields: map[string]ref.Val{
		"days":            days,
		"hours":           hours,
		"number_of_days":  days,
		"number_of_hours": hours,
	}}
}

// newWorkedDaysNamespace exposes worked-day facts by code plus historical
// sum helpers. Lines for distinct contracts sharing a code are summed.
func newWorkedDaysNamespace(lines []WorkedDays, hs historyScope) *namespace {
	byCode := make(map[string]WorkedDays)
	for _, wd := range lines {
		merged := byCode[wd.Code]
		merged.Code = wd.Code
		merged.Days = merged.Days.Add(wd.Days)
		merged.Hours = merged.Hours.Add(wd.Hours)
		byCode[wd.Code] = merged
	}
	ns := &namespace{
		name: "worked_days",
		lookup: func(code string) (ref.Val, bool) {
			if wd, ok := byCode[code]; ok {
				return workedDaysRecord(wd), true
			}
			return nil, false
		},
		missing: func() ref.Val { return workedDaysRecord(WorkedDays{}) },
	}
	ns.methods = map[string]nsMethod{
		"sum": func(args []ref.Val) ref.Val {
			code, from, to, errVal := hs.dateArgs(args)
			if errVal != nil {
				return errVal
			}
			days, _, err := hs.history.WorkedDaysSum(hs.ctx, hs.employee, code, from, to)
			if err != nil {
				return types.WrapErr(err)
			}
			return amountVal(days)
		},
		"sum_hours": func(args []ref.Val) ref.Val {
			code, from, to, errVal := hs.dateArgs(args)
			if errVal != nil {
				return errVal
			}
			_, hours, err := hs.history.WorkedDaysSum(hs.ctx, hs.employee, code, from, to)
			if err != nil {
				return types.WrapErr(err)
			}
			return amountVal(hours)
		},
	}
	return ns
}

// newInputsNamespace exposes input amounts by code plus a historical sum.
func newInputsNamespace(lines []Input, hs historyScope) *namespace {
	byCode := make(map[string]decimal.Decimal)
	for _, in := range lines {
		byCode[in.Code] = byCode[in.Code].Add(in.Amount)
	}
	ns := &namespace{
		name: "inputs",
		lookup: func(code string) (ref.Val, bool) {
			if v, ok := byCode[code]; ok {
				return &record{fields: map[string]ref.Val{"amount": amountVal(v)}}, true
			}
			return nil, false
		},
		missing: func() ref.Val {
			return &record{fields: map[string]ref.Val{"amount": types.Double(0)}}
		},
	}
	ns.methods = map[string]nsMethod{
		"sum": func(args []ref.Val) ref.Val {
			code, from, to, errVal := hs.dateArgs(args)
			if errVal != nil {
				return errVal
			}
			v, err := hs.history.InputSum(hs.ctx, hs.employee, code, from, to)
			if err != nil {
				return types.WrapErr(err)
			}
			return amountVal(v)
		},
	}
	return ns
}

// newPayslipNamespace exposes the payslip's own fields plus historical
// aggregates over past confirmed payslips (sum/avg/min/max by rule code,
// sum_category by category subtree).
func newPayslipNamespace(slip *Payslip, hs historyScope, tree *CategoryTree) *namespace {
	fields := map[string]ref.Val{
		"number":      types.String(slip.Number),
		"name":        types.String(slip.Name),
		"state":       types.String(string(slip.State)),
		"date_from":   types.String(slip.Period.Start.Format("2006-01-02")),
		"date_to":     types.String(slip.Period.End.Format("2006-01-02")),
		"credit_note": types.Bool(slip.CreditNote),
	}
	ruleAgg := func(agg Aggregate) nsMethod {
		return func(args []ref.Val) ref.Val {
			code, from, to, errVal := hs.dateArgs(args)
			if errVal != nil {
				return errVal
			}
			v, err := hs.history.RuleTotal(hs.ctx, hs.employee, code, agg, from, to)
			if err != nil {
				return types.WrapErr(err)
			}
			return amountVal(v)
		}
	}
	ns := &namespace{
		name: "payslip",
		lookup: func(code string) (ref.Val, bool) {
			v, ok := fields[code]
			return v, ok
		},
		missing: func() ref.Val { return types.Double(0) },
	}
	ns.methods = map[string]nsMethod{
		"sum": ruleAgg(AggSum),
		"avg": ruleAgg(AggAvg),
		"min": ruleAgg(AggMin),
		"max": ruleAgg(AggMax),
		"sum_category": func(args []ref.Val) ref.Val {
			code, from, to, errVal := hs.dateArgs(args)
			if errVal != nil {
				return errVal
			}
			v, err := hs.history.CategoryTotal(hs.ctx, hs.employee, tree.Subtree(code), AggSum, from, to)
			if err != nil {
				return types.WrapErr(err)
			}
			return amountVal(v)
		},
	}
	return ns
}

// newContractNamespace exposes the current contract's attributes and its
// advantages as a nested browsable.
func newContractNamespace(c Contract) *namespace {
	advantages := newAmountsNamespace("contract.advantages", func(code string) (decimal.Decimal, bool) {
		v, ok := c.Advantages[code]
		return v, ok
	})
	fields := map[string]ref.Val{
		"id":           types.String(string(c.ID)),
		"name":         types.String(c.Name),
		"wage":         amountVal(c.Wage),
		"schedule_pay": types.String(c.SchedulePay),
		"date_start":   types.String(c.DateStart.Format("2006-01-02")),
		"advantages":   advantages,
	}
	if !c.DateEnd.IsZero() {
		fields["date_end"] = types.String(c.DateEnd.Format("2006-01-02"))
	}
	return &namespace{
		name: "contract",
		lookup: func(code string) (ref.Val, bool) {
			v, ok := fields[code]
			return v, ok
		},
		missing: func() ref.Val { return types.Double(0) },
	}
}

// newEmployeeNamespace exposes the bare employee reference.
func newEmployeeNamespace(id EmployeeID, name string) *namespace {
	fields := map[string]ref.Val{
		"id":   types.String(string(id)),
		"name": types.String(name),
	}
	return &namespace{
		name: "employee",
		lookup: func(code string) (ref.Val, bool) {
			v, ok := fields[code]
			return v, ok
		},
		missing: func() ref.Val { return types.Double(0) },
	}
}

// newPayrollNamespace exposes add-on-contributed extras plus time-versioned
// rule parameters. Parameters default to the payslip start date; a missing
// parameter is an error (a misconfigured rule, not a zero).
func newPayrollNamespace(extras map[string]decimal.Decimal, params ParameterSource, defaultDate time.Time) *namespace {
	ns := &namespace{
		name: "payroll",
		lookup: func(code string) (ref.Val, bool) {
			if v, ok := extras[code]; ok {
				return amountVal(v), true
			}
			return nil, false
		},
		missing: func() ref.Val { return types.Double(0) },
	}
	ns.methods = map[string]nsMethod{
		"parameter": func(args []ref.Val) ref.Val {
			if len(args) < 1 || len(args) > 2 {
				return types.NewErr("expected parameter(code) or parameter(code, date)")
			}
			code, ok := args[0].Value().(string)
			if !ok {
				return types.NewErr("parameter code must be a string")
			}
			at := defaultDate
			if len(args) == 2 {
				var err error
				if at, err = parseExprDate(args[1]); err != nil {
					return types.WrapErr(err)
				}
			}
			if params == nil {
				return types.WrapErr(fmt.Errorf("%w: %q", ErrUnknownParameter, code))
			}
			v, err := params.Parameter(code, at)
			if err != nil {
				return types.WrapErr(err)
			}
			return amountVal(v)
		},
	}
	return ns
}

// ParameterSource resolves time-versioned rule parameters: the value whose
// version starts latest at or before the given date.
type ParameterSource interface {
	Parameter(code string, at time.Time) (decimal.Decimal, error)
}
