/*
compute.go - Payslip computation pipeline

PURPOSE:
  Drives one payslip through the full evaluation: resolve the contracts
  in scope, collect the applicable structures and their inherited rules
  in sequence order, evaluate each rule per contract, and assemble the
  resulting lines and category totals.

KEY CONCEPTS:
  - Contract scope: a payslip pinned to a contract computes for that
    contract alone; otherwise every contract of the employee active in
    the period participates. No active contract means an empty result,
    not an error.
  - Blacklisting: a rule whose condition does not hold is skipped along
    with every rule below it in the rule hierarchy, for the remainder
    of that contract's pass.
  - Line identity: lines are keyed by code and contract. A later rule
    emitting an existing key replaces that line in place, keeping the
    original position.
  - Recomputing a slip from unchanged facts yields identical lines.

USAGE:
    eng, err := engine.New(ruleSet,
        engine.WithContracts(contracts),
        engine.WithHistory(hist),
        engine.WithSequence(seq))
    res, err := eng.Compute(ctx, slip)
*/
package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// ContractSource resolves the contracts a payslip computes against.
type ContractSource interface {
	// ContractsFor returns the employee's contracts active at any point
	// of the period.
	ContractsFor(ctx context.Context, employee EmployeeID, p Period) ([]Contract, error)
	// Contract returns one contract by ID.
	Contract(ctx context.Context, id ContractID) (Contract, error)
}

// Engine evaluates payslips against a rule catalog.
type Engine struct {
	rules     *RuleSet
	contracts ContractSource
	history   History
	sequence  Sequence
	params    ParameterSource
	extras    map[string]decimal.Decimal
	names     func(EmployeeID) string
	cache     *exprCache
}

// Option configures an Engine.
type Option func(*Engine)

// WithContracts sets the contract source. Without one, only payslips
// pinned to an explicit contract list can compute.
func WithContracts(src ContractSource) Option { return func(e *Engine) { e.contracts = src } }

// WithHistory backs the historical aggregate helpers. Defaults to
// ZeroHistory.
func WithHistory(h History) Option { return func(e *Engine) { e.history = h } }

// WithSequence sets the reference number generator. Without one, slips
// keep an empty number.
func WithSequence(s Sequence) Option { return func(e *Engine) { e.sequence = s } }

// WithParameters backs the payroll.parameter helper.
func WithParameters(p ParameterSource) Option { return func(e *Engine) { e.params = p } }

// WithExtras adds add-on-contributed values to the payroll namespace.
func WithExtras(extras map[string]decimal.Decimal) Option {
	return func(e *Engine) { e.extras = extras }
}

// WithEmployeeNames resolves employee display names for expressions.
func WithEmployeeNames(fn func(EmployeeID) string) Option {
	return func(e *Engine) { e.names = fn }
}

// New builds an Engine over a validated rule catalog.
func New(rules *RuleSet, opts ...Option) (*Engine, error) {
	cache, err := newExprCache()
	if err != nil {
		return nil, err
	}
	e := &Engine{
		rules:   rules,
		history: ZeroHistory{},
		cache:   cache,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Rules returns the engine's rule catalog.
func (e *Engine) Rules() *RuleSet { return e.rules }

// Compute evaluates the payslip and returns its lines and category
// totals. The payslip itself is not mutated; callers decide what to
// persist.
func (e *Engine) Compute(ctx context.Context, slip *Payslip) (*Result, error) {
	if err := slip.Period.Validate(); err != nil {
		return nil, err
	}

	contracts, err := e.resolveContracts(ctx, slip)
	if err != nil {
		return nil, err
	}

	number := slip.Number
	if number == "" && e.sequence != nil {
		if number, err = e.sequence.Next(ctx); err != nil {
			return nil, fmt.Errorf("assigning payslip number: %w", err)
		}
	}

	if len(contracts) == 0 {
		return &Result{Number: number, Categories: map[string]decimal.Decimal{}}, nil
	}

	structures := e.rules.StructuresFor(contracts, slip.StructureID)
	ordered := e.rules.ResolveRules(structures)

	employeeName := ""
	if e.names != nil {
		employeeName = e.names(slip.EmployeeID)
	}
	ec := newEvalContext(ctx, e, slip, employeeName)

	table := newLineTable()
	for _, contract := range contracts {
		vars := ec.varsFor(contract)
		blacklist := make(map[RuleID]bool)

		for _, rule := range ordered {
			if blacklist[rule.ID] {
				continue
			}

			applies, err := rule.applies(e.cache, vars)
			if err != nil {
				return nil, err
			}
			if !applies {
				blacklist[rule.ID] = true
				for _, child := range e.rules.Descendants(rule.ID) {
					blacklist[child] = true
				}
				continue
			}

			results, err := rule.amounts(e.cache, vars)
			if err != nil {
				return nil, err
			}

			total := decimal.Zero
			for i, res := range results {
				line := e.lineFor(rule, contract, slip.EmployeeID, res)
				total = total.Add(line.Total)
				table.put(lineKey(rule.Code, i, contract.ID), line)
			}
			table.trim(rule.Code, contract.ID, len(results))
			ec.register(rule.Code, rule.Category, total)
		}
	}

	return &Result{
		Number:     number,
		Lines:      table.lines(),
		Categories: ec.categories.Snapshot(),
	}, nil
}

func (e *Engine) resolveContracts(ctx context.Context, slip *Payslip) ([]Contract, error) {
	if slip.ContractID != "" {
		if e.contracts == nil {
			return nil, fmt.Errorf("no contract source configured")
		}
		c, err := e.contracts.Contract(ctx, slip.ContractID)
		if err != nil {
			return nil, err
		}
		return []Contract{c}, nil
	}
	if e.contracts == nil {
		return nil, nil
	}
	return e.contracts.ContractsFor(ctx, slip.EmployeeID, slip.Period)
}

func (e *Engine) lineFor(rule *SalaryRule, c Contract, employee EmployeeID, res ruleResult) PayslipLine {
	name := rule.Name
	if res.Name != "" {
		name = res.Name
	}
	parentCode := ""
	if rule.Parent != "" {
		if parent, ok := e.rules.Rule(rule.Parent); ok {
			parentCode = parent.Code
		}
	}
	return PayslipLine{
		RuleID:           rule.ID,
		Code:             rule.Code,
		Name:             name,
		Category:         rule.Category,
		Sequence:         rule.Sequence,
		EmployeeID:       employee,
		ContractID:       c.ID,
		ParentCode:       parentCode,
		AppearsOnPayslip: rule.AppearsOnPayslip,
		Quantity:         res.Quantity,
		Rate:             res.Rate,
		Amount:           res.Amount,
		Total:            LineTotal(res.Quantity, res.Amount, res.Rate),
	}
}

// =============================================================================
// LINE TABLE - Insertion-ordered lines keyed by code and contract
// =============================================================================

func lineKey(code string, index int, contract ContractID) string {
	if index == 0 {
		return code + "-" + string(contract)
	}
	return code + "#" + strconv.Itoa(index) + "-" + string(contract)
}

type lineTable struct {
	keys  []string
	byKey map[string]PayslipLine
}

func newLineTable() *lineTable {
	return &lineTable{byKey: make(map[string]PayslipLine)}
}

// put inserts or replaces. Replacement keeps the key's original position.
func (t *lineTable) put(key string, line PayslipLine) {
	if _, ok := t.byKey[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.byKey[key] = line
}

// trim drops indexed lines at or beyond "from" for a code and contract,
// so an overwrite emitting fewer results than the rule it replaces does
// not leave the surplus lines behind.
func (t *lineTable) trim(code string, contract ContractID, from int) {
	for i := from; ; i++ {
		key := lineKey(code, i, contract)
		if _, ok := t.byKey[key]; !ok {
			return
		}
		delete(t.byKey, key)
		for j, k := range t.keys {
			if k == key {
				t.keys = append(t.keys[:j], t.keys[j+1:]...)
				break
			}
		}
	}
}

func (t *lineTable) lines() []PayslipLine {
	out := make([]PayslipLine, 0, len(t.keys))
	for _, k := range t.keys {
		out = append(out, t.byKey[k])
	}
	return out
}
