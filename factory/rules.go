/*
Package factory provides JSON to Go rule catalog conversion.

PURPOSE:
  Converts JSON catalog definitions into an engine.RuleSet (categories,
  salary rules, structures) plus rule parameters. This enables payroll
  configuration without code changes - HR can define rules in JSON, and
  the factory creates the proper Go structs.

WHY JSON?
  - Non-developers can modify salary rules
  - Easy integration with admin UI
  - Version control for rule definitions
  - Database storage of rule catalogs

JSON SCHEMA:
  {
    "categories": [
      {"code": "ALW", "name": "Allowance", "parent": "GROSS"}
    ],
    "structures": [
      {"id": "BASE", "name": "Base Structure", "rules": ["rule-basic"]}
    ],
    "rules": [
      {
        "id": "rule-hra",
        "code": "HRA",
        "name": "House Rent Allowance",
        "sequence": 5,
        "category": "ALW",
        "condition": {"kind": "always"},
        "amount": {
          "kind": "percentage",
          "percentage": 40,
          "expression": "contract.wage"
        }
      }
    ],
    "parameters": [
      {"code": "basic_rate", "versions": [{"date_from": "2025-01-01", "value": 1000}]}
    ]
  }

KEY FEATURES:
  - Validates the catalog through engine.NewRuleSet (unknown references,
    recursive hierarchies)
  - Sets sensible defaults: rules are active, visible, always-applying
    unless stated otherwise
  - Parses rule parameters alongside the catalog

USAGE:
  f := factory.NewRuleFactory()

  // From JSON string
  catalog, err := f.ParseCatalog(jsonStr)

  // From a file
  catalog, err := f.LoadCatalog("./config/rules.json")

  eng, err := engine.New(catalog.Rules, ...)

SEE ALSO:
  - engine/structure.go: RuleSet validation
  - payroll/parameters.go: Parameter resolution
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// CatalogJSON is the JSON representation of a full rule catalog.
type CatalogJSON struct {
	Categories []CategoryJSON  `json:"categories"`
	Structures []StructureJSON `json:"structures"`
	Rules      []RuleJSON      `json:"rules"`
	Parameters []ParameterJSON `json:"parameters,omitempty"`
}

// CategoryJSON is one rule category node.
type CategoryJSON struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Parent string `json:"parent,omitempty"`
}

// StructureJSON is one salary structure.
type StructureJSON struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Parent string   `json:"parent,omitempty"`
	Rules  []string `json:"rules"`
}

// RuleJSON is one salary rule.
type RuleJSON struct {
	ID               string          `json:"id"`
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	Sequence         int             `json:"sequence"`
	Category         string          `json:"category"`
	Parent           string          `json:"parent,omitempty"`
	Active           *bool           `json:"active,omitempty"`             // default true
	AppearsOnPayslip *bool           `json:"appears_on_payslip,omitempty"` // default true
	Condition        *ConditionJSON  `json:"condition,omitempty"`          // default always
	Amount           AmountJSON      `json:"amount"`
	Quantity         string          `json:"quantity,omitempty"`
	Inputs           []InputSpecJSON `json:"inputs,omitempty"`
}

// ConditionJSON configures rule applicability.
type ConditionJSON struct {
	Kind       string   `json:"kind"` // always, range, expression
	Expression string   `json:"expression,omitempty"`
	RangeMin   *float64 `json:"range_min,omitempty"`
	RangeMax   *float64 `json:"range_max,omitempty"`
}

// AmountJSON configures the rule contribution.
type AmountJSON struct {
	Kind       string  `json:"kind"` // fixed, percentage, expression
	Fixed      float64 `json:"fixed,omitempty"`
	Percentage float64 `json:"percentage,omitempty"`
	Expression string  `json:"expression,omitempty"`
}

// InputSpecJSON declares an expected payslip input.
type InputSpecJSON struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// ParameterJSON is one time-versioned rule parameter.
type ParameterJSON struct {
	Code     string                 `json:"code"`
	Name     string                 `json:"name,omitempty"`
	Versions []ParameterVersionJSON `json:"versions"`
}

// ParameterVersionJSON is one dated parameter value.
type ParameterVersionJSON struct {
	DateFrom string  `json:"date_from"` // YYYY-MM-DD
	Value    float64 `json:"value"`
}

// =============================================================================
// RULE FACTORY
// =============================================================================

// Catalog is the parsed result: a validated rule set plus parameters.
type Catalog struct {
	Rules      *engine.RuleSet
	Parameters []*payroll.RuleParameter
}

// RuleFactory converts JSON catalogs to Go structs.
type RuleFactory struct{}

// NewRuleFactory creates a new rule factory.
func NewRuleFactory() *RuleFactory {
	return &RuleFactory{}
}

// LoadCatalog reads and parses a catalog file.
func (f *RuleFactory) LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return f.ParseCatalog(string(raw))
}

// ParseCatalog parses a JSON string into a validated Catalog.
func (f *RuleFactory) ParseCatalog(jsonStr string) (*Catalog, error) {
	var cj CatalogJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
	}
	return f.FromJSON(cj)
}

// FromJSON converts CatalogJSON into a validated Catalog.
func (f *RuleFactory) FromJSON(cj CatalogJSON) (*Catalog, error) {
	categories := make([]engine.Category, 0, len(cj.Categories))
	for _, c := range cj.Categories {
		categories = append(categories, engine.Category{
			Code:   c.Code,
			Name:   c.Name,
			Parent: c.Parent,
		})
	}

	rules := make([]*engine.SalaryRule, 0, len(cj.Rules))
	for _, rj := range cj.Rules {
		rule, err := parseRule(rj)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	structures := make([]*engine.Structure, 0, len(cj.Structures))
	for _, sj := range cj.Structures {
		st := &engine.Structure{
			ID:     engine.StructureID(sj.ID),
			Name:   sj.Name,
			Parent: engine.StructureID(sj.Parent),
		}
		for _, rid := range sj.Rules {
			st.Rules = append(st.Rules, engine.RuleID(rid))
		}
		structures = append(structures, st)
	}

	ruleSet, err := engine.NewRuleSet(categories, rules, structures)
	if err != nil {
		return nil, err
	}

	params := make([]*payroll.RuleParameter, 0, len(cj.Parameters))
	for _, pj := range cj.Parameters {
		param, err := parseParameter(pj)
		if err != nil {
			return nil, err
		}
		params = append(params, param)
	}

	return &Catalog{Rules: ruleSet, Parameters: params}, nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseRule(rj RuleJSON) (*engine.SalaryRule, error) {
	rule := &engine.SalaryRule{
		ID:               engine.RuleID(rj.ID),
		Code:             rj.Code,
		Name:             rj.Name,
		Sequence:         rj.Sequence,
		Category:         rj.Category,
		Parent:           engine.RuleID(rj.Parent),
		Active:           true,
		AppearsOnPayslip: true,
		Quantity:         rj.Quantity,
	}
	if rj.Active != nil {
		rule.Active = *rj.Active
	}
	if rj.AppearsOnPayslip != nil {
		rule.AppearsOnPayslip = *rj.AppearsOnPayslip
	}

	if err := parseCondition(rj.Condition, rule); err != nil {
		return nil, fmt.Errorf("rule %s: %w", rj.ID, err)
	}
	if err := parseAmount(rj.Amount, rule); err != nil {
		return nil, fmt.Errorf("rule %s: %w", rj.ID, err)
	}

	for _, ij := range rj.Inputs {
		rule.Inputs = append(rule.Inputs, engine.InputSpec{Code: ij.Code, Name: ij.Name})
	}
	return rule, nil
}

func parseCondition(cj *ConditionJSON, rule *engine.SalaryRule) error {
	if cj == nil {
		rule.Condition = engine.ConditionAlways
		return nil
	}
	switch cj.Kind {
	case "", "always":
		rule.Condition = engine.ConditionAlways
	case "range":
		if cj.Expression == "" || cj.RangeMin == nil || cj.RangeMax == nil {
			return fmt.Errorf("range condition requires expression, range_min and range_max")
		}
		rule.Condition = engine.ConditionRange
		rule.ConditionExpr = cj.Expression
		rule.ConditionRangeMin = decimal.NewFromFloat(*cj.RangeMin)
		rule.ConditionRangeMax = decimal.NewFromFloat(*cj.RangeMax)
	case "expression":
		if cj.Expression == "" {
			return fmt.Errorf("expression condition requires an expression")
		}
		rule.Condition = engine.ConditionExpression
		rule.ConditionExpr = cj.Expression
	default:
		return fmt.Errorf("unknown condition kind %q", cj.Kind)
	}
	return nil
}

func parseAmount(aj AmountJSON, rule *engine.SalaryRule) error {
	switch aj.Kind {
	case "fixed":
		rule.Amount = engine.AmountFixed
		rule.AmountFixed = decimal.NewFromFloat(aj.Fixed)
	case "percentage":
		if aj.Expression == "" {
			return fmt.Errorf("percentage amount requires a base expression")
		}
		rule.Amount = engine.AmountPercentage
		rule.AmountPercentage = decimal.NewFromFloat(aj.Percentage)
		rule.AmountExpr = aj.Expression
	case "expression":
		if aj.Expression == "" {
			return fmt.Errorf("expression amount requires an expression")
		}
		rule.Amount = engine.AmountExpression
		rule.AmountExpr = aj.Expression
	default:
		return fmt.Errorf("unknown amount kind %q", aj.Kind)
	}
	return nil
}

func parseParameter(pj ParameterJSON) (*payroll.RuleParameter, error) {
	param := &payroll.RuleParameter{Code: pj.Code, Name: pj.Name}
	for _, vj := range pj.Versions {
		from, err := time.Parse("2006-01-02", vj.DateFrom)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: invalid date_from %q", pj.Code, vj.DateFrom)
		}
		param.Versions = append(param.Versions, payroll.ParameterVersion{
			DateFrom: from,
			Value:    decimal.NewFromFloat(vj.Value),
		})
	}
	return param, nil
}
