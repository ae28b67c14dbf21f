/*
catalog.go - Built-in rule catalog definitions

PURPOSE:
  Pre-built catalog JSON for demos and tests. The standard catalog is a
  small but complete salary structure: basic wage, allowances, meal
  vouchers priced per worked day, professional tax from a versioned
  parameter, and gross/net roll-ups over the category tree.

STRUCTURES:
  BASE:  BASIC, GROSS, NET (the roll-up skeleton)
  STAFF: inherits BASE, adds HRA, MA, PHONE, COMM, PT

USAGE:
  catalog, err := factory.NewRuleFactory().ParseCatalog(factory.StandardCatalogJSON())
*/
package factory

import "encoding/json"

// StandardCatalogJSON returns the built-in demo catalog.
func StandardCatalogJSON() string {
	always := &ConditionJSON{Kind: "always"}
	cj := CatalogJSON{
		Categories: []CategoryJSON{
			{Code: "BASIC", Name: "Basic", Parent: "GROSS"},
			{Code: "ALW", Name: "Allowance", Parent: "GROSS"},
			{Code: "GROSS", Name: "Gross"},
			{Code: "DED", Name: "Deduction"},
			{Code: "NET", Name: "Net"},
		},
		Structures: []StructureJSON{
			{ID: "BASE", Name: "Base for new structures",
				Rules: []string{"rule-basic", "rule-gross", "rule-net"}},
			{ID: "STAFF", Name: "Staff Salary Structure", Parent: "BASE",
				Rules: []string{"rule-hra", "rule-ma", "rule-phone", "rule-comm", "rule-pt"}},
		},
		Rules: []RuleJSON{
			{
				ID: "rule-basic", Code: "BASIC", Name: "Basic Salary",
				Sequence: 1, Category: "BASIC", Condition: always,
				Amount: AmountJSON{Kind: "expression", Expression: "contract.wage"},
			},
			{
				ID: "rule-hra", Code: "HRA", Name: "House Rent Allowance",
				Sequence: 5, Category: "ALW", Condition: always,
				Amount: AmountJSON{Kind: "percentage", Percentage: 40, Expression: "contract.wage"},
			},
			{
				ID: "rule-ma", Code: "MA", Name: "Meal Allowance",
				Sequence: 10, Category: "ALW", Condition: always,
				Amount:   AmountJSON{Kind: "fixed", Fixed: 10},
				Quantity: "worked_days.WORK100.number_of_days",
			},
			{
				ID: "rule-phone", Code: "PHONE", Name: "Phone Subscription",
				Sequence: 11, Category: "ALW",
				Condition: &ConditionJSON{Kind: "expression",
					Expression: "contract.advantages.phone > 0.0"},
				Amount: AmountJSON{Kind: "expression", Expression: "contract.advantages.phone"},
			},
			{
				ID: "rule-comm", Code: "COMM", Name: "Commission",
				Sequence: 15, Category: "ALW",
				Condition: &ConditionJSON{Kind: "expression",
					Expression: "inputs.COMM.amount != 0.0"},
				Amount: AmountJSON{Kind: "expression", Expression: "inputs.COMM.amount"},
				Inputs: []InputSpecJSON{{Code: "COMM", Name: "Commission"}},
			},
			{
				ID: "rule-gross", Code: "GROSS", Name: "Gross",
				Sequence: 100, Category: "GROSS", Condition: always,
				Amount: AmountJSON{Kind: "expression",
					Expression: "categories.BASIC + categories.ALW"},
			},
			{
				ID: "rule-pt", Code: "PT", Name: "Professional Tax",
				Sequence: 150, Category: "DED", Condition: always,
				Amount: AmountJSON{Kind: "expression",
					Expression: "-payroll.parameter(\"prof_tax\", payslip.date_from)"},
			},
			{
				ID: "rule-net", Code: "NET", Name: "Net Salary",
				Sequence: 200, Category: "NET", Condition: always,
				Amount: AmountJSON{Kind: "expression",
					Expression: "categories.BASIC + categories.ALW + categories.DED"},
			},
		},
		Parameters: []ParameterJSON{
			{Code: "prof_tax", Name: "Professional Tax", Versions: []ParameterVersionJSON{
				{DateFrom: "2020-01-01", Value: 200},
			}},
		},
	}
	b, _ := json.MarshalIndent(cj, "", "  ")
	return string(b)
}
