package factory

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/engine"
)

func parse(t *testing.T, jsonStr string) (*Catalog, error) {
	t.Helper()
	return NewRuleFactory().ParseCatalog(jsonStr)
}

func TestParseCatalog_Standard(t *testing.T) {
	// The built-in catalog parses, validates and resolves for both
	// structures.
	catalog, err := parse(t, StandardCatalogJSON())
	require.NoError(t, err)

	base, ok := catalog.Rules.Structure("BASE")
	require.True(t, ok)
	assert.Equal(t, engine.StructureID(""), base.Parent)

	staff, ok := catalog.Rules.Structure("STAFF")
	require.True(t, ok)
	assert.Equal(t, engine.StructureID("BASE"), staff.Parent)

	rules := catalog.Rules.ResolveRules([]engine.StructureID{"STAFF"})

	codes := make([]string, 0, len(rules))
	for _, r := range rules {
		codes = append(codes, r.Code)
	}
	assert.Equal(t, []string{"BASIC", "HRA", "MA", "PHONE", "COMM", "GROSS", "PT", "NET"}, codes)

	require.Len(t, catalog.Parameters, 1)
	assert.Equal(t, "prof_tax", catalog.Parameters[0].Code)
}

func TestParseCatalog_Defaults(t *testing.T) {
	// A rule with no condition, active or appears flags gets the
	// permissive defaults.
	catalog, err := parse(t, `{
		"categories": [{"code": "NET", "name": "Net"}],
		"structures": [{"id": "S", "name": "S", "rules": ["r1"]}],
		"rules": [{
			"id": "r1", "code": "NET", "name": "Net", "sequence": 1,
			"category": "NET",
			"amount": {"kind": "fixed", "fixed": 100}
		}]
	}`)
	require.NoError(t, err)

	rule, ok := catalog.Rules.Rule("r1")
	require.True(t, ok)
	assert.True(t, rule.Active)
	assert.True(t, rule.AppearsOnPayslip)
	assert.Equal(t, engine.ConditionAlways, rule.Condition)
	assert.Equal(t, engine.AmountFixed, rule.Amount)
}

func TestParseCatalog_ExplicitFlagsOverrideDefaults(t *testing.T) {
	catalog, err := parse(t, `{
		"categories": [{"code": "NET", "name": "Net"}],
		"structures": [{"id": "S", "name": "S", "rules": ["r1"]}],
		"rules": [{
			"id": "r1", "code": "NET", "name": "Net", "sequence": 1,
			"category": "NET", "active": false, "appears_on_payslip": false,
			"amount": {"kind": "fixed", "fixed": 100}
		}]
	}`)
	require.NoError(t, err)

	rule, ok := catalog.Rules.Rule("r1")
	require.True(t, ok)
	assert.False(t, rule.Active)
	assert.False(t, rule.AppearsOnPayslip)
}

func TestParseCatalog_Errors(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr string
	}{
		{
			name:    "bad JSON",
			json:    `{"categories": [`,
			wantErr: "failed to parse catalog JSON",
		},
		{
			name: "unknown amount kind",
			json: `{
				"categories": [{"code": "NET", "name": "Net"}],
				"rules": [{"id": "r1", "code": "NET", "name": "Net",
					"category": "NET", "amount": {"kind": "magic"}}]
			}`,
			wantErr: `unknown amount kind "magic"`,
		},
		{
			name: "percentage without base",
			json: `{
				"categories": [{"code": "NET", "name": "Net"}],
				"rules": [{"id": "r1", "code": "NET", "name": "Net",
					"category": "NET", "amount": {"kind": "percentage", "percentage": 40}}]
			}`,
			wantErr: "percentage amount requires a base expression",
		},
		{
			name: "range without bounds",
			json: `{
				"categories": [{"code": "NET", "name": "Net"}],
				"rules": [{"id": "r1", "code": "NET", "name": "Net",
					"category": "NET",
					"condition": {"kind": "range", "expression": "contract.wage"},
					"amount": {"kind": "fixed", "fixed": 1}}]
			}`,
			wantErr: "range condition requires",
		},
		{
			name: "unknown condition kind",
			json: `{
				"categories": [{"code": "NET", "name": "Net"}],
				"rules": [{"id": "r1", "code": "NET", "name": "Net",
					"category": "NET",
					"condition": {"kind": "sometimes"},
					"amount": {"kind": "fixed", "fixed": 1}}]
			}`,
			wantErr: `unknown condition kind "sometimes"`,
		},
		{
			name: "bad parameter date",
			json: `{
				"categories": [{"code": "NET", "name": "Net"}],
				"parameters": [{"code": "rate",
					"versions": [{"date_from": "01/01/2025", "value": 1}]}]
			}`,
			wantErr: "invalid date_from",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parse(t, tc.json)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestParseCatalog_ValidationThroughRuleSet(t *testing.T) {
	// Referential problems surface as engine validation errors.
	_, err := parse(t, `{
		"categories": [{"code": "NET", "name": "Net"}],
		"rules": [{"id": "r1", "code": "X", "name": "X", "category": "GHOST",
			"amount": {"kind": "fixed", "fixed": 1}}]
	}`)
	assert.ErrorIs(t, err, engine.ErrUnknownCategory)

	_, err = parse(t, `{
		"categories": [{"code": "NET", "name": "Net"}],
		"structures": [{"id": "S", "name": "S", "rules": ["ghost"]}]
	}`)
	assert.ErrorIs(t, err, engine.ErrUnknownRule)
}

func TestParseCatalog_RangeCondition(t *testing.T) {
	catalog, err := parse(t, `{
		"categories": [{"code": "NET", "name": "Net"}],
		"rules": [{
			"id": "r1", "code": "NET", "name": "Net", "category": "NET",
			"condition": {"kind": "range", "expression": "contract.wage",
				"range_min": 1000, "range_max": 4000},
			"amount": {"kind": "fixed", "fixed": 1}
		}]
	}`)
	require.NoError(t, err)

	rule, ok := catalog.Rules.Rule("r1")
	require.True(t, ok)
	assert.Equal(t, engine.ConditionRange, rule.Condition)
	assert.Equal(t, "contract.wage", rule.ConditionExpr)
	assert.True(t, rule.ConditionRangeMin.Equal(decimal.NewFromInt(1000)))
	assert.True(t, rule.ConditionRangeMax.Equal(decimal.NewFromInt(4000)))
}
