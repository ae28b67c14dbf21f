/*
structure.go - Salary structures and the rule catalog

PURPOSE:
  A Structure is a named bundle of salary rules assigned to contracts.
  Structures form a single-parent hierarchy: a structure inherits every
  ancestor's rules. The RuleSet is the validated, immutable catalog of
  categories, rules and structures a compute pass evaluates against.

RESOLUTION:
  "All rules for a set of contracts" = union of the directly-assigned
  rule sets along each structure's ancestor chain, deduplicated by rule
  identity, sorted by sequence ascending (ties broken by catalog order).
  The resulting ordered list is shared by every contract on the payslip.

IMMUTABILITY:
  The catalog must not change while a computation uses it. Build a new
  RuleSet and swap it instead of mutating one in place.

SEE ALSO:
  - rule.go: the SalaryRule definition
  - factory/rules.go: JSON -> RuleSet conversion
*/
package engine

import "sort"

// =============================================================================
// STRUCTURE - Named bundle of rules with inheritance
// =============================================================================

// Structure assigns an ordered rule set to a name. Parent links structures
// into a tree; a structure's effective rules include its ancestors'.
type Structure struct {
	ID     StructureID
	Name   string
	Parent StructureID // empty for roots
	Rules  []RuleID    // directly assigned rules
}

// =============================================================================
// RULE SET - The validated rule catalog
// =============================================================================

// RuleSet is the immutable catalog one engine evaluates against.
type RuleSet struct {
	categories *CategoryTree
	rules      map[RuleID]*SalaryRule
	structures map[StructureID]*Structure

	order    map[RuleID]int      // catalog insertion order, the sequence tie-break
	children map[RuleID][]RuleID // rule parent -> direct children
}

// NewRuleSet validates and indexes the catalog. It rejects unknown
// references and any cyclic rule, category or structure hierarchy
// (configuration-time RecursionError).
func NewRuleSet(categories []Category, rules []*SalaryRule, structures []*Structure) (*RuleSet, error) {
	tree, err := NewCategoryTree(categories)
	if err != nil {
		return nil, err
	}

	rs := &RuleSet{
		categories: tree,
		rules:      make(map[RuleID]*SalaryRule, len(rules)),
		structures: make(map[StructureID]*Structure, len(structures)),
		order:      make(map[RuleID]int, len(rules)),
		children:   make(map[RuleID][]RuleID),
	}

	known := make(map[string]bool)
	for _, c := range categories {
		known[c.Code] = true
	}
	for i, r := range rules {
		if !known[r.Category] {
			return nil, ErrUnknownCategory
		}
		rs.rules[r.ID] = r
		rs.order[r.ID] = i
	}
	for _, r := range rules {
		if r.Parent == "" {
			continue
		}
		if _, ok := rs.rules[r.Parent]; !ok {
			return nil, ErrUnknownRule
		}
		rs.children[r.Parent] = append(rs.children[r.Parent], r.ID)
	}
	for _, r := range rules {
		if rs.ruleCycle(r.ID) {
			return nil, &RecursionError{Kind: "rule", Code: r.Code}
		}
	}

	for _, s := range structures {
		rs.structures[s.ID] = s
	}
	for _, s := range structures {
		for _, id := range s.Rules {
			if _, ok := rs.rules[id]; !ok {
				return nil, ErrUnknownRule
			}
		}
		if s.Parent != "" {
			if _, ok := rs.structures[s.Parent]; !ok {
				return nil, ErrUnknownStructure
			}
		}
	}
	for _, s := range structures {
		if rs.structureCycle(s.ID) {
			return nil, &RecursionError{Kind: "structure", Code: string(s.ID)}
		}
	}

	return rs, nil
}

// Categories returns the validated category tree.
func (rs *RuleSet) Categories() *CategoryTree { return rs.categories }

// Rule returns a rule by ID.
func (rs *RuleSet) Rule(id RuleID) (*SalaryRule, bool) {
	r, ok := rs.rules[id]
	return r, ok
}

// Structure returns a structure by ID.
func (rs *RuleSet) Structure(id StructureID) (*Structure, bool) {
	s, ok := rs.structures[id]
	return s, ok
}

// =============================================================================
// RESOLUTION - Which rules apply, in which order
// =============================================================================

// ParentChain returns the structure and all its ancestors, child first.
// Unknown structures resolve to an empty chain.
func (rs *RuleSet) ParentChain(id StructureID) []StructureID {
	var chain []StructureID
	seen := make(map[StructureID]bool)
	for cur := id; cur != "" && !seen[cur]; {
		s, ok := rs.structures[cur]
		if !ok {
			break
		}
		seen[cur] = true
		chain = append(chain, cur)
		cur = s.Parent
	}
	return chain
}

// StructuresFor collects the deduplicated structure set for the contracts:
// each contract's structure plus its ancestor chain. A payslip override
// structure, when set with a single contract, replaces the contract's own.
func (rs *RuleSet) StructuresFor(contracts []Contract, override StructureID) []StructureID {
	if override != "" && len(contracts) == 1 {
		return rs.ParentChain(override)
	}
	var out []StructureID
	seen := make(map[StructureID]bool)
	for _, c := range contracts {
		for _, id := range rs.ParentChain(c.StructureID) {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// ResolveRules returns the ordered, deduplicated, active rule list for the
// given structures: union of directly-assigned rules along each structure's
// ancestor chain, sorted by sequence ascending with catalog order as
// tie-break. Passing pre-expanded chains is harmless.
func (rs *RuleSet) ResolveRules(structureIDs []StructureID) []*SalaryRule {
	var out []*SalaryRule
	seenStruct := make(map[StructureID]bool)
	seen := make(map[RuleID]bool)
	for _, sid := range structureIDs {
		for _, cid := range rs.ParentChain(sid) {
			if seenStruct[cid] {
				continue
			}
			seenStruct[cid] = true
			for _, rid := range rs.structures[cid].Rules {
				rule := rs.rules[rid]
				if rule == nil || seen[rid] || !rule.Active {
					continue
				}
				seen[rid] = true
				out = append(out, rule)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Sequence != out[j].Sequence {
			return out[i].Sequence < out[j].Sequence
		}
		return rs.order[out[i].ID] < rs.order[out[j].ID]
	})
	return out
}

// Descendants returns every transitive child of a rule. Used to blacklist
// a skipped rule's subtree.
func (rs *RuleSet) Descendants(id RuleID) []RuleID {
	var out []RuleID
	stack := append([]RuleID(nil), rs.children[id]...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, cur)
		stack = append(stack, rs.children[cur]...)
	}
	return out
}

// InputSpecs returns the declared input codes of the resolved rules, in
// rule order. Used to pre-fill zero input lines per contract.
func (rs *RuleSet) InputSpecs(structureIDs []StructureID) []InputSpec {
	var specs []InputSpec
	seen := make(map[string]bool)
	for _, rule := range rs.ResolveRules(structureIDs) {
		for _, spec := range rule.Inputs {
			if !seen[spec.Code] {
				seen[spec.Code] = true
				specs = append(specs, spec)
			}
		}
	}
	return specs
}

func (rs *RuleSet) ruleCycle(id RuleID) bool {
	seen := map[RuleID]bool{id: true}
	for cur := rs.rules[id].Parent; cur != ""; {
		if seen[cur] {
			return true
		}
		seen[cur] = true
		next, ok := rs.rules[cur]
		if !ok {
			return false
		}
		cur = next.Parent
	}
	return false
}

func (rs *RuleSet) structureCycle(id StructureID) bool {
	seen := map[StructureID]bool{id: true}
	for cur := rs.structures[id].Parent; cur != ""; {
		if seen[cur] {
			return true
		}
		seen[cur] = true
		next, ok := rs.structures[cur]
		if !ok {
			return false
		}
		cur = next.Parent
	}
	return false
}
