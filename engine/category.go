/*
category.go - Rule categories and the per-computation roll-up accumulator

PURPOSE:
  Categories are aggregation buckets for rule totals (BASIC, ALW, DED,
  GROSS, NET, ...). They form a single-parent tree; a rule's contribution
  counts toward its own category and every ancestor category.

ACCUMULATION:
  CategoryTotals is built fresh for every payslip computation - never
  shared, never process-wide. Add() walks the ancestor chain and adds
  the same delta to each bucket. Categories that never receive a
  contribution simply have no bucket; lookups default to zero.

SEE ALSO:
  - context.go: exposes the running totals as the `categories` namespace
  - compute.go: feeds per-rule deltas into the accumulator
*/
package engine

import "github.com/shopspring/decimal"

// =============================================================================
// CATEGORY - Aggregation bucket definition
// =============================================================================

// Category is a named aggregation bucket. Parent links categories into a
// tree used purely for roll-up.
type Category struct {
	Code   string
	Name   string
	Parent string // parent category code, empty for roots
}

// CategoryTree is the validated category hierarchy: code -> parent code.
type CategoryTree struct {
	codes   []string
	parents map[string]string
}

// NewCategoryTree validates the hierarchy (no cycles, parents exist) and
// builds the parent index.
func NewCategoryTree(categories []Category) (*CategoryTree, error) {
	parents := make(map[string]string, len(categories))
	known := make(map[string]bool, len(categories))
	for _, c := range categories {
		known[c.Code] = true
	}
	for _, c := range categories {
		if c.Parent == "" {
			continue
		}
		if !known[c.Parent] {
			return nil, ErrUnknownCategory
		}
		parents[c.Code] = c.Parent
	}
	codes := make([]string, 0, len(categories))
	for _, c := range categories {
		codes = append(codes, c.Code)
	}
	tree := &CategoryTree{codes: codes, parents: parents}
	for _, c := range categories {
		if tree.hasCycle(c.Code) {
			return nil, &RecursionError{Kind: "category", Code: c.Code}
		}
	}
	return tree, nil
}

// Parent returns the parent code of a category, empty for roots and
// unknown codes.
func (t *CategoryTree) Parent(code string) string {
	return t.parents[code]
}

// Ancestors returns the parent chain of a category, nearest first.
func (t *CategoryTree) Ancestors(code string) []string {
	var chain []string
	for p := t.parents[code]; p != ""; p = t.parents[p] {
		chain = append(chain, p)
	}
	return chain
}

// Subtree returns the category and every transitive descendant. Used to
// expand a category code for historical aggregate queries.
func (t *CategoryTree) Subtree(code string) []string {
	out := []string{code}
	in := map[string]bool{code: true}
	// Repeated sweeps; category trees are small.
	for changed := true; changed; {
		changed = false
		for _, c := range t.codes {
			if in[c] {
				continue
			}
			if p, ok := t.parents[c]; ok && in[p] {
				in[c] = true
				out = append(out, c)
				changed = true
			}
		}
	}
	return out
}

func (t *CategoryTree) hasCycle(code string) bool {
	seen := map[string]bool{code: true}
	for p := t.parents[code]; p != ""; p = t.parents[p] {
		if seen[p] {
			return true
		}
		seen[p] = true
	}
	return false
}

// =============================================================================
// CATEGORY TOTALS - Per-computation accumulator
// =============================================================================

// CategoryTotals accumulates rolled-up rule totals per category code for
// one payslip computation. Not safe for concurrent use; build one per
// compute pass.
type CategoryTotals struct {
	tree   *CategoryTree
	totals map[string]decimal.Decimal
}

// NewCategoryTotals builds an empty accumulator over the given tree.
func NewCategoryTotals(tree *CategoryTree) *CategoryTotals {
	return &CategoryTotals{tree: tree, totals: make(map[string]decimal.Decimal)}
}

// Add adds amount to the category's bucket and to every ancestor bucket.
// Missing categories start their bucket at the contributed amount.
func (ct *CategoryTotals) Add(code string, amount decimal.Decimal) {
	ct.totals[code] = ct.totals[code].Add(amount)
	for _, ancestor := range ct.tree.Ancestors(code) {
		ct.totals[ancestor] = ct.totals[ancestor].Add(amount)
	}
}

// Total returns the running total for a category, zero when absent.
func (ct *CategoryTotals) Total(code string) decimal.Decimal {
	return ct.totals[code]
}

// Snapshot copies the current totals, for inclusion in a compute Result.
func (ct *CategoryTotals) Snapshot() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(ct.totals))
	for k, v := range ct.totals {
		out[k] = v
	}
	return out
}
