package engine_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func testCategories() []engine.Category {
	return []engine.Category{
		{Code: "BASIC", Name: "Basic", Parent: "GROSS"},
		{Code: "ALW", Name: "Allowance", Parent: "GROSS"},
		{Code: "GROSS", Name: "Gross"},
		{Code: "DED", Name: "Deduction"},
		{Code: "NET", Name: "Net"},
	}
}

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// =============================================================================
// CATEGORY TREE TESTS
// =============================================================================

func TestCategoryTree_Ancestors(t *testing.T) {
	// GIVEN: BASIC -> GROSS, a three-level chain via a deeper child
	// WHEN: Asking for ancestors
	// THEN: The full parent chain comes back, nearest first

	tree, err := engine.NewCategoryTree([]engine.Category{
		{Code: "GROSS"},
		{Code: "ALW", Parent: "GROSS"},
		{Code: "TRAVEL", Parent: "ALW"},
	})
	if err != nil {
		t.Fatalf("NewCategoryTree: %v", err)
	}

	got := tree.Ancestors("TRAVEL")
	if len(got) != 2 || got[0] != "ALW" || got[1] != "GROSS" {
		t.Errorf("Ancestors(TRAVEL) = %v, want [ALW GROSS]", got)
	}
	if got := tree.Ancestors("GROSS"); len(got) != 0 {
		t.Errorf("Ancestors(GROSS) = %v, want empty", got)
	}
}

func TestCategoryTree_RejectsCycle(t *testing.T) {
	// GIVEN: A <-> B parent cycle
	// WHEN: Building the tree
	// THEN: Construction fails with a recursion error

	_, err := engine.NewCategoryTree([]engine.Category{
		{Code: "A", Parent: "B"},
		{Code: "B", Parent: "A"},
	})
	if !errors.Is(err, engine.ErrRecursiveHierarchy) {
		t.Fatalf("expected ErrRecursiveHierarchy, got %v", err)
	}
}

func TestCategoryTree_RejectsUnknownParent(t *testing.T) {
	_, err := engine.NewCategoryTree([]engine.Category{
		{Code: "A", Parent: "MISSING"},
	})
	if !errors.Is(err, engine.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestCategoryTree_Subtree(t *testing.T) {
	// GIVEN: GROSS with children BASIC and ALW, ALW with child TRAVEL
	// WHEN: Expanding the GROSS subtree
	// THEN: All four codes are included

	tree, err := engine.NewCategoryTree([]engine.Category{
		{Code: "GROSS"},
		{Code: "BASIC", Parent: "GROSS"},
		{Code: "ALW", Parent: "GROSS"},
		{Code: "TRAVEL", Parent: "ALW"},
		{Code: "DED"},
	})
	if err != nil {
		t.Fatalf("NewCategoryTree: %v", err)
	}

	got := tree.Subtree("GROSS")
	want := map[string]bool{"GROSS": true, "BASIC": true, "ALW": true, "TRAVEL": true}
	if len(got) != len(want) {
		t.Fatalf("Subtree(GROSS) = %v, want %v codes", got, len(want))
	}
	for _, code := range got {
		if !want[code] {
			t.Errorf("Subtree(GROSS) contains unexpected %q", code)
		}
	}
}

// =============================================================================
// CATEGORY TOTALS TESTS
// =============================================================================

func TestCategoryTotals_RollsUpAncestors(t *testing.T) {
	// GIVEN: BASIC and ALW both roll up into GROSS
	// WHEN: Adding 1000 to BASIC and 2000 to ALW
	// THEN: GROSS carries 3000, the leaves their own amounts

	tree, err := engine.NewCategoryTree(testCategories())
	if err != nil {
		t.Fatalf("NewCategoryTree: %v", err)
	}
	totals := engine.NewCategoryTotals(tree)

	totals.Add("BASIC", d(1000))
	totals.Add("ALW", d(2000))

	if got := totals.Total("BASIC"); !got.Equal(d(1000)) {
		t.Errorf("BASIC = %s, want 1000", got)
	}
	if got := totals.Total("GROSS"); !got.Equal(d(3000)) {
		t.Errorf("GROSS = %s, want 3000", got)
	}
}

func TestCategoryTotals_MissingCategoryIsZero(t *testing.T) {
	tree, err := engine.NewCategoryTree(testCategories())
	if err != nil {
		t.Fatalf("NewCategoryTree: %v", err)
	}
	totals := engine.NewCategoryTotals(tree)

	if got := totals.Total("NET"); !got.IsZero() {
		t.Errorf("Total(NET) = %s, want 0", got)
	}
}

func TestCategoryTotals_NegativeContributions(t *testing.T) {
	// GIVEN: A deduction category
	// WHEN: Adding a negative amount
	// THEN: The bucket goes negative; snapshot reflects it

	tree, err := engine.NewCategoryTree(testCategories())
	if err != nil {
		t.Fatalf("NewCategoryTree: %v", err)
	}
	totals := engine.NewCategoryTotals(tree)

	totals.Add("DED", d(-200))

	snap := totals.Snapshot()
	if got := snap["DED"]; !got.Equal(d(-200)) {
		t.Errorf("snapshot DED = %s, want -200", got)
	}
}
