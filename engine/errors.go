/*
errors.go - Centralized error types for the payroll engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers (the payroll service, the HTTP layer) classify errors with
  errors.Is and the helpers at the bottom.

ERROR CATEGORIES:
  1. Configuration errors - a rule's condition/amount setup is broken
  2. Validation errors - payslip lifecycle invariants violated
  3. Recursion errors - cyclic rule/category/structure hierarchies

FAILURE SEMANTICS:
  A configuration error aborts the whole payslip computation and names
  the offending rule. Nothing is retried by the engine; a human fixes
  the rule and recomputes.

SEE ALSO:
  - rule.go: wraps expression failures into ConfigurationError
  - structure.go: raises ErrRecursiveHierarchy at catalog construction
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidPeriod is returned when a payslip period ends before it starts.
	ErrInvalidPeriod = errors.New("invalid period: date_from after date_to")

	// ErrRecursiveHierarchy is returned when rules, categories or structures
	// form a parent cycle. Blocks saving the offending configuration.
	ErrRecursiveHierarchy = errors.New("recursive hierarchy")

	// ErrRuleConfiguration is the base error every ConfigurationError unwraps to.
	ErrRuleConfiguration = errors.New("invalid salary rule configuration")

	// ErrUnknownRule is returned when a structure references a rule that is
	// not in the catalog.
	ErrUnknownRule = errors.New("unknown salary rule")

	// ErrUnknownStructure is returned when a contract or payslip references
	// a structure that is not in the catalog.
	ErrUnknownStructure = errors.New("unknown salary structure")

	// ErrUnknownCategory is returned when a rule references a category that
	// is not in the catalog.
	ErrUnknownCategory = errors.New("unknown rule category")

	// ErrUnknownParameter is returned when an expression asks for a rule
	// parameter code that has no version covering the requested date.
	ErrUnknownParameter = errors.New("unknown rule parameter")

	// ErrPayslipNotFound is returned when a referenced payslip doesn't exist.
	ErrPayslipNotFound = errors.New("payslip not found")

	// ErrNotFound is returned when another referenced record (employee,
	// contract, run) doesn't exist.
	ErrNotFound = errors.New("record not found")

	// ErrPayslipNotDraft is returned when an operation requires a draft payslip.
	ErrPayslipNotDraft = errors.New("payslip is not draft")

	// ErrPayslipLocked is returned when recomputation of a confirmed payslip
	// is blocked by configuration.
	ErrPayslipLocked = errors.New("payslip is confirmed and locked against recompute")

	// ErrCancelDone is returned when cancelling a done payslip without the
	// allow-cancel override.
	ErrCancelDone = errors.New("cannot cancel a payslip that is done")

	// ErrRefundNotCancelled is returned when cancelling a refunded payslip
	// whose credit note is still live.
	ErrRefundNotCancelled = errors.New("refund payslip must be cancelled first")

	// ErrDeleteNonDraft is returned when deleting a payslip that is neither
	// draft nor cancelled.
	ErrDeleteNonDraft = errors.New("cannot delete a payslip which is not draft or cancelled")

	// ErrNotDone is returned when refunding a payslip that is not confirmed.
	ErrNotDone = errors.New("payslip is not done")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConfigurationError marks a salary rule whose condition or amount could not
// be evaluated: bad expression, wrong result type, missing configuration.
// It aborts the entire payslip computation and names the offending rule.
type ConfigurationError struct {
	RuleName string
	RuleCode string
	Stage    string // "condition", "quantity", "amount"
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("wrong %s defined for salary rule %s (%s): %v",
		e.Stage, e.RuleName, e.RuleCode, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return ErrRuleConfiguration }

// RecursionError names the entity whose parent chain loops.
type RecursionError struct {
	Kind string // "rule", "category", "structure"
	Code string
}

func (e *RecursionError) Error() string {
	return fmt.Sprintf("recursive hierarchy of %s at %q", e.Kind, e.Code)
}

func (e *RecursionError) Unwrap() error { return ErrRecursiveHierarchy }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid input or a
// lifecycle violation the caller can fix.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrRecursiveHierarchy) ||
		errors.Is(err, ErrRuleConfiguration) ||
		errors.Is(err, ErrPayslipNotDraft) ||
		errors.Is(err, ErrPayslipLocked) ||
		errors.Is(err, ErrCancelDone) ||
		errors.Is(err, ErrRefundNotCancelled) ||
		errors.Is(err, ErrDeleteNonDraft) ||
		errors.Is(err, ErrNotDone)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPayslipNotFound) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnknownRule) ||
		errors.Is(err, ErrUnknownStructure) ||
		errors.Is(err, ErrUnknownCategory) ||
		errors.Is(err, ErrUnknownParameter)
}
