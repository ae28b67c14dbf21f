package engine

import "context"

// =============================================================================
// SEQUENCE - Payslip reference numbers
// =============================================================================

// Sequence hands out payslip references: deterministic, monotonic, never
// reused. The pipeline asks for one on first compute only; an already
// numbered payslip keeps its number across recomputes.
type Sequence interface {
	Next(ctx context.Context) (string, error)
}
