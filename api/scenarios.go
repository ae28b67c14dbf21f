/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates employees, contracts,
	leaves and payslips that demonstrate specific features of the engine.

AVAILABLE SCENARIOS:

	standard-payroll: Single employee, standard structure, computed slip
	batch-run:        Three employees paid together in one batch run
	history:          Several confirmed months so history helpers have data

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create employees and contracts
 3. Create draft payslips (worked days generated from the calendar)
 4. Compute and optionally confirm them

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "standard-payroll"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.
	The rule catalog itself is fixed at startup (factory.StandardCatalogJSON).

SEE ALSO:
  - handlers.go: request plumbing, error mapping
  - factory/catalog.go: the standard rule catalog
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "standard-payroll",
		Name:        "Standard Payroll",
		Description: "One employee on the staff structure, slip computed for the current month",
	},
	{
		ID:          "batch-run",
		Name:        "Batch Run",
		Description: "Three employees paid together in one payslip run",
	},
	{
		ID:          "history",
		Name:        "Payslip History",
		Description: "Three confirmed months plus a current draft, for history expressions",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: h.currentScenario, Name: h.currentScenario})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "standard-payroll":
		err = h.loadStandardScenario(ctx)
	case "batch-run":
		err = h.loadBatchRunScenario(ctx)
	case "history":
		err = h.loadHistoryScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadStandardScenario(ctx context.Context) error {
	month := engine.MonthOf(time.Now())

	if err := h.seedEmployee(ctx, "emp-001", "Alice Johnson", "c-001", 5000, nil); err != nil {
		return err
	}

	slip, err := h.Service.CreatePayslip(ctx, payroll.PayslipRequest{
		EmployeeID: "emp-001",
		Period:     month,
	})
	if err != nil {
		return err
	}
	_, err = h.Service.ComputeSheet(ctx, slip.ID)
	return err
}

func (h *Handler) loadBatchRunScenario(ctx context.Context) error {
	month := engine.MonthOf(time.Now())

	staff := []struct {
		empID    engine.EmployeeID
		name     string
		contract engine.ContractID
		wage     float64
		phone    float64
	}{
		{"emp-001", "Alice Johnson", "c-001", 5000, 0},
		{"emp-002", "Bob Chen", "c-002", 6500, 50},
		{"emp-003", "Carol Diaz", "c-003", 4200, 0},
	}
	employees := make([]engine.EmployeeID, 0, len(staff))
	for _, s := range staff {
		var advantages map[string]decimal.Decimal
		if s.phone > 0 {
			advantages = map[string]decimal.Decimal{"phone": decimal.NewFromFloat(s.phone)}
		}
		if err := h.seedEmployee(ctx, s.empID, s.name, s.contract, s.wage, advantages); err != nil {
			return err
		}
		employees = append(employees, s.empID)
	}

	run, err := h.Service.CreateRun(ctx, "Monthly Payroll", month, employees)
	if err != nil {
		return err
	}
	return h.Service.ComputeRun(ctx, run.ID)
}

func (h *Handler) loadHistoryScenario(ctx context.Context) error {
	if err := h.seedEmployee(ctx, "emp-001", "Alice Johnson", "c-001", 5000, nil); err != nil {
		return err
	}

	// Three confirmed months leading up to the current one.
	now := time.Now()
	for back := 3; back >= 1; back-- {
		month := engine.MonthOf(now.AddDate(0, -back, 0))
		slip, err := h.Service.CreatePayslip(ctx, payroll.PayslipRequest{
			EmployeeID: "emp-001",
			Period:     month,
		})
		if err != nil {
			return err
		}
		if err := h.Service.Confirm(ctx, slip.ID); err != nil {
			return err
		}
	}

	// Current month stays a computed draft.
	slip, err := h.Service.CreatePayslip(ctx, payroll.PayslipRequest{
		EmployeeID: "emp-001",
		Period:     engine.MonthOf(now),
	})
	if err != nil {
		return err
	}
	_, err = h.Service.ComputeSheet(ctx, slip.ID)
	return err
}

// seedEmployee stores one employee with a single open-ended staff contract.
func (h *Handler) seedEmployee(ctx context.Context, empID engine.EmployeeID, name string, contractID engine.ContractID, wage float64, advantages map[string]decimal.Decimal) error {
	if err := h.Store.SaveEmployee(ctx, payroll.Employee{ID: empID, Name: name, Active: true}); err != nil {
		return err
	}
	return h.Store.SaveContract(ctx, engine.Contract{
		ID:          contractID,
		EmployeeID:  empID,
		Name:        fmt.Sprintf("Contract for %s", name),
		StructureID: "STAFF",
		Wage:        decimal.NewFromFloat(wage),
		SchedulePay: "monthly",
		DateStart:   time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
		Advantages:  advantages,
	})
}
