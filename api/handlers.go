/*
handlers.go - HTTP API handlers for the payroll engine

PURPOSE:
  Exposes the payroll service via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Employees:
    GET    /api/employees                List all employees
    POST   /api/employees                Create employee
    GET    /api/employees/{id}           Get employee details
    GET    /api/employees/{id}/payslips  Payslip history

  Contracts:
    POST   /api/contracts                Create or update contract

  Payslips:
    POST   /api/payslips                 Create draft payslip
    GET    /api/payslips/{id}            Get payslip with lines
    POST   /api/payslips/{id}/compute    Compute sheet
    POST   /api/payslips/{id}/verify     Mark computed slip as verified
    POST   /api/payslips/{id}/confirm    Confirm (draft/verify -> done)
    POST   /api/payslips/{id}/cancel     Cancel
    POST   /api/payslips/{id}/draft      Back to draft
    POST   /api/payslips/{id}/refund     Create credit-note refund
    DELETE /api/payslips/{id}            Delete (draft/cancelled only)

  Runs:
    GET    /api/runs                     List batch runs
    POST   /api/runs                     Create run with draft slips
    POST   /api/runs/{id}/compute        Compute all slips in the run
    POST   /api/runs/{id}/close          Confirm all slips, close the run

  Scenarios:
    GET    /api/scenarios                List demo scenarios
    POST   /api/scenarios/load           Load a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, rule configuration errors
  - 404: Record not found
  - 409: Lifecycle conflicts (cancel done, delete confirmed, ...)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   payroll.Store
	Service *payroll.Service

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler over the service.
func NewHandler(store payroll.Store, svc *payroll.Service) *Handler {
	return &Handler{Store: store, Service: svc}
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.Employees(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := engine.EmployeeID(chi.URLParam(r, "id"))
	emp, err := h.Store.Employee(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get employee", err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// CreateEmployee creates a new employee.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}
	emp := payroll.Employee{ID: engine.EmployeeID(req.ID), Name: req.Name, Active: true}
	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// ListEmployeePayslips returns an employee's payslip headers.
func (h *Handler) ListEmployeePayslips(w http.ResponseWriter, r *http.Request) {
	id := engine.EmployeeID(chi.URLParam(r, "id"))
	slips, err := h.Store.Payslips(r.Context(), payroll.PayslipFilter{EmployeeID: id})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payslips", err)
		return
	}
	dtos := make([]PayslipDTO, len(slips))
	for i, slip := range slips {
		dtos[i] = toPayslipDTO(slip)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// CONTRACT HANDLERS
// =============================================================================

// CreateContract creates or updates a contract.
func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	var req CreateContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	contract, err := req.toContract()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	if err := h.Store.SaveContract(r.Context(), contract); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save contract", err)
		return
	}
	writeJSON(w, http.StatusCreated, toContractDTO(contract))
}

// =============================================================================
// PAYSLIP HANDLERS
// =============================================================================

// CreatePayslip creates a draft payslip with generated worked days.
func (h *Handler) CreatePayslip(w http.ResponseWriter, r *http.Request) {
	var req CreatePayslipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	period, err := parsePeriod(req.DateFrom, req.DateTo)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	preq := payroll.PayslipRequest{
		EmployeeID:  engine.EmployeeID(req.EmployeeID),
		Period:      period,
		ContractID:  engine.ContractID(req.ContractID),
		StructureID: engine.StructureID(req.StructureID),
	}
	for _, in := range req.Inputs {
		preq.Inputs = append(preq.Inputs, inputFromDTO(in))
	}

	slip, err := h.Service.CreatePayslip(r.Context(), preq)
	if err != nil {
		writeDomainError(w, "Failed to create payslip", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPayslipDTO(slip))
}

// GetPayslip returns a payslip with its computed lines.
func (h *Handler) GetPayslip(w http.ResponseWriter, r *http.Request) {
	id := engine.PayslipID(chi.URLParam(r, "id"))
	slip, err := h.Store.Payslip(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get payslip", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayslipDTO(slip))
}

// ComputePayslip computes the payslip's lines.
func (h *Handler) ComputePayslip(w http.ResponseWriter, r *http.Request) {
	id := engine.PayslipID(chi.URLParam(r, "id"))
	res, err := h.Service.ComputeSheet(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to compute payslip", err)
		return
	}
	writeJSON(w, http.StatusOK, toResultDTO(res))
}

// ConfirmPayslip confirms a payslip.
func (h *Handler) ConfirmPayslip(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.Confirm)
}

// VerifyPayslip moves a computed payslip to the verify state.
func (h *Handler) VerifyPayslip(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.Verify)
}

// CancelPayslip cancels a payslip.
func (h *Handler) CancelPayslip(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.Cancel)
}

// DraftPayslip returns a payslip to draft.
func (h *Handler) DraftPayslip(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.SetToDraft)
}

// RefundPayslip creates a credit-note refund of a confirmed payslip.
func (h *Handler) RefundPayslip(w http.ResponseWriter, r *http.Request) {
	id := engine.PayslipID(chi.URLParam(r, "id"))
	refund, err := h.Service.Refund(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to refund payslip", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPayslipDTO(refund))
}

// DeletePayslip removes a draft or cancelled payslip.
func (h *Handler) DeletePayslip(w http.ResponseWriter, r *http.Request) {
	id := engine.PayslipID(chi.URLParam(r, "id"))
	if err := h.Service.Delete(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete payslip", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id engine.PayslipID) error) {
	id := engine.PayslipID(chi.URLParam(r, "id"))
	if err := op(r.Context(), id); err != nil {
		writeDomainError(w, "Transition failed", err)
		return
	}
	slip, err := h.Store.Payslip(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get payslip", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayslipDTO(slip))
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// ListRuns returns all batch runs.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.Runs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}
	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRun creates a batch run and drafts one payslip per employee.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	period, err := parsePeriod(req.DateFrom, req.DateTo)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}
	employees := make([]engine.EmployeeID, len(req.Employees))
	for i, id := range req.Employees {
		employees[i] = engine.EmployeeID(id)
	}
	run, err := h.Service.CreateRun(r.Context(), req.Name, period, employees)
	if err != nil {
		writeDomainError(w, "Failed to create run", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRunDTO(run))
}

// ComputeRun computes every payslip of the run.
func (h *Handler) ComputeRun(w http.ResponseWriter, r *http.Request) {
	id := payroll.RunID(chi.URLParam(r, "id"))
	if err := h.Service.ComputeRun(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to compute run", err)
		return
	}
	slips, err := h.Store.Payslips(r.Context(), payroll.PayslipFilter{RunID: string(id)})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list run payslips", err)
		return
	}
	dtos := make([]PayslipDTO, len(slips))
	for i, slip := range slips {
		dtos[i] = toPayslipDTO(slip)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CloseRun confirms every payslip of the run and closes it.
func (h *Handler) CloseRun(w http.ResponseWriter, r *http.Request) {
	id := payroll.RunID(chi.URLParam(r, "id"))
	if err := h.Service.CloseRun(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to close run", err)
		return
	}
	run, err := h.Store.Run(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get run", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(run))
}

// =============================================================================
// ADMIN
// =============================================================================

// ResetDatabase clears all data (dev/demo only).
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// HELPERS
// =============================================================================

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

func parsePeriod(from, to string) (engine.Period, error) {
	start, err := parseDate(from)
	if err != nil {
		return engine.Period{}, err
	}
	end, err := parseDate(to)
	if err != nil {
		return engine.Period{}, err
	}
	return engine.NewPeriod(start, end), nil
}

func inputFromDTO(in PayslipInputDTO) engine.Input {
	return engine.Input{
		Code:       in.Code,
		Name:       in.Name,
		ContractID: engine.ContractID(in.ContractID),
		Amount:     decimal.NewFromFloat(in.Amount),
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, engine.ErrCancelDone),
		errors.Is(err, engine.ErrDeleteNonDraft),
		errors.Is(err, engine.ErrRefundNotCancelled),
		errors.Is(err, engine.ErrNotDone),
		errors.Is(err, engine.ErrPayslipLocked):
		writeError(w, http.StatusConflict, message, err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
