package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// newTestRouter wires the full stack: memory store, standard catalog,
// engine, service, handlers.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	store := memory.New()
	catalog, err := factory.NewRuleFactory().ParseCatalog(factory.StandardCatalogJSON())
	require.NoError(t, err)

	eng, err := engine.New(catalog.Rules,
		engine.WithContracts(store),
		engine.WithHistory(store),
		engine.WithSequence(store),
		engine.WithParameters(payroll.NewParameters(catalog.Parameters...)))
	require.NoError(t, err)

	svc := payroll.NewService(store, eng, payroll.Config{})
	return NewRouter(NewHandler(store, svc))
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out),
		"body: %s", rec.Body.String())
	return out
}

// seedAlice creates an employee with a staff contract via the API.
func seedAlice(t *testing.T, router http.Handler) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/employees",
		CreateEmployeeRequest{ID: "emp-1", Name: "Alice Johnson"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/api/contracts", CreateContractRequest{
		ID: "c1", EmployeeID: "emp-1", Name: "Alice's Contract",
		StructureID: "STAFF", Wage: 5000, SchedulePay: "monthly",
		DateStart: "2024-01-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func createJanuarySlip(t *testing.T, router http.Handler) PayslipDTO {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/payslips", CreatePayslipRequest{
		EmployeeID: "emp-1", DateFrom: "2025-01-01", DateTo: "2025-01-31",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[PayslipDTO](t, rec)
}

// =============================================================================
// EMPLOYEES AND CONTRACTS
// =============================================================================

func TestAPI_CreateAndListEmployees(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/employees",
		CreateEmployeeRequest{ID: "emp-1", Name: "Alice Johnson"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[EmployeeDTO](t, rec)
	assert.Equal(t, "Alice Johnson", created.Name)
	assert.True(t, created.Active)

	rec = doJSON(t, router, http.MethodGet, "/api/employees", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]EmployeeDTO](t, rec)
	assert.Len(t, list, 1)

	rec = doJSON(t, router, http.MethodGet, "/api/employees/emp-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/employees/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_CreateEmployee_Validation(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/employees",
		CreateEmployeeRequest{Name: "No ID"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_CreateContract_BadDate(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/contracts", CreateContractRequest{
		ID: "c1", EmployeeID: "emp-1", StructureID: "STAFF",
		Wage: 5000, DateStart: "01/01/2024",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// PAYSLIP FLOW
// =============================================================================

func TestAPI_PayslipFlow(t *testing.T) {
	// GIVEN: An employee with a staff contract
	// WHEN: Creating, computing and confirming a slip over the API
	// THEN: Each step returns the expected JSON shape and state

	router := newTestRouter(t)
	seedAlice(t, router)

	slip := createJanuarySlip(t, router)
	assert.Equal(t, "draft", slip.State)
	assert.Contains(t, slip.Name, "Alice Johnson")
	require.NotEmpty(t, slip.WorkedDays)
	assert.Equal(t, "WORK100", slip.WorkedDays[0].Code)

	rec := doJSON(t, router, http.MethodPost, "/api/payslips/"+slip.ID+"/compute", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[ComputeResultDTO](t, rec)
	assert.Equal(t, "SLIP/000001", result.Number)
	assert.NotEmpty(t, result.Lines)

	var net string
	for _, line := range result.Lines {
		if line.Code == "NET" {
			net = line.Total
		}
	}
	// 5000 basic + 2000 HRA + 230 meal allowance - 200 professional tax
	assert.Equal(t, "7030", net)

	rec = doJSON(t, router, http.MethodPost, "/api/payslips/"+slip.ID+"/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	confirmed := decode[PayslipDTO](t, rec)
	assert.Equal(t, "done", confirmed.State)

	rec = doJSON(t, router, http.MethodGet, "/api/employees/emp-1/payslips", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]PayslipDTO](t, rec)
	assert.Len(t, history, 1)
}

func TestAPI_PayslipInputs(t *testing.T) {
	router := newTestRouter(t)
	seedAlice(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/payslips", CreatePayslipRequest{
		EmployeeID: "emp-1", DateFrom: "2025-01-01", DateTo: "2025-01-31",
		Inputs: []PayslipInputDTO{
			{Code: "COMM", Name: "Commission", ContractID: "c1", Amount: 300},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	slip := decode[PayslipDTO](t, rec)

	rec = doJSON(t, router, http.MethodPost, "/api/payslips/"+slip.ID+"/compute", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[ComputeResultDTO](t, rec)

	var comm string
	for _, line := range result.Lines {
		if line.Code == "COMM" {
			comm = line.Total
		}
	}
	assert.Equal(t, "300", comm, "commission input should surface as a line")
}

func TestAPI_PayslipErrors(t *testing.T) {
	router := newTestRouter(t)
	seedAlice(t, router)

	rec := doJSON(t, router, http.MethodGet, "/api/payslips/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/payslips", CreatePayslipRequest{
		EmployeeID: "emp-1", DateFrom: "2025-01-31", DateTo: "2025-01-01",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "inverted period")

	slip := createJanuarySlip(t, router)
	rec = doJSON(t, router, http.MethodPost, "/api/payslips/"+slip.ID+"/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/payslips/"+slip.ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "confirmed slips cannot be deleted")

	rec = doJSON(t, router, http.MethodPost, "/api/payslips/"+slip.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "cancel-done disabled by default")
}

func TestAPI_RefundAndDelete(t *testing.T) {
	router := newTestRouter(t)
	seedAlice(t, router)

	slip := createJanuarySlip(t, router)
	rec := doJSON(t, router, http.MethodPost, "/api/payslips/"+slip.ID+"/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/payslips/"+slip.ID+"/refund", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	refund := decode[PayslipDTO](t, rec)
	assert.True(t, refund.CreditNote)
	assert.Equal(t, slip.ID, refund.RefundedID)
	assert.Equal(t, "done", refund.State)

	draft := createJanuarySlip(t, router)
	rec = doJSON(t, router, http.MethodDelete, "/api/payslips/"+draft.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// =============================================================================
// RUNS
// =============================================================================

func TestAPI_RunFlow(t *testing.T) {
	router := newTestRouter(t)
	seedAlice(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/employees",
		CreateEmployeeRequest{ID: "emp-2", Name: "Bob Chen"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, router, http.MethodPost, "/api/contracts", CreateContractRequest{
		ID: "c2", EmployeeID: "emp-2", Name: "Bob's Contract",
		StructureID: "STAFF", Wage: 6500, DateStart: "2024-01-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/runs", CreateRunRequest{
		Name: "January Payroll", DateFrom: "2025-01-01", DateTo: "2025-01-31",
		Employees: []string{"emp-1", "emp-2"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	run := decode[RunDTO](t, rec)
	assert.Equal(t, "draft", run.State)

	rec = doJSON(t, router, http.MethodPost, "/api/runs/"+run.ID+"/compute", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	slips := decode[[]PayslipDTO](t, rec)
	require.Len(t, slips, 2)
	for _, slip := range slips {
		assert.NotEmpty(t, slip.Lines)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/runs/"+run.ID+"/close", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	closed := decode[RunDTO](t, rec)
	assert.Equal(t, "close", closed.State)

	rec = doJSON(t, router, http.MethodGet, "/api/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[[]RunDTO](t, rec)
	assert.Len(t, runs, 1)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestAPI_Scenarios(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]ScenarioDTO](t, rec)
	assert.Len(t, list, 3)

	rec = doJSON(t, router, http.MethodPost, "/api/scenarios/load",
		map[string]string{"scenario_id": "standard-payroll"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	current := decode[ScenarioDTO](t, rec)
	assert.Equal(t, "standard-payroll", current.ID)

	rec = doJSON(t, router, http.MethodGet, "/api/employees", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	employees := decode[[]EmployeeDTO](t, rec)
	assert.Len(t, employees, 1, "standard scenario seeds one employee")

	rec = doJSON(t, router, http.MethodPost, "/api/scenarios/load",
		map[string]string{"scenario_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_Reset(t *testing.T) {
	router := newTestRouter(t)
	seedAlice(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/employees", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	employees := decode[[]EmployeeDTO](t, rec)
	assert.Empty(t, employees)
}
