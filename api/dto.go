/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  JSON shapes exchanged with clients. Decimal amounts cross the wire as
  strings to avoid float drift in clients; dates as YYYY-MM-DD.

SEE ALSO:
  - handlers.go: Where these are populated
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/payroll"
)

// ErrorResponse is the standard error shape.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// =============================================================================
// EMPLOYEES AND CONTRACTS
// =============================================================================

type EmployeeDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type CreateEmployeeRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ContractDTO struct {
	ID          string            `json:"id"`
	EmployeeID  string            `json:"employee_id"`
	Name        string            `json:"name"`
	StructureID string            `json:"structure_id"`
	Wage        string            `json:"wage"`
	SchedulePay string            `json:"schedule_pay,omitempty"`
	DateStart   string            `json:"date_start"`
	DateEnd     string            `json:"date_end,omitempty"`
	Advantages  map[string]string `json:"advantages,omitempty"`
}

type CreateContractRequest struct {
	ID          string             `json:"id"`
	EmployeeID  string             `json:"employee_id"`
	Name        string             `json:"name"`
	StructureID string             `json:"structure_id"`
	Wage        float64            `json:"wage"`
	SchedulePay string             `json:"schedule_pay,omitempty"`
	DateStart   string             `json:"date_start"`
	DateEnd     string             `json:"date_end,omitempty"`
	Advantages  map[string]float64 `json:"advantages,omitempty"`
}

// =============================================================================
// PAYSLIPS
// =============================================================================

type CreatePayslipRequest struct {
	EmployeeID  string            `json:"employee_id"`
	DateFrom    string            `json:"date_from"`
	DateTo      string            `json:"date_to"`
	ContractID  string            `json:"contract_id,omitempty"`
	StructureID string            `json:"structure_id,omitempty"`
	Inputs      []PayslipInputDTO `json:"inputs,omitempty"`
}

type PayslipInputDTO struct {
	Code       string  `json:"code"`
	Name       string  `json:"name,omitempty"`
	ContractID string  `json:"contract_id,omitempty"`
	Amount     float64 `json:"amount"`
}

type PayslipDTO struct {
	ID         string            `json:"id"`
	Number     string            `json:"number,omitempty"`
	Name       string            `json:"name"`
	EmployeeID string            `json:"employee_id"`
	DateFrom   string            `json:"date_from"`
	DateTo     string            `json:"date_to"`
	State      string            `json:"state"`
	CreditNote bool              `json:"credit_note,omitempty"`
	RefundedID string            `json:"refunded_id,omitempty"`
	RunID      string            `json:"run_id,omitempty"`
	WorkedDays []WorkedDaysDTO   `json:"worked_days,omitempty"`
	Inputs     []PayslipInputDTO `json:"inputs,omitempty"`
	Lines      []PayslipLineDTO  `json:"lines,omitempty"`
}

type WorkedDaysDTO struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	ContractID string `json:"contract_id,omitempty"`
	Days       string `json:"days"`
	Hours      string `json:"hours"`
}

type PayslipLineDTO struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Sequence int    `json:"sequence"`
	Quantity string `json:"quantity"`
	Rate     string `json:"rate"`
	Amount   string `json:"amount"`
	Total    string `json:"total"`
}

type ComputeResultDTO struct {
	Number     string            `json:"number,omitempty"`
	Lines      []PayslipLineDTO  `json:"lines"`
	Categories map[string]string `json:"categories"`
}

// =============================================================================
// RUNS
// =============================================================================

type CreateRunRequest struct {
	Name      string   `json:"name"`
	DateFrom  string   `json:"date_from"`
	DateTo    string   `json:"date_to"`
	Employees []string `json:"employees"`
}

type RunDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	DateFrom string `json:"date_from"`
	DateTo   string `json:"date_to"`
	State    string `json:"state"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toEmployeeDTO(e payroll.Employee) EmployeeDTO {
	return EmployeeDTO{ID: string(e.ID), Name: e.Name, Active: e.Active}
}

func toPayslipDTO(slip *engine.Payslip) PayslipDTO {
	dto := PayslipDTO{
		ID:         string(slip.ID),
		Number:     slip.Number,
		Name:       slip.Name,
		EmployeeID: string(slip.EmployeeID),
		DateFrom:   slip.Period.Start.Format("2006-01-02"),
		DateTo:     slip.Period.End.Format("2006-01-02"),
		State:      string(slip.State),
		CreditNote: slip.CreditNote,
		RefundedID: string(slip.RefundedID),
		RunID:      slip.RunID,
	}
	for _, wd := range slip.WorkedDays {
		dto.WorkedDays = append(dto.WorkedDays, WorkedDaysDTO{
			Code:       wd.Code,
			Name:       wd.Name,
			ContractID: string(wd.ContractID),
			Days:       wd.Days.String(),
			Hours:      wd.Hours.String(),
		})
	}
	for _, in := range slip.Inputs {
		amount, _ := in.Amount.Float64()
		dto.Inputs = append(dto.Inputs, PayslipInputDTO{
			Code:       in.Code,
			Name:       in.Name,
			ContractID: string(in.ContractID),
			Amount:     amount,
		})
	}
	dto.Lines = toLineDTOs(slip.Lines)
	return dto
}

// toLineDTOs skips lines hidden from the rendered payslip.
func toLineDTOs(lines []engine.PayslipLine) []PayslipLineDTO {
	var out []PayslipLineDTO
	for _, line := range lines {
		if !line.AppearsOnPayslip {
			continue
		}
		out = append(out, PayslipLineDTO{
			Code:     line.Code,
			Name:     line.Name,
			Category: line.Category,
			Sequence: line.Sequence,
			Quantity: line.Quantity.String(),
			Rate:     line.Rate.String(),
			Amount:   line.Amount.String(),
			Total:    line.Total.String(),
		})
	}
	return out
}

func toResultDTO(res *engine.Result) ComputeResultDTO {
	dto := ComputeResultDTO{
		Number:     res.Number,
		Lines:      toLineDTOs(res.Lines),
		Categories: make(map[string]string, len(res.Categories)),
	}
	for code, total := range res.Categories {
		dto.Categories[code] = total.String()
	}
	return dto
}

func toRunDTO(run *payroll.Run) RunDTO {
	return RunDTO{
		ID:       string(run.ID),
		Name:     run.Name,
		DateFrom: run.Period.Start.Format("2006-01-02"),
		DateTo:   run.Period.End.Format("2006-01-02"),
		State:    string(run.State),
	}
}

func toContractDTO(c engine.Contract) ContractDTO {
	dto := ContractDTO{
		ID:          string(c.ID),
		EmployeeID:  string(c.EmployeeID),
		Name:        c.Name,
		StructureID: string(c.StructureID),
		Wage:        c.Wage.String(),
		SchedulePay: c.SchedulePay,
		DateStart:   c.DateStart.Format("2006-01-02"),
	}
	if !c.DateEnd.IsZero() {
		dto.DateEnd = c.DateEnd.Format("2006-01-02")
	}
	if len(c.Advantages) > 0 {
		dto.Advantages = make(map[string]string, len(c.Advantages))
		for code, v := range c.Advantages {
			dto.Advantages[code] = v.String()
		}
	}
	return dto
}

func (r CreateContractRequest) toContract() (engine.Contract, error) {
	dateStart, err := parseDate(r.DateStart)
	if err != nil {
		return engine.Contract{}, err
	}
	c := engine.Contract{
		ID:          engine.ContractID(r.ID),
		EmployeeID:  engine.EmployeeID(r.EmployeeID),
		Name:        r.Name,
		StructureID: engine.StructureID(r.StructureID),
		Wage:        decimal.NewFromFloat(r.Wage),
		SchedulePay: r.SchedulePay,
		DateStart:   dateStart,
	}
	if r.DateEnd != "" {
		if c.DateEnd, err = parseDate(r.DateEnd); err != nil {
			return engine.Contract{}, err
		}
	}
	if len(r.Advantages) > 0 {
		c.Advantages = make(map[string]decimal.Decimal, len(r.Advantages))
		for code, v := range r.Advantages {
			c.Advantages[code] = decimal.NewFromFloat(v)
		}
	}
	return c, nil
}
