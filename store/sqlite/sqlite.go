/*
Package sqlite provides the SQLite-backed payroll store.

PURPOSE:
  Implements payroll.Store using SQLite. In production, the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  payslips:      Payslip headers with state and period
  payslip_lines: Computed rule results, replaced atomically per slip
  worked_days:   Worked-day facts per payslip
  inputs:        Variable input amounts per payslip
  employees:     Employee records
  contracts:     Contracts with wages and advantages
  leaves:        Leave records feeding worked-day generation
  runs:          Payslip batches
  sequences:     Payslip number counters

HISTORY QUERIES:
  The historical aggregate helpers (payslip.sum and friends) read
  confirmed payslips only, joining lines to headers so credit notes
  contribute negated values. Amounts are stored as decimal strings and
  aggregated in Go to keep decimal exactness.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite is opened with WAL
  (Write-Ahead Logging) so readers don't block each other.

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - payroll/store.go: Interface definition
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/payroll"
)

const dateLayout = "2006-01-02"

// Store implements payroll.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS payslips (
		id TEXT PRIMARY KEY,
		number TEXT,
		name TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		contract_id TEXT,
		structure_id TEXT,
		date_from TEXT NOT NULL,
		date_to TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'draft',
		credit_note BOOLEAN DEFAULT FALSE,
		refunded_id TEXT,
		run_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payslips_employee
		ON payslips(employee_id);
	CREATE INDEX IF NOT EXISTS idx_payslips_run
		ON payslips(run_id) WHERE run_id IS NOT NULL;

	-- Hot path: historical aggregates scan confirmed slips by period
	CREATE INDEX IF NOT EXISTS idx_payslips_employee_state_period
		ON payslips(employee_id, state, date_from, date_to);

	CREATE TABLE IF NOT EXISTS payslip_lines (
		payslip_id TEXT NOT NULL,
		rule_id TEXT NOT NULL,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		employee_id TEXT NOT NULL,
		contract_id TEXT NOT NULL,
		parent_code TEXT,
		appears BOOLEAN DEFAULT TRUE,
		quantity TEXT NOT NULL,
		rate TEXT NOT NULL,
		amount TEXT NOT NULL,
		total TEXT NOT NULL,
		position INTEGER NOT NULL,
		FOREIGN KEY (payslip_id) REFERENCES payslips(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_lines_payslip
		ON payslip_lines(payslip_id);
	CREATE INDEX IF NOT EXISTS idx_lines_code
		ON payslip_lines(code);
	CREATE INDEX IF NOT EXISTS idx_lines_category
		ON payslip_lines(category);

	CREATE TABLE IF NOT EXISTS worked_days (
		payslip_id TEXT NOT NULL,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		contract_id TEXT,
		days TEXT NOT NULL,
		hours TEXT NOT NULL,
		FOREIGN KEY (payslip_id) REFERENCES payslips(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_worked_days_payslip
		ON worked_days(payslip_id);

	CREATE TABLE IF NOT EXISTS inputs (
		payslip_id TEXT NOT NULL,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		contract_id TEXT,
		amount TEXT NOT NULL,
		FOREIGN KEY (payslip_id) REFERENCES payslips(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_inputs_payslip
		ON inputs(payslip_id);

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		active BOOLEAN DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		name TEXT NOT NULL,
		structure_id TEXT NOT NULL,
		wage TEXT NOT NULL,
		schedule_pay TEXT,
		date_start TEXT NOT NULL,
		date_end TEXT,
		advantages_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_contracts_employee
		ON contracts(employee_id, date_start, date_end);

	CREATE TABLE IF NOT EXISTS leaves (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		contract_id TEXT,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		date_from TEXT NOT NULL,
		date_to TEXT NOT NULL,
		days TEXT NOT NULL,
		hours TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leaves_employee
		ON leaves(employee_id, date_from, date_to);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		date_from TEXT NOT NULL,
		date_to TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'draft',
		credit_note BOOLEAN DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sequences (
		name TEXT PRIMARY KEY,
		next INTEGER NOT NULL DEFAULT 0
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PAYSLIPS (payroll.Store interface)
// =============================================================================

// SavePayslip inserts or updates a payslip header together with its
// worked-day and input facts. Computed lines go through ReplaceLines.
func (s *Store) SavePayslip(ctx context.Context, slip *engine.Payslip) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO payslips
		(id, number, name, employee_id, contract_id, structure_id, date_from, date_to,
		 state, credit_note, refunded_id, run_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			number = excluded.number,
			name = excluded.name,
			contract_id = excluded.contract_id,
			structure_id = excluded.structure_id,
			date_from = excluded.date_from,
			date_to = excluded.date_to,
			state = excluded.state,
			credit_note = excluded.credit_note,
			refunded_id = excluded.refunded_id,
			run_id = excluded.run_id,
			updated_at = excluded.updated_at
	`,
		slip.ID, slip.Number, slip.Name, slip.EmployeeID,
		nullString(string(slip.ContractID)), nullString(string(slip.StructureID)),
		slip.Period.Start.Format(dateLayout), slip.Period.End.Format(dateLayout),
		string(slip.State), slip.CreditNote,
		nullString(string(slip.RefundedID)), nullString(slip.RunID),
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save payslip: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM worked_days WHERE payslip_id = ?", slip.ID); err != nil {
		return err
	}
	for _, wd := range slip.WorkedDays {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO worked_days (payslip_id, code, name, sequence, contract_id, days, hours)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, slip.ID, wd.Code, wd.Name, wd.Sequence, string(wd.ContractID),
			wd.Days.String(), wd.Hours.String()); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM inputs WHERE payslip_id = ?", slip.ID); err != nil {
		return err
	}
	for _, in := range slip.Inputs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO inputs (payslip_id, code, name, contract_id, amount)
			VALUES (?, ?, ?, ?, ?)
		`, slip.ID, in.Code, in.Name, string(in.ContractID), in.Amount.String()); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Payslip retrieves a payslip with its lines, worked days and inputs.
func (s *Store) Payslip(ctx context.Context, id engine.PayslipID) (*engine.Payslip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slip, err := s.scanPayslip(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.loadPayslipChildren(ctx, slip); err != nil {
		return nil, err
	}
	return slip, nil
}

func (s *Store) scanPayslip(ctx context.Context, id engine.PayslipID) (*engine.Payslip, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, number, name, employee_id, contract_id, structure_id,
		       date_from, date_to, state, credit_note, refunded_id, run_id
		FROM payslips WHERE id = ?
	`, id)

	slip, err := scanSlipRow(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", engine.ErrPayslipNotFound, id)
	}
	return slip, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlipRow(row rowScanner) (*engine.Payslip, error) {
	var (
		slip                                 engine.Payslip
		number, contractID, structureID      sql.NullString
		dateFrom, dateTo, state              string
		refundedID, runID                    sql.NullString
	)
	err := row.Scan(&slip.ID, &number, &slip.Name, &slip.EmployeeID, &contractID,
		&structureID, &dateFrom, &dateTo, &state, &slip.CreditNote, &refundedID, &runID)
	if err != nil {
		return nil, err
	}
	slip.Number = number.String
	slip.ContractID = engine.ContractID(contractID.String)
	slip.StructureID = engine.StructureID(structureID.String)
	slip.State = engine.PayslipState(state)
	slip.RefundedID = engine.PayslipID(refundedID.String)
	slip.RunID = runID.String

	from, _ := time.Parse(dateLayout, dateFrom)
	to, _ := time.Parse(dateLayout, dateTo)
	slip.Period = engine.Period{Start: from, End: to}
	return &slip, nil
}

func (s *Store) loadPayslipChildren(ctx context.Context, slip *engine.Payslip) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, code, name, category, sequence, employee_id, contract_id,
		       parent_code, appears, quantity, rate, amount, total
		FROM payslip_lines WHERE payslip_id = ? ORDER BY position ASC
	`, slip.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			line                         engine.PayslipLine
			parentCode                   sql.NullString
			quantity, rate, amount, total string
		)
		if err := rows.Scan(&line.RuleID, &line.Code, &line.Name, &line.Category,
			&line.Sequence, &line.EmployeeID, &line.ContractID, &parentCode,
			&line.AppearsOnPayslip, &quantity, &rate, &amount, &total); err != nil {
			return err
		}
		line.ParentCode = parentCode.String
		line.Quantity = mustDecimal(quantity)
		line.Rate = mustDecimal(rate)
		line.Amount = mustDecimal(amount)
		line.Total = mustDecimal(total)
		slip.Lines = append(slip.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	wdRows, err := s.db.QueryContext(ctx, `
		SELECT code, name, sequence, contract_id, days, hours
		FROM worked_days WHERE payslip_id = ? ORDER BY sequence ASC, code ASC
	`, slip.ID)
	if err != nil {
		return err
	}
	defer wdRows.Close()
	for wdRows.Next() {
		var (
			wd          engine.WorkedDays
			days, hours string
		)
		if err := wdRows.Scan(&wd.Code, &wd.Name, &wd.Sequence, &wd.ContractID, &days, &hours); err != nil {
			return err
		}
		wd.Days = mustDecimal(days)
		wd.Hours = mustDecimal(hours)
		slip.WorkedDays = append(slip.WorkedDays, wd)
	}
	if err := wdRows.Err(); err != nil {
		return err
	}

	inRows, err := s.db.QueryContext(ctx, `
		SELECT code, name, contract_id, amount
		FROM inputs WHERE payslip_id = ? ORDER BY code ASC
	`, slip.ID)
	if err != nil {
		return err
	}
	defer inRows.Close()
	for inRows.Next() {
		var (
			in     engine.Input
			amount string
		)
		if err := inRows.Scan(&in.Code, &in.Name, &in.ContractID, &amount); err != nil {
			return err
		}
		in.Amount = mustDecimal(amount)
		slip.Inputs = append(slip.Inputs, in)
	}
	return inRows.Err()
}

// Payslips lists payslip headers matching the filter, creation order.
// Lines are not loaded; fetch a slip by ID for the full record.
func (s *Store) Payslips(ctx context.Context, f payroll.PayslipFilter) ([]*engine.Payslip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, number, name, employee_id, contract_id, structure_id,
		       date_from, date_to, state, credit_note, refunded_id, run_id
		FROM payslips
	`
	var conds []string
	var args []any
	if f.EmployeeID != "" {
		conds = append(conds, "employee_id = ?")
		args = append(args, f.EmployeeID)
	}
	if f.RunID != "" {
		conds = append(conds, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.State != "" {
		conds = append(conds, "state = ?")
		args = append(args, string(f.State))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slips []*engine.Payslip
	for rows.Next() {
		slip, err := scanSlipRow(rows)
		if err != nil {
			return nil, err
		}
		slips = append(slips, slip)
	}
	return slips, rows.Err()
}

// ReplaceLines swaps a payslip's computed lines and number in one
// transaction. Readers never see a half-replaced slip.
func (s *Store) ReplaceLines(ctx context.Context, id engine.PayslipID, number string, lines []engine.PayslipLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE payslips SET number = ?, updated_at = ? WHERE id = ?
	`, number, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", engine.ErrPayslipNotFound, id)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM payslip_lines WHERE payslip_id = ?", id); err != nil {
		return err
	}
	for i, line := range lines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO payslip_lines
			(payslip_id, rule_id, code, name, category, sequence, employee_id, contract_id,
			 parent_code, appears, quantity, rate, amount, total, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, line.RuleID, line.Code, line.Name, line.Category, line.Sequence,
			line.EmployeeID, line.ContractID, nullString(line.ParentCode),
			line.AppearsOnPayslip, line.Quantity.String(), line.Rate.String(),
			line.Amount.String(), line.Total.String(), i); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SetPayslipState updates a payslip's state.
func (s *Store) SetPayslipState(ctx context.Context, id engine.PayslipID, state engine.PayslipState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE payslips SET state = ?, updated_at = ? WHERE id = ?
	`, string(state), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", engine.ErrPayslipNotFound, id)
	}
	return nil
}

// DeletePayslip removes a payslip and its children.
func (s *Store) DeletePayslip(ctx context.Context, id engine.PayslipID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM payslips WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", engine.ErrPayslipNotFound, id)
	}
	return nil
}

// =============================================================================
// EMPLOYEES AND CONTRACTS
// =============================================================================

// SaveEmployee saves an employee.
func (s *Store) SaveEmployee(ctx context.Context, e payroll.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, name, active, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			active = excluded.active
	`, e.ID, e.Name, e.Active, time.Now().UTC().Format(time.RFC3339))
	return err
}

// Employee retrieves an employee by ID.
func (s *Store) Employee(ctx context.Context, id engine.EmployeeID) (payroll.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var e payroll.Employee
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, active FROM employees WHERE id = ?", id,
	).Scan(&e.ID, &e.Name, &e.Active)
	if err == sql.ErrNoRows {
		return payroll.Employee{}, fmt.Errorf("employee %s: %w", id, engine.ErrNotFound)
	}
	return e, err
}

// Employees returns all employees ordered by name.
func (s *Store) Employees(ctx context.Context) ([]payroll.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, active FROM employees ORDER BY name ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payroll.Employee
	for rows.Next() {
		var e payroll.Employee
		if err := rows.Scan(&e.ID, &e.Name, &e.Active); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveContract saves a contract. Advantages are stored as JSON.
func (s *Store) SaveContract(ctx context.Context, c engine.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	advantages := map[string]string{}
	for code, v := range c.Advantages {
		advantages[code] = v.String()
	}
	advJSON, _ := json.Marshal(advantages)

	var dateEnd *string
	if !c.DateEnd.IsZero() {
		d := c.DateEnd.Format(dateLayout)
		dateEnd = &d
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts
		(id, employee_id, name, structure_id, wage, schedule_pay, date_start, date_end, advantages_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			employee_id = excluded.employee_id,
			name = excluded.name,
			structure_id = excluded.structure_id,
			wage = excluded.wage,
			schedule_pay = excluded.schedule_pay,
			date_start = excluded.date_start,
			date_end = excluded.date_end,
			advantages_json = excluded.advantages_json
	`, c.ID, c.EmployeeID, c.Name, c.StructureID, c.Wage.String(), c.SchedulePay,
		c.DateStart.Format(dateLayout), dateEnd, string(advJSON),
		time.Now().UTC().Format(time.RFC3339))
	return err
}

// Contract retrieves one contract by ID.
func (s *Store) Contract(ctx context.Context, id engine.ContractID) (engine.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, employee_id, name, structure_id, wage, schedule_pay, date_start, date_end, advantages_json
		FROM contracts WHERE id = ?
	`, id)
	c, err := scanContract(row)
	if err == sql.ErrNoRows {
		return engine.Contract{}, fmt.Errorf("contract %s: %w", id, engine.ErrNotFound)
	}
	return c, err
}

// ContractsFor implements engine.ContractSource: the employee's contracts
// active at any point of the period.
func (s *Store) ContractsFor(ctx context.Context, employee engine.EmployeeID, p engine.Period) ([]engine.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, employee_id, name, structure_id, wage, schedule_pay, date_start, date_end, advantages_json
		FROM contracts
		WHERE employee_id = ?
		  AND date_start <= ?
		  AND (date_end IS NULL OR date_end >= ?)
		ORDER BY id ASC
	`, employee, p.End.Format(dateLayout), p.Start.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanContract(row rowScanner) (engine.Contract, error) {
	var (
		c                  engine.Contract
		wage, dateStart    string
		schedulePay        sql.NullString
		dateEnd, advantage sql.NullString
	)
	err := row.Scan(&c.ID, &c.EmployeeID, &c.Name, &c.StructureID, &wage,
		&schedulePay, &dateStart, &dateEnd, &advantage)
	if err != nil {
		return c, err
	}
	c.Wage = mustDecimal(wage)
	c.SchedulePay = schedulePay.String
	c.DateStart, _ = time.Parse(dateLayout, dateStart)
	if dateEnd.Valid {
		c.DateEnd, _ = time.Parse(dateLayout, dateEnd.String)
	}
	if advantage.Valid && advantage.String != "" {
		raw := map[string]string{}
		json.Unmarshal([]byte(advantage.String), &raw)
		c.Advantages = make(map[string]decimal.Decimal, len(raw))
		for code, v := range raw {
			c.Advantages[code] = mustDecimal(v)
		}
	}
	return c, nil
}

// =============================================================================
// LEAVES AND RUNS
// =============================================================================

// SaveLeave saves a leave record.
func (s *Store) SaveLeave(ctx context.Context, lv payroll.Leave) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leaves (id, employee_id, contract_id, code, name, date_from, date_to, days, hours)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date_from = excluded.date_from,
			date_to = excluded.date_to,
			days = excluded.days,
			hours = excluded.hours
	`, lv.ID, lv.EmployeeID, string(lv.ContractID), lv.Code, lv.Name,
		lv.DateFrom.Format(dateLayout), lv.DateTo.Format(dateLayout),
		lv.Days.String(), lv.Hours.String())
	return err
}

// LeavesFor returns the employee's leaves overlapping the period.
func (s *Store) LeavesFor(ctx context.Context, employee engine.EmployeeID, p engine.Period) ([]payroll.Leave, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, employee_id, contract_id, code, name, date_from, date_to, days, hours
		FROM leaves
		WHERE employee_id = ? AND date_from <= ? AND date_to >= ?
		ORDER BY date_from ASC, id ASC
	`, employee, p.End.Format(dateLayout), p.Start.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payroll.Leave
	for rows.Next() {
		var (
			lv                          payroll.Leave
			dateFrom, dateTo, days, hrs string
		)
		if err := rows.Scan(&lv.ID, &lv.EmployeeID, &lv.ContractID, &lv.Code,
			&lv.Name, &dateFrom, &dateTo, &days, &hrs); err != nil {
			return nil, err
		}
		lv.DateFrom, _ = time.Parse(dateLayout, dateFrom)
		lv.DateTo, _ = time.Parse(dateLayout, dateTo)
		lv.Days = mustDecimal(days)
		lv.Hours = mustDecimal(hrs)
		out = append(out, lv)
	}
	return out, rows.Err()
}

// SaveRun saves a batch run.
func (s *Store) SaveRun(ctx context.Context, run *payroll.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, name, date_from, date_to, state, credit_note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			state = excluded.state
	`, run.ID, run.Name, run.Period.Start.Format(dateLayout),
		run.Period.End.Format(dateLayout), string(run.State), run.CreditNote,
		time.Now().UTC().Format(time.RFC3339))
	return err
}

// Run retrieves a run by ID.
func (s *Store) Run(ctx context.Context, id payroll.RunID) (*payroll.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, date_from, date_to, state, credit_note FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", id, engine.ErrNotFound)
	}
	return run, err
}

// Runs returns all runs, oldest first.
func (s *Store) Runs(ctx context.Context) ([]*payroll.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, date_from, date_to, state, credit_note
		FROM runs ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*payroll.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func scanRun(row rowScanner) (*payroll.Run, error) {
	var (
		run              payroll.Run
		dateFrom, dateTo string
		state            string
	)
	err := row.Scan(&run.ID, &run.Name, &dateFrom, &dateTo, &state, &run.CreditNote)
	if err != nil {
		return nil, err
	}
	run.State = payroll.RunState(state)
	from, _ := time.Parse(dateLayout, dateFrom)
	to, _ := time.Parse(dateLayout, dateTo)
	run.Period = engine.Period{Start: from, End: to}
	return &run, nil
}

// =============================================================================
// HISTORY (engine.History interface)
// =============================================================================

// historyValues collects decimal values from confirmed payslips inside
// the window, sign-flipped for credit notes.
func (s *Store) historyValues(ctx context.Context, query string, args ...any) ([]decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []decimal.Decimal
	for rows.Next() {
		var raw string
		var creditNote bool
		if err := rows.Scan(&raw, &creditNote); err != nil {
			return nil, err
		}
		v := mustDecimal(raw)
		if creditNote {
			v = v.Neg()
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// RuleTotal aggregates a rule code's line totals over confirmed payslips.
func (s *Store) RuleTotal(ctx context.Context, employee engine.EmployeeID, code string, agg engine.Aggregate, from, to time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values, err := s.historyValues(ctx, `
		SELECT l.total, p.credit_note
		FROM payslip_lines l
		JOIN payslips p ON p.id = l.payslip_id
		WHERE p.employee_id = ? AND p.state = 'done'
		  AND p.date_from >= ? AND p.date_to <= ?
		  AND l.code = ?
	`, employee, from.Format(dateLayout), to.Format(dateLayout), code)
	if err != nil {
		return decimal.Zero, err
	}
	return aggregate(agg, values), nil
}

// CategoryTotal aggregates line totals of the given category codes.
func (s *Store) CategoryTotal(ctx context.Context, employee engine.EmployeeID, categories []string, agg engine.Aggregate, from, to time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(categories) == 0 {
		return decimal.Zero, nil
	}
	placeholders := strings.Repeat("?,", len(categories))
	placeholders = placeholders[:len(placeholders)-1]

	args := []any{employee, from.Format(dateLayout), to.Format(dateLayout)}
	for _, c := range categories {
		args = append(args, c)
	}
	values, err := s.historyValues(ctx, fmt.Sprintf(`
		SELECT l.total, p.credit_note
		FROM payslip_lines l
		JOIN payslips p ON p.id = l.payslip_id
		WHERE p.employee_id = ? AND p.state = 'done'
		  AND p.date_from >= ? AND p.date_to <= ?
		  AND l.category IN (%s)
	`, placeholders), args...)
	if err != nil {
		return decimal.Zero, err
	}
	return aggregate(agg, values), nil
}

// InputSum totals an input code over confirmed payslips.
func (s *Store) InputSum(ctx context.Context, employee engine.EmployeeID, code string, from, to time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values, err := s.historyValues(ctx, `
		SELECT i.amount, p.credit_note
		FROM inputs i
		JOIN payslips p ON p.id = i.payslip_id
		WHERE p.employee_id = ? AND p.state = 'done'
		  AND p.date_from >= ? AND p.date_to <= ?
		  AND i.code = ?
	`, employee, from.Format(dateLayout), to.Format(dateLayout), code)
	if err != nil {
		return decimal.Zero, err
	}
	return aggregate(engine.AggSum, values), nil
}

// WorkedDaysSum totals a worked-day code's days and hours over confirmed
// payslips. Credit notes do not flip worked-day counts.
func (s *Store) WorkedDaysSum(ctx context.Context, employee engine.EmployeeID, code string, from, to time.Time) (decimal.Decimal, decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT w.days, w.hours
		FROM worked_days w
		JOIN payslips p ON p.id = w.payslip_id
		WHERE p.employee_id = ? AND p.state = 'done'
		  AND p.date_from >= ? AND p.date_to <= ?
		  AND w.code = ?
	`, employee, from.Format(dateLayout), to.Format(dateLayout), code)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	defer rows.Close()

	days, hours := decimal.Zero, decimal.Zero
	for rows.Next() {
		var d, h string
		if err := rows.Scan(&d, &h); err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		days = days.Add(mustDecimal(d))
		hours = hours.Add(mustDecimal(h))
	}
	return days, hours, rows.Err()
}

// =============================================================================
// SEQUENCE (engine.Sequence interface)
// =============================================================================

// Next returns the next payslip reference: SLIP/000001, SLIP/000002, ...
func (s *Store) Next(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sequences (name, next) VALUES ('payslip', 1)
		ON CONFLICT(name) DO UPDATE SET next = next + 1
	`); err != nil {
		return "", err
	}
	var next int
	if err := tx.QueryRowContext(ctx,
		"SELECT next FROM sequences WHERE name = 'payslip'").Scan(&next); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return fmt.Sprintf("SLIP/%06d", next), nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"payslip_lines", "worked_days", "inputs", "payslips",
		"leaves", "contracts", "employees", "runs", "sequences"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func mustDecimal(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return v
}

func aggregate(agg engine.Aggregate, values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	switch agg {
	case engine.AggAvg:
		sum := decimal.Zero
		for _, v := range values {
			sum = sum.Add(v)
		}
		return sum.Div(decimal.NewFromInt(int64(len(values))))
	case engine.AggMin:
		min := values[0]
		for _, v := range values[1:] {
			if v.LessThan(min) {
				min = v
			}
		}
		return min
	case engine.AggMax:
		max := values[0]
		for _, v := range values[1:] {
			if v.GreaterThan(max) {
				max = v
			}
		}
		return max
	default:
		sum := decimal.Zero
		for _, v := range values {
			sum = sum.Add(v)
		}
		return sum
	}
}
