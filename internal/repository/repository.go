// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Izone425/allowancev2/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrDuplicate    = errors.New("duplicate record")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTemplate inserts or updates a template with tenant isolation.
// A code collision with another template surfaces as ErrDuplicate.
func (r *SQLRepository) SaveTemplate(ctx context.Context, tenantID string, tpl *domain.AllowanceTemplate) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	criteria, err := marshalCriteria(tpl.Criteria)
	if err != nil {
		return fmt.Errorf("failed to encode criteria: %w", err)
	}
	formulaVars, _ := json.Marshal(tpl.FormulaVariables)

	query := `
		INSERT INTO allowance_templates (
			id, tenant_id, name, code, description, type,
			amount_mode, amount, formula_expression, formula_variables,
			currency, taxable, prorate,
			rate_per_day, include_non_working_days,
			prorate_by_join_date, prorate_by_leave_date,
			payout_date, payout_month, effective_start, effective_end,
			status, criteria, created_at, created_by, updated_at, updated_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			name = excluded.name,
			code = excluded.code,
			description = excluded.description,
			type = excluded.type,
			amount_mode = excluded.amount_mode,
			amount = excluded.amount,
			formula_expression = excluded.formula_expression,
			formula_variables = excluded.formula_variables,
			currency = excluded.currency,
			taxable = excluded.taxable,
			prorate = excluded.prorate,
			rate_per_day = excluded.rate_per_day,
			include_non_working_days = excluded.include_non_working_days,
			prorate_by_join_date = excluded.prorate_by_join_date,
			prorate_by_leave_date = excluded.prorate_by_leave_date,
			payout_date = excluded.payout_date,
			payout_month = excluded.payout_month,
			effective_start = excluded.effective_start,
			effective_end = excluded.effective_end,
			status = excluded.status,
			criteria = excluded.criteria,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		tpl.ID, tenantID, tpl.Name, tpl.Code, tpl.Description, tpl.Type,
		tpl.AmountMode, tpl.Amount, tpl.FormulaExpression, string(formulaVars),
		tpl.Currency, boolToInt(tpl.Taxable), boolToInt(tpl.Prorate),
		tpl.RatePerDay, boolToInt(tpl.IncludeNonWorkingDays),
		boolToInt(tpl.ProrateByJoinDate), boolToInt(tpl.ProrateByLeaveDate),
		tpl.PayoutDate, tpl.PayoutMonth, tpl.EffectiveStart, tpl.EffectiveEnd,
		tpl.Status, criteria, tpl.CreatedAt, tpl.CreatedBy, tpl.UpdatedAt, tpl.UpdatedBy,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: template code %q already in use", ErrDuplicate, tpl.Code)
	}
	return err
}

const templateColumns = `
	t.id, t.tenant_id, t.name, t.code, t.description, t.type,
	t.amount_mode, t.amount, t.formula_expression, t.formula_variables,
	t.currency, t.taxable, t.prorate,
	t.rate_per_day, t.include_non_working_days,
	t.prorate_by_join_date, t.prorate_by_leave_date,
	t.payout_date, t.payout_month, t.effective_start, t.effective_end,
	t.status, t.criteria, t.created_at, t.created_by, t.updated_at, t.updated_by,
	(SELECT COUNT(*) FROM allowance_assignments a
	 WHERE a.tenant_id = t.tenant_id AND a.template_id = t.id) AS assignment_count
`

func scanTemplate(row interface{ Scan(...any) error }) (*domain.AllowanceTemplate, error) {
	var tpl domain.AllowanceTemplate
	var formulaVars, criteria string
	var taxable, prorate, nonWorking, byJoin, byLeave int

	err := row.Scan(
		&tpl.ID, &tpl.TenantID, &tpl.Name, &tpl.Code, &tpl.Description, &tpl.Type,
		&tpl.AmountMode, &tpl.Amount, &tpl.FormulaExpression, &formulaVars,
		&tpl.Currency, &taxable, &prorate,
		&tpl.RatePerDay, &nonWorking,
		&byJoin, &byLeave,
		&tpl.PayoutDate, &tpl.PayoutMonth, &tpl.EffectiveStart, &tpl.EffectiveEnd,
		&tpl.Status, &criteria, &tpl.CreatedAt, &tpl.CreatedBy, &tpl.UpdatedAt, &tpl.UpdatedBy,
		&tpl.AssignmentCount,
	)
	if err != nil {
		return nil, err
	}

	tpl.Taxable = taxable == 1
	tpl.Prorate = prorate == 1
	tpl.IncludeNonWorkingDays = nonWorking == 1
	tpl.ProrateByJoinDate = byJoin == 1
	tpl.ProrateByLeaveDate = byLeave == 1

	if formulaVars != "" && formulaVars != "null" {
		json.Unmarshal([]byte(formulaVars), &tpl.FormulaVariables)
	}
	if criteria != "" && criteria != "null" {
		var set domain.CriteriaSet
		if err := json.Unmarshal([]byte(criteria), &set); err != nil {
			return nil, fmt.Errorf("failed to parse criteria for %s: %w", tpl.ID, err)
		}
		tpl.Criteria = &set
	}

	return &tpl, nil
}

// GetTemplate retrieves a template by ID with tenant isolation.
func (r *SQLRepository) GetTemplate(ctx context.Context, tenantID string, templateID string) (*domain.AllowanceTemplate, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + templateColumns + `
		FROM allowance_templates t
		WHERE t.tenant_id = ? AND t.id = ?
	`

	tpl, err := scanTemplate(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, templateID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tpl, nil
}

var templateSortColumns = map[string]string{
	"name":       "t.name",
	"code":       "t.code",
	"type":       "t.type",
	"created_at": "t.created_at",
	"updated_at": "t.updated_at",
}

// ListTemplates retrieves a page of templates matching the filter.
func (r *SQLRepository) ListTemplates(ctx context.Context, tenantID string, filter domain.TemplateFilter) ([]*domain.AllowanceTemplate, *domain.PageMeta, error) {
	if tenantID == "" {
		return nil, nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	where := "t.tenant_id = ?"
	args := []any{tenantID}

	if filter.Search != "" {
		where += " AND (t.name LIKE ? OR t.code LIKE ?)"
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}
	if filter.Type != "" {
		where += " AND t.type = ?"
		args = append(args, filter.Type)
	}
	if filter.Status != "" {
		where += " AND t.status = ?"
		args = append(args, filter.Status)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM allowance_templates t WHERE " + where
	if err := r.db.QueryRowContext(ctx, r.rebind(countQuery), args...).Scan(&total); err != nil {
		return nil, nil, err
	}

	sortCol, ok := templateSortColumns[filter.SortBy]
	if !ok {
		sortCol = "t.updated_at"
		filter.SortDesc = true
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}

	page, limit := normalizePage(filter.Page, filter.Limit)
	query := `SELECT ` + templateColumns + `
		FROM allowance_templates t
		WHERE ` + where + `
		ORDER BY ` + sortCol + ` ` + direction + `
		LIMIT ? OFFSET ?
	`
	args = append(args, limit, (page-1)*limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	templates := []*domain.AllowanceTemplate{}
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, nil, err
		}
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	return templates, pageMeta(page, limit, total), nil
}

// DeleteTemplate removes a template and cascades its assignments.
func (r *SQLRepository) DeleteTemplate(ctx context.Context, tenantID string, templateID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		r.rebind(`DELETE FROM allowance_assignments WHERE tenant_id = ? AND template_id = ?`),
		tenantID, templateID,
	); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx,
		r.rebind(`DELETE FROM allowance_templates WHERE tenant_id = ? AND id = ?`),
		tenantID, templateID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// TemplateCodeExists reports whether another template already uses the code.
func (r *SQLRepository) TemplateCodeExists(ctx context.Context, tenantID string, code string, excludeID string) (bool, error) {
	if tenantID == "" {
		return false, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT COUNT(*) FROM allowance_templates WHERE tenant_id = ? AND code = ? AND id != ?`

	var count int
	if err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, code, excludeID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// SaveAssignment inserts an assignment. A user already assigned to the
// template surfaces as ErrDuplicate; rows are never overwritten.
func (r *SQLRepository) SaveAssignment(ctx context.Context, tenantID string, a *domain.AllowanceAssignment) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO allowance_assignments (
			id, tenant_id, template_id, user_id,
			user_name, user_code, user_department, user_position,
			effective_start_override, effective_end_override, amount_override,
			source, assigned_at, assigned_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, tenantID, a.TemplateID, a.UserID,
		a.UserName, a.UserCode, a.UserDepartment, a.UserPosition,
		a.EffectiveStartOverride, a.EffectiveEndOverride, a.AmountOverride,
		a.Source, a.AssignedAt, a.AssignedBy,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: user %s already assigned", ErrDuplicate, a.UserID)
	}
	return err
}

const assignmentColumns = `
	id, template_id, user_id,
	user_name, user_code, user_department, user_position,
	effective_start_override, effective_end_override, amount_override,
	source, assigned_at, assigned_by
`

func scanAssignment(row interface{ Scan(...any) error }) (*domain.AllowanceAssignment, error) {
	var a domain.AllowanceAssignment
	var amountOverride sql.NullFloat64
	err := row.Scan(
		&a.ID, &a.TemplateID, &a.UserID,
		&a.UserName, &a.UserCode, &a.UserDepartment, &a.UserPosition,
		&a.EffectiveStartOverride, &a.EffectiveEndOverride, &amountOverride,
		&a.Source, &a.AssignedAt, &a.AssignedBy,
	)
	if err != nil {
		return nil, err
	}
	if amountOverride.Valid {
		a.AmountOverride = &amountOverride.Float64
	}
	return &a, nil
}

// GetAssignmentByUser retrieves the assignment linking one user to one
// template, if any.
func (r *SQLRepository) GetAssignmentByUser(ctx context.Context, tenantID string, templateID string, userID string) (*domain.AllowanceAssignment, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + assignmentColumns + `
		FROM allowance_assignments
		WHERE tenant_id = ? AND template_id = ? AND user_id = ?
	`

	a, err := scanAssignment(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, templateID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAssignments retrieves a page of assignments for a template.
func (r *SQLRepository) ListAssignments(ctx context.Context, tenantID string, templateID string, filter domain.AssignmentFilter) ([]*domain.AllowanceAssignment, *domain.PageMeta, error) {
	if tenantID == "" {
		return nil, nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	where := "tenant_id = ? AND template_id = ?"
	args := []any{tenantID, templateID}

	if filter.Search != "" {
		where += " AND (user_name LIKE ? OR user_code LIKE ?)"
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM allowance_assignments WHERE " + where
	if err := r.db.QueryRowContext(ctx, r.rebind(countQuery), args...).Scan(&total); err != nil {
		return nil, nil, err
	}

	page, limit := normalizePage(filter.Page, filter.Limit)
	query := `SELECT ` + assignmentColumns + `
		FROM allowance_assignments
		WHERE ` + where + `
		ORDER BY assigned_at DESC, user_name ASC
		LIMIT ? OFFSET ?
	`
	args = append(args, limit, (page-1)*limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	assignments := []*domain.AllowanceAssignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, nil, err
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	return assignments, pageMeta(page, limit, total), nil
}

// DeleteAssignment removes a single assignment.
func (r *SQLRepository) DeleteAssignment(ctx context.Context, tenantID string, templateID string, assignmentID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `DELETE FROM allowance_assignments WHERE tenant_id = ? AND template_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), tenantID, templateID, assignmentID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAssignments removes a batch of assignments and reports how many rows
// were deleted. Unknown ids are ignored.
func (r *SQLRepository) DeleteAssignments(ctx context.Context, tenantID string, templateID string, assignmentIDs []string) (int, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if len(assignmentIDs) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(assignmentIDs)), ", ")
	query := `DELETE FROM allowance_assignments
		WHERE tenant_id = ? AND template_id = ? AND id IN (` + placeholders + `)`

	args := make([]any, 0, len(assignmentIDs)+2)
	args = append(args, tenantID, templateID)
	for _, id := range assignmentIDs {
		args = append(args, id)
	}

	result, err := r.db.ExecContext(ctx, r.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

// CountAssignments returns the number of assignments for a template.
func (r *SQLRepository) CountAssignments(ctx context.Context, tenantID string, templateID string) (int, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT COUNT(*) FROM allowance_assignments WHERE tenant_id = ? AND template_id = ?`

	var count int
	if err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, templateID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// SaveEmployee upserts one employee from the HR system of record.
func (r *SQLRepository) SaveEmployee(ctx context.Context, tenantID string, e *domain.Employee) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	tags, _ := json.Marshal(e.Tags)

	query := `
		INSERT INTO employees (
			id, tenant_id, code, name, email,
			department, department_id, branch, branch_id,
			position, position_id, job_grade, employment_type,
			tenure_months, confirmed, tags, cost_center_id, join_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			email = excluded.email,
			department = excluded.department,
			department_id = excluded.department_id,
			branch = excluded.branch,
			branch_id = excluded.branch_id,
			position = excluded.position,
			position_id = excluded.position_id,
			job_grade = excluded.job_grade,
			employment_type = excluded.employment_type,
			tenure_months = excluded.tenure_months,
			confirmed = excluded.confirmed,
			tags = excluded.tags,
			cost_center_id = excluded.cost_center_id,
			join_date = excluded.join_date
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		e.ID, tenantID, e.Code, e.Name, e.Email,
		e.Department, e.DepartmentID, e.Branch, e.BranchID,
		e.Position, e.PositionID, e.JobGrade, e.EmploymentType,
		e.TenureMonths, boolToInt(e.Confirmed), string(tags), e.CostCenterID, e.JoinDate,
	)
	return err
}

// ListEmployees retrieves the employee population, optionally filtered and
// paginated. A zero page returns the whole population, which is what the
// criteria evaluator wants.
func (r *SQLRepository) ListEmployees(ctx context.Context, tenantID string, filter domain.EmployeeFilter) ([]*domain.Employee, *domain.PageMeta, error) {
	if tenantID == "" {
		return nil, nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	where := "tenant_id = ?"
	args := []any{tenantID}

	if filter.Search != "" {
		where += " AND (name LIKE ? OR code LIKE ? OR department LIKE ?)"
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern, pattern)
	}
	if filter.ExcludeTemplateID != "" {
		where += ` AND id NOT IN (
			SELECT user_id FROM allowance_assignments
			WHERE tenant_id = ? AND template_id = ?)`
		args = append(args, tenantID, filter.ExcludeTemplateID)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM employees WHERE " + where
	if err := r.db.QueryRowContext(ctx, r.rebind(countQuery), args...).Scan(&total); err != nil {
		return nil, nil, err
	}

	query := `
		SELECT id, code, name, email,
			   department, department_id, branch, branch_id,
			   position, position_id, job_grade, employment_type,
			   tenure_months, confirmed, tags, cost_center_id, join_date
		FROM employees
		WHERE ` + where + `
		ORDER BY name ASC
	`

	page, limit := filter.Page, filter.Limit
	if page > 0 {
		if limit <= 0 {
			limit = defaultPageLimit
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, (page-1)*limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	employees := []*domain.Employee{}
	for rows.Next() {
		var e domain.Employee
		var confirmed int
		var tags string

		if err := rows.Scan(
			&e.ID, &e.Code, &e.Name, &e.Email,
			&e.Department, &e.DepartmentID, &e.Branch, &e.BranchID,
			&e.Position, &e.PositionID, &e.JobGrade, &e.EmploymentType,
			&e.TenureMonths, &confirmed, &tags, &e.CostCenterID, &e.JoinDate,
		); err != nil {
			return nil, nil, err
		}

		e.Confirmed = confirmed == 1
		if tags != "" && tags != "null" {
			json.Unmarshal([]byte(tags), &e.Tags)
		}
		employees = append(employees, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	if page == 0 {
		return employees, &domain.PageMeta{Total: total}, nil
	}
	return employees, pageMeta(page, limit, total), nil
}

// SaveLookupItems replaces the option list for one lookup key.
func (r *SQLRepository) SaveLookupItems(ctx context.Context, tenantID string, key string, items []domain.LookupItem) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		r.rebind(`DELETE FROM lookup_items WHERE tenant_id = ? AND lookup_key = ?`),
		tenantID, key,
	); err != nil {
		return err
	}

	insert := r.rebind(`
		INSERT INTO lookup_items (tenant_id, lookup_key, id, name, code, position)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	for i, item := range items {
		if _, err := tx.ExecContext(ctx, insert, tenantID, key, item.ID, item.Name, item.Code, i); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetLookupData retrieves every lookup key with its ordered options.
func (r *SQLRepository) GetLookupData(ctx context.Context, tenantID string) (domain.LookupData, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT lookup_key, id, name, code
		FROM lookup_items
		WHERE tenant_id = ?
		ORDER BY lookup_key, position
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	data := domain.LookupData{}
	for rows.Next() {
		var key string
		var item domain.LookupItem
		if err := rows.Scan(&key, &item.ID, &item.Name, &item.Code); err != nil {
			return nil, err
		}
		data[key] = append(data[key], item)
	}

	return data, rows.Err()
}

// SaveAuditEntry appends one immutable audit record.
func (r *SQLRepository) SaveAuditEntry(ctx context.Context, tenantID string, entry *domain.AuditEntry) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO audit_entries (
			id, tenant_id, action, entity_type, entity_id,
			detail, performed_by, performed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		entry.ID, tenantID, entry.Action, entry.EntityType, entry.EntityID,
		entry.Detail, entry.PerformedBy, entry.PerformedAt,
	)
	return err
}

// ListAuditEntries retrieves the audit trail for one entity, newest first.
func (r *SQLRepository) ListAuditEntries(ctx context.Context, tenantID string, entityID string) ([]*domain.AuditEntry, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, action, entity_type, entity_id,
			   detail, performed_by, performed_at
		FROM audit_entries
		WHERE tenant_id = ? AND entity_id = ?
		ORDER BY performed_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(
			&e.ID, &e.TenantID, &e.Action, &e.EntityType, &e.EntityID,
			&e.Detail, &e.PerformedBy, &e.PerformedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

const defaultPageLimit = 20

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	return page, limit
}

func pageMeta(page, limit, total int) *domain.PageMeta {
	totalPages := total / limit
	if total%limit > 0 {
		totalPages++
	}
	return &domain.PageMeta{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}

func marshalCriteria(set *domain.CriteriaSet) (string, error) {
	if set == nil {
		return "", nil
	}
	data, err := json.Marshal(set)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation detects a unique constraint failure across both drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "duplicate key value") // postgres
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
