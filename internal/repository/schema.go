package repository

// Schema definitions for the allowance database.
// Compatible with both SQLite and PostgreSQL.

const schemaTemplates = `
CREATE TABLE IF NOT EXISTS allowance_templates (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    code TEXT NOT NULL,
    description TEXT,
    type TEXT NOT NULL,
    amount_mode TEXT NOT NULL,
    amount REAL NOT NULL DEFAULT 0,
    formula_expression TEXT,
    formula_variables TEXT,
    currency TEXT NOT NULL,
    taxable INTEGER NOT NULL DEFAULT 0,
    prorate INTEGER NOT NULL DEFAULT 0,
    rate_per_day REAL NOT NULL DEFAULT 0,
    include_non_working_days INTEGER NOT NULL DEFAULT 0,
    prorate_by_join_date INTEGER NOT NULL DEFAULT 0,
    prorate_by_leave_date INTEGER NOT NULL DEFAULT 0,
    payout_date TEXT,
    payout_month TEXT,
    effective_start TEXT,
    effective_end TEXT,
    status TEXT NOT NULL,
    criteria TEXT,
    created_at TIMESTAMP NOT NULL,
    created_by TEXT,
    updated_at TIMESTAMP NOT NULL,
    updated_by TEXT,
    PRIMARY KEY (tenant_id, id),
    UNIQUE (tenant_id, code)
);

CREATE INDEX IF NOT EXISTS idx_templates_tenant ON allowance_templates(tenant_id);
CREATE INDEX IF NOT EXISTS idx_templates_status ON allowance_templates(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_templates_updated ON allowance_templates(tenant_id, updated_at);
`

// The unique constraint on (tenant_id, template_id, user_id) is what makes
// bulk assignment idempotent: a retry hits the constraint and is skipped.
const schemaAssignments = `
CREATE TABLE IF NOT EXISTS allowance_assignments (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    template_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    user_name TEXT,
    user_code TEXT,
    user_department TEXT,
    user_position TEXT,
    effective_start_override TEXT,
    effective_end_override TEXT,
    amount_override REAL,
    source TEXT NOT NULL,
    assigned_at TIMESTAMP NOT NULL,
    assigned_by TEXT,
    PRIMARY KEY (tenant_id, id),
    UNIQUE (tenant_id, template_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_assignments_template ON allowance_assignments(tenant_id, template_id);
CREATE INDEX IF NOT EXISTS idx_assignments_user ON allowance_assignments(tenant_id, user_id);
`

const schemaEmployees = `
CREATE TABLE IF NOT EXISTS employees (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    code TEXT,
    name TEXT NOT NULL,
    email TEXT,
    department TEXT,
    department_id TEXT,
    branch TEXT,
    branch_id TEXT,
    position TEXT,
    position_id TEXT,
    job_grade INTEGER NOT NULL DEFAULT 0,
    employment_type TEXT,
    tenure_months INTEGER NOT NULL DEFAULT 0,
    confirmed INTEGER NOT NULL DEFAULT 0,
    tags TEXT,
    cost_center_id TEXT,
    join_date TIMESTAMP,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_employees_tenant ON employees(tenant_id);
CREATE INDEX IF NOT EXISTS idx_employees_department ON employees(tenant_id, department_id);
`

const schemaLookupItems = `
CREATE TABLE IF NOT EXISTS lookup_items (
    tenant_id TEXT NOT NULL,
    lookup_key TEXT NOT NULL,
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    code TEXT,
    position INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (tenant_id, lookup_key, id)
);

CREATE INDEX IF NOT EXISTS idx_lookup_items_key ON lookup_items(tenant_id, lookup_key);
`

const schemaAuditEntries = `
CREATE TABLE IF NOT EXISTS audit_entries (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    action TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    detail TEXT,
    performed_by TEXT,
    performed_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_audit_entries_entity ON audit_entries(tenant_id, entity_id);
CREATE INDEX IF NOT EXISTS idx_audit_entries_time ON audit_entries(tenant_id, performed_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTemplates,
		schemaAssignments,
		schemaEmployees,
		schemaLookupItems,
		schemaAuditEntries,
	}
}
