package domain

import (
	"context"
	"time"
)

// Repository is the persistence boundary. All methods take a tenantID for
// strict tenant isolation.
type Repository interface {
	// Template operations
	SaveTemplate(ctx context.Context, tenantID string, tpl *AllowanceTemplate) error
	GetTemplate(ctx context.Context, tenantID string, templateID string) (*AllowanceTemplate, error)
	ListTemplates(ctx context.Context, tenantID string, filter TemplateFilter) ([]*AllowanceTemplate, *PageMeta, error)
	DeleteTemplate(ctx context.Context, tenantID string, templateID string) error
	TemplateCodeExists(ctx context.Context, tenantID string, code string, excludeID string) (bool, error)

	// Assignment operations
	SaveAssignment(ctx context.Context, tenantID string, a *AllowanceAssignment) error
	GetAssignmentByUser(ctx context.Context, tenantID string, templateID string, userID string) (*AllowanceAssignment, error)
	ListAssignments(ctx context.Context, tenantID string, templateID string, filter AssignmentFilter) ([]*AllowanceAssignment, *PageMeta, error)
	DeleteAssignment(ctx context.Context, tenantID string, templateID string, assignmentID string) error
	DeleteAssignments(ctx context.Context, tenantID string, templateID string, assignmentIDs []string) (int, error)
	CountAssignments(ctx context.Context, tenantID string, templateID string) (int, error)

	// Employee population (synced in from the HR system of record)
	SaveEmployee(ctx context.Context, tenantID string, e *Employee) error
	ListEmployees(ctx context.Context, tenantID string, filter EmployeeFilter) ([]*Employee, *PageMeta, error)

	// Lookup data
	SaveLookupItems(ctx context.Context, tenantID string, key string, items []LookupItem) error
	GetLookupData(ctx context.Context, tenantID string) (LookupData, error)

	// Audit trail
	SaveAuditEntry(ctx context.Context, tenantID string, entry *AuditEntry) error
	ListAuditEntries(ctx context.Context, tenantID string, entityID string) ([]*AuditEntry, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
