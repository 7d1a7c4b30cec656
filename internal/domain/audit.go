package domain

import "time"

// AuditAction identifies what happened to an entity.
type AuditAction string

const (
	AuditCreate    AuditAction = "CREATE"
	AuditUpdate    AuditAction = "UPDATE"
	AuditDelete    AuditAction = "DELETE"
	AuditArchive   AuditAction = "ARCHIVE"
	AuditUnarchive AuditAction = "UNARCHIVE"
	AuditDuplicate AuditAction = "DUPLICATE"
	AuditAssign    AuditAction = "ASSIGN"
	AuditUnassign  AuditAction = "UNASSIGN"
)

// AuditEntityType distinguishes what kind of entity an entry refers to.
type AuditEntityType string

const (
	AuditEntityTemplate   AuditEntityType = "TEMPLATE"
	AuditEntityAssignment AuditEntityType = "ASSIGNMENT"
)

// AuditEntry is one immutable record in the template/assignment audit trail.
// Entries are written asynchronously by the audit worker from bus events.
type AuditEntry struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenantId,omitempty"`
	Action      AuditAction     `json:"action"`
	EntityType  AuditEntityType `json:"entityType"`
	EntityID    string          `json:"entityId"`
	Detail      string          `json:"detail,omitempty"`
	PerformedBy string          `json:"performedBy,omitempty"`
	PerformedAt time.Time       `json:"performedAt"`
}
