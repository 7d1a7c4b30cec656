package domain

import "time"

// AssignmentSource records how an assignment came to exist.
type AssignmentSource string

const (
	SourceManual   AssignmentSource = "MANUAL"
	SourceCriteria AssignmentSource = "CRITERIA"
)

// AllowanceAssignment links one employee to one template. At most one active
// assignment exists per (templateID, userID); duplicates are skipped on
// creation, never overwritten. Immutable once created except for the
// override fields.
type AllowanceAssignment struct {
	ID         string `json:"id"`
	TemplateID string `json:"templateId"`
	UserID     string `json:"userId"`

	// Denormalized for listings.
	UserName       string `json:"userName,omitempty"`
	UserCode       string `json:"userCode,omitempty"`
	UserDepartment string `json:"userDepartment,omitempty"`
	UserPosition   string `json:"userPosition,omitempty"`

	// Per-assignment overrides of the template's effective window and amount.
	EffectiveStartOverride string   `json:"effectiveStartOverride,omitempty"`
	EffectiveEndOverride   string   `json:"effectiveEndOverride,omitempty"`
	AmountOverride         *float64 `json:"amountOverride,omitempty"`

	Source     AssignmentSource `json:"assignmentSource"`
	AssignedAt time.Time        `json:"assignedAt"`
	AssignedBy string           `json:"assignedBy,omitempty"`
}

// AssignmentOverrides carries the optional per-call overrides for a bulk
// assignment.
type AssignmentOverrides struct {
	EffectiveStart string
	EffectiveEnd   string
	Amount         *float64
}

// BulkAssignResult reports the outcome of one materialization call.
// Skipped counts users that already held an active assignment.
type BulkAssignResult struct {
	Assigned       int                    `json:"assigned"`
	Skipped        int                    `json:"skipped"`
	SkippedUserIDs []string               `json:"skippedUserIds,omitempty"`
	Assignments    []*AllowanceAssignment `json:"assignments"`
}

// AssignmentFilter narrows an assignment list query.
type AssignmentFilter struct {
	Search string
	Page   int
	Limit  int
}
