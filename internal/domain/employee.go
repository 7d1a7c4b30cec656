package domain

import "time"

// Employee is an evaluation input owned by the HR system of record.
// The criteria engine reads it and never mutates it.
type Employee struct {
	ID             string    `json:"id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Department     string    `json:"department"`
	DepartmentID   string    `json:"departmentId"`
	Branch         string    `json:"branch"`
	BranchID       string    `json:"branchId"`
	Position       string    `json:"position"`
	PositionID     string    `json:"positionId"`
	JobGrade       int       `json:"jobGrade"`
	EmploymentType string    `json:"employmentType"`
	TenureMonths   int       `json:"tenureMonths"`
	Confirmed      bool      `json:"isConfirmed"`
	Tags           []string  `json:"tags"`
	CostCenterID   string    `json:"costCenterId,omitempty"`
	JoinDate       time.Time `json:"joinDate"`
}

// EmployeeFilter narrows an employee population fetch.
type EmployeeFilter struct {
	Search            string // matches name, code, or department
	ExcludeTemplateID string // drop employees already assigned to this template
	Page              int    // 1-based; 0 means no pagination
	Limit             int
}

// PreviewResult is the outcome of evaluating a criteria set against the
// current employee population. Nothing is persisted.
type PreviewResult struct {
	EligibleCount   int         `json:"eligibleCount"`
	EligibleUserIDs []string    `json:"eligibleUserIds"`
	EligibleUsers   []*Employee `json:"eligibleUsers,omitempty"`
}

// LookupItem is one option in a multiselect value domain.
type LookupItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
}

// LookupData maps a lookup key (departments, branches, jobGrades,
// employmentTypes, positions, costCenters) to its ordered options.
type LookupData map[string][]LookupItem
