package domain

import "time"

// AllowanceType determines the payout cadence of a template.
type AllowanceType string

const (
	TypeDaily   AllowanceType = "DAILY"
	TypeMonthly AllowanceType = "MONTHLY"
	TypeOneOff  AllowanceType = "ONE_OFF"
)

// AmountMode determines how the allowance amount is produced.
type AmountMode string

const (
	AmountFixed   AmountMode = "FIXED"
	AmountFormula AmountMode = "FORMULA"
)

// TemplateStatus is the lifecycle state of a template.
type TemplateStatus string

const (
	StatusActive   TemplateStatus = "ACTIVE"
	StatusArchived TemplateStatus = "ARCHIVED"
)

// FormulaVariable declares an employee attribute usable in a FORMULA
// expression. The expression is compiled and type-checked at template save;
// payroll evaluates it downstream.
type FormulaVariable struct {
	Name        string `json:"name"`
	Field       string `json:"field"`
	Description string `json:"description,omitempty"`
}

// AllowanceTemplate is a named rule defining how an allowance is computed
// and who is eligible to receive it.
type AllowanceTemplate struct {
	ID          string        `json:"id"`
	TenantID    string        `json:"tenantId,omitempty"`
	Name        string        `json:"name"`
	Code        string        `json:"code"`
	Description string        `json:"description,omitempty"`
	Type        AllowanceType `json:"type"`

	AmountMode        AmountMode        `json:"amountMode"`
	Amount            float64           `json:"amount"`
	FormulaExpression string            `json:"formulaExpression,omitempty"`
	FormulaVariables  []FormulaVariable `json:"formulaVariables,omitempty"`
	Currency          string            `json:"currency"`
	Taxable           bool              `json:"taxable"`
	Prorate           bool              `json:"prorate"`

	// Daily specifics
	RatePerDay            float64 `json:"ratePerDay,omitempty"`
	IncludeNonWorkingDays bool    `json:"includeNonWorkingDays,omitempty"`

	// Monthly specifics
	ProrateByJoinDate  bool `json:"prorateByJoinDate,omitempty"`
	ProrateByLeaveDate bool `json:"prorateByLeaveDate,omitempty"`

	// One-off specifics
	PayoutDate  string `json:"payoutDate,omitempty"`  // ISO date
	PayoutMonth string `json:"payoutMonth,omitempty"` // YYYY-MM

	EffectiveStart string `json:"effectiveStart"` // ISO date
	EffectiveEnd   string `json:"effectiveEnd,omitempty"`

	Status TemplateStatus `json:"status"`

	// Eligibility expression; nil means every employee is eligible.
	Criteria *CriteriaSet `json:"criteria,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy,omitempty"`

	// Computed on read.
	AssignmentCount int `json:"assignmentCount,omitempty"`
}

// TemplateFilter narrows a template list query.
type TemplateFilter struct {
	Search    string
	Type      AllowanceType
	Status    TemplateStatus
	SortBy    string // name, code, type, updated_at (default)
	SortDesc  bool
	Page      int // 1-based
	Limit     int
}

// PageMeta describes one page of a paginated listing.
type PageMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// DefaultCurrency is applied when a template omits its currency.
const DefaultCurrency = "MYR"
