// Package domain defines the core types and interfaces for the allowance service.
package domain

import (
	"encoding/json"
	"fmt"
)

// GroupOperator combines rule results within a group, or group results
// within a criteria set.
type GroupOperator string

const (
	GroupAnd GroupOperator = "AND"
	GroupOr  GroupOperator = "OR"
)

// CriteriaField is an employee attribute a rule can compare against.
type CriteriaField string

const (
	FieldDepartment         CriteriaField = "DEPARTMENT"
	FieldBranch             CriteriaField = "BRANCH"
	FieldJobGrade           CriteriaField = "JOB_GRADE"
	FieldEmploymentType     CriteriaField = "EMPLOYMENT_TYPE"
	FieldTenureMonths       CriteriaField = "TENURE_MONTHS"
	FieldConfirmationStatus CriteriaField = "CONFIRMATION_STATUS"
	FieldCustomTags         CriteriaField = "CUSTOM_TAGS"
	FieldPosition           CriteriaField = "POSITION"
	FieldCostCenter         CriteriaField = "COST_CENTER"
)

// CriteriaOperator is the comparison applied between a rule's value and the
// employee attribute.
type CriteriaOperator string

const (
	OpIn                  CriteriaOperator = "IN"
	OpNotIn               CriteriaOperator = "NOT_IN"
	OpEquals              CriteriaOperator = "EQUALS"
	OpNotEquals           CriteriaOperator = "NOT_EQUALS"
	OpGreaterThan         CriteriaOperator = "GREATER_THAN"
	OpGreaterThanOrEquals CriteriaOperator = "GREATER_THAN_OR_EQUALS"
	OpLessThan            CriteriaOperator = "LESS_THAN"
	OpLessThanOrEquals    CriteriaOperator = "LESS_THAN_OR_EQUALS"
	OpBetween             CriteriaOperator = "BETWEEN"
	OpContainsAny         CriteriaOperator = "CONTAINS_ANY"
	OpIsTrue              CriteriaOperator = "IS_TRUE"
	OpIsFalse             CriteriaOperator = "IS_FALSE"
)

// ValueKind tags the shape a rule value carries on the wire and in memory.
type ValueKind string

const (
	KindMultiSelect ValueKind = "multiselect" // set of identifier strings
	KindNumber      ValueKind = "number"
	KindBoolean     ValueKind = "boolean"
	KindTags        ValueKind = "tags" // set of free-form strings
	KindRange       ValueKind = "range"
)

// NumberRange is the BETWEEN operand. Both bounds are inclusive.
type NumberRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// CriteriaValue is a tagged variant. Exactly one of the payload fields is
// meaningful, selected by Kind. The kind is never probed at runtime: it is
// derived from the owning rule's field and operator via ExpectedKind.
type CriteriaValue struct {
	Kind   ValueKind
	Items  []string // KindMultiSelect, KindTags
	Number float64  // KindNumber
	Bool   bool     // KindBoolean
	Range  NumberRange
}

// MarshalJSON serializes the value according to its kind: arrays as ordered
// lists, ranges as {min,max} objects, booleans and numbers as literals.
func (v CriteriaValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindMultiSelect, KindTags:
		if v.Items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Items)
	case KindNumber:
		return json.Marshal(v.Number)
	case KindBoolean:
		return json.Marshal(v.Bool)
	case KindRange:
		return json.Marshal(v.Range)
	default:
		return nil, fmt.Errorf("criteria value has unknown kind %q", v.Kind)
	}
}

// DecodeCriteriaValue parses raw JSON into the shape the given kind expects.
func DecodeCriteriaValue(raw json.RawMessage, kind ValueKind) (CriteriaValue, error) {
	v := CriteriaValue{Kind: kind}
	if len(raw) == 0 {
		return v, nil
	}
	switch kind {
	case KindMultiSelect, KindTags:
		if err := json.Unmarshal(raw, &v.Items); err != nil {
			return v, fmt.Errorf("expected a string array: %w", err)
		}
	case KindNumber:
		if err := json.Unmarshal(raw, &v.Number); err != nil {
			return v, fmt.Errorf("expected a number: %w", err)
		}
	case KindBoolean:
		if err := json.Unmarshal(raw, &v.Bool); err != nil {
			return v, fmt.Errorf("expected a boolean: %w", err)
		}
	case KindRange:
		if err := json.Unmarshal(raw, &v.Range); err != nil {
			return v, fmt.Errorf("expected a {min,max} object: %w", err)
		}
	default:
		return v, fmt.Errorf("unknown value kind %q", kind)
	}
	return v, nil
}

// CriteriaRule is a single field/operator/value comparison.
type CriteriaRule struct {
	ID       string           `json:"id"`
	Field    CriteriaField    `json:"field"`
	Operator CriteriaOperator `json:"operator"`
	Value    CriteriaValue    `json:"value"`
}

// UnmarshalJSON decodes the polymorphic value using the field/operator table,
// so a rule never carries a value whose kind disagrees with its operator.
func (r *CriteriaRule) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       string           `json:"id"`
		Field    CriteriaField    `json:"field"`
		Operator CriteriaOperator `json:"operator"`
		Value    json.RawMessage  `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	spec, ok := FieldSpecFor(raw.Field)
	if !ok {
		return fmt.Errorf("rule %s: unknown criteria field %q", raw.ID, raw.Field)
	}
	if !spec.AllowsOperator(raw.Operator) {
		return fmt.Errorf("rule %s: operator %s is not valid for field %s", raw.ID, raw.Operator, raw.Field)
	}

	value, err := DecodeCriteriaValue(raw.Value, ExpectedKind(raw.Field, raw.Operator))
	if err != nil {
		return fmt.Errorf("rule %s: %w", raw.ID, err)
	}

	r.ID = raw.ID
	r.Field = raw.Field
	r.Operator = raw.Operator
	r.Value = value
	return nil
}

// CriteriaGroup is an ordered sequence of rules combined with Operator.
// A group with zero rules is vacuously true, never "no match".
type CriteriaGroup struct {
	ID       string         `json:"id"`
	Operator GroupOperator  `json:"operator"`
	Rules    []CriteriaRule `json:"rules"`
}

// CriteriaSet is the top-level eligibility expression: groups combined with
// GroupOperator. An empty Groups sequence means every employee is eligible.
type CriteriaSet struct {
	ID            string          `json:"id,omitempty"`
	TemplateID    string          `json:"templateId,omitempty"`
	GroupOperator GroupOperator   `json:"groupOperator"`
	Groups        []CriteriaGroup `json:"groups"`
}

// RuleCount returns the total number of rules across all groups.
func (s *CriteriaSet) RuleCount() int {
	n := 0
	for _, g := range s.Groups {
		n += len(g.Rules)
	}
	return n
}

// HasRules reports whether any group contains at least one rule.
func (s *CriteriaSet) HasRules() bool { return s.RuleCount() > 0 }

// Clone returns a deep copy of the set.
func (s *CriteriaSet) Clone() *CriteriaSet {
	if s == nil {
		return nil
	}
	out := &CriteriaSet{
		ID:            s.ID,
		TemplateID:    s.TemplateID,
		GroupOperator: s.GroupOperator,
	}
	for _, g := range s.Groups {
		cg := CriteriaGroup{ID: g.ID, Operator: g.Operator}
		for _, r := range g.Rules {
			cr := r
			if r.Value.Items != nil {
				cr.Value.Items = append([]string(nil), r.Value.Items...)
			}
			cg.Rules = append(cg.Rules, cr)
		}
		out.Groups = append(out.Groups, cg)
	}
	return out
}

// EmptyCriteriaSet returns the "no restriction" expression.
func EmptyCriteriaSet() *CriteriaSet {
	return &CriteriaSet{GroupOperator: GroupAnd, Groups: []CriteriaGroup{}}
}

// FieldSpec describes one criteria field: the shape its values take, the
// lookup list that feeds multiselect options, and the operators it allows,
// in presentation order (the first operator is the builder default).
type FieldSpec struct {
	Field     CriteriaField
	Label     string
	Kind      ValueKind
	LookupKey string // empty when the field has no lookup-backed options
	Operators []CriteriaOperator
}

// AllowsOperator reports whether op is in the field's closed operator set.
func (s FieldSpec) AllowsOperator(op CriteriaOperator) bool {
	for _, o := range s.Operators {
		if o == op {
			return true
		}
	}
	return false
}

// DefaultOperator returns the field's first allowed operator.
func (s FieldSpec) DefaultOperator() CriteriaOperator { return s.Operators[0] }

// fieldSpecs is the single source of truth for the field -> operator -> value
// shape mapping. Builder defaults, the validator, the evaluator, and JSON
// decoding all consult this table.
var fieldSpecs = []FieldSpec{
	{
		Field: FieldDepartment, Label: "Department",
		Kind: KindMultiSelect, LookupKey: "departments",
		Operators: []CriteriaOperator{OpIn, OpNotIn},
	},
	{
		Field: FieldBranch, Label: "Branch",
		Kind: KindMultiSelect, LookupKey: "branches",
		Operators: []CriteriaOperator{OpIn, OpNotIn},
	},
	{
		Field: FieldJobGrade, Label: "Job Grade",
		Kind: KindMultiSelect, LookupKey: "jobGrades",
		Operators: []CriteriaOperator{OpIn, OpNotIn, OpGreaterThanOrEquals, OpLessThanOrEquals, OpBetween},
	},
	{
		Field: FieldEmploymentType, Label: "Employment Type",
		Kind: KindMultiSelect, LookupKey: "employmentTypes",
		Operators: []CriteriaOperator{OpIn, OpNotIn},
	},
	{
		Field: FieldTenureMonths, Label: "Tenure (Months)",
		Kind: KindNumber,
		Operators: []CriteriaOperator{OpGreaterThanOrEquals, OpLessThanOrEquals, OpEquals, OpBetween},
	},
	{
		Field: FieldConfirmationStatus, Label: "Confirmation Status",
		Kind: KindBoolean,
		Operators: []CriteriaOperator{OpIsTrue, OpIsFalse},
	},
	{
		Field: FieldCustomTags, Label: "Custom Tags",
		Kind: KindTags,
		Operators: []CriteriaOperator{OpContainsAny},
	},
	{
		Field: FieldPosition, Label: "Position",
		Kind: KindMultiSelect, LookupKey: "positions",
		Operators: []CriteriaOperator{OpIn, OpNotIn},
	},
	{
		Field: FieldCostCenter, Label: "Cost Center",
		Kind: KindMultiSelect, LookupKey: "costCenters",
		Operators: []CriteriaOperator{OpIn, OpNotIn},
	},
}

// FieldSpecs returns the field table in presentation order.
func FieldSpecs() []FieldSpec { return fieldSpecs }

// DefaultField is the field a freshly created rule starts on.
func DefaultField() CriteriaField { return fieldSpecs[0].Field }

// FieldSpecFor looks up the spec for a field.
func FieldSpecFor(field CriteriaField) (FieldSpec, bool) {
	for _, s := range fieldSpecs {
		if s.Field == field {
			return s, true
		}
	}
	return FieldSpec{}, false
}

// ExpectedKind returns the value shape a (field, operator) pair requires.
// Comparison operators on a multiselect-backed numeric field (JOB_GRADE)
// narrow the shape to a plain number; BETWEEN always takes a range.
func ExpectedKind(field CriteriaField, op CriteriaOperator) ValueKind {
	spec, ok := FieldSpecFor(field)
	if !ok {
		return KindMultiSelect
	}
	switch op {
	case OpBetween:
		return KindRange
	case OpGreaterThan, OpGreaterThanOrEquals, OpLessThan, OpLessThanOrEquals, OpEquals, OpNotEquals:
		return KindNumber
	case OpIsTrue, OpIsFalse:
		return KindBoolean
	default:
		return spec.Kind
	}
}
