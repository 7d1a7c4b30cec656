// Package criteria implements the eligibility criteria engine: the builder
// that edits a criteria set, the validator that decides whether it is ready
// to evaluate, the evaluator that computes membership over an employee
// population, and the debounced preview orchestration.
package criteria

import (
	"github.com/google/uuid"

	"github.com/Izone425/allowancev2/internal/domain"
)

// DefaultValueFor returns the empty value of the correct shape for a kind.
// Every fresh rule and every field change goes through this single factory,
// so a value's shape can never drift from its field's declared kind.
func DefaultValueFor(kind domain.ValueKind) domain.CriteriaValue {
	v := domain.CriteriaValue{Kind: kind}
	switch kind {
	case domain.KindMultiSelect, domain.KindTags:
		v.Items = []string{}
	case domain.KindBoolean:
		v.Bool = true
	case domain.KindNumber:
		v.Number = 0
	case domain.KindRange:
		v.Range = domain.NumberRange{}
	}
	return v
}

// NewRule creates a rule on the given field with the field's default
// operator and a type-appropriate empty value. Falls back to the first
// field in the table when the field is unknown.
func NewRule(field domain.CriteriaField) domain.CriteriaRule {
	spec, ok := domain.FieldSpecFor(field)
	if !ok {
		spec, _ = domain.FieldSpecFor(domain.DefaultField())
	}
	op := spec.DefaultOperator()
	return domain.CriteriaRule{
		ID:       uuid.New().String(),
		Field:    spec.Field,
		Operator: op,
		Value:    DefaultValueFor(domain.ExpectedKind(spec.Field, op)),
	}
}

// NewGroup creates an AND group seeded with one default rule, so an editing
// surface never shows an empty group.
func NewGroup() domain.CriteriaGroup {
	return domain.CriteriaGroup{
		ID:       uuid.New().String(),
		Operator: domain.GroupAnd,
		Rules:    []domain.CriteriaRule{NewRule(domain.DefaultField())},
	}
}
