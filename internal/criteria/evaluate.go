package criteria

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Izone425/allowancev2/internal/domain"
)

// ContractViolationError reports malformed criteria reaching the evaluator
// despite validation. It indicates a builder/validator bug, so it is surfaced
// distinctly instead of being swallowed as "zero eligible".
type ContractViolationError struct {
	RuleID string
	Detail string
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("criteria contract violation at rule %s: %s", e.RuleID, e.Detail)
}

// Matches decides whether one employee satisfies the criteria set.
//
// A set with no groups matches every employee, and a group with no rules is
// vacuously true regardless of its operator. The only error condition is a
// contract violation; a well-formed set never fails per employee.
func Matches(set *domain.CriteriaSet, emp *domain.Employee) (bool, error) {
	if set == nil || len(set.Groups) == 0 {
		return true, nil
	}

	for _, group := range set.Groups {
		groupMatch, err := matchGroup(group, emp)
		if err != nil {
			return false, err
		}
		switch set.GroupOperator {
		case domain.GroupAnd:
			if !groupMatch {
				return false, nil
			}
		case domain.GroupOr:
			if groupMatch {
				return true, nil
			}
		default:
			return false, &ContractViolationError{Detail: fmt.Sprintf("unknown group operator %q", set.GroupOperator)}
		}
	}

	// AND: no group failed. OR: no group succeeded.
	return set.GroupOperator == domain.GroupAnd, nil
}

func matchGroup(group domain.CriteriaGroup, emp *domain.Employee) (bool, error) {
	if len(group.Rules) == 0 {
		return true, nil
	}

	for _, rule := range group.Rules {
		ruleMatch, err := matchRule(rule, emp)
		if err != nil {
			return false, err
		}
		switch group.Operator {
		case domain.GroupAnd:
			if !ruleMatch {
				return false, nil
			}
		case domain.GroupOr:
			if ruleMatch {
				return true, nil
			}
		default:
			return false, &ContractViolationError{RuleID: rule.ID, Detail: fmt.Sprintf("unknown group operator %q", group.Operator)}
		}
	}
	return group.Operator == domain.GroupAnd, nil
}

// matchRule evaluates one rule against the employee. A missing or unknown
// employee attribute makes the rule false; it never throws and never acts as
// a wildcard match.
func matchRule(rule domain.CriteriaRule, emp *domain.Employee) (bool, error) {
	spec, ok := domain.FieldSpecFor(rule.Field)
	if !ok {
		return false, &ContractViolationError{RuleID: rule.ID, Detail: fmt.Sprintf("unknown field %q", rule.Field)}
	}
	if !spec.AllowsOperator(rule.Operator) {
		return false, &ContractViolationError{RuleID: rule.ID, Detail: fmt.Sprintf("operator %s not allowed for field %s", rule.Operator, rule.Field)}
	}
	if got, want := rule.Value.Kind, domain.ExpectedKind(rule.Field, rule.Operator); got != want {
		return false, &ContractViolationError{RuleID: rule.ID, Detail: fmt.Sprintf("value kind %s does not match expected %s", got, want)}
	}

	switch rule.Field {
	case domain.FieldDepartment:
		return matchSet(rule.Operator, emp.DepartmentID, rule.Value.Items), nil
	case domain.FieldBranch:
		return matchSet(rule.Operator, emp.BranchID, rule.Value.Items), nil
	case domain.FieldPosition:
		return matchSet(rule.Operator, emp.PositionID, rule.Value.Items), nil
	case domain.FieldEmploymentType:
		return matchSet(rule.Operator, emp.EmploymentType, rule.Value.Items), nil
	case domain.FieldCostCenter:
		return matchSet(rule.Operator, emp.CostCenterID, rule.Value.Items), nil
	case domain.FieldJobGrade:
		// IN/NOT_IN compare against the grade's lookup id, which is the
		// decimal string of the grade level. Comparison operators use the
		// numeric level directly.
		switch rule.Operator {
		case domain.OpIn, domain.OpNotIn:
			return matchSet(rule.Operator, strconv.Itoa(emp.JobGrade), rule.Value.Items), nil
		default:
			return matchNumber(rule.Operator, float64(emp.JobGrade), rule.Value), nil
		}
	case domain.FieldTenureMonths:
		return matchNumber(rule.Operator, float64(emp.TenureMonths), rule.Value), nil
	case domain.FieldConfirmationStatus:
		if rule.Operator == domain.OpIsTrue {
			return emp.Confirmed, nil
		}
		return !emp.Confirmed, nil
	case domain.FieldCustomTags:
		return intersects(emp.Tags, rule.Value.Items), nil
	}

	return false, &ContractViolationError{RuleID: rule.ID, Detail: fmt.Sprintf("unhandled field %q", rule.Field)}
}

// matchSet applies IN/NOT_IN. Comparisons are case-sensitive identifier
// equality. A missing attribute makes the rule false for both operators:
// an employee with no value on file is never a wildcard match, not even
// for NOT_IN.
func matchSet(op domain.CriteriaOperator, attr string, items []string) bool {
	if attr == "" {
		return false
	}
	found := false
	for _, item := range items {
		if item == attr {
			found = true
			break
		}
	}
	if op == domain.OpNotIn {
		return !found
	}
	return found
}

// matchNumber applies the numeric comparison operators. BETWEEN is inclusive
// on both ends.
func matchNumber(op domain.CriteriaOperator, attr float64, value domain.CriteriaValue) bool {
	switch op {
	case domain.OpEquals:
		return attr == value.Number
	case domain.OpNotEquals:
		return attr != value.Number
	case domain.OpGreaterThan:
		return attr > value.Number
	case domain.OpGreaterThanOrEquals:
		return attr >= value.Number
	case domain.OpLessThan:
		return attr < value.Number
	case domain.OpLessThanOrEquals:
		return attr <= value.Number
	case domain.OpBetween:
		return attr >= value.Range.Min && attr <= value.Range.Max
	default:
		return false
	}
}

// intersects reports whether the two string sets share at least one element.
// Matching is exact and case-sensitive.
func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}

// EvaluateAll computes the eligible subset of the population. Evaluation is
// all-or-nothing: either every employee is evaluated and a complete result
// returned, or the whole operation fails with a contract violation. The set
// is checked up front so a malformed rule cannot fail halfway through.
func EvaluateAll(ctx context.Context, set *domain.CriteriaSet, population []*domain.Employee) (*domain.PreviewResult, error) {
	if errs := Validate(set); len(errs) > 0 {
		for ruleID, msg := range errs {
			return nil, &ContractViolationError{RuleID: ruleID, Detail: msg}
		}
	}

	result := &domain.PreviewResult{EligibleUserIDs: []string{}}
	for _, emp := range population {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := Matches(set, emp)
		if err != nil {
			return nil, err
		}
		if ok {
			result.EligibleUserIDs = append(result.EligibleUserIDs, emp.ID)
			result.EligibleUsers = append(result.EligibleUsers, emp)
		}
	}
	result.EligibleCount = len(result.EligibleUserIDs)
	return result, nil
}
