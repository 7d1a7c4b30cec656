package criteria

import (
	"math"

	"github.com/Izone425/allowancev2/internal/domain"
)

// Validation messages surfaced per rule. These are user-facing and resolved
// by further edits, never by retry.
const (
	msgSelectValue  = "Please select at least one value"
	msgValidNumber  = "Please enter a valid number"
	msgMinBeforeMax = "Min value must be less than max value"
	msgEnterTag     = "Please enter at least one tag"
	msgBadOperator  = "Operator is not valid for this field"
	msgUnknownField = "Unknown field"
)

// ValidateRule checks a single rule's value shape against its field and
// operator. It returns the error message and false when the rule is not
// ready to evaluate.
func ValidateRule(rule domain.CriteriaRule) (string, bool) {
	spec, ok := domain.FieldSpecFor(rule.Field)
	if !ok {
		return msgUnknownField, false
	}
	if !spec.AllowsOperator(rule.Operator) {
		return msgBadOperator, false
	}

	switch domain.ExpectedKind(rule.Field, rule.Operator) {
	case domain.KindMultiSelect:
		if len(rule.Value.Items) == 0 {
			return msgSelectValue, false
		}
	case domain.KindTags:
		if len(rule.Value.Items) == 0 {
			return msgEnterTag, false
		}
	case domain.KindNumber:
		if math.IsNaN(rule.Value.Number) || math.IsInf(rule.Value.Number, 0) {
			return msgValidNumber, false
		}
	case domain.KindRange:
		if rule.Value.Range.Min >= rule.Value.Range.Max {
			return msgMinBeforeMax, false
		}
	case domain.KindBoolean:
		// The operator alone encodes the boolean; no value shape to check.
	}
	return "", true
}

// Validate checks a whole criteria set and returns a mapping of rule ID to
// error message. An empty map means the set is ready to evaluate. A set with
// zero rules is always valid: it means "no restriction", not "no match".
//
// The map is recomputed from scratch on every call, so removed rules can
// never leave stale entries behind.
func Validate(set *domain.CriteriaSet) map[string]string {
	errs := make(map[string]string)
	if set == nil {
		return errs
	}
	for _, group := range set.Groups {
		for _, rule := range group.Rules {
			if msg, ok := ValidateRule(rule); !ok {
				errs[rule.ID] = msg
			}
		}
	}
	return errs
}

// Valid reports whether the set passes validation.
func Valid(set *domain.CriteriaSet) bool {
	return len(Validate(set)) == 0
}
