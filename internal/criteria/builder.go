package criteria

import (
	"sync"

	"github.com/Izone425/allowancev2/internal/domain"
)

// Builder maintains one criteria set under structural edits. The set is
// always well-formed after every operation, though not necessarily valid.
//
// Every structural mutation bumps a revision counter. The revision is the
// staleness token for preview orchestration: a preview computed for revision
// N must be discarded once the builder has moved past N (last-request-wins,
// never first-response-wins).
type Builder struct {
	mu       sync.Mutex
	set      *domain.CriteriaSet
	errors   map[string]string
	revision uint64
}

// NewBuilder starts from an empty criteria set ("no restriction").
func NewBuilder() *Builder {
	return &Builder{
		set:    domain.EmptyCriteriaSet(),
		errors: map[string]string{},
	}
}

// RuleUpdate is a partial update to a rule. Nil fields are left untouched.
type RuleUpdate struct {
	Field    *domain.CriteriaField
	Operator *domain.CriteriaOperator
	Value    *domain.CriteriaValue
}

// Criteria returns a deep copy of the current set.
func (b *Builder) Criteria() *domain.CriteriaSet {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.set.Clone()
}

// Revision returns the current staleness token.
func (b *Builder) Revision() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.revision
}

// Snapshot returns a deep copy of the set together with the revision it
// belongs to, for issuing a preview request.
func (b *Builder) Snapshot() (*domain.CriteriaSet, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.set.Clone(), b.revision
}

// Errors returns the validation errors recorded for the current set, keyed
// by rule ID.
func (b *Builder) Errors() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]string, len(b.errors))
	for k, v := range b.errors {
		out[k] = v
	}
	return out
}

// Valid reports whether the current set is ready for preview or submit.
func (b *Builder) Valid() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.errors) == 0
}

// AddGroup appends a new AND group seeded with one default rule and returns
// the group's id.
func (b *Builder) AddGroup() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	group := NewGroup()
	b.set.Groups = append(b.set.Groups, group)
	b.touch()
	return group.ID
}

// RemoveGroup removes the group. Absent ids are a no-op, not an error.
func (b *Builder) RemoveGroup(groupID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, g := range b.set.Groups {
		if g.ID != groupID {
			continue
		}
		for _, r := range g.Rules {
			delete(b.errors, r.ID)
		}
		b.set.Groups = append(b.set.Groups[:i], b.set.Groups[i+1:]...)
		b.touch()
		return
	}
}

// SetGroupOperator changes how rules combine within one group.
func (b *Builder) SetGroupOperator(groupID string, op domain.GroupOperator) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if g := b.findGroup(groupID); g != nil {
		g.Operator = op
		b.touch()
	}
}

// SetGlobalOperator changes how groups combine within the set.
func (b *Builder) SetGlobalOperator(op domain.GroupOperator) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.set.GroupOperator = op
	b.touch()
}

// AddRule appends a default rule to the group and returns its id. A missing
// group is a silent no-op and returns "".
func (b *Builder) AddRule(groupID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	g := b.findGroup(groupID)
	if g == nil {
		return ""
	}
	rule := NewRule(domain.DefaultField())
	g.Rules = append(g.Rules, rule)
	b.revalidate(rule)
	b.touch()
	return rule.ID
}

// RemoveRule removes the rule and clears any validation error recorded for
// it. Absent ids are a no-op.
func (b *Builder) RemoveRule(groupID, ruleID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	g := b.findGroup(groupID)
	if g == nil {
		return
	}
	for i, r := range g.Rules {
		if r.ID == ruleID {
			g.Rules = append(g.Rules[:i], g.Rules[i+1:]...)
			delete(b.errors, ruleID)
			b.touch()
			return
		}
	}
}

// UpdateRule applies a partial update. Changing the field resets the
// operator to the new field's default and the value to the correct empty
// shape, so a rule can never point at an operator invalid for its field.
// Changing the operator re-shapes the value when the expected kind differs.
// The rule is re-validated after every update.
func (b *Builder) UpdateRule(groupID, ruleID string, update RuleUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()

	g := b.findGroup(groupID)
	if g == nil {
		return
	}
	for i := range g.Rules {
		rule := &g.Rules[i]
		if rule.ID != ruleID {
			continue
		}

		switch {
		case update.Field != nil && *update.Field != rule.Field:
			spec, ok := domain.FieldSpecFor(*update.Field)
			if !ok {
				return
			}
			rule.Field = spec.Field
			rule.Operator = spec.DefaultOperator()
			rule.Value = DefaultValueFor(domain.ExpectedKind(rule.Field, rule.Operator))
		default:
			if update.Operator != nil {
				oldKind := domain.ExpectedKind(rule.Field, rule.Operator)
				rule.Operator = *update.Operator
				if newKind := domain.ExpectedKind(rule.Field, rule.Operator); newKind != oldKind {
					rule.Value = DefaultValueFor(newKind)
				}
			}
			if update.Value != nil {
				rule.Value = *update.Value
			}
		}

		b.revalidate(*rule)
		b.touch()
		return
	}
}

// SetCriteria replaces the whole set, e.g. when loading a stored template
// for editing. Passing nil resets to the empty set.
func (b *Builder) SetCriteria(set *domain.CriteriaSet) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if set == nil {
		b.set = domain.EmptyCriteriaSet()
	} else {
		b.set = set.Clone()
	}
	b.errors = Validate(b.set)
	b.touch()
}

// Reset discards all groups and errors.
func (b *Builder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.set = domain.EmptyCriteriaSet()
	b.errors = map[string]string{}
	b.touch()
}

func (b *Builder) findGroup(groupID string) *domain.CriteriaGroup {
	for i := range b.set.Groups {
		if b.set.Groups[i].ID == groupID {
			return &b.set.Groups[i]
		}
	}
	return nil
}

func (b *Builder) revalidate(rule domain.CriteriaRule) {
	if msg, ok := ValidateRule(rule); !ok {
		b.errors[rule.ID] = msg
	} else {
		delete(b.errors, rule.ID)
	}
}

// touch bumps the revision, invalidating any preview issued for an earlier
// state. Callers must hold b.mu.
func (b *Builder) touch() {
	b.revision++
}
