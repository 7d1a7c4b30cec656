// Package formula validates amount formulas for formula-mode templates.
package formula

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/Izone425/allowancev2/internal/domain"
)

// Variables lists the identifiers a formula may reference, in the order
// they are presented to users.
func Variables() []domain.FormulaVariable {
	return []domain.FormulaVariable{
		{Name: "basicSalary", Field: "basic_salary", Description: "Employee monthly basic salary"},
		{Name: "workingDays", Field: "working_days", Description: "Working days in the payout period"},
		{Name: "attendedDays", Field: "attended_days", Description: "Days the employee attended in the payout period"},
		{Name: "tenure", Field: "tenure_months", Description: "Employee tenure in months"},
		{Name: "jobGrade", Field: "job_grade", Description: "Employee job grade level"},
	}
}

// Validator compiles formula expressions against the fixed variable set.
// Compilation results are cached by expression text.
type Validator struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]error
}

// NewValidator builds the CEL environment for formula validation.
func NewValidator() (*Validator, error) {
	opts := make([]cel.EnvOption, 0, 5)
	for _, v := range Variables() {
		opts = append(opts, cel.Variable(v.Name, cel.DoubleType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create formula environment: %w", err)
	}

	return &Validator{
		env:      env,
		compiled: make(map[string]error),
	}, nil
}

// Validate compiles and type-checks a formula expression. The result must be
// numeric. Compilation outcomes are cached, so repeated validation of the
// same expression is cheap.
func (v *Validator) Validate(expression string) error {
	if expression == "" {
		return fmt.Errorf("formula expression is required")
	}

	v.mu.RLock()
	cached, found := v.compiled[expression]
	v.mu.RUnlock()
	if found {
		return cached
	}

	err := v.compile(expression)

	v.mu.Lock()
	v.compiled[expression] = err
	v.mu.Unlock()

	return err
}

func (v *Validator) compile(expression string) error {
	ast, issues := v.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("invalid formula: %w", issues.Err())
	}

	switch ast.OutputType() {
	case cel.DoubleType, cel.IntType, cel.UintType:
		// numeric, fine
	default:
		return fmt.Errorf("formula must produce a number, got %s", ast.OutputType())
	}

	if _, err := v.env.Program(ast); err != nil {
		return fmt.Errorf("invalid formula: %w", err)
	}
	return nil
}
