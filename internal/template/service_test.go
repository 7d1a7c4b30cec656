package template

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Izone425/allowancev2/internal/domain"
	"github.com/Izone425/allowancev2/internal/repository"
)

const testTenant = "tenant-001"

func newTestService(t *testing.T) *Service {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "allowance-tmpl-test-*.db")
	require.NoError(t, err)
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	svc, err := NewService(repo, nil)
	require.NoError(t, err)
	return svc
}

func fixedTemplate(code string) *domain.AllowanceTemplate {
	return &domain.AllowanceTemplate{
		Name:           "Meal Allowance",
		Code:           code,
		Type:           domain.TypeDaily,
		AmountMode:     domain.AmountFixed,
		Amount:         15,
		RatePerDay:     15,
		EffectiveStart: "2026-01-01",
	}
}

func TestCreateTemplate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, testTenant, fixedTemplate("MEAL-01"), "hr_admin")
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, domain.StatusActive, created.Status)
	assert.Equal(t, domain.DefaultCurrency, created.Currency)
	assert.Equal(t, "hr_admin", created.CreatedBy)
	assert.False(t, created.CreatedAt.IsZero())
}

func TestCreateRejectsMissingFields(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	noName := fixedTemplate("X-01")
	noName.Name = ""
	_, err := svc.Create(ctx, testTenant, noName, "hr_admin")
	assert.Error(t, err)

	noCode := fixedTemplate("")
	_, err = svc.Create(ctx, testTenant, noCode, "hr_admin")
	assert.Error(t, err)

	badType := fixedTemplate("X-02")
	badType.Type = "WEEKLY"
	_, err = svc.Create(ctx, testTenant, badType, "hr_admin")
	assert.Error(t, err)
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, testTenant, fixedTemplate("MEAL-01"), "hr_admin")
	require.NoError(t, err)

	_, err = svc.Create(ctx, testTenant, fixedTemplate("MEAL-01"), "hr_admin")
	assert.ErrorIs(t, err, ErrCodeTaken)
}

func TestCreateValidatesFormula(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tpl := fixedTemplate("FORM-01")
	tpl.AmountMode = domain.AmountFormula
	tpl.FormulaExpression = "basicSalary * 0.1"
	_, err := svc.Create(ctx, testTenant, tpl, "hr_admin")
	require.NoError(t, err)

	bad := fixedTemplate("FORM-02")
	bad.AmountMode = domain.AmountFormula
	bad.FormulaExpression = "basicSalary >"
	_, err = svc.Create(ctx, testTenant, bad, "hr_admin")
	assert.Error(t, err)
}

func TestCreateValidatesCriteria(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tpl := fixedTemplate("CRIT-01")
	tpl.Criteria = &domain.CriteriaSet{
		GroupOperator: domain.GroupAnd,
		Groups: []domain.CriteriaGroup{
			{ID: "g1", Operator: domain.GroupAnd, Rules: []domain.CriteriaRule{
				// Empty multiselect fails validation.
				{ID: "r1", Field: domain.FieldDepartment, Operator: domain.OpIn,
					Value: domain.CriteriaValue{Kind: domain.KindMultiSelect}},
			}},
		},
	}

	_, err := svc.Create(ctx, testTenant, tpl, "hr_admin")
	require.Error(t, err)

	var cve *CriteriaValidationError
	require.ErrorAs(t, err, &cve)
	assert.Contains(t, cve.RuleErrors, "r1")
	assert.ErrorIs(t, err, ErrInvalidCriteria)
}

func TestUpdatePreservesIdentity(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, testTenant, fixedTemplate("MEAL-01"), "hr_admin")
	require.NoError(t, err)

	changed := fixedTemplate("MEAL-01")
	changed.Name = "Meal Allowance v2"
	updated, err := svc.Update(ctx, testTenant, created.ID, changed, "hr_editor")
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Meal Allowance v2", updated.Name)
	assert.Equal(t, "hr_admin", updated.CreatedBy)
	assert.Equal(t, "hr_editor", updated.UpdatedBy)
}

func TestUpdateAllowsKeepingOwnCode(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, testTenant, fixedTemplate("MEAL-01"), "hr_admin")
	require.NoError(t, err)

	// Re-saving with the same code must not trip the uniqueness check.
	_, err = svc.Update(ctx, testTenant, created.ID, fixedTemplate("MEAL-01"), "hr_admin")
	assert.NoError(t, err)
}

func TestArchiveAndUnarchive(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, testTenant, fixedTemplate("MEAL-01"), "hr_admin")
	require.NoError(t, err)

	archived, err := svc.Archive(ctx, testTenant, created.ID, "hr_admin")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusArchived, archived.Status)

	restored, err := svc.Unarchive(ctx, testTenant, created.ID, "hr_admin")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, restored.Status)
}

func TestDuplicate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	source := fixedTemplate("MEAL-01")
	source.Criteria = &domain.CriteriaSet{
		GroupOperator: domain.GroupAnd,
		Groups: []domain.CriteriaGroup{
			{ID: "g1", Operator: domain.GroupAnd, Rules: []domain.CriteriaRule{
				{ID: "r1", Field: domain.FieldDepartment, Operator: domain.OpIn,
					Value: domain.CriteriaValue{Kind: domain.KindMultiSelect, Items: []string{"dept_eng"}}},
			}},
		},
	}
	created, err := svc.Create(ctx, testTenant, source, "hr_admin")
	require.NoError(t, err)

	dup, err := svc.Duplicate(ctx, testTenant, created.ID, "hr_admin")
	require.NoError(t, err)

	assert.NotEqual(t, created.ID, dup.ID)
	assert.Equal(t, "Meal Allowance (Copy)", dup.Name)
	assert.Equal(t, "MEAL-01-COPY", dup.Code)
	assert.Equal(t, 0, dup.AssignmentCount)
	require.NotNil(t, dup.Criteria)
	assert.Len(t, dup.Criteria.Groups, 1)

	// A second duplicate gets the next free code.
	second, err := svc.Duplicate(ctx, testTenant, created.ID, "hr_admin")
	require.NoError(t, err)
	assert.Equal(t, "MEAL-01-COPY2", second.Code)
}

func TestDelete(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, testTenant, fixedTemplate("MEAL-01"), "hr_admin")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, testTenant, created.ID, "hr_admin"))

	_, err = svc.Get(ctx, testTenant, created.ID)
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestCheckCode(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, testTenant, fixedTemplate("MEAL-01"), "hr_admin")
	require.NoError(t, err)

	free, err := svc.CheckCode(ctx, testTenant, "MEAL-01", "")
	require.NoError(t, err)
	assert.False(t, free)

	free, err = svc.CheckCode(ctx, testTenant, "MEAL-01", created.ID)
	require.NoError(t, err)
	assert.True(t, free)

	free, err = svc.CheckCode(ctx, testTenant, "TRAVEL-01", "")
	require.NoError(t, err)
	assert.True(t, free)
}

func TestList(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, testTenant, fixedTemplate("MEAL-01"), "hr_admin")
	require.NoError(t, err)

	travel := fixedTemplate("TRAVEL-01")
	travel.Name = "Travel Allowance"
	travel.Type = domain.TypeMonthly
	_, err = svc.Create(ctx, testTenant, travel, "hr_admin")
	require.NoError(t, err)

	all, meta, err := svc.List(ctx, testTenant, domain.TemplateFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 2, meta.Total)

	monthly, _, err := svc.List(ctx, testTenant, domain.TemplateFilter{Type: domain.TypeMonthly})
	require.NoError(t, err)
	require.Len(t, monthly, 1)
	assert.Equal(t, "TRAVEL-01", monthly[0].Code)
}
