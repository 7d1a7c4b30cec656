// Package template implements the allowance template lifecycle.
package template

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Izone425/allowancev2/internal/criteria"
	"github.com/Izone425/allowancev2/internal/domain"
	"github.com/Izone425/allowancev2/internal/formula"
	"github.com/Izone425/allowancev2/internal/repository"
)

var (
	// ErrInvalidCriteria wraps the per-rule validation messages.
	ErrInvalidCriteria = errors.New("invalid criteria")

	// ErrCodeTaken is returned when another template already uses the code.
	ErrCodeTaken = errors.New("template code already in use")
)

// CriteriaValidationError carries the per-rule messages from a rejected save.
type CriteriaValidationError struct {
	RuleErrors map[string]string
}

func (e *CriteriaValidationError) Error() string {
	return fmt.Sprintf("invalid criteria: %d rule(s) failed validation", len(e.RuleErrors))
}

func (e *CriteriaValidationError) Unwrap() error { return ErrInvalidCriteria }

// Service owns template create/update/archive/duplicate/delete and publishes
// lifecycle events for the audit worker.
type Service struct {
	repo    domain.Repository
	bus     domain.EventBus
	formula *formula.Validator
}

// NewService creates a template service.
func NewService(repo domain.Repository, bus domain.EventBus) (*Service, error) {
	validator, err := formula.NewValidator()
	if err != nil {
		return nil, err
	}
	return &Service{
		repo:    repo,
		bus:     bus,
		formula: validator,
	}, nil
}

// Create validates and persists a new template.
func (s *Service) Create(ctx context.Context, tenantID string, tpl *domain.AllowanceTemplate, createdBy string) (*domain.AllowanceTemplate, error) {
	if err := s.validate(ctx, tenantID, tpl, ""); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	tpl.ID = uuid.New().String()
	tpl.Status = domain.StatusActive
	tpl.CreatedAt = now
	tpl.CreatedBy = createdBy
	tpl.UpdatedAt = now
	tpl.UpdatedBy = createdBy
	if tpl.Currency == "" {
		tpl.Currency = domain.DefaultCurrency
	}

	if err := s.repo.SaveTemplate(ctx, tenantID, tpl); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrCodeTaken
		}
		return nil, err
	}

	s.publish(ctx, tenantID, domain.TopicTemplateCreated, tpl, createdBy)
	return tpl, nil
}

// Update validates and persists changes to an existing template. The
// identity and creation audit fields are preserved.
func (s *Service) Update(ctx context.Context, tenantID, templateID string, tpl *domain.AllowanceTemplate, updatedBy string) (*domain.AllowanceTemplate, error) {
	existing, err := s.repo.GetTemplate(ctx, tenantID, templateID)
	if err != nil {
		return nil, err
	}

	if err := s.validate(ctx, tenantID, tpl, templateID); err != nil {
		return nil, err
	}

	tpl.ID = existing.ID
	tpl.Status = existing.Status
	tpl.CreatedAt = existing.CreatedAt
	tpl.CreatedBy = existing.CreatedBy
	tpl.UpdatedAt = time.Now().UTC()
	tpl.UpdatedBy = updatedBy
	if tpl.Currency == "" {
		tpl.Currency = domain.DefaultCurrency
	}

	if err := s.repo.SaveTemplate(ctx, tenantID, tpl); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrCodeTaken
		}
		return nil, err
	}

	s.publish(ctx, tenantID, domain.TopicTemplateUpdated, tpl, updatedBy)
	return tpl, nil
}

// Get retrieves one template.
func (s *Service) Get(ctx context.Context, tenantID, templateID string) (*domain.AllowanceTemplate, error) {
	return s.repo.GetTemplate(ctx, tenantID, templateID)
}

// List retrieves a page of templates.
func (s *Service) List(ctx context.Context, tenantID string, filter domain.TemplateFilter) ([]*domain.AllowanceTemplate, *domain.PageMeta, error) {
	return s.repo.ListTemplates(ctx, tenantID, filter)
}

// Archive retires a template. Existing assignments stay in place; archived
// templates stop accepting new ones.
func (s *Service) Archive(ctx context.Context, tenantID, templateID, performedBy string) (*domain.AllowanceTemplate, error) {
	return s.setStatus(ctx, tenantID, templateID, domain.StatusArchived, domain.TopicTemplateArchived, performedBy)
}

// Unarchive restores an archived template to active.
func (s *Service) Unarchive(ctx context.Context, tenantID, templateID, performedBy string) (*domain.AllowanceTemplate, error) {
	return s.setStatus(ctx, tenantID, templateID, domain.StatusActive, domain.TopicTemplateUpdated, performedBy)
}

func (s *Service) setStatus(ctx context.Context, tenantID, templateID string, status domain.TemplateStatus, topic, performedBy string) (*domain.AllowanceTemplate, error) {
	tpl, err := s.repo.GetTemplate(ctx, tenantID, templateID)
	if err != nil {
		return nil, err
	}

	tpl.Status = status
	tpl.UpdatedAt = time.Now().UTC()
	tpl.UpdatedBy = performedBy

	if err := s.repo.SaveTemplate(ctx, tenantID, tpl); err != nil {
		return nil, err
	}

	s.publish(ctx, tenantID, topic, tpl, performedBy)
	return tpl, nil
}

// Duplicate copies a template under a new id with "<name> (Copy)" and a
// derived code. Criteria are deep-copied; assignments are not carried over.
func (s *Service) Duplicate(ctx context.Context, tenantID, templateID, performedBy string) (*domain.AllowanceTemplate, error) {
	source, err := s.repo.GetTemplate(ctx, tenantID, templateID)
	if err != nil {
		return nil, err
	}

	dup := *source
	dup.ID = uuid.New().String()
	dup.Name = source.Name + " (Copy)"
	dup.Code = s.freeCode(ctx, tenantID, source.Code)
	dup.Status = domain.StatusActive
	dup.Criteria = source.Criteria.Clone()
	dup.AssignmentCount = 0

	now := time.Now().UTC()
	dup.CreatedAt = now
	dup.CreatedBy = performedBy
	dup.UpdatedAt = now
	dup.UpdatedBy = performedBy

	if err := s.repo.SaveTemplate(ctx, tenantID, &dup); err != nil {
		return nil, err
	}

	s.publish(ctx, tenantID, domain.TopicTemplateCreated, &dup, performedBy)
	return &dup, nil
}

// freeCode derives an unused code from the source's by appending -COPY,
// -COPY2, and so on.
func (s *Service) freeCode(ctx context.Context, tenantID, base string) string {
	candidate := base + "-COPY"
	for i := 2; ; i++ {
		taken, err := s.repo.TemplateCodeExists(ctx, tenantID, candidate, "")
		if err != nil || !taken {
			return candidate
		}
		candidate = fmt.Sprintf("%s-COPY%d", base, i)
	}
}

// Delete removes a template; the repository cascades its assignments.
func (s *Service) Delete(ctx context.Context, tenantID, templateID, performedBy string) error {
	tpl, err := s.repo.GetTemplate(ctx, tenantID, templateID)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteTemplate(ctx, tenantID, templateID); err != nil {
		return err
	}

	s.publish(ctx, tenantID, domain.TopicTemplateDeleted, tpl, performedBy)
	return nil
}

// CheckCode reports whether a code is free, excluding the template being
// edited.
func (s *Service) CheckCode(ctx context.Context, tenantID, code, excludeID string) (bool, error) {
	taken, err := s.repo.TemplateCodeExists(ctx, tenantID, code, excludeID)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

func (s *Service) validate(ctx context.Context, tenantID string, tpl *domain.AllowanceTemplate, excludeID string) error {
	if tpl.Name == "" {
		return fmt.Errorf("%w: name is required", repository.ErrInvalidInput)
	}
	if tpl.Code == "" {
		return fmt.Errorf("%w: code is required", repository.ErrInvalidInput)
	}
	switch tpl.Type {
	case domain.TypeDaily, domain.TypeMonthly, domain.TypeOneOff:
	default:
		return fmt.Errorf("%w: unknown template type %q", repository.ErrInvalidInput, tpl.Type)
	}

	taken, err := s.repo.TemplateCodeExists(ctx, tenantID, tpl.Code, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return ErrCodeTaken
	}

	if tpl.AmountMode == domain.AmountFormula {
		if err := s.formula.Validate(tpl.FormulaExpression); err != nil {
			return fmt.Errorf("%w: %v", repository.ErrInvalidInput, err)
		}
	}

	if tpl.Criteria != nil {
		if ruleErrors := criteria.Validate(tpl.Criteria); len(ruleErrors) > 0 {
			return &CriteriaValidationError{RuleErrors: ruleErrors}
		}
	}

	return nil
}

// publish sends a lifecycle event. Best effort; template writes never roll
// back because the bus is down.
func (s *Service) publish(ctx context.Context, tenantID, topic string, tpl *domain.AllowanceTemplate, performedBy string) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"templateId":  tpl.ID,
		"name":        tpl.Name,
		"code":        tpl.Code,
		"performedBy": performedBy,
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, tenantID, topic, payload); err != nil {
		slog.Error("failed to publish template event",
			"topic", topic,
			"tenant_id", tenantID,
			"template_id", tpl.ID,
			"error", err)
	}
}
