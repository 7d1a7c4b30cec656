// Package assignment materializes template eligibility into per-employee
// assignment rows.
package assignment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Izone425/allowancev2/internal/criteria"
	"github.com/Izone425/allowancev2/internal/domain"
	"github.com/Izone425/allowancev2/internal/repository"
)

// Service creates and removes allowance assignments. Bulk operations on the
// same template are serialized so concurrent materializations cannot race
// each other into duplicates.
type Service struct {
	repo domain.Repository
	bus  domain.EventBus

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates an assignment service.
func NewService(repo domain.Repository, bus domain.EventBus) *Service {
	return &Service{
		repo:  repo,
		bus:   bus,
		locks: make(map[string]*sync.Mutex),
	}
}

// templateLock returns the mutex serializing bulk operations for one
// template within one tenant.
func (s *Service) templateLock(tenantID, templateID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tenantID + ":" + templateID
	lock, exists := s.locks[key]
	if !exists {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

// BulkAssign assigns a template to a set of users. Users that already hold
// an assignment for the template are skipped, never overwritten, which makes
// a retry of the same call a no-op. Duplicate ids within the call are
// collapsed before processing.
func (s *Service) BulkAssign(ctx context.Context, tenantID, templateID string, userIDs []string, source domain.AssignmentSource, assignedBy string, overrides *domain.AssignmentOverrides) (*domain.BulkAssignResult, error) {
	if templateID == "" {
		return nil, fmt.Errorf("%w: templateID is required", repository.ErrInvalidInput)
	}
	if len(userIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one userID is required", repository.ErrInvalidInput)
	}

	lock := s.templateLock(tenantID, templateID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.repo.GetTemplate(ctx, tenantID, templateID); err != nil {
		return nil, err
	}

	employees, err := s.employeeIndex(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	result := &domain.BulkAssignResult{
		Assignments: []*domain.AllowanceAssignment{},
	}

	seen := make(map[string]bool, len(userIDs))
	for _, userID := range userIDs {
		if userID == "" || seen[userID] {
			continue
		}
		seen[userID] = true

		existing, err := s.repo.GetAssignmentByUser(ctx, tenantID, templateID, userID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		if existing != nil {
			result.Skipped++
			result.SkippedUserIDs = append(result.SkippedUserIDs, userID)
			continue
		}

		a := s.newAssignment(templateID, userID, source, assignedBy, overrides, employees[userID])
		if err := s.repo.SaveAssignment(ctx, tenantID, a); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				// Lost a race against the unique constraint; same outcome
				// as the skip path above.
				result.Skipped++
				result.SkippedUserIDs = append(result.SkippedUserIDs, userID)
				continue
			}
			return nil, err
		}

		result.Assigned++
		result.Assignments = append(result.Assignments, a)
		s.publish(ctx, tenantID, domain.TopicAssignmentCreated, a)
	}

	return result, nil
}

// Materialize evaluates the template's criteria against the full employee
// population and assigns every eligible user. Assignments created this way
// carry the CRITERIA source.
func (s *Service) Materialize(ctx context.Context, tenantID, templateID, performedBy string) (*domain.BulkAssignResult, error) {
	tpl, err := s.repo.GetTemplate(ctx, tenantID, templateID)
	if err != nil {
		return nil, err
	}

	population, _, err := s.repo.ListEmployees(ctx, tenantID, domain.EmployeeFilter{})
	if err != nil {
		return nil, err
	}

	eligible, err := criteria.EvaluateAll(ctx, tpl.Criteria, population)
	if err != nil {
		return nil, err
	}
	if eligible.EligibleCount == 0 {
		return &domain.BulkAssignResult{Assignments: []*domain.AllowanceAssignment{}}, nil
	}

	return s.BulkAssign(ctx, tenantID, templateID, eligible.EligibleUserIDs, domain.SourceCriteria, performedBy, nil)
}

// List returns the assignments for a template.
func (s *Service) List(ctx context.Context, tenantID, templateID string, filter domain.AssignmentFilter) ([]*domain.AllowanceAssignment, *domain.PageMeta, error) {
	return s.repo.ListAssignments(ctx, tenantID, templateID, filter)
}

// Remove deletes a single assignment.
func (s *Service) Remove(ctx context.Context, tenantID, templateID, assignmentID string) error {
	if err := s.repo.DeleteAssignment(ctx, tenantID, templateID, assignmentID); err != nil {
		return err
	}
	s.publish(ctx, tenantID, domain.TopicAssignmentRemoved, map[string]string{
		"templateId":   templateID,
		"assignmentId": assignmentID,
	})
	return nil
}

// RemoveBulk deletes a batch of assignments and reports how many rows went
// away. Unknown ids are ignored.
func (s *Service) RemoveBulk(ctx context.Context, tenantID, templateID string, assignmentIDs []string) (int, error) {
	if len(assignmentIDs) == 0 {
		return 0, nil
	}

	removed, err := s.repo.DeleteAssignments(ctx, tenantID, templateID, assignmentIDs)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.publish(ctx, tenantID, domain.TopicAssignmentRemoved, map[string]any{
			"templateId":    templateID,
			"assignmentIds": assignmentIDs,
			"removed":       removed,
		})
	}
	return removed, nil
}

func (s *Service) newAssignment(templateID, userID string, source domain.AssignmentSource, assignedBy string, overrides *domain.AssignmentOverrides, emp *domain.Employee) *domain.AllowanceAssignment {
	a := &domain.AllowanceAssignment{
		ID:         uuid.New().String(),
		TemplateID: templateID,
		UserID:     userID,
		Source:     source,
		AssignedAt: time.Now().UTC(),
		AssignedBy: assignedBy,
	}
	if emp != nil {
		a.UserName = emp.Name
		a.UserCode = emp.Code
		a.UserDepartment = emp.Department
		a.UserPosition = emp.Position
	}
	if overrides != nil {
		a.EffectiveStartOverride = overrides.EffectiveStart
		a.EffectiveEndOverride = overrides.EffectiveEnd
		a.AmountOverride = overrides.Amount
	}
	return a
}

func (s *Service) employeeIndex(ctx context.Context, tenantID string) (map[string]*domain.Employee, error) {
	employees, _, err := s.repo.ListEmployees(ctx, tenantID, domain.EmployeeFilter{})
	if err != nil {
		return nil, err
	}
	index := make(map[string]*domain.Employee, len(employees))
	for _, e := range employees {
		index[e.ID] = e
	}
	return index, nil
}

// publish sends a lifecycle event. Event delivery is best effort; assignment
// writes never roll back because the bus is down.
func (s *Service) publish(ctx context.Context, tenantID, topic string, payload any) {
	if s.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal assignment event",
			"topic", topic,
			"error", err)
		return
	}
	if err := s.bus.Publish(ctx, tenantID, topic, data); err != nil {
		slog.Error("failed to publish assignment event",
			"topic", topic,
			"tenant_id", tenantID,
			"error", err)
	}
}
