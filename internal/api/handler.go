package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Izone425/allowancev2/internal/assignment"
	"github.com/Izone425/allowancev2/internal/cache"
	"github.com/Izone425/allowancev2/internal/criteria"
	"github.com/Izone425/allowancev2/internal/domain"
	"github.com/Izone425/allowancev2/internal/repository"
	"github.com/Izone425/allowancev2/internal/template"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	templates   *template.Service
	assignments *assignment.Service
	previewer   *criteria.Previewer
	repo        domain.Repository
	cache       domain.Cache
	version     string
}

// NewHandler creates a new API handler.
func NewHandler(templates *template.Service, assignments *assignment.Service, previewer *criteria.Previewer, repo domain.Repository, cache domain.Cache, version string) *Handler {
	return &Handler{
		templates:   templates,
		assignments: assignments,
		previewer:   previewer,
		repo:        repo,
		cache:       cache,
		version:     version,
	}
}

// Close releases handler-owned resources.
func (h *Handler) Close() {
	if h.previewer != nil {
		h.previewer.Close()
	}
}

// cachedEmployeeSource serves preview populations from the cache, falling
// back to the repository and priming the cache on a miss.
type cachedEmployeeSource struct {
	repo  domain.Repository
	cache domain.Cache
}

func (s *cachedEmployeeSource) FetchEmployees(ctx context.Context, tenantID string, filter domain.EmployeeFilter) ([]*domain.Employee, error) {
	// Only the unfiltered full population is cacheable.
	if s.cache != nil && filter == (domain.EmployeeFilter{}) {
		if employees, err := cache.GetEmployees(ctx, s.cache, tenantID); err == nil && employees != nil {
			return employees, nil
		}
	}

	employees, _, err := s.repo.ListEmployees(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && filter == (domain.EmployeeFilter{}) {
		if err := cache.SetEmployees(ctx, s.cache, tenantID, employees); err != nil {
			slog.Error("failed to cache employee population",
				"tenant_id", tenantID,
				"error", err)
		}
	}

	return employees, nil
}

// listMeta wraps a paginated response body.
type listResponse struct {
	Data any              `json:"data"`
	Meta *domain.PageMeta `json:"meta,omitempty"`
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ============================================================================
// TEMPLATE HANDLERS
// ============================================================================

// ListTemplates handles GET /allowance-templates.
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	q := r.URL.Query()
	filter := domain.TemplateFilter{
		Search:   q.Get("search"),
		Type:     domain.AllowanceType(q.Get("type")),
		Status:   domain.TemplateStatus(q.Get("status")),
		SortBy:   q.Get("sortBy"),
		SortDesc: q.Get("order") == "desc",
		Page:     queryInt(q.Get("page")),
		Limit:    queryInt(q.Get("limit")),
	}

	templates, meta, err := h.templates.List(ctx, tenantID, filter)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listResponse{Data: templates, Meta: meta})
}

// CreateTemplate handles POST /allowance-templates.
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var tpl domain.AllowanceTemplate
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	created, err := h.templates.Create(ctx, tenantID, &tpl, GetActor(ctx))
	if err != nil {
		h.writeError(w, err)
		return
	}

	slog.Info("template created",
		"tenant_id", tenantID,
		"template_id", created.ID,
		"code", created.Code,
	)
	writeJSON(w, http.StatusCreated, created)
}

// GetTemplate handles GET /allowance-templates/{id}.
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	templateID := chi.URLParam(r, "id")

	tpl, err := h.templates.Get(ctx, tenantID, templateID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tpl)
}

// UpdateTemplate handles PUT /allowance-templates/{id}.
func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	templateID := chi.URLParam(r, "id")

	var tpl domain.AllowanceTemplate
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	updated, err := h.templates.Update(ctx, tenantID, templateID, &tpl, GetActor(ctx))
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// DeleteTemplate handles DELETE /allowance-templates/{id}.
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	templateID := chi.URLParam(r, "id")

	if err := h.templates.Delete(ctx, tenantID, templateID, GetActor(ctx)); err != nil {
		h.writeError(w, err)
		return
	}

	slog.Info("template deleted",
		"tenant_id", tenantID,
		"template_id", templateID,
	)
	w.WriteHeader(http.StatusNoContent)
}

// ArchiveTemplate handles POST /allowance-templates/{id}/archive.
func (h *Handler) ArchiveTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	templateID := chi.URLParam(r, "id")

	tpl, err := h.templates.Archive(ctx, tenantID, templateID, GetActor(ctx))
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tpl)
}

// UnarchiveTemplate handles POST /allowance-templates/{id}/unarchive.
func (h *Handler) UnarchiveTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	templateID := chi.URLParam(r, "id")

	tpl, err := h.templates.Unarchive(ctx, tenantID, templateID, GetActor(ctx))
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tpl)
}

// DuplicateTemplate handles POST /allowance-templates/{id}/duplicate.
func (h *Handler) DuplicateTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	templateID := chi.URLParam(r, "id")

	dup, err := h.templates.Duplicate(ctx, tenantID, templateID, GetActor(ctx))
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, dup)
}

// CheckCode handles GET /allowance-templates/check-code.
func (h *Handler) CheckCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "code query parameter is required",
		})
		return
	}

	available, err := h.templates.CheckCode(ctx, tenantID, code, r.URL.Query().Get("excludeId"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{
		"available": available,
	})
}

// ============================================================================
// PREVIEW HANDLERS
// ============================================================================

// previewRequest is the body for the criteria preview endpoints.
type previewRequest struct {
	Criteria *domain.CriteriaSet `json:"criteria"`
}

// PreviewCriteria handles POST /criteria/preview for templates that do not
// exist yet. Invalid criteria are rejected with per-rule errors; a missing
// or empty criteria set previews the whole population.
func (h *Handler) PreviewCriteria(w http.ResponseWriter, r *http.Request) {
	h.preview(w, r, "")
}

// PreviewTemplateCriteria handles POST /allowance-templates/{id}/criteria/preview.
// A request body with criteria previews the draft; an empty body previews
// the stored criteria.
func (h *Handler) PreviewTemplateCriteria(w http.ResponseWriter, r *http.Request) {
	h.preview(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request, templateID string) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req previewRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid JSON request body",
			})
			return
		}
	}

	set := req.Criteria
	if set == nil && templateID != "" {
		tpl, err := h.templates.Get(ctx, tenantID, templateID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		set = tpl.Criteria
	}
	if set == nil {
		set = &domain.CriteriaSet{}
	}

	if ruleErrors := criteria.Validate(set); len(ruleErrors) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      "criteria validation failed",
			"ruleErrors": ruleErrors,
		})
		return
	}

	result, err := h.previewer.PreviewNow(ctx, tenantID, templateID, set)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ============================================================================
// ASSIGNMENT HANDLERS
// ============================================================================

// ListAssignments handles GET /allowance-templates/{id}/assignments.
func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	templateID := chi.URLParam(r, "id")

	q := r.URL.Query()
	filter := domain.AssignmentFilter{
		Search: q.Get("search"),
		Page:   queryInt(q.Get("page")),
		Limit:  queryInt(q.Get("limit")),
	}

	assignments, meta, err := h.assignments.List(ctx, tenantID, templateID, filter)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listResponse{Data: assignments, Meta: meta})
}

// bulkAssignRequest is the body for POST /allowance-templates/{id}/assignments.
// With FromCriteria set the template's stored criteria select the users and
// UserIDs is ignored.
type bulkAssignRequest struct {
	UserIDs                []string `json:"userIds"`
	FromCriteria           bool     `json:"fromCriteria,omitempty"`
	EffectiveStartOverride string   `json:"effectiveStartOverride,omitempty"`
	EffectiveEndOverride   string   `json:"effectiveEndOverride,omitempty"`
	AmountOverride         *float64 `json:"amountOverride,omitempty"`
}

// BulkAssign handles POST /allowance-templates/{id}/assignments.
// Responds 201 when every requested user was assigned and 200 when some were
// skipped as already assigned.
func (h *Handler) BulkAssign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	templateID := chi.URLParam(r, "id")

	var req bulkAssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	var result *domain.BulkAssignResult
	var err error

	if req.FromCriteria {
		result, err = h.assignments.Materialize(ctx, tenantID, templateID, GetActor(ctx))
	} else {
		if len(req.UserIDs) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "userIds is required",
			})
			return
		}
		var overrides *domain.AssignmentOverrides
		if req.EffectiveStartOverride != "" || req.EffectiveEndOverride != "" || req.AmountOverride != nil {
			overrides = &domain.AssignmentOverrides{
				EffectiveStart: req.EffectiveStartOverride,
				EffectiveEnd:   req.EffectiveEndOverride,
				Amount:         req.AmountOverride,
			}
		}
		result, err = h.assignments.BulkAssign(ctx, tenantID, templateID, req.UserIDs, domain.SourceManual, GetActor(ctx), overrides)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Skipped > 0 {
		status = http.StatusOK
	}

	slog.Info("bulk assignment completed",
		"tenant_id", tenantID,
		"template_id", templateID,
		"assigned", result.Assigned,
		"skipped", result.Skipped,
	)
	writeJSON(w, status, result)
}

// RemoveAssignment handles DELETE /allowance-templates/{id}/assignments/{assignmentId}.
func (h *Handler) RemoveAssignment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	templateID := chi.URLParam(r, "id")
	assignmentID := chi.URLParam(r, "assignmentId")

	if err := h.assignments.Remove(ctx, tenantID, templateID, assignmentID); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// bulkRemoveRequest is the body for the bulk-remove endpoint.
type bulkRemoveRequest struct {
	AssignmentIDs []string `json:"assignmentIds"`
}

// BulkRemoveAssignments handles POST /allowance-templates/{id}/assignments/bulk-remove.
func (h *Handler) BulkRemoveAssignments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	templateID := chi.URLParam(r, "id")

	var req bulkRemoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	removed, err := h.assignments.RemoveBulk(ctx, tenantID, templateID, req.AssignmentIDs)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"removed": removed,
	})
}

// ============================================================================
// AUDIT / LOOKUP / USER HANDLERS
// ============================================================================

// ListAudit handles GET /allowance-templates/{id}/audit.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	templateID := chi.URLParam(r, "id")

	entries, err := h.repo.ListAuditEntries(ctx, tenantID, templateID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listResponse{Data: entries})
}

// GetLookups handles GET /lookups. Lookup data changes rarely and is served
// from the cache when warm.
func (h *Handler) GetLookups(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.cache != nil {
		if data, err := cache.GetLookups(ctx, h.cache, tenantID); err == nil && data != nil {
			writeJSON(w, http.StatusOK, data)
			return
		}
	}

	data, err := h.repo.GetLookupData(ctx, tenantID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if h.cache != nil {
		if err := cache.SetLookups(ctx, h.cache, tenantID, data); err != nil {
			slog.Error("failed to cache lookup data",
				"tenant_id", tenantID,
				"error", err)
		}
	}

	writeJSON(w, http.StatusOK, data)
}

// SyncLookups handles PUT /lookups/sync. The body maps lookup keys to their
// full ordered option lists; each key is replaced wholesale.
func (h *Handler) SyncLookups(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var data domain.LookupData
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	for key, items := range data {
		if err := h.repo.SaveLookupItems(ctx, tenantID, key, items); err != nil {
			h.writeError(w, err)
			return
		}
	}

	if h.cache != nil {
		if err := h.cache.Delete(ctx, tenantID, domain.CacheKeyLookups); err != nil {
			slog.Error("failed to invalidate lookup cache",
				"tenant_id", tenantID,
				"error", err)
		}
	}

	slog.Info("lookup data synced",
		"tenant_id", tenantID,
		"key_count", len(data),
	)
	writeJSON(w, http.StatusOK, map[string]int{
		"synced": len(data),
	})
}

// ListUsers handles GET /users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	q := r.URL.Query()
	filter := domain.EmployeeFilter{
		Search:            q.Get("search"),
		ExcludeTemplateID: q.Get("excludeTemplateId"),
		Page:              queryInt(q.Get("page")),
		Limit:             queryInt(q.Get("limit")),
	}

	employees, meta, err := h.repo.ListEmployees(ctx, tenantID, filter)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listResponse{Data: employees, Meta: meta})
}

// SyncUsers handles PUT /users/sync: an upsert of the employee population
// from the HR system of record.
func (h *Handler) SyncUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var employees []*domain.Employee
	if err := json.NewDecoder(r.Body).Decode(&employees); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	for _, e := range employees {
		if err := h.repo.SaveEmployee(ctx, tenantID, e); err != nil {
			h.writeError(w, err)
			return
		}
	}

	// The cached population is stale now.
	if h.cache != nil {
		if err := h.cache.Delete(ctx, tenantID, domain.CacheKeyEmployees); err != nil {
			slog.Error("failed to invalidate employee cache",
				"tenant_id", tenantID,
				"error", err)
		}
	}
	h.previewer.Invalidate()

	slog.Info("employee population synced",
		"tenant_id", tenantID,
		"count", len(employees),
	)
	writeJSON(w, http.StatusOK, map[string]int{
		"synced": len(employees),
	})
}

// ============================================================================
// HELPERS
// ============================================================================

// writeError maps service and repository errors to HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var criteriaErr *template.CriteriaValidationError
	if errors.As(err, &criteriaErr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      "criteria validation failed",
			"ruleErrors": criteriaErr.RuleErrors,
		})
		return
	}

	var violation *criteria.ContractViolationError
	if errors.As(err, &violation) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": violation.Error(),
		})
		return
	}

	switch {
	case errors.Is(err, template.ErrCodeTaken):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "template code is already in use",
		})
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "not found",
		})
	case errors.Is(err, repository.ErrDuplicate):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": err.Error(),
		})
	case errors.Is(err, repository.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}

func queryInt(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
