package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/Izone425/allowancev2/internal/bus"
	"github.com/Izone425/allowancev2/internal/cache"
	"github.com/Izone425/allowancev2/internal/domain"
	"github.com/Izone425/allowancev2/internal/repository"
)

const testTenant = "tenant-001"

// createTestServer wires a server over a throwaway SQLite database, an
// in-memory cache and a channel bus, seeded with a small employee population.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "allowance-api-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	memCache, err := cache.New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	server, err := NewServer(cfg, repo, memCache, eventBus, 0, "test-v1")
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	t.Cleanup(server.Handler().Close)

	seedEmployees(t, server)

	return server
}

func seedEmployees(t *testing.T, server *Server) {
	t.Helper()

	employees := []*domain.Employee{
		{ID: "user_001", Code: "EMP001", Name: "Alice", DepartmentID: "dept_eng", Department: "Engineering", JobGrade: 6, TenureMonths: 30, Confirmed: true},
		{ID: "user_002", Code: "EMP002", Name: "Bala", DepartmentID: "dept_eng", Department: "Engineering", JobGrade: 3, TenureMonths: 8},
		{ID: "user_003", Code: "EMP003", Name: "Chen", DepartmentID: "dept_sales", Department: "Sales", JobGrade: 5, TenureMonths: 50, Confirmed: true},
	}

	body, _ := json.Marshal(employees)
	rr := doRequest(t, server, http.MethodPut, "/users/sync", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("failed to seed employees: %d %s", rr.Code, rr.Body.String())
	}
}

func doRequest(t *testing.T, server *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewBuffer(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", testTenant)
	req.Header.Set("X-User-ID", "hr_admin")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func createTemplate(t *testing.T, server *Server, name, code string) *domain.AllowanceTemplate {
	t.Helper()

	tpl := domain.AllowanceTemplate{
		Name:       name,
		Code:       code,
		Type:       domain.TypeMonthly,
		AmountMode: domain.AmountFixed,
		Amount:     150,
	}
	body, _ := json.Marshal(tpl)
	rr := doRequest(t, server, http.MethodPost, "/allowance-templates", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("failed to create template: %d %s", rr.Code, rr.Body.String())
	}

	var created domain.AllowanceTemplate
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return &created
}

func TestTemplateEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("CreateAndGet", func(t *testing.T) {
		created := createTemplate(t, server, "Meal Allowance", "MEAL-01")

		if created.ID == "" {
			t.Error("expected id in response")
		}
		if created.Status != domain.StatusActive {
			t.Errorf("expected status ACTIVE, got %s", created.Status)
		}
		if created.Currency != domain.DefaultCurrency {
			t.Errorf("expected default currency, got %s", created.Currency)
		}
		if created.CreatedBy != "hr_admin" {
			t.Errorf("expected createdBy from X-User-ID, got %q", created.CreatedBy)
		}

		rr := doRequest(t, server, http.MethodGet, "/allowance-templates/"+created.ID, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("MissingTenantID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/allowance-templates", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/allowance-templates", []byte("not-json"))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingName", func(t *testing.T) {
		body, _ := json.Marshal(domain.AllowanceTemplate{Code: "X-01", Type: domain.TypeDaily})
		rr := doRequest(t, server, http.MethodPost, "/allowance-templates", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("DuplicateCodeConflicts", func(t *testing.T) {
		createTemplate(t, server, "Transport", "TRN-01")

		body, _ := json.Marshal(domain.AllowanceTemplate{
			Name: "Transport Again", Code: "TRN-01", Type: domain.TypeMonthly,
		})
		rr := doRequest(t, server, http.MethodPost, "/allowance-templates", body)
		if rr.Code != http.StatusConflict {
			t.Errorf("expected status 409, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("InvalidCriteriaIs422", func(t *testing.T) {
		body := []byte(`{
			"name": "Criteria Test", "code": "CRIT-01", "type": "MONTHLY",
			"criteria": {
				"groupOperator": "AND",
				"groups": [{
					"id": "g1", "operator": "AND",
					"rules": [{
						"id": "r1", "field": "DEPARTMENT", "operator": "IN",
						"value": []
					}]
				}]
			}
		}`)

		rr := doRequest(t, server, http.MethodPost, "/allowance-templates", body)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			RuleErrors map[string]string `json:"ruleErrors"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.RuleErrors["r1"] == "" {
			t.Errorf("expected a rule error keyed by rule id, got %v", resp.RuleErrors)
		}
	})

	t.Run("CheckCode", func(t *testing.T) {
		createTemplate(t, server, "Phone", "PHONE-01")

		rr := doRequest(t, server, http.MethodGet, "/allowance-templates/check-code?code=PHONE-01", nil)
		var resp map[string]bool
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp["available"] {
			t.Error("expected taken code to be unavailable")
		}

		rr = doRequest(t, server, http.MethodGet, "/allowance-templates/check-code?code=FRESH-99", nil)
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if !resp["available"] {
			t.Error("expected fresh code to be available")
		}
	})

	t.Run("UpdateAndList", func(t *testing.T) {
		created := createTemplate(t, server, "Parking", "PARK-01")

		created.Name = "Parking Allowance"
		body, _ := json.Marshal(created)
		rr := doRequest(t, server, http.MethodPut, "/allowance-templates/"+created.ID, body)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = doRequest(t, server, http.MethodGet, "/allowance-templates?search=Parking", nil)
		var resp struct {
			Data []*domain.AllowanceTemplate `json:"data"`
			Meta *domain.PageMeta            `json:"meta"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if len(resp.Data) != 1 || resp.Data[0].Name != "Parking Allowance" {
			t.Errorf("expected the renamed template in search results, got %v", resp.Data)
		}
		if resp.Meta == nil || resp.Meta.Total != 1 {
			t.Errorf("expected meta with total 1, got %+v", resp.Meta)
		}
	})

	t.Run("ArchiveUnarchive", func(t *testing.T) {
		created := createTemplate(t, server, "Gym", "GYM-01")

		rr := doRequest(t, server, http.MethodPost, "/allowance-templates/"+created.ID+"/archive", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var archived domain.AllowanceTemplate
		json.Unmarshal(rr.Body.Bytes(), &archived)
		if archived.Status != domain.StatusArchived {
			t.Errorf("expected status ARCHIVED, got %s", archived.Status)
		}

		rr = doRequest(t, server, http.MethodPost, "/allowance-templates/"+created.ID+"/unarchive", nil)
		var restored domain.AllowanceTemplate
		json.Unmarshal(rr.Body.Bytes(), &restored)
		if restored.Status != domain.StatusActive {
			t.Errorf("expected status ACTIVE, got %s", restored.Status)
		}
	})

	t.Run("Duplicate", func(t *testing.T) {
		created := createTemplate(t, server, "Laptop", "LAP-01")

		rr := doRequest(t, server, http.MethodPost, "/allowance-templates/"+created.ID+"/duplicate", nil)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		var dup domain.AllowanceTemplate
		json.Unmarshal(rr.Body.Bytes(), &dup)
		if dup.Name != "Laptop (Copy)" {
			t.Errorf("expected copy name, got %q", dup.Name)
		}
		if dup.Code != "LAP-01-COPY" {
			t.Errorf("expected derived code, got %q", dup.Code)
		}
	})

	t.Run("DeleteThenGetIs404", func(t *testing.T) {
		created := createTemplate(t, server, "Temp", "TMP-01")

		rr := doRequest(t, server, http.MethodDelete, "/allowance-templates/"+created.ID, nil)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("expected status 204, got %d", rr.Code)
		}

		rr = doRequest(t, server, http.MethodGet, "/allowance-templates/"+created.ID, nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestPreviewEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("AdHocPreview", func(t *testing.T) {
		body := []byte(`{
			"criteria": {
				"groupOperator": "AND",
				"groups": [{
					"id": "g1", "operator": "AND",
					"rules": [{
						"id": "r1", "field": "DEPARTMENT", "operator": "IN",
						"value": ["dept_eng"]
					}]
				}]
			}
		}`)

		rr := doRequest(t, server, http.MethodPost, "/criteria/preview", body)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var result domain.PreviewResult
		json.Unmarshal(rr.Body.Bytes(), &result)
		if result.EligibleCount != 2 {
			t.Errorf("expected 2 eligible engineers, got %d", result.EligibleCount)
		}
	})

	t.Run("EmptyCriteriaMatchesEveryone", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/criteria/preview", []byte(`{}`))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var result domain.PreviewResult
		json.Unmarshal(rr.Body.Bytes(), &result)
		if result.EligibleCount != 3 {
			t.Errorf("expected whole population eligible, got %d", result.EligibleCount)
		}
	})

	t.Run("InvalidCriteriaIs422", func(t *testing.T) {
		body := []byte(`{
			"criteria": {
				"groupOperator": "AND",
				"groups": [{
					"id": "g1", "operator": "AND",
					"rules": [{
						"id": "r1", "field": "TENURE_MONTHS", "operator": "BETWEEN",
						"value": {"min": 24, "max": 12}
					}]
				}]
			}
		}`)

		rr := doRequest(t, server, http.MethodPost, "/criteria/preview", body)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status 422, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("StoredCriteriaPreview", func(t *testing.T) {
		body := []byte(`{
			"name": "Eng Only", "code": "ENG-01", "type": "MONTHLY",
			"criteria": {
				"groupOperator": "AND",
				"groups": [{
					"id": "g1", "operator": "AND",
					"rules": [{
						"id": "r1", "field": "DEPARTMENT", "operator": "IN",
						"value": ["dept_sales"]
					}]
				}]
			}
		}`)
		rr := doRequest(t, server, http.MethodPost, "/allowance-templates", body)
		if rr.Code != http.StatusCreated {
			t.Fatalf("failed to create template: %d %s", rr.Code, rr.Body.String())
		}
		var created domain.AllowanceTemplate
		json.Unmarshal(rr.Body.Bytes(), &created)

		rr = doRequest(t, server, http.MethodPost, "/allowance-templates/"+created.ID+"/criteria/preview", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var result domain.PreviewResult
		json.Unmarshal(rr.Body.Bytes(), &result)
		if result.EligibleCount != 1 {
			t.Errorf("expected 1 eligible sales employee, got %d", result.EligibleCount)
		}
	})
}

func TestAssignmentEndpoints(t *testing.T) {
	server := createTestServer(t)
	created := createTemplate(t, server, "Meal", "MEAL-01")
	base := "/allowance-templates/" + created.ID + "/assignments"

	t.Run("BulkAssignAllNew", func(t *testing.T) {
		body := []byte(`{"userIds": ["user_001", "user_002"]}`)
		rr := doRequest(t, server, http.MethodPost, base, body)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201 for all-new, got %d: %s", rr.Code, rr.Body.String())
		}

		var result domain.BulkAssignResult
		json.Unmarshal(rr.Body.Bytes(), &result)
		if result.Assigned != 2 || result.Skipped != 0 {
			t.Errorf("expected 2 assigned / 0 skipped, got %d/%d", result.Assigned, result.Skipped)
		}
	})

	t.Run("BulkAssignPartialIs200", func(t *testing.T) {
		body := []byte(`{"userIds": ["user_001", "user_003"]}`)
		rr := doRequest(t, server, http.MethodPost, base, body)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200 for partial, got %d: %s", rr.Code, rr.Body.String())
		}

		var result domain.BulkAssignResult
		json.Unmarshal(rr.Body.Bytes(), &result)
		if result.Assigned != 1 || result.Skipped != 1 {
			t.Errorf("expected 1 assigned / 1 skipped, got %d/%d", result.Assigned, result.Skipped)
		}
	})

	t.Run("ListWithSearch", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, base+"?search=Alice", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Data []*domain.AllowanceAssignment `json:"data"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if len(resp.Data) != 1 || resp.Data[0].UserName != "Alice" {
			t.Errorf("expected Alice's assignment only, got %v", resp.Data)
		}
	})

	t.Run("RemoveSingle", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, base, nil)
		var resp struct {
			Data []*domain.AllowanceAssignment `json:"data"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if len(resp.Data) == 0 {
			t.Fatal("expected assignments to remove")
		}

		rr = doRequest(t, server, http.MethodDelete, base+"/"+resp.Data[0].ID, nil)
		if rr.Code != http.StatusNoContent {
			t.Errorf("expected status 204, got %d", rr.Code)
		}

		rr = doRequest(t, server, http.MethodDelete, base+"/no-such-assignment", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404 for unknown assignment, got %d", rr.Code)
		}
	})

	t.Run("BulkRemove", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, base, nil)
		var resp struct {
			Data []*domain.AllowanceAssignment `json:"data"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)

		ids := make([]string, len(resp.Data))
		for i, a := range resp.Data {
			ids[i] = a.ID
		}

		body, _ := json.Marshal(map[string]any{"assignmentIds": ids})
		rr = doRequest(t, server, http.MethodPost, base+"/bulk-remove", body)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var removed map[string]int
		json.Unmarshal(rr.Body.Bytes(), &removed)
		if removed["removed"] != len(ids) {
			t.Errorf("expected %d removed, got %d", len(ids), removed["removed"])
		}
	})

	t.Run("MaterializeFromCriteria", func(t *testing.T) {
		body := []byte(`{
			"name": "Eng Meal", "code": "ENGMEAL-01", "type": "MONTHLY",
			"criteria": {
				"groupOperator": "AND",
				"groups": [{
					"id": "g1", "operator": "AND",
					"rules": [{
						"id": "r1", "field": "DEPARTMENT", "operator": "IN",
						"value": ["dept_eng"]
					}]
				}]
			}
		}`)
		rr := doRequest(t, server, http.MethodPost, "/allowance-templates", body)
		if rr.Code != http.StatusCreated {
			t.Fatalf("failed to create template: %d %s", rr.Code, rr.Body.String())
		}
		var tpl domain.AllowanceTemplate
		json.Unmarshal(rr.Body.Bytes(), &tpl)

		rr = doRequest(t, server, http.MethodPost, "/allowance-templates/"+tpl.ID+"/assignments", []byte(`{"fromCriteria": true}`))
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		var result domain.BulkAssignResult
		json.Unmarshal(rr.Body.Bytes(), &result)
		if result.Assigned != 2 {
			t.Errorf("expected both engineers assigned, got %d", result.Assigned)
		}
		for _, a := range result.Assignments {
			if a.Source != domain.SourceCriteria {
				t.Errorf("expected CRITERIA source, got %s", a.Source)
			}
		}
	})
}

func TestLookupAndUserEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("SyncAndGetLookups", func(t *testing.T) {
		body := []byte(`{
			"departments": [
				{"id": "dept_eng", "name": "Engineering"},
				{"id": "dept_sales", "name": "Sales"}
			],
			"jobGrades": [
				{"id": "5", "name": "Grade 5"},
				{"id": "6", "name": "Grade 6"}
			]
		}`)
		rr := doRequest(t, server, http.MethodPut, "/lookups/sync", body)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		// First read primes the cache, second is served from it.
		for i := 0; i < 2; i++ {
			rr = doRequest(t, server, http.MethodGet, "/lookups", nil)
			if rr.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", rr.Code)
			}

			var data domain.LookupData
			json.Unmarshal(rr.Body.Bytes(), &data)
			if len(data["departments"]) != 2 {
				t.Errorf("read %d: expected 2 departments, got %d", i, len(data["departments"]))
			}
			if data["jobGrades"][0].Name != "Grade 5" {
				t.Errorf("read %d: expected ordered grades, got %v", i, data["jobGrades"])
			}
		}
	})

	t.Run("ListUsers", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/users?search=Alice", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Data []*domain.Employee `json:"data"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if len(resp.Data) != 1 || resp.Data[0].Name != "Alice" {
			t.Errorf("expected Alice only, got %v", resp.Data)
		}
	})

	t.Run("ListUsersExcludesAssigned", func(t *testing.T) {
		created := createTemplate(t, server, "Exclude Test", "EXCL-01")

		body := []byte(`{"userIds": ["user_001"]}`)
		rr := doRequest(t, server, http.MethodPost, "/allowance-templates/"+created.ID+"/assignments", body)
		if rr.Code != http.StatusCreated {
			t.Fatalf("failed to assign: %d %s", rr.Code, rr.Body.String())
		}

		rr = doRequest(t, server, http.MethodGet, fmt.Sprintf("/users?excludeTemplateId=%s", created.ID), nil)
		var resp struct {
			Data []*domain.Employee `json:"data"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if len(resp.Data) != 2 {
			t.Errorf("expected 2 unassigned users, got %d", len(resp.Data))
		}
		for _, e := range resp.Data {
			if e.ID == "user_001" {
				t.Error("expected assigned user to be excluded")
			}
		}
	})

	t.Run("UserSyncInvalidatesPreviewPopulation", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/criteria/preview", []byte(`{}`))
		var before domain.PreviewResult
		json.Unmarshal(rr.Body.Bytes(), &before)

		body := []byte(`[{"id": "user_004", "code": "EMP004", "name": "Devi", "departmentId": "dept_eng"}]`)
		rr = doRequest(t, server, http.MethodPut, "/users/sync", body)
		if rr.Code != http.StatusOK {
			t.Fatalf("sync failed: %d %s", rr.Code, rr.Body.String())
		}

		rr = doRequest(t, server, http.MethodPost, "/criteria/preview", []byte(`{}`))
		var after domain.PreviewResult
		json.Unmarshal(rr.Body.Bytes(), &after)
		if after.EligibleCount != before.EligibleCount+1 {
			t.Errorf("expected the new employee in the preview population, got %d then %d",
				before.EligibleCount, after.EligibleCount)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("HealthCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("TenantMiddlewareExtractsID", func(t *testing.T) {
		var capturedTenantID, capturedActor string

		handler := TenantMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			capturedTenantID = GetTenantID(r.Context())
			capturedActor = GetActor(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Tenant-ID", "my-tenant-123")
		req.Header.Set("X-User-ID", "someone")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedTenantID != "my-tenant-123" {
			t.Errorf("expected tenant ID 'my-tenant-123', got '%s'", capturedTenantID)
		}
		if capturedActor != "someone" {
			t.Errorf("expected actor 'someone', got '%s'", capturedActor)
		}
	})

	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}
