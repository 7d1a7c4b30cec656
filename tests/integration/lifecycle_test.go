//go:build integration
// +build integration

// Package integration provides end-to-end tests for the allowance service.
//
// These tests exercise the COMPLETE template lifecycle over HTTP against a
// running server:
//
//	Sync users → Create template (with criteria) → Preview → Assign →
//	Audit trail → Archive → Delete
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// The server must be reachable (default http://localhost:8080); point
// ALLOWANCE_TEST_URL elsewhere to override. Tests use their own tenant and
// clean up after themselves.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("ALLOWANCE_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: fmt.Sprintf("it-tenant-%d", time.Now().UnixNano()),
	}
}

type Template struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Code   string          `json:"code"`
	Type   string          `json:"type"`
	Status string          `json:"status"`
	Raw    json.RawMessage `json:"-"`
}

type PreviewResult struct {
	EligibleCount   int      `json:"eligibleCount"`
	EligibleUserIDs []string `json:"eligibleUserIds"`
}

type BulkAssignResult struct {
	Assigned int `json:"assigned"`
	Skipped  int `json:"skipped"`
}

type AuditEntry struct {
	Action     string `json:"action"`
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
}

func doJSON(t *testing.T, cfg TestConfig, method, path string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, cfg.BaseURL+path, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", cfg.TenantID)
	req.Header.Set("X-User-ID", "integration-test")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("%s %s: failed to parse response %q: %v", method, path, data, err)
		}
	}
	return resp.StatusCode
}

func criteriaBody(departments ...string) map[string]any {
	return map[string]any{
		"groupOperator": "AND",
		"groups": []map[string]any{{
			"id":       "g1",
			"operator": "AND",
			"rules": []map[string]any{{
				"id":       "r1",
				"field":    "DEPARTMENT",
				"operator": "IN",
				"value":    departments,
			}},
		}},
	}
}

func TestTemplateLifecycle(t *testing.T) {
	cfg := getTestConfig()

	// Server must be up
	if code := doJSON(t, cfg, http.MethodGet, "/health", nil, nil); code != http.StatusOK {
		t.Skipf("server not reachable at %s", cfg.BaseURL)
	}

	// 1. Sync the employee population
	employees := []map[string]any{
		{"id": "it_user_1", "code": "IT001", "name": "Amir", "departmentId": "dept_eng", "tenureMonths": 30},
		{"id": "it_user_2", "code": "IT002", "name": "Bea", "departmentId": "dept_eng", "tenureMonths": 4},
		{"id": "it_user_3", "code": "IT003", "name": "Carlos", "departmentId": "dept_ops", "tenureMonths": 60},
	}
	if code := doJSON(t, cfg, http.MethodPut, "/users/sync", employees, nil); code != http.StatusOK {
		t.Fatalf("user sync failed with status %d", code)
	}

	// 2. Create a template restricted to engineering
	var tpl Template
	create := map[string]any{
		"name":     "Integration Meal Allowance",
		"code":     "IT-MEAL-01",
		"type":     "MONTHLY",
		"amount":   200,
		"criteria": criteriaBody("dept_eng"),
	}
	if code := doJSON(t, cfg, http.MethodPost, "/allowance-templates", create, &tpl); code != http.StatusCreated {
		t.Fatalf("template create failed with status %d", code)
	}
	if tpl.ID == "" {
		t.Fatal("expected template id")
	}
	defer doJSON(t, cfg, http.MethodDelete, "/allowance-templates/"+tpl.ID, nil, nil)

	// 3. Preview the stored criteria
	var preview PreviewResult
	if code := doJSON(t, cfg, http.MethodPost, "/allowance-templates/"+tpl.ID+"/criteria/preview", nil, &preview); code != http.StatusOK {
		t.Fatalf("preview failed with status %d", code)
	}
	if preview.EligibleCount != 2 {
		t.Errorf("expected 2 eligible engineers, got %d", preview.EligibleCount)
	}

	// 4. Materialize assignments from the criteria
	var result BulkAssignResult
	code := doJSON(t, cfg, http.MethodPost, "/allowance-templates/"+tpl.ID+"/assignments",
		map[string]any{"fromCriteria": true}, &result)
	if code != http.StatusCreated {
		t.Fatalf("materialize failed with status %d", code)
	}
	if result.Assigned != 2 {
		t.Errorf("expected 2 assigned, got %d", result.Assigned)
	}

	// Re-running is idempotent: everyone is already assigned
	code = doJSON(t, cfg, http.MethodPost, "/allowance-templates/"+tpl.ID+"/assignments",
		map[string]any{"fromCriteria": true}, &result)
	if code != http.StatusOK {
		t.Fatalf("expected 200 for all-skipped rerun, got %d", code)
	}
	if result.Assigned != 0 || result.Skipped != 2 {
		t.Errorf("expected 0 assigned / 2 skipped, got %d/%d", result.Assigned, result.Skipped)
	}

	// 5. Archive and verify status
	var archived Template
	if code := doJSON(t, cfg, http.MethodPost, "/allowance-templates/"+tpl.ID+"/archive", nil, &archived); code != http.StatusOK {
		t.Fatalf("archive failed with status %d", code)
	}
	if archived.Status != "ARCHIVED" {
		t.Errorf("expected ARCHIVED status, got %s", archived.Status)
	}

	// 6. The audit worker writes asynchronously; poll for the trail
	deadline := time.Now().Add(3 * time.Second)
	var entries struct {
		Data []AuditEntry `json:"data"`
	}
	for time.Now().Before(deadline) {
		doJSON(t, cfg, http.MethodGet, "/allowance-templates/"+tpl.ID+"/audit", nil, &entries)
		if len(entries.Data) >= 3 { // create + 2 assigns (+ archive)
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if len(entries.Data) < 3 {
		t.Errorf("expected at least 3 audit entries, got %d", len(entries.Data))
	}
}

func TestAdHocPreview(t *testing.T) {
	cfg := getTestConfig()

	if code := doJSON(t, cfg, http.MethodGet, "/health", nil, nil); code != http.StatusOK {
		t.Skipf("server not reachable at %s", cfg.BaseURL)
	}

	employees := []map[string]any{
		{"id": "it_user_a", "code": "ITA", "name": "Dina", "departmentId": "dept_fin", "tenureMonths": 12},
	}
	if code := doJSON(t, cfg, http.MethodPut, "/users/sync", employees, nil); code != http.StatusOK {
		t.Fatalf("user sync failed with status %d", code)
	}

	// Valid criteria previews without a template
	var preview PreviewResult
	body := map[string]any{"criteria": criteriaBody("dept_fin")}
	if code := doJSON(t, cfg, http.MethodPost, "/criteria/preview", body, &preview); code != http.StatusOK {
		t.Fatalf("preview failed with status %d", code)
	}
	if preview.EligibleCount != 1 {
		t.Errorf("expected 1 eligible, got %d", preview.EligibleCount)
	}

	// Invalid criteria are rejected with per-rule errors
	invalid := map[string]any{"criteria": criteriaBody()}
	var errResp struct {
		RuleErrors map[string]string `json:"ruleErrors"`
	}
	if code := doJSON(t, cfg, http.MethodPost, "/criteria/preview", invalid, &errResp); code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty multiselect, got %d", code)
	}
	if errResp.RuleErrors["r1"] == "" {
		t.Errorf("expected rule error for r1, got %v", errResp.RuleErrors)
	}
}
