package worker

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/Izone425/allowancev2/internal/bus"
	"github.com/Izone425/allowancev2/internal/domain"
	"github.com/Izone425/allowancev2/internal/repository"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "allowance-worker-test-*.db")
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

	return repo
}

// waitForEntries polls the audit trail until it holds want entries or the
// deadline passes. The worker writes asynchronously off the bus.
func waitForEntries(t *testing.T, repo domain.Repository, tenantID, entityID string, want int) []*domain.AuditEntry {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := repo.ListAuditEntries(context.Background(), tenantID, entityID)
		if err != nil {
			t.Fatalf("ListAuditEntries failed: %v", err)
		}
		if len(entries) >= want {
			return entries
		}
		time.Sleep(10 * time.Millisecond)
	}

	entries, _ := repo.ListAuditEntries(context.Background(), tenantID, entityID)
	t.Fatalf("expected %d audit entries, got %d", want, len(entries))
	return nil
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, repo)

		cfg := Config{
			TenantIDs: []string{"tenant-001"},
		}

		if err := w.Start(cfg); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != len(auditTopics) {
			t.Errorf("expected %d subscriptions, got %d", len(auditTopics), stats.SubscriptionCount)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = w.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("TemplateLifecycle", func(t *testing.T) {
		tenantID := "tenant-tpl"

		w := NewWorker(eventBus, repo)
		w.Start(Config{TenantIDs: []string{tenantID}})
		defer w.Stop()

		time.Sleep(20 * time.Millisecond)

		payload, _ := json.Marshal(map[string]string{
			"templateId":  "tmpl-001",
			"name":        "Meal Allowance",
			"code":        "MEAL-01",
			"performedBy": "hr_admin",
		})

		if err := eventBus.Publish(ctx, tenantID, domain.TopicTemplateCreated, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
		if err := eventBus.Publish(ctx, tenantID, domain.TopicTemplateArchived, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		entries := waitForEntries(t, repo, tenantID, "tmpl-001", 2)

		actions := make(map[domain.AuditAction]bool)
		for _, e := range entries {
			actions[e.Action] = true

			if e.EntityType != domain.AuditEntityTemplate {
				t.Errorf("expected entity type TEMPLATE, got %s", e.EntityType)
			}
			if e.PerformedBy != "hr_admin" {
				t.Errorf("expected performedBy 'hr_admin', got '%s'", e.PerformedBy)
			}
			if e.Detail != "Meal Allowance (MEAL-01)" {
				t.Errorf("unexpected detail %q", e.Detail)
			}
			if e.PerformedAt.IsZero() {
				t.Error("expected performedAt to be set")
			}
		}

		if !actions[domain.AuditCreate] || !actions[domain.AuditArchive] {
			t.Errorf("expected CREATE and ARCHIVE actions, got %v", actions)
		}
	})

	t.Run("AssignmentCreated", func(t *testing.T) {
		tenantID := "tenant-asg"

		w := NewWorker(eventBus, repo)
		w.Start(Config{TenantIDs: []string{tenantID}})
		defer w.Stop()

		time.Sleep(20 * time.Millisecond)

		assignment := &domain.AllowanceAssignment{
			ID:         "asg-001",
			TemplateID: "tmpl-asg",
			UserID:     "user_001",
			UserName:   "Alice",
			Source:     domain.SourceManual,
			AssignedAt: time.Now().UTC(),
			AssignedBy: "hr_admin",
		}

		payload, _ := json.Marshal(assignment)
		if err := eventBus.Publish(ctx, tenantID, domain.TopicAssignmentCreated, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		entries := waitForEntries(t, repo, tenantID, "tmpl-asg", 1)

		e := entries[0]
		if e.Action != domain.AuditAssign {
			t.Errorf("expected action ASSIGN, got %s", e.Action)
		}
		if e.EntityType != domain.AuditEntityAssignment {
			t.Errorf("expected entity type ASSIGNMENT, got %s", e.EntityType)
		}
		if e.EntityID != "tmpl-asg" {
			t.Errorf("expected entries to hang off the template, got entityID %q", e.EntityID)
		}
		if e.Detail != "Alice (user_001)" {
			t.Errorf("unexpected detail %q", e.Detail)
		}
	})

	t.Run("BulkRemoval", func(t *testing.T) {
		tenantID := "tenant-bulk"

		w := NewWorker(eventBus, repo)
		w.Start(Config{TenantIDs: []string{tenantID}})
		defer w.Stop()

		time.Sleep(20 * time.Millisecond)

		payload, _ := json.Marshal(map[string]any{
			"templateId":    "tmpl-bulk",
			"assignmentIds": []string{"asg-001", "asg-002", "asg-003"},
			"removed":       3,
		})
		if err := eventBus.Publish(ctx, tenantID, domain.TopicAssignmentRemoved, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		entries := waitForEntries(t, repo, tenantID, "tmpl-bulk", 1)

		e := entries[0]
		if e.Action != domain.AuditUnassign {
			t.Errorf("expected action UNASSIGN, got %s", e.Action)
		}
		if e.Detail != "3 assignment(s) removed" {
			t.Errorf("unexpected detail %q", e.Detail)
		}
	})

	t.Run("MalformedPayloadIsNotRecorded", func(t *testing.T) {
		tenantID := "tenant-bad"

		w := NewWorker(eventBus, repo)
		w.Start(Config{TenantIDs: []string{tenantID}})
		defer w.Stop()

		time.Sleep(20 * time.Millisecond)

		eventBus.Publish(ctx, tenantID, domain.TopicTemplateUpdated, []byte("not json"))
		time.Sleep(100 * time.Millisecond)

		entries, err := repo.ListAuditEntries(ctx, tenantID, "")
		if err != nil {
			t.Fatalf("ListAuditEntries failed: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("expected no audit entries for malformed payload, got %d", len(entries))
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, repo)
		w.Start(Config{TenantIDs: []string{"tenant-a", "tenant-b"}})
		defer w.Stop()

		stats := w.GetStats()
		want := 2 * len(auditTopics)
		if stats.SubscriptionCount != want {
			t.Errorf("expected %d subscriptions for 2 tenants, got %d", want, stats.SubscriptionCount)
		}
	})
}
