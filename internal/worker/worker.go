// Package worker consumes lifecycle events and writes the audit trail.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Izone425/allowancev2/internal/domain"
)

// Worker subscribes to the template and assignment lifecycle topics and
// persists one audit entry per event. It is the only writer of the audit
// trail; the API services never touch it directly.
type Worker struct {
	bus  domain.EventBus
	repo domain.Repository

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process.
	TenantIDs []string
}

// auditTopics maps each lifecycle topic to the audit action it records.
var auditTopics = map[string]struct {
	action domain.AuditAction
	entity domain.AuditEntityType
}{
	domain.TopicTemplateCreated:   {domain.AuditCreate, domain.AuditEntityTemplate},
	domain.TopicTemplateUpdated:   {domain.AuditUpdate, domain.AuditEntityTemplate},
	domain.TopicTemplateArchived:  {domain.AuditArchive, domain.AuditEntityTemplate},
	domain.TopicTemplateDeleted:   {domain.AuditDelete, domain.AuditEntityTemplate},
	domain.TopicAssignmentCreated: {domain.AuditAssign, domain.AuditEntityAssignment},
	domain.TopicAssignmentRemoved: {domain.AuditUnassign, domain.AuditEntityAssignment},
}

// NewWorker creates a new audit worker.
func NewWorker(bus domain.EventBus, repo domain.Repository) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to every lifecycle topic for the given tenants.
func (w *Worker) Start(cfg Config) error {
	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start audit worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("audit workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

func (w *Worker) startTenantWorker(tenantID string) error {
	for topic := range auditTopics {
		sub, err := w.bus.Subscribe(w.ctx, tenantID, topic, w.handleEvent)
		if err != nil {
			return err
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	slog.Info("tenant audit worker started",
		"tenant_id", tenantID,
		"topic_count", len(auditTopics),
	)

	return nil
}

// templateEvent is the payload the template service publishes.
type templateEvent struct {
	TemplateID  string `json:"templateId"`
	Name        string `json:"name"`
	Code        string `json:"code"`
	PerformedBy string `json:"performedBy"`
}

// assignmentEvent covers both single-assignment creation (the full
// assignment record) and bulk removal payloads.
type assignmentEvent struct {
	TemplateID    string   `json:"templateId"`
	AssignmentID  string   `json:"assignmentId"`
	AssignmentIDs []string `json:"assignmentIds"`
	UserID        string   `json:"userId"`
	UserName      string   `json:"userName"`
	AssignedBy    string   `json:"assignedBy"`
	Removed       int      `json:"removed"`
}

// handleEvent turns one lifecycle event into one audit entry.
func (w *Worker) handleEvent(ctx context.Context, msg *domain.Message) error {
	mapping, ok := auditTopics[msg.Topic]
	if !ok {
		slog.Warn("audit worker received unmapped topic",
			"topic", msg.Topic,
			"message_id", msg.ID,
		)
		return nil
	}

	entry := &domain.AuditEntry{
		ID:          uuid.New().String(),
		TenantID:    msg.TenantID,
		Action:      mapping.action,
		EntityType:  mapping.entity,
		PerformedAt: time.Unix(0, msg.Timestamp).UTC(),
	}
	if msg.Timestamp == 0 {
		entry.PerformedAt = time.Now().UTC()
	}

	switch mapping.entity {
	case domain.AuditEntityTemplate:
		var ev templateEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			slog.Error("failed to parse template event",
				"topic", msg.Topic,
				"message_id", msg.ID,
				"error", err,
			)
			return err
		}
		entry.EntityID = ev.TemplateID
		entry.PerformedBy = ev.PerformedBy
		entry.Detail = fmt.Sprintf("%s (%s)", ev.Name, ev.Code)

	case domain.AuditEntityAssignment:
		var ev assignmentEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			slog.Error("failed to parse assignment event",
				"topic", msg.Topic,
				"message_id", msg.ID,
				"error", err,
			)
			return err
		}
		// Audit entries always hang off the template so one query shows
		// the template's full history, assignments included.
		entry.EntityID = ev.TemplateID
		entry.PerformedBy = ev.AssignedBy
		switch {
		case ev.UserID != "":
			entry.Detail = fmt.Sprintf("%s (%s)", ev.UserName, ev.UserID)
		case len(ev.AssignmentIDs) > 0:
			entry.Detail = fmt.Sprintf("%d assignment(s) removed", ev.Removed)
		default:
			entry.Detail = ev.AssignmentID
		}
	}

	if err := w.repo.SaveAuditEntry(ctx, msg.TenantID, entry); err != nil {
		slog.Error("failed to save audit entry",
			"topic", msg.Topic,
			"entity_id", entry.EntityID,
			"error", err,
		)
		return err
	}

	slog.Debug("audit entry recorded",
		"action", entry.Action,
		"entity_type", entry.EntityType,
		"entity_id", entry.EntityID,
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("audit workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
