package domain

import (
	"context"
)

// EventBus is the event boundary between the API services and async
// consumers such as the audit worker. Supports Go channels (community) or
// NATS (pro). All methods take a tenantID for strict tenant isolation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings (community tier)
	ChannelBufferSize int

	// NATS settings (pro tier)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Topic names for template and assignment lifecycle events.
const (
	TopicTemplateCreated   = "allowance.template.created"
	TopicTemplateUpdated   = "allowance.template.updated"
	TopicTemplateArchived  = "allowance.template.archived"
	TopicTemplateDeleted   = "allowance.template.deleted"
	TopicAssignmentCreated = "allowance.assignment.created"
	TopicAssignmentRemoved = "allowance.assignment.removed"
)
