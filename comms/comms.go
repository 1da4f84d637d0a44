// Package comms provides the event bus that fans task and message events out
// to observers such as the SSE and websocket streams.
package comms

import (
	"context"
	"encoding/json"
	"time"
)

// Topics carried on the bus.
const (
	TopicTasks    = "tasks"
	TopicMessages = "messages"
)

// MessageType identifies the kind of bus event.
type MessageType string

const (
	TypeTaskUpdate MessageType = "task_update" // task status change notification
	TypeMessage    MessageType = "message"     // conversation message persisted
)

// Message is a single bus event.
type Message struct {
	ID        string            `json:"id"`
	Type      MessageType       `json:"type"`
	Topic     string            `json:"topic"`
	From      string            `json:"from"`
	Subject   string            `json:"subject"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Handler processes messages delivered for a topic.
type Handler func(ctx context.Context, msg *Message) error

// Bus is the event backbone. Publishers emit messages on a topic and every
// subscriber of that topic, or of all topics, receives them.
type Bus interface {
	// Publish sends msg to subscribers of msg.Topic.
	Publish(ctx context.Context, msg *Message) error

	// Subscribe registers a handler for a topic. An empty topic receives
	// every message. Returns an unsubscribe function.
	Subscribe(topic string, handler Handler) (unsubscribe func())

	// History returns up to limit recent messages on topic, oldest first.
	// An empty topic matches every message.
	History(topic string, limit int) ([]*Message, error)
}
