// Package conversation persists conversations and their ordered messages.
package conversation

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a conversation ID is unknown.
var ErrNotFound = errors.New("conversation not found")

// Author identifies who wrote a message.
type Author string

const (
	AuthorUser      Author = "user"
	AuthorAssistant Author = "assistant"
)

// Valid reports whether a is a known author.
func (a Author) Valid() bool {
	return a == AuthorUser || a == AuthorAssistant
}

// Conversation is a chat thread.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Attachment is optional media carried by a message.
type Attachment struct {
	ImageURL    string `json:"image_url,omitempty"`
	ImagePrompt string `json:"image_prompt,omitempty"`
}

// Message is one entry in a conversation. Messages are append-only.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Author         Author      `json:"author"`
	Content        string      `json:"content"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	Action         string      `json:"action,omitempty"`
	TaskID         string      `json:"task_id,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// MessageOption sets optional message fields.
type MessageOption func(*Message)

// WithAction records the intent tag the message answered.
func WithAction(tag string) MessageOption {
	return func(m *Message) { m.Action = tag }
}

// WithTask links the message to the task it reports on.
func WithTask(id string) MessageOption {
	return func(m *Message) { m.TaskID = id }
}

// Store is the conversation persistence contract.
type Store interface {
	CreateConversation(ctx context.Context, title string) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	// ListConversations returns conversations most recently active first.
	ListConversations(ctx context.Context) ([]Conversation, error)
	RenameConversation(ctx context.Context, id, title string) error
	// DeleteConversation removes the conversation and all its messages.
	DeleteConversation(ctx context.Context, id string) error

	// AddMessage appends a message and bumps the conversation's updated_at.
	AddMessage(ctx context.Context, conversationID string, author Author, content string, att *Attachment, opts ...MessageOption) (*Message, error)
	// GetMessages returns the conversation's messages oldest first.
	GetMessages(ctx context.Context, conversationID string) ([]Message, error)
}
