// Package task defines the task model, persistence, and the lifecycle
// registry that tracks dispatched actions.
package task

import (
	"encoding/json"
	"time"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are accepted from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Type identifies the domain a task belongs to.
type Type string

const (
	TypeRestaurant Type = "restaurant"
	TypeHotel      Type = "hotel"
	TypeFlight     Type = "flight"
	TypeRide       Type = "ride"
	TypeEcommerce  Type = "ecommerce"
	TypeGeneric    Type = "generic"
)

// Origin records what produced a task.
type Origin string

const (
	OriginAction     Origin = "action"     // created by a dispatched intent
	OriginSuggestion Origin = "suggestion" // advisory, never leaves pending
)

// Task is a tracked record of one dispatched action and its outcome.
// Values returned by the Registry are snapshots; mutating them has no effect
// on the registry.
type Task struct {
	ID             string          `json:"id"`
	Type           Type            `json:"task_type"`
	Status         Status          `json:"status"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Action         string          `json:"action,omitempty"` // intent tag; discriminates APIResponse
	Origin         Origin          `json:"origin"`
	ConversationID string          `json:"conversation_id,omitempty"`
	APIResponse    json.RawMessage `json:"api_response"`
	ErrorMessage   *string         `json:"error_message"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of t.
func (t *Task) Clone() Task {
	c := *t
	if t.APIResponse != nil {
		c.APIResponse = append(json.RawMessage(nil), t.APIResponse...)
	}
	if t.ErrorMessage != nil {
		msg := *t.ErrorMessage
		c.ErrorMessage = &msg
	}
	if t.StartedAt != nil {
		ts := *t.StartedAt
		c.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	return c
}

// Store persists and retrieves tasks. Only the Registry writes to a Store.
type Store interface {
	// Insert persists a new task. The ID is assigned by the caller.
	Insert(t *Task) error

	// Get retrieves a task by ID.
	Get(id string) (*Task, error)

	// Update saves changes to an existing task.
	Update(t *Task) error

	// List returns tasks matching the filter, newest first.
	List(filter Filter) ([]*Task, error)
}

// Filter controls which tasks are returned by List.
type Filter struct {
	Status         *Status `json:"status,omitempty"`
	Type           Type    `json:"task_type,omitempty"`
	Origin         Origin  `json:"origin,omitempty"`
	ConversationID string  `json:"conversation_id,omitempty"`
	Limit          int     `json:"limit,omitempty"`
	Offset         int     `json:"offset,omitempty"`
}

func (f Filter) match(t *Task) bool {
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Origin != "" && t.Origin != f.Origin {
		return false
	}
	if f.ConversationID != "" && t.ConversationID != f.ConversationID {
		return false
	}
	return true
}
