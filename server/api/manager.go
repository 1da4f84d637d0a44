// Package api defines the REST API handlers and interfaces for the A.U.R.A server.
package api

import (
	"context"

	"github.com/GoCodeAlone/aura/agent"
	"github.com/GoCodeAlone/aura/task"
)

// TurnHandler is the interface the API uses to run conversational turns.
// Implemented by *agent.Agent.
type TurnHandler interface {
	HandleTurn(ctx context.Context, conversationID, text string) (*agent.Turn, error)
	Info() agent.Info
}

// TaskReader exposes read access to tracked tasks. Implemented by
// *task.Registry; tasks are only mutated through dispatch.
type TaskReader interface {
	Get(id string) (task.Task, error)
	List(filter task.Filter) ([]task.Task, error)
}
