package server

import (
	"context"
	"testing"

	"github.com/GoCodeAlone/aura/agent"
	"github.com/GoCodeAlone/aura/comms"
	"github.com/GoCodeAlone/aura/config"
	"github.com/GoCodeAlone/aura/conversation"
	"github.com/GoCodeAlone/aura/task"
)

// noopAgent satisfies api.TurnHandler for tests.
type noopAgent struct{}

func (n *noopAgent) HandleTurn(_ context.Context, _, _ string) (*agent.Turn, error) {
	return &agent.Turn{Kind: agent.KindReply}, nil
}
func (n *noopAgent) Info() agent.Info { return agent.Info{Name: "test", Status: agent.StatusIdle} }

// noopConversations satisfies conversation.Store for tests.
type noopConversations struct{}

func (n *noopConversations) CreateConversation(_ context.Context, title string) (*conversation.Conversation, error) {
	return &conversation.Conversation{ID: "c1", Title: title}, nil
}
func (n *noopConversations) GetConversation(_ context.Context, id string) (*conversation.Conversation, error) {
	return &conversation.Conversation{ID: id}, nil
}
func (n *noopConversations) ListConversations(_ context.Context) ([]conversation.Conversation, error) {
	return nil, nil
}
func (n *noopConversations) RenameConversation(_ context.Context, _, _ string) error { return nil }
func (n *noopConversations) DeleteConversation(_ context.Context, _ string) error { return nil }
func (n *noopConversations) AddMessage(_ context.Context, id string, a conversation.Author, c string, _ *conversation.Attachment, _ ...conversation.MessageOption) (*conversation.Message, error) {
	return &conversation.Message{ConversationID: id, Author: a, Content: c}, nil
}
func (n *noopConversations) GetMessages(_ context.Context, _ string) ([]conversation.Message, error) {
	return nil, nil
}

// noopTasks satisfies api.TaskReader for tests.
type noopTasks struct{}

func (n *noopTasks) Get(_ string) (task.Task, error) { return task.Task{}, task.ErrNotFound }
func (n *noopTasks) List(_ task.Filter) ([]task.Task, error) { return nil, nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Config{
		Server: config.ServerConfig{Addr: ":0"},
		Auth: config.AuthConfig{
			AdminUser: "admin",
			AdminPass: "secret",
			JWTSecret: "test-secret-key-1234567890",
		},
	}
	s := New(cfg, "test", nil)
	s.SetAgent(&noopAgent{})
	s.SetConversations(&noopConversations{})
	s.SetTasks(&noopTasks{})
	s.SetBus(comms.NewInMemoryBus())
	return s
}
