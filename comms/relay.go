package comms

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/GoCodeAlone/aura/task"
)

// RelayTasks publishes every task snapshot emitted by reg on TopicTasks.
// Unsubscribe the returned subscription to stop relaying.
func RelayTasks(reg *task.Registry, bus Bus, logger *slog.Logger) *task.Subscription {
	if logger == nil {
		logger = slog.Default()
	}
	return reg.Subscribe(func(t task.Task) {
		data, err := json.Marshal(t)
		if err != nil {
			logger.Error("encode task event", "task_id", t.ID, "error", err)
			return
		}
		msg := &Message{
			Type:    TypeTaskUpdate,
			Topic:   TopicTasks,
			From:    "registry",
			Subject: string(t.Status),
			Payload: data,
			Metadata: map[string]string{
				"task_id": t.ID,
				"status":  string(t.Status),
			},
		}
		if t.ConversationID != "" {
			msg.Metadata["conversation_id"] = t.ConversationID
		}
		if err := bus.Publish(context.Background(), msg); err != nil {
			logger.Warn("relay task event", "task_id", t.ID, "error", err)
		}
	})
}
