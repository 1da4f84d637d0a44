package comms

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// setupRedisBus connects to the Redis named by AURA_TEST_REDIS_ADDR.
func setupRedisBus(t *testing.T) *RedisBus {
	t.Helper()
	addr := os.Getenv("AURA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("AURA_TEST_REDIS_ADDR not set")
	}
	bus, err := NewRedisBus(RedisConfig{Addr: addr, ChannelPrefix: "aura-test:" + uuid.NewString() + ":"}, nil)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { bus.Close() })
	return bus
}

func TestRedisBus_PublishSubscribe(t *testing.T) {
	bus := setupRedisBus(t)

	got := make(chan *Message, 1)
	bus.Subscribe(TopicTasks, func(_ context.Context, m *Message) error {
		got <- m
		return nil
	})

	if err := bus.Publish(context.Background(), makeMsg(TopicTasks, "hello")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case m := <-got:
		if m.Subject != "hello" || m.Topic != TopicTasks || m.ID == "" {
			t.Errorf("received %+v", m)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for redis delivery")
	}

	hist, _ := bus.History(TopicTasks, 10)
	if len(hist) != 1 {
		t.Errorf("History len = %d, want 1", len(hist))
	}
}

func TestRedisBus_Channel(t *testing.T) {
	b := &RedisBus{prefix: "aura:"}
	if got := b.Channel(TopicMessages); got != "aura:messages" {
		t.Errorf("Channel = %q", got)
	}
}
