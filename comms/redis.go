package comms

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection settings for a RedisBus.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string // defaults to "aura:"
}

// RedisBus relays messages through Redis pub/sub so that several processes
// see the same event stream. Each topic maps to the channel
// <prefix><topic>. Messages received from Redis are delivered to local
// subscribers and retained in local history.
type RedisBus struct {
	local  *InMemoryBus
	rdb    *redis.Client
	prefix string
	logger *slog.Logger

	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewRedisBus connects to Redis, verifies the connection, and starts the
// receive loop. Close stops it.
func NewRedisBus(cfg RedisConfig, logger *slog.Logger) (*RedisBus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	prefix := cfg.ChannelPrefix
	if prefix == "" {
		prefix = "aura:"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	loopCtx, stop := context.WithCancel(context.Background())
	b := &RedisBus{
		local:  NewInMemoryBus(),
		rdb:    rdb,
		prefix: prefix,
		logger: logger,
		pubsub: rdb.PSubscribe(loopCtx, prefix+"*"),
		cancel: stop,
		done:   make(chan struct{}),
	}
	// Wait for the subscription confirmation so early publishes are not lost.
	if _, err := b.pubsub.Receive(ctx); err != nil {
		stop()
		_ = b.pubsub.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("redis subscribe failed: %w", err)
	}
	go b.readLoop(loopCtx)
	return b, nil
}

// Channel returns the Redis channel used for topic.
func (b *RedisBus) Channel(topic string) string { return b.prefix + topic }

// Publish encodes msg as JSON and publishes it to the topic's channel.
// Local delivery happens when the message comes back from Redis.
func (b *RedisBus) Publish(ctx context.Context, msg *Message) error {
	if msg == nil {
		return fmt.Errorf("publish: nil message")
	}
	if msg.Topic == "" {
		return fmt.Errorf("publish: message %q has no topic", msg.ID)
	}
	stamp(msg)
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("publish: encode: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.Channel(msg.Topic), data).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Subscribe registers a local handler for topic.
func (b *RedisBus) Subscribe(topic string, handler Handler) (unsubscribe func()) {
	return b.local.Subscribe(topic, handler)
}

// History returns messages this process has received from Redis.
func (b *RedisBus) History(topic string, limit int) ([]*Message, error) {
	return b.local.History(topic, limit)
}

// Close stops the receive loop and closes the Redis connection.
func (b *RedisBus) Close() error {
	var err error
	b.once.Do(func() {
		b.cancel()
		_ = b.pubsub.Close()
		<-b.done
		err = b.rdb.Close()
	})
	return err
}

func (b *RedisBus) readLoop(ctx context.Context) {
	defer close(b.done)
	ch := b.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				b.logger.Warn("dropping undecodable bus message", "channel", m.Channel, "error", err)
				continue
			}
			if msg.Topic == "" {
				msg.Topic = strings.TrimPrefix(m.Channel, b.prefix)
			}
			if err := b.local.deliver(ctx, &msg); err != nil {
				b.logger.Warn("bus handler failed", "topic", msg.Topic, "error", err)
			}
		}
	}
}
