package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-sync/internal/observability"
)

// RedisChannel implements Channel over Redis Pub/Sub. go-redis keeps the
// pubsub connection alive and resubscribes on its own after a drop, so this
// backend gets reconnect handling for free; the delivery-gap semantics are
// the same as the websocket backend.
type RedisChannel struct {
	client *redis.Client
	log    *slog.Logger

	mu     sync.Mutex
	ps     *redis.PubSub
	topics map[string][]*Subscription
	closed bool
	ctx    context.Context
}

func NewRedisChannel(addr, password string, log *slog.Logger) *RedisChannel {
	return &RedisChannel{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		log:    log,
		topics: make(map[string][]*Subscription),
	}
}

func (c *RedisChannel) Connect(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	c.mu.Lock()
	if c.ps != nil {
		c.mu.Unlock()
		return nil
	}
	c.ctx = ctx
	// subscribe to nothing yet; topics are added per Subscribe call
	c.ps = c.client.Subscribe(ctx)
	ch := c.ps.Channel()
	c.mu.Unlock()

	go func() {
		for m := range ch {
			observability.PushMessages.Inc()
			c.deliver(Message{Topic: m.Channel, Payload: json.RawMessage(m.Payload)})
		}
	}()
	return nil
}

func (c *RedisChannel) deliver(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.topics[msg.Topic] {
		select {
		case sub.ch <- msg:
		default:
			observability.PushDropped.Inc()
		}
	}
}

func (c *RedisChannel) Subscribe(topic string) (*Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrChannelClosed
	}
	if c.ps == nil {
		return nil, ErrNotConnected
	}
	sub := newSubscription(topic, 64)
	first := len(c.topics[topic]) == 0
	c.topics[topic] = append(c.topics[topic], sub)
	if first {
		if err := c.ps.Subscribe(c.ctx, topic); err != nil {
			c.topics[topic] = nil
			delete(c.topics, topic)
			sub.close()
			return nil, fmt.Errorf("redis subscribe %s: %w", topic, err)
		}
	}
	return sub, nil
}

func (c *RedisChannel) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := c.topics[sub.topic]
	found := false
	for i, s := range subs {
		if s == sub {
			c.topics[sub.topic] = append(subs[:i], subs[i+1:]...)
			found = true
			break
		}
	}
	sub.close()
	if !found {
		return
	}
	if len(c.topics[sub.topic]) == 0 {
		delete(c.topics, sub.topic)
		if c.ps != nil {
			if err := c.ps.Unsubscribe(c.ctx, sub.topic); err != nil {
				c.log.Warn("redis unsubscribe failed", "topic", sub.topic, "error", err)
			}
		}
	}
}

func (c *RedisChannel) Publish(destination string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal publish payload: %w", err)
	}
	c.mu.Lock()
	closed := c.closed
	ctx := c.ctx
	c.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}
	if ctx == nil {
		return ErrNotConnected
	}
	return c.client.Publish(ctx, destination, b).Err()
}

func (c *RedisChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ps := c.ps
	c.ps = nil
	for _, subs := range c.topics {
		for _, s := range subs {
			s.close()
		}
	}
	c.topics = make(map[string][]*Subscription)
	c.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
	return c.client.Close()
}
