package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-sync/internal/observability"
)

// frame is the client-to-server control message.
type frame struct {
	Action      string          `json:"action"` // subscribe | unsubscribe | publish
	Topic       string          `json:"topic,omitempty"`
	Destination string          `json:"destination,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// WSChannel is the websocket Channel implementation. One instance per
// process; it owns the single connection and reconnects with a fixed delay
// on drop, re-issuing subscribe frames for every refcounted topic so that
// existing handles resume delivery. Messages missed during the disconnect
// window are gone; the reconnect counter is the only trace.
type WSChannel struct {
	url   string
	delay time.Duration
	log   *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	topics  map[string][]*Subscription
	closed  bool
	started bool
}

func NewWSChannel(url string, reconnectDelay time.Duration, log *slog.Logger) *WSChannel {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	return &WSChannel{
		url:    url,
		delay:  reconnectDelay,
		log:    log,
		topics: make(map[string][]*Subscription),
	}
}

// Connect dials until the first connection succeeds or ctx is cancelled,
// then keeps the connection alive in the background.
func (c *WSChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	conn, err := c.dialUntil(ctx)
	if err != nil {
		return err
	}
	c.installConn(conn)
	go c.readLoop(ctx, conn)
	return nil
}

func (c *WSChannel) dialUntil(ctx context.Context) (*websocket.Conn, error) {
	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err == nil {
			return conn, nil
		}
		c.log.Warn("push dial failed", "url", c.url, "error", err, "retry_in", c.delay)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("push connect: %w", ctx.Err())
		case <-time.After(c.delay):
		}
	}
}

// installConn swaps in a fresh connection and replays subscribe frames for
// every topic that still has live handles.
func (c *WSChannel) installConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	for topic := range c.topics {
		if err := conn.WriteJSON(frame{Action: "subscribe", Topic: topic}); err != nil {
			c.log.Warn("resubscribe failed", "topic", topic, "error", err)
		}
	}
}

func (c *WSChannel) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var msg Message
		err := conn.ReadJSON(&msg)
		if err == nil {
			observability.PushMessages.Inc()
			c.deliver(msg)
			continue
		}

		c.mu.Lock()
		closed := c.closed
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
		if closed || ctx.Err() != nil {
			return
		}

		c.log.Warn("push connection dropped", "error", err, "reconnect_in", c.delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.delay):
		}
		observability.PushReconnects.Inc()
		next, derr := c.dialUntil(ctx)
		if derr != nil {
			return
		}
		c.installConn(next)
		conn = next
	}
}

func (c *WSChannel) deliver(msg Message) {
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

func (c *WSChannel) Subscribe(topic string) (*Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrChannelClosed
	}
	sub := newSubscription(topic, 64)
	first := len(c.topics[topic]) == 0
	c.topics[topic] = append(c.topics[topic], sub)
	if first && c.conn != nil {
		if err := c.conn.WriteJSON(frame{Action: "subscribe", Topic: topic}); err != nil {
			// the read loop will notice the broken connection and replay
			// the subscribe after reconnect
			c.log.Warn("subscribe frame failed", "topic", topic, "error", err)
		}
	}
	return sub, nil
}

func (c *WSChannel) Unsubscribe(sub *Subscription) {
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
		if c.conn != nil {
			if err := c.conn.WriteJSON(frame{Action: "unsubscribe", Topic: sub.topic}); err != nil {
				c.log.Warn("unsubscribe frame failed", "topic", sub.topic, "error", err)
			}
		}
	}
}

func (c *WSChannel) Publish(destination string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal publish payload: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteJSON(frame{Action: "publish", Destination: destination, Payload: b})
}

func (c *WSChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	for _, subs := range c.topics {
		for _, s := range subs {
			s.close()
		}
	}
	c.topics = make(map[string][]*Subscription)
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}
