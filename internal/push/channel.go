// Package push provides the client side of the topic-oriented push
// messaging transport: one persistent connection per process, refcounted
// topic subscriptions, ordered per-topic delivery, fire-and-forget publish.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// Message is one server-to-client delivery on a topic.
type Message struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// Channel is the push transport contract. Delivery is at-least-once and
// best-effort: messages sent while the connection is down are lost, and a
// reconnect is a potential gap the caller must tolerate. Order is preserved
// within a topic, never across topics.
type Channel interface {
	// Connect establishes the connection and starts delivery. It returns
	// once the first connection attempt has succeeded; subsequent drops
	// reconnect automatically until ctx is cancelled.
	Connect(ctx context.Context) error
	// Subscribe registers interest in a topic. Multiple subscriptions to
	// the same topic share one server-side registration.
	Subscribe(topic string) (*Subscription, error)
	// Unsubscribe stops delivery for the handle. Idempotent. After it
	// returns, the handle's Done channel is closed and no further message
	// for it will be accepted.
	Unsubscribe(sub *Subscription)
	// Publish sends a payload to a destination, fire-and-forget.
	Publish(destination string, payload any) error
	Close() error
}

var (
	ErrChannelClosed = errors.New("push channel closed")
	ErrNotConnected  = errors.New("push channel not connected")
)

// Subscription is a live handle on one topic. Consumers range over C and
// must stop processing once Done is closed; a buffered message observed
// after Done is stale and must be discarded.
type Subscription struct {
	topic string
	ch    chan Message
	done  chan struct{}
	once  sync.Once
}

func newSubscription(topic string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	return &Subscription{
		topic: topic,
		ch:    make(chan Message, buffer),
		done:  make(chan struct{}),
	}
}

func (s *Subscription) Topic() string         { return s.topic }
func (s *Subscription) C() <-chan Message     { return s.ch }
func (s *Subscription) Done() <-chan struct{} { return s.done }

// close is called by the owning channel with its delivery lock held, so a
// send can never race the close.
func (s *Subscription) close() {
	s.once.Do(func() {
		close(s.done)
		close(s.ch)
	})
}
