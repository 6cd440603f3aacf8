package push

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryChannel is an in-process Channel used in tests and as a loopback
// transport. Publish delivers to local subscribers of the destination topic;
// Inject simulates a server-originated delivery.
type MemoryChannel struct {
	mu     sync.Mutex
	topics map[string][]*Subscription
	sent   []Message // record of published frames, for assertions
	closed bool
}

func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{topics: make(map[string][]*Subscription)}
}

func (m *MemoryChannel) Connect(ctx context.Context) error { return nil }

func (m *MemoryChannel) Subscribe(topic string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrChannelClosed
	}
	sub := newSubscription(topic, 64)
	m.topics[topic] = append(m.topics[topic], sub)
	return sub, nil
}

func (m *MemoryChannel) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.topics[sub.topic]
	for i, s := range subs {
		if s == sub {
			m.topics[sub.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(m.topics[sub.topic]) == 0 {
		delete(m.topics, sub.topic)
	}
	sub.close()
}

func (m *MemoryChannel) Publish(destination string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal publish payload: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrChannelClosed
	}
	m.sent = append(m.sent, Message{Topic: destination, Payload: b})
	m.deliverLocked(Message{Topic: destination, Payload: b})
	return nil
}

// Inject delivers a message as if the server had pushed it.
func (m *MemoryChannel) Inject(topic string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrChannelClosed
	}
	m.deliverLocked(Message{Topic: topic, Payload: b})
	return nil
}

func (m *MemoryChannel) deliverLocked(msg Message) {
	for _, sub := range m.topics[msg.Topic] {
		select {
		case sub.ch <- msg:
		default:
		}
	}
}

// Sent returns a copy of all published frames.
func (m *MemoryChannel) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}

// SubscriberCount reports live subscriptions for a topic.
func (m *MemoryChannel) SubscriberCount(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.topics[topic])
}

func (m *MemoryChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, subs := range m.topics {
		for _, s := range subs {
			s.close()
		}
	}
	m.topics = make(map[string][]*Subscription)
	return nil
}
