// Package event is the in-process publish/subscribe channel between the
// unified operations and the views.
package event

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
)

const defaultReplaySessions = 10000

// Message is what subscribers receive.
type Message struct {
	Topic     Topic
	SessionID string
	Payload   Payload
	At        time.Time
}

type subscription struct {
	id        uint64
	sessionID string
	fn        func(Message)
	// mu orders replay before live delivery.
	mu sync.Mutex
}

func (s *subscription) deliver(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fn(msg)
}

// Bus is a typed, synchronous publish/subscribe channel. Publish runs every
// subscriber of the topic, in registration order, before it returns.
// Deliveries are serialized process-wide by the underlying EventBus, so
// handlers must be quick and must not publish themselves.
type Bus struct {
	eb     EventBus.Bus
	logger *slog.Logger

	mu      sync.RWMutex
	nextID  uint64
	subs    map[Topic][]*subscription
	last    map[Topic]map[string]Message
	maxLast int
	now     func() time.Time
}

// NewBus creates a bus with one dispatcher per topic.
func NewBus(logger *slog.Logger) *Bus {
	b := &Bus{
		eb:      EventBus.New(),
		logger:  logger,
		subs:    make(map[Topic][]*subscription),
		last:    make(map[Topic]map[string]Message),
		maxLast: defaultReplaySessions,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, topic := range Topics {
		topic := topic
		if err := b.eb.Subscribe(string(topic), func(msg Message) { b.fanout(topic, msg) }); err != nil {
			// Subscribe only fails for a non-func handler.
			panic(fmt.Sprintf("event: subscribe dispatcher %s: %v", topic, err))
		}
	}
	return b
}

// Publish delivers p to the subscribers of its topic.
func (b *Bus) Publish(p Payload) {
	msg := Message{
		Topic:     p.Topic(),
		SessionID: p.Session(),
		Payload:   p,
		At:        b.now(),
	}

	if replayed[msg.Topic] && msg.SessionID != "" {
		b.mu.Lock()
		b.remember(msg)
		b.mu.Unlock()
	}

	b.eb.Publish(string(msg.Topic), msg)
}

// StorageChanged publishes a storage-change event. It lets the bus act as the
// cache's change notifier.
func (b *Bus) StorageChanged(_ context.Context, sessionID, key string) {
	b.Publish(StorageChange{SessionID: sessionID, Key: key})
}

// Subscribe registers fn for topic. With a non-empty sessionID only that
// session's events are delivered, and for replayed topics the last payload
// published for the session is handed over immediately. The returned
// function removes the subscription.
func (b *Bus) Subscribe(topic Topic, sessionID string, fn func(Message)) func() {
	sub := &subscription{sessionID: sessionID, fn: fn}
	sub.mu.Lock()

	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	b.subs[topic] = append(b.subs[topic], sub)
	last, ok := b.last[topic][sessionID]
	b.mu.Unlock()

	if ok && sessionID != "" {
		fn(last)
	}
	sub.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(topic, sub.id) })
	}
}

// SubscribeAll registers fn on every topic and returns one cancel function.
func (b *Bus) SubscribeAll(sessionID string, fn func(Message)) func() {
	cancels := make([]func(), 0, len(Topics))
	for _, topic := range Topics {
		cancels = append(cancels, b.Subscribe(topic, sessionID, fn))
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

// Last returns the replay value of topic for a session.
func (b *Bus) Last(topic Topic, sessionID string) (Message, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	msg, ok := b.last[topic][sessionID]
	return msg, ok
}

// Forget drops the replay values of a session.
func (b *Bus) Forget(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, bySession := range b.last {
		delete(bySession, sessionID)
	}
}

// SubscriberCount returns the number of live subscriptions on topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *Bus) fanout(topic Topic, msg Message) {
	b.mu.RLock()
	subs := make([]*subscription, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.sessionID != "" && sub.sessionID != msg.SessionID {
			continue
		}
		b.safeDeliver(sub, msg)
	}
}

func (b *Bus) safeDeliver(sub *subscription, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked",
				slog.String("topic", string(msg.Topic)),
				slog.String("session_id", msg.SessionID),
				slog.Any("panic", r),
			)
		}
	}()
	sub.deliver(msg)
}

func (b *Bus) unsubscribe(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[topic]
	for i, s := range subs {
		if s.id == id {
			// Copy so snapshots held by an in-progress fanout stay intact.
			next := make([]*subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			b.subs[topic] = next
			return
		}
	}
}

// remember stores msg as the replay value. Callers hold b.mu.
func (b *Bus) remember(msg Message) {
	bySession, ok := b.last[msg.Topic]
	if !ok {
		bySession = make(map[string]Message)
		b.last[msg.Topic] = bySession
	}
	if _, exists := bySession[msg.SessionID]; !exists && len(bySession) >= b.maxLast {
		b.evictOldest(bySession)
	}
	bySession[msg.SessionID] = msg
}

func (b *Bus) evictOldest(bySession map[string]Message) {
	var (
		oldestID string
		oldestAt time.Time
	)
	for id, m := range bySession {
		if oldestID == "" || m.At.Before(oldestAt) {
			oldestID, oldestAt = id, m.At
		}
	}
	delete(bySession, oldestID)
}
