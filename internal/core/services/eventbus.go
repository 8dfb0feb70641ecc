package services

import (
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"time"
)

type EventType string

const (
	EventTypeExecution  EventType = "execution"
	EventTypeEvaluation EventType = "evaluation"
	EventTypeSelection  EventType = "selection"
	EventTypeState      EventType = "state"
	EventTypeHealth     EventType = "health"
)

// Topics group event types for subscribers.
const (
	TopicExecutions = "executions"
	TopicState      = "state"
)

type Event struct {
	Topic     string
	Type      EventType
	Data      string // JSON payload
	Timestamp int64
}

// globalTopic receives every published event.
const globalTopic = "*"

type EventBus struct {
	logger *slog.Logger
	mu     sync.RWMutex
	subs   map[string][]chan Event
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		logger: logger,
		subs:   make(map[string][]chan Event),
	}
}

// Subscribe returns a channel that receives events for a topic
func (b *EventBus) Subscribe(topic string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100)
	b.subs[topic] = append(b.subs[topic], ch)

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			b.subs[topic] = slices.DeleteFunc(b.subs[topic], func(c chan Event) bool { return c == ch })
			close(ch)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
		})
	}

	return ch, unsub
}

// SubscribeGlobal receives events of every topic (used by the SSE endpoint).
func (b *EventBus) SubscribeGlobal() (<-chan Event, func()) {
	return b.Subscribe(globalTopic)
}

// Publish sends an event to the topic's subscribers and the global ones.
// Full subscriber buffers drop the event rather than block the publisher.
func (b *EventBus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, topic := range []string{e.Topic, globalTopic} {
		for _, ch := range b.subs[topic] {
			select {
			case ch <- e:
			default:
				b.logger.Warn("event bus channel full, dropping event", "topic", e.Topic, "type", e.Type)
			}
		}
	}
}

// PublishJSON marshals payload and publishes it.
func (b *EventBus) PublishJSON(topic string, typ EventType, payload any) {
	if b == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("failed to marshal event payload", "topic", topic, "type", typ, "error", err)
		return
	}
	b.Publish(Event{Topic: topic, Type: typ, Data: string(data)})
}
