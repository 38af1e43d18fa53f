// Package eventbus provides an in-memory publish/subscribe bus with hierarchical topics.
// Topics are "/"-separated segment paths. An event published on a topic reaches every
// subscriber whose topic starts with it, so publishing "animals/list" notifies
// subscribers of "animals/list" and "animals/list/status/dry" but not "animals/detail/1".
// A "*" segment matches any single segment, and a bare "*" matches every topic.
package eventbus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	// Separator joins topic segments.
	Separator = "/"
	// Wildcard matches any segment, or any topic on its own.
	Wildcard = "*"
)

// Event is a single published message.
type Event struct {
	Topic string // topic the event was published on
	Data  any    // event payload
}

// Subscriber is one subscription with its buffered delivery channel.
type Subscriber struct {
	ID         string
	Topic      string
	BufferSize int
	Channel    chan Event
	Context    context.Context
	Cancel     context.CancelFunc

	mu     sync.Mutex // protects closed
	closed bool
}

// SafeSend delivers without blocking. It returns false if the subscriber is closed
// or its buffer is full.
func (s *Subscriber) SafeSend(event Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.Channel <- event:
		return true
	default:
		return false
	}
}

// Close cancels the subscriber's context and closes its channel. Safe to call twice.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		s.Cancel()
		close(s.Channel)
	}
}

// EventBus routes published events to matching subscribers.
type EventBus struct {
	sync.RWMutex
	subscribers map[string]map[string]*Subscriber // topic -> subscriberID -> Subscriber
	counter     uint64
}

// New creates an empty EventBus.
func New() *EventBus {
	return &EventBus{
		subscribers: make(map[string]map[string]*Subscriber),
	}
}

// Subscribe registers interest in topic and everything published on one of its
// prefixes. It returns the delivery channel and an idempotent unsubscribe function.
func (bus *EventBus) Subscribe(topic string, bufferSize int) (<-chan Event, func()) {
	id := fmt.Sprintf("sub-%d", atomic.AddUint64(&bus.counter, 1))

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan Event, bufferSize)

	sub := &Subscriber{
		ID:         id,
		Topic:      topic,
		BufferSize: bufferSize,
		Channel:    ch,
		Context:    ctx,
		Cancel:     cancel,
	}

	bus.Lock()
	defer bus.Unlock()

	if _, ok := bus.subscribers[topic]; !ok {
		bus.subscribers[topic] = make(map[string]*Subscriber)
	}
	bus.subscribers[topic][id] = sub

	unsubscribe := func() {
		bus.Lock()
		defer bus.Unlock()

		if subMap, ok := bus.subscribers[topic]; ok {
			if s, ok := subMap[id]; ok {
				s.Close()
				delete(subMap, id)
				if len(subMap) == 0 {
					delete(bus.subscribers, topic)
				}
			}
		}
	}

	return ch, unsubscribe
}

// CloseAllUnder closes every subscriber that an event on prefix would reach.
func (bus *EventBus) CloseAllUnder(prefix string) {
	bus.Lock()
	defer bus.Unlock()

	for topic, subMap := range bus.subscribers {
		if matchTopic(topic, prefix) {
			for _, sub := range subMap {
				sub.Close()
			}
			delete(bus.subscribers, topic)
		}
	}
}

// Publish sends an event to every matching subscriber and returns how many received
// it. It never blocks: a subscriber whose buffer is full misses the event.
func (bus *EventBus) Publish(topic string, data any) int {
	event := Event{Topic: topic, Data: data}

	bus.RLock()
	defer bus.RUnlock()

	delivered := 0
	for subTopic, subMap := range bus.subscribers {
		if !matchTopic(subTopic, topic) {
			continue
		}
		for _, sub := range subMap {
			select {
			case <-sub.Context.Done():
				continue
			default:
			}
			if sub.SafeSend(event) {
				delivered++
			}
		}
	}
	return delivered
}

// SubscriberCount returns the number of live subscriptions.
func (bus *EventBus) SubscriberCount() int {
	bus.RLock()
	defer bus.RUnlock()

	n := 0
	for _, subMap := range bus.subscribers {
		n += len(subMap)
	}
	return n
}

// Shutdown closes all subscribers and empties the bus.
func (bus *EventBus) Shutdown() {
	bus.Lock()
	defer bus.Unlock()

	for _, subs := range bus.subscribers {
		for _, sub := range subs {
			sub.Close()
		}
	}
	bus.subscribers = make(map[string]map[string]*Subscriber)
}

// matchTopic reports whether an event published on topic reaches a subscriber of
// subscribed: topic must be a segment-wise prefix of subscribed.
func matchTopic(subscribed, topic string) bool {
	if subscribed == "" || topic == "" {
		return false
	}
	if subscribed == Wildcard || topic == Wildcard || subscribed == topic {
		return true
	}
	subParts := strings.Split(subscribed, Separator)
	topicParts := strings.Split(topic, Separator)

	if len(topicParts) > len(subParts) {
		return false
	}

	for i, part := range topicParts {
		if part == Wildcard || subParts[i] == Wildcard {
			continue
		}
		if part != subParts[i] {
			return false
		}
	}
	return true
}
