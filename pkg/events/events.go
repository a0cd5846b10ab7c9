// Package events implements the audit event stream control loops and the
// bootstrapper publish to (adapted from the teacher's cluster-wide
// events.go): a pub/sub Broker decoupling whoever raises an event from
// whoever observes it — pkg/ophealth subscribes to surface a recent-events
// feed, and tests can subscribe to assert on what a control loop did
// without poking at its internals.
package events

import (
	"sync"
	"time"
)

// EventType names one kind of fleetsched domain event.
type EventType string

const (
	EventInstanceDispatched EventType = "instance.dispatched"
	EventInstanceRestarted  EventType = "instance.restarted"
	EventInstanceMigrated   EventType = "instance.migrated"
	EventInstanceTerminated EventType = "instance.terminated"
	EventLeaderLockAcquired EventType = "leaderlock.acquired"
	EventLeaderLockLost     EventType = "leaderlock.lost"
	EventBootstrapPhase     EventType = "bootstrap.phase"
)

// Event is one occurrence on the audit stream.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Broker manages event subscriptions and distribution.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
