// Package events is the in-process fan-out for signal lifecycle events.
// Subscribers run on their own goroutines; a slow consumer never blocks the
// generator or tracker loops.
package events

import (
	"sync"
	"time"

	"index-signal-engine/internal/models"
)

// Subscriber handles one event. It must be safe to call concurrently.
type Subscriber func(models.SignalEvent)

// Bus manages subscriptions and publication of SignalEvents.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[models.EventKind][]Subscriber
	allSubs     []Subscriber
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[models.EventKind][]Subscriber),
	}
}

// Subscribe registers a subscriber for one event kind.
func (b *Bus) Subscribe(kind models.EventKind, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[kind] = append(b.subscribers[kind], subscriber)
}

// SubscribeAll registers a subscriber for every event kind.
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, subscriber)
}

// Publish delivers the event to matching subscribers. Delivery is
// asynchronous and unordered across subscribers.
func (b *Bus) Publish(event models.SignalEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers[event.Kind] {
		go sub(event)
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishCreated publishes a CREATED event for a freshly persisted signal.
func (b *Bus) PublishCreated(signal models.Signal) {
	b.Publish(models.SignalEvent{Kind: models.EventCreated, Signal: signal})
}

// PublishTerminated publishes the terminal transition of a signal. EXPIRED
// transitions use the EXPIRED kind, every other terminal state TERMINATED.
func (b *Bus) PublishTerminated(signal models.Signal) {
	kind := models.EventTerminated
	if signal.Status == models.StatusExpired {
		kind = models.EventExpired
	}
	b.Publish(models.SignalEvent{Kind: kind, Signal: signal})
}
