// Package observer implements the event bus (4.10): on every persisted
// state change the engine publishes an event, and each subscriber (metrics,
// webhook) is notified once per Publish call; nothing is redelivered. The
// bus returns no delivery result — a panicking subscriber is recovered and
// logged, but a slow subscriber delays the publisher.
package observer

import (
	"log"
	"time"

	"github.com/google/uuid"
)

// EntityType identifies what kind of record an Event describes.
type EntityType string

const (
	EntityNextAction   EntityType = "NextAction"
	EntityOnChainState EntityType = "OnChainState"
	EntityTransaction  EntityType = "Transaction"
)

// Event is a single persisted state transition.
type Event struct {
	EntityType      EntityType
	EntityID        uuid.UUID
	OldState        string
	NewState        string
	PaymentSourceID uuid.UUID
	Timestamp       time.Time
}

// Subscriber receives every published event. Implementations must not
// block for long — the bus calls subscribers one after another on the
// publishing goroutine, so Publish returns only after every subscriber's
// Notify has returned.
type Subscriber interface {
	Notify(Event)
}

// Bus fans a published Event out to every subscribed Subscriber.
type Bus struct {
	subscribers []Subscriber
	logger      *log.Logger
}

// New builds an empty Bus.
func New(logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.New(log.Writer(), "[observer.Bus] ", log.LstdFlags)
	}
	return &Bus{logger: logger}
}

// Subscribe registers a Subscriber. Not safe to call concurrently with
// Publish; subscribe all subscribers during startup wiring.
func (b *Bus) Subscribe(s Subscriber) {
	b.subscribers = append(b.subscribers, s)
}

// Publish fans out ev to every subscriber. A panicking subscriber is
// recovered and logged so one broken sink never takes down the engine
// loop that triggered the event.
func (b *Bus) Publish(ev Event) {
	for _, s := range b.subscribers {
		b.deliver(s, ev)
	}
}

func (b *Bus) deliver(s Subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Printf("subscriber panicked on event %s/%s: %v", ev.EntityType, ev.EntityID, r)
		}
	}()
	s.Notify(ev)
}
