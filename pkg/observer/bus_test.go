package observer

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSubscriber struct {
	events []Event
}

func (r *recordingSubscriber) Notify(ev Event) {
	r.events = append(r.events, ev)
}

type panickingSubscriber struct{}

func (panickingSubscriber) Notify(Event) {
	panic("boom")
}

func TestBusFansOutToAllSubscribers(t *testing.T) {
	bus := New(nil)
	a := &recordingSubscriber{}
	b := &recordingSubscriber{}
	bus.Subscribe(a)
	bus.Subscribe(b)

	ev := Event{
		EntityType:      EntityOnChainState,
		EntityID:        uuid.New(),
		OldState:        "FundsLocked",
		NewState:        "ResultSubmitted",
		PaymentSourceID: uuid.New(),
		Timestamp:       time.Now(),
	}
	bus.Publish(ev)

	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)
	assert.Equal(t, ev, a.events[0])
}

func TestBusRecoversFromPanickingSubscriber(t *testing.T) {
	bus := New(nil)
	bus.Subscribe(panickingSubscriber{})
	ok := &recordingSubscriber{}
	bus.Subscribe(ok)

	assert.NotPanics(t, func() {
		bus.Publish(Event{EntityType: EntityTransaction, EntityID: uuid.New(), Timestamp: time.Now()})
	})
	assert.Len(t, ok.events, 1)
}
