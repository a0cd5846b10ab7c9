package events_test

import (
	"testing"
	"time"

	"github.com/fleetform/fleetsched/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := events.NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(&events.Event{Type: events.EventInstanceDispatched, Message: "api.abcd -> exec-1"})

	select {
	case ev := <-sub:
		assert.Equal(t, events.EventInstanceDispatched, ev.Type)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := events.NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestPublishToMultipleSubscribers(t *testing.T) {
	b := events.NewBroker()
	b.Start()
	defer b.Stop()

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	defer b.Unsubscribe(sub1)
	defer b.Unsubscribe(sub2)

	b.Publish(&events.Event{Type: events.EventLeaderLockAcquired})

	for _, sub := range []events.Subscriber{sub1, sub2} {
		select {
		case ev := <-sub:
			assert.Equal(t, events.EventLeaderLockAcquired, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("event not delivered to all subscribers")
		}
	}
}
