package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeByType(t *testing.T) {
	bus := NewBus(nil)

	var got []Event
	bus.Subscribe(EventTaskCompleted, func(evt Event) {
		got = append(got, evt)
	})

	bus.Publish(EventTaskCompleted, "T1", nil)
	bus.Publish(EventTaskFailed, "T1", nil)

	require.Len(t, got, 1)
	assert.Equal(t, EventTaskCompleted, got[0].Type)
	assert.Equal(t, "T1", got[0].TaskID)
	assert.False(t, got[0].At.IsZero())
}

func TestSubscribeAllSeesEverything(t *testing.T) {
	bus := NewBus(nil)

	var got []EventType
	bus.SubscribeAll(func(evt Event) {
		got = append(got, evt.Type)
	})

	bus.Publish(EventTaskScheduled, "T1", nil)
	bus.Publish(EventDataFetched, "T1", nil)
	bus.Publish(EventTaskDeleted, "T1", nil)

	assert.Equal(t, []EventType{EventTaskScheduled, EventDataFetched, EventTaskDeleted}, got)
}

func TestPublishPreservesOrderAcrossSubscribers(t *testing.T) {
	bus := NewBus(nil)

	var order []string
	bus.Subscribe(EventTaskTriggered, func(evt Event) {
		order = append(order, "typed")
	})
	bus.SubscribeAll(func(evt Event) {
		order = append(order, "all")
	})

	bus.Publish(EventTaskTriggered, "T1", nil)
	assert.Equal(t, []string{"typed", "all"}, order)
}

func TestPanickingSubscriberIsIsolated(t *testing.T) {
	bus := NewBus(nil)

	bus.Subscribe(EventTaskCompleted, func(evt Event) {
		panic("subscriber bug")
	})
	delivered := 0
	bus.Subscribe(EventTaskCompleted, func(evt Event) {
		delivered++
	})

	require.NotPanics(t, func() {
		bus.Publish(EventTaskCompleted, "T1", nil)
	})
	assert.Equal(t, 1, delivered)
}

func TestPublishCarriesPayload(t *testing.T) {
	bus := NewBus(nil)

	var got Event
	bus.Subscribe(EventDataTransformed, func(evt Event) { got = evt })

	payload := map[string]any{"records": 3}
	bus.Publish(EventDataTransformed, "T1", payload)

	m, ok := got.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3, m["records"])
}
