package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvents_FanOut(t *testing.T) {
	bus := NewEvents()
	a, cancelA := bus.Subscribe(4)
	b, cancelB := bus.Subscribe(4)
	defer cancelB()

	bus.Publish(Event{Type: EventStatus, DatasetID: "ds-1", Status: StatusReady})

	evA := <-a
	evB := <-b
	assert.Equal(t, "ds-1", evA.DatasetID)
	assert.Equal(t, evA, evB)
	assert.False(t, evA.Timestamp.IsZero())

	cancelA()
	cancelA()
	_, open := <-a
	assert.False(t, open, "cancel closes the channel")

	bus.Publish(Event{Type: EventStatus, DatasetID: "ds-2"})
	assert.Equal(t, "ds-2", (<-b).DatasetID)
}

func TestEvents_SlowSubscriberDropsEvents(t *testing.T) {
	bus := NewEvents()
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	bus.Publish(Event{DatasetID: "first"})
	bus.Publish(Event{DatasetID: "second"})

	require.Len(t, ch, 1)
	assert.Equal(t, "first", (<-ch).DatasetID)
}
