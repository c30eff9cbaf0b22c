package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBusPublish(t *testing.T) {
	bus := NewEventBus()

	var handled []EventType
	bus.SubscribeFunc(func(e Event) {
		handled = append(handled, e.Type)
	})

	ch := make(chan Event, 1)
	bus.Subscribe(ch)

	bus.Publish(Event{Type: EventGroupCreated})
	// The channel is full; this one is dropped for ch but still handled
	bus.Publish(Event{Type: EventGroupDeleted})

	assert.Equal(t, []EventType{EventGroupCreated, EventGroupDeleted}, handled)
	assert.Equal(t, EventGroupCreated, (<-ch).Type)
	assert.Len(t, ch, 0)
}
