package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventHubPublish(t *testing.T) {
	h := NewEventHub()
	a := h.Subscribe()
	b := h.Subscribe()

	h.Publish(MonitorBattery, MonitorBatteryEvent{Address: "AA:BB:CC:DD:EE:FF", Level: 42, Text: "Battery: 42%"})

	for _, ch := range []chan Event{a, b} {
		ev := <-ch
		assert.Equal(t, MonitorBattery, ev.Name)
		payload, err := DecodeAs[MonitorBatteryEvent](ev)
		require.NoError(t, err)
		assert.Equal(t, 42, payload.Level)
		assert.Equal(t, "AA:BB:CC:DD:EE:FF", payload.Address)
	}

	h.Unsubscribe(a)
	_, ok := <-a
	assert.False(t, ok, "unsubscribed channel must be closed")

	h.Close()
	_, ok = <-b
	assert.False(t, ok)
}

func TestEventHubDropsForSlowSubscribers(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	for i := 0; i < 100; i++ {
		h.Publish(MonitorState, MonitorStateEvent{From: "a", To: "b"})
	}
	assert.Len(t, ch, cap(ch))
}

func TestNilHubPublish(t *testing.T) {
	var h *EventHub
	h.Publish(MonitorClosed, MonitorClosedEvent{})
}

func TestDecodeAsEmpty(t *testing.T) {
	v, err := DecodeAs[MonitorStateEvent](Event{Name: MonitorState})
	require.NoError(t, err)
	assert.Equal(t, MonitorStateEvent{}, v)
}
