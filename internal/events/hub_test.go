package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubFanOutAndUnsubscribe(t *testing.T) {
	h := NewHub()
	a, stopA := h.Subscribe()
	b, stopB := h.Subscribe()
	defer stopB()

	h.Publish("one")
	assert.Equal(t, "one", <-a)
	assert.Equal(t, "one", <-b)

	stopA()
	stopA()
	_, open := <-a
	assert.False(t, open)

	n, _ := h.Stats()
	assert.Equal(t, 1, n)
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := NewHub()
	_, stop := h.Subscribe()
	defer stop()

	for i := 0; i < 20; i++ {
		h.Publish("x")
	}
	_, dropped := h.Stats()
	assert.Equal(t, 4, dropped)
}

func TestMakeEvent(t *testing.T) {
	raw := MakeEvent("req-1", RunFinished, map[string]int{"records": 3})

	var e Event
	require.NoError(t, json.Unmarshal([]byte(raw), &e))
	assert.Equal(t, RunFinished, e.Type)
	assert.Equal(t, 1, e.Version)
	assert.Equal(t, "req-1", e.RequestID)
	assert.JSONEq(t, `{"records":3}`, string(e.Data))

	var ping Event
	require.NoError(t, json.Unmarshal([]byte(MakeEvent("", Ping, nil)), &ping))
	assert.Equal(t, Ping, ping.Type)
	assert.Empty(t, ping.Data)
}
