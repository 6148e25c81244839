package events

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubPublishDeliversToSubscribers(t *testing.T) {
	h := NewHub(8)
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish("command.submitted", map[string]any{"command_id": "abc"})

	ev := <-ch
	assert.Equal(t, int64(1), ev.ID)
	assert.Equal(t, "command.submitted", ev.Type)

	var data map[string]any
	require.NoError(t, json.Unmarshal(ev.Data, &data))
	assert.Equal(t, "abc", data["command_id"])
}

func TestHubNilDataIsEmptyObject(t *testing.T) {
	h := NewHub(4)
	ev := h.Publish("ping", nil)
	assert.JSONEq(t, `{}`, string(ev.Data))
}

func TestHubSinceReplaysRetainedEvents(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish("tick", nil)
	}

	all := h.Since(0)
	require.Len(t, all, 3)
	assert.Equal(t, int64(3), all[0].ID)
	assert.Equal(t, int64(5), all[2].ID)

	tail := h.Since(4)
	require.Len(t, tail, 1)
	assert.Equal(t, int64(5), tail[0].ID)
}

func TestHubCancelClosesChannel(t *testing.T) {
	h := NewHub(4)
	ch, cancel := h.Subscribe()
	assert.Equal(t, 1, h.Subscribers())

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, h.Subscribers())
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(4)
	_, cancel := h.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer*2; i++ {
		h.Publish("flood", nil)
	}
	assert.Len(t, h.Since(0), 4)
}

func TestHubConcurrentPublishKeepsIDOrder(t *testing.T) {
	const publishers, each = 8, 500
	h := NewHub(publishers * each)

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				h.Publish("command.submitted", map[string]any{"n": i})
			}
		}()
	}
	wg.Wait()

	got := h.Since(0)
	require.Len(t, got, publishers*each)
	for i, ev := range got {
		require.Equal(t, int64(i+1), ev.ID, "retained events out of order at %d", i)
	}
}
