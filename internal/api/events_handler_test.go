package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"

	"github.com/mattjoyce/toolbridge/internal/api/mocks"
	"github.com/mattjoyce/toolbridge/internal/broker"
	"github.com/mattjoyce/toolbridge/internal/events"
)

func TestEventsReplayWithFilter(t *testing.T) {
	hub := events.NewHub(16)
	hub.Publish(broker.EventSubmitted, map[string]any{"command_id": "a"}) // id 1
	hub.Publish(broker.EventClaimed, map[string]any{"command_id": "a"})   // id 2
	hub.Publish(broker.EventSubmitted, map[string]any{"command_id": "b"}) // id 3
	hub.Publish(broker.EventFailed, map[string]any{"command_id": "a"})    // id 4

	s := New(testConfig(), mocks.NewMockBroker(gomock.NewController(t)), hub, nil, nil, discardLogger())

	// A cancelled request replays the buffer and returns.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/events?type=command.submitted,command.failed", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.NotContains(t, body, "id: 1\n")
	assert.NotContains(t, body, "command.claimed")
	assert.Contains(t, body, "id: 3\nevent: command.submitted\ndata: {\"command_id\":\"b\"}\n\n")
	assert.Contains(t, body, "id: 4\nevent: command.failed\n")
	assert.Equal(t, 0, hub.Subscribers())
}

func TestEventsDisabled(t *testing.T) {
	s, _ := newMockServer(t)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/events", "").Code)
}

func TestParseLastEventID(t *testing.T) {
	tests := map[string]int64{"": 0, "7": 7, " 12 ": 12, "-3": 0, "abc": 0}
	for in, want := range tests {
		assert.Equal(t, want, parseLastEventID(in), in)
	}
}

func TestParseTypes(t *testing.T) {
	assert.Nil(t, parseTypes(nil))
	assert.Nil(t, parseTypes([]string{" , "}))
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, parseTypes([]string{"a,b", " c "}))
}
