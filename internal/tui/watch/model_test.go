package watch

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/toolbridge/internal/broker"
	"github.com/mattjoyce/toolbridge/internal/events"
)

func event(t *testing.T, id int64, typ string, data map[string]any) eventMsg {
	t.Helper()
	b, err := json.Marshal(data)
	require.NoError(t, err)
	return eventMsg(events.Event{ID: id, Type: typ, Data: b})
}

func testModel(now *time.Time) Model {
	m := New("http://127.0.0.1:7766/")
	m.now = func() time.Time { return *now }
	return *m
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func TestModelTracksCommandLifecycle(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := testModel(&now)

	m = update(t, m, event(t, 1, broker.EventSubmitted, map[string]any{
		"command_id": "c-1", "tool": "execute_luau", "state": "queued",
	}))
	require.Contains(t, m.commands, "c-1")
	assert.Equal(t, broker.StateQueued, m.commands["c-1"].State)
	assert.Equal(t, 1, m.liveCount())

	m = update(t, m, event(t, 2, broker.EventClaimed, map[string]any{
		"command_id": "c-1", "tool": "execute_luau", "state": "claimed", "from": "queued",
	}))
	assert.Equal(t, broker.StateClaimed, m.commands["c-1"].State)

	now = now.Add(time.Second)
	m = update(t, m, event(t, 3, broker.EventFailed, map[string]any{
		"command_id": "c-1", "tool": "execute_luau", "state": "failed", "elapsed_ms": 1000, "error": "boom",
	}))
	c := m.commands["c-1"]
	assert.Equal(t, broker.StateFailed, c.State)
	assert.Equal(t, "boom", c.Error)
	assert.Equal(t, time.Second, c.Elapsed)
	assert.Equal(t, 0, m.liveCount())
	assert.Len(t, m.eventLog, 3)
	assert.Equal(t, int64(3), m.lastID)
	assert.True(t, m.health.Connected)

	// finished commands linger, then go
	now = now.Add(linger + time.Second)
	m = update(t, m, tickMsg(now))
	assert.Empty(t, m.commands)
}

func TestModelSkipsReplayedEvents(t *testing.T) {
	now := time.Now()
	m := testModel(&now)

	msg := event(t, 7, broker.EventSubmitted, map[string]any{"command_id": "c-1", "state": "queued"})
	m = update(t, m, msg)
	m = update(t, m, msg)
	assert.Len(t, m.eventLog, 1)
}

func TestModelHealthAndErrors(t *testing.T) {
	now := time.Now()
	m := testModel(&now)

	m = update(t, m, healthMsg{OK: true, Service: "RbxGenie", Port: 7766, Pending: 2, Queued: 1, Claimed: 1, Waiters: 1})
	assert.True(t, m.health.Connected)
	assert.Equal(t, 2, m.health.Pending)

	m = update(t, m, sseDisconnectedMsg{})
	assert.False(t, m.health.Connected)
	assert.Contains(t, m.lastError, "reconnecting")

	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	view := m.View()
	assert.Contains(t, view, "RBXGENIE WATCH")
	assert.Contains(t, view, "COMMANDS")
	assert.Contains(t, view, "Waiting for events")
}

func TestModelQuits(t *testing.T) {
	now := time.Now()
	m := testModel(&now)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestSortedCommandsLiveFirst(t *testing.T) {
	base := time.Now()
	cmds := map[string]*CommandState{
		"done": {ID: "done", Seen: base.Add(2 * time.Second), Ended: base.Add(3 * time.Second)},
		"old":  {ID: "old", Seen: base},
		"new":  {ID: "new", Seen: base.Add(time.Second)},
	}
	var ids []string
	for _, c := range sortedCommands(cmds) {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"new", "old", "done"}, ids)
}

func TestReadSSE(t *testing.T) {
	stream := strings.Join([]string{
		": keep-alive",
		"",
		"id: 4",
		"event: command.submitted",
		`data: {"command_id":"c-1"}`,
		"",
		"id: 5",
		"event: command.claimed",
		`data: {"command_id":"c-1"}`,
		"",
	}, "\n")

	ch := make(chan events.Event, 4)
	readSSE(bufio.NewScanner(strings.NewReader(stream)), ch)
	close(ch)

	var got []events.Event
	for e := range ch {
		got = append(got, e)
	}
	require.Len(t, got, 2)
	assert.Equal(t, int64(4), got[0].ID)
	assert.Equal(t, broker.EventClaimed, got[1].Type)
	assert.JSONEq(t, `{"command_id":"c-1"}`, string(got[1].Data))
}

func TestFetchHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"ok":true,"service":"RbxGenie","port":7766,"uptime_seconds":3,"pending":1,"waiters":1}`))
	}))
	defer srv.Close()

	msg := fetchHealth(srv.URL)
	h, ok := msg.(healthMsg)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, "RbxGenie", h.Service)
	assert.Equal(t, 1, h.Waiters)
}
