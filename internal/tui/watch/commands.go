package watch

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/toolbridge/internal/broker"
	"github.com/mattjoyce/toolbridge/internal/events"
)

// linger is how long a finished command stays on screen.
const linger = 30 * time.Second

// CommandState tracks one command seen on the event stream.
type CommandState struct {
	ID      string
	Tool    string
	State   broker.State
	Seen    time.Time // first event
	Ended   time.Time // terminal event, zero while live
	Elapsed time.Duration
	Error   string
}

type transitionData struct {
	CommandID string `json:"command_id"`
	Tool      string `json:"tool"`
	State     string `json:"state"`
	ElapsedMs int64  `json:"elapsed_ms"`
	Error     string `json:"error"`
}

// applyEvent folds a command.* event into cmds.
func applyEvent(cmds map[string]*CommandState, e events.Event, now time.Time) {
	var d transitionData
	if err := json.Unmarshal(e.Data, &d); err != nil || d.CommandID == "" {
		return
	}

	c, ok := cmds[d.CommandID]
	if !ok {
		c = &CommandState{ID: d.CommandID, Seen: now}
		cmds[d.CommandID] = c
	}
	if d.Tool != "" {
		c.Tool = d.Tool
	}
	if d.State != "" {
		c.State = broker.State(d.State)
	}
	c.Error = d.Error
	if c.State.Terminal() {
		c.Ended = now
		c.Elapsed = time.Duration(d.ElapsedMs) * time.Millisecond
	}
}

// pruneCommands drops finished commands older than linger.
func pruneCommands(cmds map[string]*CommandState, now time.Time) {
	for id, c := range cmds {
		if !c.Ended.IsZero() && now.Sub(c.Ended) > linger {
			delete(cmds, id)
		}
	}
}

// sortedCommands returns live commands first, then newest first.
func sortedCommands(cmds map[string]*CommandState) []*CommandState {
	out := make([]*CommandState, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		li, lj := out[i].Ended.IsZero(), out[j].Ended.IsZero()
		if li != lj {
			return li
		}
		if !out[i].Seen.Equal(out[j].Seen) {
			return out[i].Seen.After(out[j].Seen)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func newCommandTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Tool", Width: 28},
			{Title: "State", Width: 10},
			{Title: "ID", Width: 10},
			{Title: "Age", Width: 10},
			{Title: "Error", Width: 30},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func commandRows(cmds []*CommandState, theme Theme, now time.Time) []table.Row {
	rows := make([]table.Row, 0, len(cmds))
	for _, c := range cmds {
		age := now.Sub(c.Seen)
		if !c.Ended.IsZero() {
			age = c.Elapsed
		}
		id := c.ID
		if len(id) > 8 {
			id = id[:8]
		}
		rows = append(rows, table.Row{
			theme.Symbol(c.State),
			c.Tool,
			string(c.State),
			id,
			age.Round(time.Millisecond).String(),
			c.Error,
		})
	}
	return rows
}

func renderCommands(t table.Model, live int, theme Theme, width int) string {
	title := theme.Heading.Render("COMMANDS")
	if live > 0 {
		title += theme.Accent.Render(" (" + itoa(live) + " live)")
	}
	return theme.Frame.Width(width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, t.View()),
	)
}
