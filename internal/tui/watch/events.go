package watch

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/toolbridge/internal/events"
)

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Heading.Render("EVENT STREAM"),
			theme.Muted.Render("  Waiting for events..."),
		)
		return theme.Frame.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= 10 {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Heading.Render("EVENT STREAM"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	)
	return theme.Frame.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Muted.Render(e.At.Format("15:04:05"))

	return fmt.Sprintf("%s %s %s", ts, theme.forEvent(e.Type).Render(fmt.Sprintf("%-20s", e.Type)), eventDesc(e))
}

func eventDesc(e events.Event) string {
	var d transitionData
	if err := json.Unmarshal(e.Data, &d); err != nil || d.CommandID == "" {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}

	id := d.CommandID
	if len(id) > 8 {
		id = id[:8]
	}
	parts := []string{"[" + id + "]", d.Tool}
	if d.ElapsedMs > 0 {
		parts = append(parts, strconv.FormatInt(d.ElapsedMs, 10)+"ms")
	}
	if d.Error != "" {
		parts = append(parts, d.Error)
	}
	return strings.Join(parts, " ")
}

func itoa(n int) string { return strconv.Itoa(n) }
