// Package watch implements the live command monitor behind `toolbridge watch`.
package watch

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/toolbridge/internal/broker"
)

const (
	colorGood   = lipgloss.Color("#00FF00")
	colorBusy   = lipgloss.Color("#FFFF00")
	colorBad    = lipgloss.Color("#FF0000")
	colorMuted  = lipgloss.Color("#888888")
	colorFaint  = lipgloss.Color("#444444")
	colorFrame  = lipgloss.Color("#874BFD")
	colorText   = lipgloss.Color("#FAFAFA")
	colorAccent = lipgloss.Color("#E5C07B")
)

// Theme holds the monitor's styles. Good, Busy, Bad and Idle follow a
// command's lifecycle; the rest dress the panels.
type Theme struct {
	Good, Busy, Bad, Idle lipgloss.Style

	Frame   lipgloss.Style
	Heading lipgloss.Style
	Muted   lipgloss.Style
	Accent  lipgloss.Style

	PulseOn, PulseOff lipgloss.Style
}

func fg(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

func NewDefaultTheme() Theme {
	return Theme{
		Good: fg(colorGood),
		Busy: fg(colorBusy),
		Bad:  fg(colorBad),
		Idle: fg(colorMuted),

		Frame:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorFrame),
		Heading: fg(colorText).Bold(true).Padding(0, 1),
		Muted:   fg(colorMuted),
		Accent:  fg(colorAccent),

		PulseOn:  fg(colorGood),
		PulseOff: fg(colorFaint),
	}
}

// forState picks the style for a command state.
func (t Theme) forState(s broker.State) lipgloss.Style {
	switch s {
	case broker.StateClaimed:
		return t.Busy
	case broker.StateCompleted:
		return t.Good
	case broker.StateFailed, broker.StateTimedOut:
		return t.Bad
	default:
		return t.Idle
	}
}

// Symbol renders the one-glyph state marker used in the command table.
func (t Theme) Symbol(s broker.State) string {
	var glyph string
	switch s {
	case broker.StateQueued:
		glyph = "○"
	case broker.StateClaimed:
		glyph = "◉"
	case broker.StateCompleted:
		glyph = "●"
	case broker.StateFailed:
		glyph = "∅"
	case broker.StateTimedOut:
		glyph = "◑"
	default:
		return "?"
	}
	return t.forState(s).Render(glyph)
}

// forEvent picks the style for a hub event type.
func (t Theme) forEvent(eventType string) lipgloss.Style {
	switch eventType {
	case broker.EventClaimed:
		return t.forState(broker.StateClaimed)
	case broker.EventCompleted:
		return t.forState(broker.StateCompleted)
	case broker.EventFailed, broker.EventTimedOut:
		return t.forState(broker.StateFailed)
	default:
		return t.Muted
	}
}
