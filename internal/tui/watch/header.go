package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// HealthState tracks daemon health from /health polling.
type HealthState struct {
	OK            bool
	Service       string
	Port          int
	UptimeSeconds int64
	Pending       int
	Queued        int
	Claimed       int
	Waiters       int
	Connected     bool
	LastCheck     time.Time
}

func renderHeader(health HealthState, ticker Ticker, spinner Spinner, theme Theme, width int, now time.Time) string {
	innerWidth := width - 4

	statusText := theme.Good.Render("HEALTHY")
	if !health.Connected {
		statusText = theme.Bad.Render("CONNECTING")
	} else if !health.OK {
		statusText = theme.Bad.Render("DEGRADED")
	}

	lastEvent := "never"
	if !spinner.LastEvent().IsZero() {
		lastEvent = fmt.Sprintf("%s ago", now.Sub(spinner.LastEvent()).Round(time.Second))
	}

	// Worker presence is inferred from waiters: the plugin holds a poll open.
	worker := theme.Muted.Render("no worker polling")
	if health.Waiters > 0 {
		worker = theme.Good.Render(fmt.Sprintf("%d worker poll(s) open", health.Waiters))
	}

	service := health.Service
	if service == "" {
		service = "toolbridge"
	}
	titleText := fmt.Sprintf(" %s WATCH %s", strings.ToUpper(service), theme.Accent.Render(ticker.Current()))
	clock := theme.Muted.Render(now.Format("15:04:05"))
	pad := innerWidth - lipgloss.Width(titleText) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	statsLine := fmt.Sprintf(" %s  :%d  up %s  pending %d (queued %d, claimed %d)",
		statusText,
		health.Port,
		formatDuration(time.Duration(health.UptimeSeconds)*time.Second),
		health.Pending, health.Queued, health.Claimed,
	)
	activityLine := fmt.Sprintf(" %s  Last event: %s %s", worker, lastEvent, spinner.Render(theme))

	return theme.Frame.Width(innerWidth).Render(
		lipgloss.JoinVertical(lipgloss.Left, titleLine, statsLine, activityLine),
	)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
