package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/toolbridge/internal/events"
)

const eventLogSize = 50

// Model is the BubbleTea model for the command monitor.
type Model struct {
	apiURL string

	width  int
	height int

	health   HealthState
	commands map[string]*CommandState
	eventLog []events.Event
	lastID   int64

	ticker  Ticker
	spinner Spinner
	theme   Theme
	table   table.Model

	hubEvents chan events.Event
	now       func() time.Time

	lastError string
}

// New creates a monitor for the daemon at apiURL.
func New(apiURL string) *Model {
	return &Model{
		apiURL:    strings.TrimRight(apiURL, "/"),
		commands:  make(map[string]*CommandState),
		hubEvents: make(chan events.Event, 100),
		ticker:    NewTicker(),
		theme:     NewDefaultTheme(),
		table:     newCommandTable(),
		now:       time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, 0, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.apiURL) },
		tick(),
	)
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(max(m.width-6, 20))
		m.table.SetHeight(max(m.height/2-4, 5))
		return m, nil

	case tickMsg:
		now := m.now()
		m.ticker.Tick()
		m.spinner.Decay(now)
		pruneCommands(m.commands, now)
		m.refreshTable(now)
		return m, tick()

	case eventMsg:
		e := events.Event(msg)
		if e.ID > 0 && e.ID <= m.lastID {
			return m, receiveNextEvent(m.hubEvents)
		}
		if e.ID > 0 {
			m.lastID = e.ID
		}
		now := m.now()
		if e.At.IsZero() {
			e.At = now
		}

		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > eventLogSize {
			m.eventLog = m.eventLog[:eventLogSize]
		}
		m.spinner.OnEvent(now)
		applyEvent(m.commands, e, now)
		m.refreshTable(now)

		m.health.Connected = true
		m.lastError = ""
		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health = HealthState{
			OK:            msg.OK,
			Service:       msg.Service,
			Port:          msg.Port,
			UptimeSeconds: msg.UptimeSeconds,
			Pending:       msg.Pending,
			Queued:        msg.Queued,
			Claimed:       msg.Claimed,
			Waiters:       msg.Waiters,
			Connected:     true,
			LastCheck:     m.now(),
		}
		m.lastError = ""
		return m, m.healthAfter(5 * time.Second)

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		// receiveNextEvent is still parked on the channel and picks up the
		// new subscription's events.
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.lastID, m.hubEvents)

	case errMsg:
		m.health.Connected = false
		m.lastError = msg.Error()
		return m, m.healthAfter(5 * time.Second)
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) healthAfter(d time.Duration) tea.Cmd {
	url := m.apiURL
	return tea.Tick(d, func(time.Time) tea.Msg { return fetchHealth(url) })
}

func (m *Model) refreshTable(now time.Time) {
	m.table.SetRows(commandRows(sortedCommands(m.commands), m.theme, now))
}

func (m Model) liveCount() int {
	n := 0
	for _, c := range m.commands {
		if c.Ended.IsZero() {
			n++
		}
	}
	return n
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to " + m.apiURL + "..."
	}
	now := m.now()

	parts := []string{
		renderHeader(m.health, m.ticker, m.spinner, m.theme, m.width, now),
		renderCommands(m.table, m.liveCount(), m.theme, m.width),
		renderEventStream(m.eventLog, m.theme, m.width),
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.Bad.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	parts = append(parts, lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Scroll commands"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

// Run starts the monitor full screen and blocks until the user quits.
func Run(apiURL string) error {
	_, err := tea.NewProgram(New(apiURL), tea.WithAltScreen()).Run()
	return err
}
