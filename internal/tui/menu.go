// Package tui holds the interactive start menu shown when toolbridge runs
// without arguments. The live monitor lives in the watch subpackage.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Choice is the action picked from the menu.
type Choice int

const (
	ChoiceNone Choice = iota
	ChoiceStart
	ChoiceSkills
	ChoiceExit
)

var menuItems = []struct {
	label  string
	choice Choice
}{
	{"Start Server", ChoiceStart},
	{"Create SKILLS.md", ChoiceSkills},
	{"Exit", ChoiceExit},
}

var (
	menuTitle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#874BFD")).Padding(0, 1)
	menuSelected = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Bold(true)
	menuDim      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	menuNotice   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B"))
)

// Menu is the BubbleTea model for the start menu. Items are picked with the
// arrow keys or their number; "Create SKILLS.md" then asks for a directory.
type Menu struct {
	title  string
	notice string
	cursor int
	asking bool
	input  textinput.Model
	choice Choice
	dir    string
}

// NewMenu creates a menu. notice is shown under the items, typically the
// outcome of the previous action.
func NewMenu(title, notice string) Menu {
	in := textinput.New()
	in.Placeholder = "."
	in.Prompt = "Path (default .): "
	in.CharLimit = 4096
	return Menu{title: title, notice: notice, input: in}
}

func (m Menu) Init() tea.Cmd { return nil }

func (m Menu) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		if m.asking {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	if m.asking {
		switch key.Type {
		case tea.KeyEnter:
			m.dir = strings.TrimSpace(m.input.Value())
			if m.dir == "" {
				m.dir = "."
			}
			m.choice = ChoiceSkills
			return m, tea.Quit
		case tea.KeyEsc:
			m.asking = false
			m.input.Blur()
			m.input.Reset()
			return m, nil
		case tea.KeyCtrlC:
			m.choice = ChoiceExit
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch key.String() {
	case "ctrl+c", "q", "esc":
		m.choice = ChoiceExit
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(menuItems)-1 {
			m.cursor++
		}
	case "1", "2", "3":
		m.cursor = int(key.String()[0] - '1')
		return m.pick()
	case "enter":
		return m.pick()
	default:
		m.notice = "Invalid choice."
	}
	return m, nil
}

func (m Menu) pick() (tea.Model, tea.Cmd) {
	c := menuItems[m.cursor].choice
	if c == ChoiceSkills {
		m.asking = true
		m.notice = ""
		cmd := m.input.Focus()
		return m, cmd
	}
	m.choice = c
	return m, tea.Quit
}

func (m Menu) View() string {
	var b strings.Builder
	b.WriteString("\n" + menuTitle.Render(fmt.Sprintf("=== %s ===", m.title)) + "\n\n")
	for i, item := range menuItems {
		line := fmt.Sprintf("%d) %s", i+1, item.label)
		if i == m.cursor {
			b.WriteString(menuSelected.Render("> "+line) + "\n")
		} else {
			b.WriteString("  " + line + "\n")
		}
	}
	b.WriteString("\n")
	if m.asking {
		b.WriteString(m.input.View() + "\n")
	}
	if m.notice != "" {
		b.WriteString(menuNotice.Render(m.notice) + "\n")
	}
	b.WriteString(menuDim.Render("[↑/↓] move • [enter] select • [q] quit") + "\n")
	return b.String()
}

// Choice returns the picked action and, for ChoiceSkills, the directory.
func (m Menu) Choice() (Choice, string) { return m.choice, m.dir }

// RunMenu shows the menu until the user picks an action.
func RunMenu(title, notice string) (Choice, string, error) {
	final, err := tea.NewProgram(NewMenu(title, notice)).Run()
	if err != nil {
		return ChoiceNone, "", err
	}
	m, ok := final.(Menu)
	if !ok {
		return ChoiceNone, "", fmt.Errorf("unexpected menu model %T", final)
	}
	c, dir := m.Choice()
	return c, dir, nil
}
