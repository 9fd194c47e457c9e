// Package tui provides a Bubble Tea browser for saved chat sessions.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/tandem/internal/session"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("237"))

	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	timeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("178"))

	roleUserStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	roleAssistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)
)

const listWidth = 36

// Model is the root Bubble Tea model for the session browser.
type Model struct {
	store  session.Store
	ids    []string
	cursor int

	preview  *session.Session
	loadErr  error
	viewport viewport.Model

	width  int
	height int
	ready  bool
}

// New creates a browser over the sessions in store, newest first.
func New(store session.Store, ids []string) Model {
	m := Model{store: store, ids: ids}
	m.loadPreview()
	return m
}

func (m *Model) loadPreview() {
	m.preview, m.loadErr = nil, nil
	if len(m.ids) == 0 {
		return
	}
	m.preview, m.loadErr = m.store.LoadByID(m.ids[m.cursor])
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
				m.loadPreview()
				m.rebuildViewport()
			}
			return m, nil
		case "down", "j":
			if m.cursor < len(m.ids)-1 {
				m.cursor++
				m.loadPreview()
				m.rebuildViewport()
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		// title(1) + statusBar(1) = 2 fixed rows
		vpHeight := m.height - 2
		if vpHeight < 1 {
			vpHeight = 1
		}
		m.viewport = viewport.New(m.width-listWidth, vpHeight)
		m.viewport.SetContent(m.renderTranscript())
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	title := titleStyle.Width(m.width).Render("  tandem sessions")

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.renderList(), m.viewport.View())

	hint := "  ↑/↓ select  pgup/pgdn scroll  q quit"
	pct := fmt.Sprintf("%3.0f%%", m.viewport.ScrollPercent()*100)
	pad := m.width - lipgloss.Width(hint) - len(pct) - 2
	if pad < 1 {
		pad = 1
	}
	statusBar := statusBarStyle.Width(m.width).Render(hint + strings.Repeat(" ", pad) + pct)

	return lipgloss.JoinVertical(lipgloss.Left, title, body, statusBar)
}

func (m *Model) rebuildViewport() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoTop()
}

func (m *Model) renderList() string {
	var sb strings.Builder
	if len(m.ids) == 0 {
		sb.WriteString(dimStyle.Render("  (no saved sessions)") + "\n")
	}
	for i, id := range m.ids {
		row := "  " + timeStyle.Render(sessionLabel(id))
		if i == m.cursor {
			row = selectedRowStyle.Width(listWidth - 2).Render("  " + sessionLabel(id))
		}
		sb.WriteString(row + "\n")
	}
	return lipgloss.NewStyle().Width(listWidth).Render(sb.String())
}

func (m *Model) renderTranscript() string {
	if m.loadErr != nil {
		return dimStyle.Render("  failed to load session: " + m.loadErr.Error())
	}
	if m.preview == nil {
		return dimStyle.Render("  (nothing to show)")
	}

	var sb strings.Builder
	for _, msg := range m.preview.Messages {
		var badge string
		switch msg.Role {
		case session.RoleUser:
			badge = roleUserStyle.Render("you")
		default:
			badge = roleAssistantStyle.Render("tandem")
		}
		sb.WriteString("  " + badge + "\n")
		sb.WriteString(indent(msg.Content, "  ") + "\n\n")
	}
	if len(m.preview.Messages) == 0 {
		sb.WriteString(dimStyle.Render("  (empty session)") + "\n")
	}
	return sb.String()
}

// sessionLabel turns a chat_20060102_150405.000000000 identifier into a
// human-readable timestamp.
func sessionLabel(id string) string {
	raw := strings.TrimPrefix(id, "chat_")
	if len(raw) < 15 {
		return id
	}
	// 20060102_150405 -> 2006-01-02 15:04:05
	d, t := raw[:8], raw[9:15]
	return fmt.Sprintf("%s-%s-%s %s:%s:%s", d[:4], d[4:6], d[6:8], t[:2], t[2:4], t[4:6])
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

// Run starts the session browser.
func Run(store session.Store) error {
	ids, err := store.List()
	if err != nil {
		return err
	}
	p := tea.NewProgram(New(store, ids), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
