// Package tui renders live sync progress for one or more users.
package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mmcdole/rdioexport/internal/domain"
	"github.com/mmcdole/rdioexport/internal/tui/components"
	"github.com/mmcdole/rdioexport/internal/tui/styles"
	"github.com/mmcdole/rdioexport/internal/usersync"
)

const maxWidth = 100

// Model is the root Bubble Tea model. Users are synced one after another
// into the same shared store.
type Model struct {
	users   []components.UserSyncState
	current int
	active  *usersync.Controller

	factory ControllerFactory
	finish  FinishFunc

	keys     KeyMap
	spinner  spinner.Model
	progress progress.Model
	width    int

	stopping bool // Cancel requested: finish the active user, skip the rest
	quitting bool
}

// NewModel creates the sync view for identifiers
func NewModel(identifiers []string, factory ControllerFactory, finish FinishFunc) Model {
	users := make([]components.UserSyncState, len(identifiers))
	for i, id := range identifiers {
		users[i] = components.UserSyncState{Identifier: id, Status: components.StatusPending}
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.SpinnerStyle

	return Model{
		users:    users,
		factory:  factory,
		finish:   finish,
		keys:     DefaultKeyMap(),
		spinner:  sp,
		progress: progress.New(progress.WithSolidFill(string(styles.RdioBlue)), progress.WithoutPercentage()),
		width:    80,
	}
}

// Init starts the first sync
func (m Model) Init() tea.Cmd {
	if len(m.users) == 0 {
		return tea.Quit
	}
	return tea.Batch(m.spinner.Tick, m.startUser(0))
}

func (m *Model) startUser(index int) tea.Cmd {
	m.current = index
	m.users[index].Status = components.StatusSyncing
	m.users[index].Label = usersync.Start.Label()
	return StartSyncCmd(index, m.users[index].Identifier, m.factory)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = min(msg.Width, maxWidth)
		m.progress.Width = max(m.width-20, 10)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.active != nil {
				m.active.Cancel()
			}
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Cancel):
			m.stopping = true
			if m.active != nil {
				m.active.Cancel()
				return m, nil
			}
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case SyncStartedMsg:
		m.active = msg.Controller
		if m.stopping {
			m.active.Cancel()
		}
		return m, RunSyncCmd(msg.Index, msg.Controller, m.finish)

	case SyncProgressMsg:
		m.applyProgress(msg.Index, msg.Progress)
		return m, msg.next

	case SyncFinishedMsg:
		return m.finishUser(msg)
	}

	return m, nil
}

func (m *Model) applyProgress(index int, p domain.SyncProgress) {
	u := &m.users[index]
	u.State = p.State
	if s, ok := usersync.ParseState(p.State); ok {
		u.Label = s.Label()
	}
	u.Synced = p.SyncedObjects
	u.Total = p.TotalObjects
}

func (m Model) finishUser(msg SyncFinishedMsg) (tea.Model, tea.Cmd) {
	u := &m.users[msg.Index]
	m.active = nil

	if msg.Summary.Identifier != "" {
		u.State = msg.Summary.State.String()
		u.Label = msg.Summary.State.Label()
		u.Synced = msg.Summary.SyncedObjects
		u.Total = msg.Summary.TotalObjects
	}
	u.ExportPath = msg.ExportPath
	u.Error = msg.Err

	switch {
	case msg.Err != nil:
		u.Status = components.StatusError
	case msg.Summary.Cancelled:
		u.Status = components.StatusCancelled
	default:
		u.Status = components.StatusDone
	}

	next := msg.Index + 1
	if next >= len(m.users) || m.stopping {
		for i := next; i < len(m.users); i++ {
			m.users[i].Status = components.StatusCancelled
		}
		m.quitting = true
		return m, tea.Quit
	}
	return m, m.startUser(next)
}

// Users returns the final per-user state
func (m Model) Users() []components.UserSyncState {
	return m.users
}

// Err joins every per-user error
func (m Model) Err() error {
	var errs []error
	for _, u := range m.users {
		if u.Error != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u.Identifier, u.Error))
		}
	}
	return errors.Join(errs...)
}

// View renders the model
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render("Rdio export"))
	b.WriteString("\n\n")

	nameWidth := 0
	for _, u := range m.users {
		nameWidth = max(nameWidth, lipgloss.Width(u.Identifier))
	}
	nameWidth = min(nameWidth, 32)

	for i, u := range m.users {
		name := lipgloss.NewStyle().Width(nameWidth).Render(styles.Truncate(u.Identifier, nameWidth))
		fmt.Fprintf(&b, "%s %s  %s\n", u.Glyph(m.spinner.View()), name, u.Detail())
		if i == m.current && u.Status == components.StatusSyncing && u.Total > 0 {
			b.WriteString("  " + m.progress.ViewAs(u.Percent()) + "\n")
		}
	}

	if !m.quitting {
		b.WriteString("\n")
		b.WriteString(m.helpView())
	}
	return styles.PanelStyle.Width(m.width).Render(b.String()) + "\n"
}

func (m Model) helpView() string {
	var parts []string
	for _, k := range []key.Binding{m.keys.Cancel, m.keys.Quit} {
		h := k.Help()
		parts = append(parts, styles.HelpKeyStyle.Render(h.Key)+" "+styles.HelpDescStyle.Render(h.Desc))
	}
	if m.stopping {
		parts = append(parts, styles.WarningStyle.Render("stopping after in-flight requests…"))
	}
	return strings.Join(parts, "  ")
}
