// Package ui is the interactive terminal frontend. It renders snapshots
// published by the refresh loop and turns keystrokes into dispatched
// actions; it never touches the store or multiplexer directly.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"

	"agentmanager/internal/agent"
	"agentmanager/internal/logging"
	"agentmanager/internal/manager"
)

var uiLog = logging.ForComponent(logging.CompUI)

// snapshotMsg delivers the next refresh-loop snapshot.
type snapshotMsg *manager.Snapshot

// actionDoneMsg reports the outcome of a dispatched action.
type actionDoneMsg struct {
	action manager.ActionType
	err    error
}

// Home is the main application model.
type Home struct {
	loop *manager.Loop

	width  int
	height int

	snapshot *manager.Snapshot
	cursor   int

	filtering bool
	filter    string

	dialog *newDialog

	renameID    string // agent being renamed, "" when not renaming
	renameInput textinput.Model

	confirmKill string // agent ID pending kill confirmation
	status      string // transient message line

	toolTypes  []string
	defaultDir string
}

// NewHome creates the model. toolTypes is the set offered in the
// new-session dialog; defaultDir seeds its working-directory field.
func NewHome(loop *manager.Loop, toolTypes []string, defaultDir string) *Home {
	return &Home{
		loop:       loop,
		toolTypes:  toolTypes,
		defaultDir: defaultDir,
	}
}

func (h *Home) Init() tea.Cmd {
	return h.waitForSnapshot()
}

// waitForSnapshot blocks on the refresh loop's update channel. The
// channel only ever holds the freshest snapshot, so a slow UI skips
// intermediates instead of lagging behind.
func (h *Home) waitForSnapshot() tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(<-h.loop.Updates())
	}
}

func (h *Home) dispatch(cmd manager.Command) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := h.loop.Dispatch(ctx, cmd)
		return actionDoneMsg{action: cmd.Type, err: err}
	}
}

// rows returns the visible agents, fuzzy-filtered when a filter is set.
func (h *Home) rows() []manager.AgentView {
	if h.snapshot == nil {
		return nil
	}
	agents := h.snapshot.Agents
	if h.filter == "" {
		return agents
	}
	names := make([]string, len(agents))
	for i, a := range agents {
		names[i] = a.Name
	}
	matches := fuzzy.Find(h.filter, names)
	out := make([]manager.AgentView, 0, len(matches))
	for _, m := range matches {
		out = append(out, agents[m.Index])
	}
	return out
}

func (h *Home) selected() *manager.AgentView {
	rows := h.rows()
	if h.cursor < 0 || h.cursor >= len(rows) {
		return nil
	}
	return &rows[h.cursor]
}

func (h *Home) clampCursor() {
	if n := len(h.rows()); h.cursor >= n {
		h.cursor = n - 1
	}
	if h.cursor < 0 {
		h.cursor = 0
	}
}

func (h *Home) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h.width = msg.Width
		h.height = msg.Height
		return h, nil

	case snapshotMsg:
		h.snapshot = (*manager.Snapshot)(msg)
		h.clampCursor()
		return h, h.waitForSnapshot()

	case actionDoneMsg:
		if msg.err != nil {
			uiLog.Warn("action_failed", "action", string(msg.action), "error", msg.err.Error())
			h.status = errorStyle.Render(msg.err.Error())
		} else {
			h.status = ""
		}
		return h, nil

	case tea.KeyMsg:
		if h.dialog != nil {
			return h.updateDialog(msg)
		}
		if h.renameID != "" {
			return h.updateRename(msg)
		}
		if h.filtering {
			return h.updateFilter(msg)
		}
		return h.updateList(msg)
	}
	return h, nil
}

func (h *Home) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Any key other than a repeated kill request clears the pending confirm
	key := msg.String()
	if h.confirmKill != "" && key != "x" {
		h.confirmKill = ""
		h.status = ""
	}

	switch key {
	case "q", "ctrl+c":
		return h, tea.Quit

	case "up", "k":
		if h.cursor > 0 {
			h.cursor--
		}

	case "down", "j":
		if h.cursor < len(h.rows())-1 {
			h.cursor++
		}

	case "enter":
		if a := h.selected(); a != nil {
			return h, h.dispatch(manager.Command{Type: manager.ActionActivate, AgentID: a.ID})
		}

	case "n":
		h.dialog = newNewDialog(h.toolTypes, h.defaultDir)
		return h, nil

	case "x":
		a := h.selected()
		if a == nil {
			break
		}
		if h.confirmKill != a.ID {
			h.confirmKill = a.ID
			h.status = fmt.Sprintf("kill %s? press x again to confirm", a.Name)
			break
		}
		h.confirmKill = ""
		h.status = ""
		return h, h.dispatch(manager.Command{Type: manager.ActionKill, AgentID: a.ID})

	case "a":
		if a := h.selected(); a != nil {
			action := manager.ActionArchive
			if a.Archived {
				action = manager.ActionUnarchive
			}
			return h, h.dispatch(manager.Command{Type: action, AgentID: a.ID})
		}

	case "e":
		if a := h.selected(); a != nil {
			h.renameID = a.ID
			h.renameInput = textinput.New()
			h.renameInput.CharLimit = maxNameLength
			h.renameInput.SetValue(a.Name)
			h.renameInput.Focus()
		}
		return h, nil

	case "tab":
		return h, h.dispatch(manager.Command{Type: manager.ActionToggleView})

	case "r":
		return h, h.dispatch(manager.Command{Type: manager.ActionRefresh})

	case "/":
		h.filtering = true
		h.filter = ""
		h.cursor = 0
	}
	return h, nil
}

func (h *Home) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		h.filtering = false
		h.filter = ""
		h.clampCursor()
	case "enter":
		h.filtering = false
	case "backspace":
		if len(h.filter) > 0 {
			h.filter = h.filter[:len(h.filter)-1]
		}
	default:
		if msg.Type == tea.KeyRunes {
			h.filter += string(msg.Runes)
			h.cursor = 0
		}
	}
	return h, nil
}

func (h *Home) updateRename(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		h.renameID = ""
		return h, nil
	case "enter":
		name := strings.TrimSpace(h.renameInput.Value())
		id := h.renameID
		h.renameID = ""
		if name == "" {
			return h, nil
		}
		return h, h.dispatch(manager.Command{Type: manager.ActionRename, AgentID: id, Name: name})
	}
	var cmd tea.Cmd
	h.renameInput, cmd = h.renameInput.Update(msg)
	return h, cmd
}

func (h *Home) updateDialog(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	done, params, cmd := h.dialog.update(msg)
	if !done {
		return h, cmd
	}
	h.dialog = nil
	if params == nil {
		return h, nil
	}
	return h, h.dispatch(manager.Command{Type: manager.ActionCreate, Create: *params})
}

func (h *Home) View() string {
	if h.dialog != nil {
		return h.dialog.view()
	}

	var b strings.Builder

	title := "Agents"
	if h.snapshot != nil && h.snapshot.ViewArchived {
		title = "Archived Agents"
	}
	counts := ""
	if h.snapshot != nil {
		counts = dimStyle.Render(fmt.Sprintf("  %d active, %d archived",
			h.snapshot.ActiveCount, h.snapshot.ArchivedCount))
	}
	b.WriteString(titleStyle.Render(title) + counts + "\n\n")

	if h.filtering || h.filter != "" {
		b.WriteString(filterStyle.Render("/"+h.filter) + "\n")
	}
	if h.renameID != "" {
		b.WriteString(filterStyle.Render("rename: ") + h.renameInput.View() + "\n")
	}

	rows := h.rows()
	if len(rows) == 0 {
		b.WriteString(dimStyle.Render("  no agents. press n to start one.") + "\n")
	}
	for i, a := range rows {
		b.WriteString(h.renderRow(a, i == h.cursor) + "\n")
	}

	if h.status != "" {
		b.WriteString("\n" + h.status + "\n")
	}

	b.WriteString("\n" + h.menuBar())
	return b.String()
}

func (h *Home) renderRow(a manager.AgentView, selected bool) string {
	nameWidth := 24
	if h.width > 70 {
		nameWidth = h.width - 46
		if nameWidth > 40 {
			nameWidth = 40
		}
	}
	name := runewidth.FillRight(runewidth.Truncate(a.Name, nameWidth, "…"), nameWidth)

	line := fmt.Sprintf("%s %s %-8s %s",
		styledStatus(a.Status),
		name,
		a.AgentType,
		dimStyle.Render(a.WorkingDir))

	if selected {
		return selectedStyle.Render("> ") + line
	}
	return "  " + line
}

func (h *Home) menuBar() string {
	items := []struct{ key, desc string }{
		{"n", "new"},
		{"enter", "open"},
		{"x", "kill"},
		{"a", "archive"},
		{"e", "rename"},
		{"tab", "archived"},
		{"/", "filter"},
		{"r", "refresh"},
		{"q", "quit"},
	}
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = menuKeyStyle.Render(it.key) + " " + menuDescStyle.Render(it.desc)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, strings.Join(parts, dimStyle.Render("  ")))
}

// StatusLabel renders a human status name for list output.
func StatusLabel(s agent.Status) string {
	return styledStatus(s) + " " + string(s)
}
