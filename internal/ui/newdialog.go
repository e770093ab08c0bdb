package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"agentmanager/internal/manager"
)

// maxNameLength bounds session names; longer names get truncated by the
// multiplexer status bar anyway.
const maxNameLength = 50

// newDialog collects the inputs for a new session: name, agent type and
// working directory.
type newDialog struct {
	name      textinput.Model
	dir       textinput.Model
	toolTypes []string
	toolIdx   int
	focus     int // 0 = name, 1 = type, 2 = dir
}

func newNewDialog(toolTypes []string, defaultDir string) *newDialog {
	name := textinput.New()
	name.Placeholder = "session name"
	name.CharLimit = maxNameLength
	name.Focus()

	dir := textinput.New()
	dir.Placeholder = "working directory"
	dir.SetValue(defaultDir)

	if len(toolTypes) == 0 {
		toolTypes = []string{"claude"}
	}

	return &newDialog{
		name:      name,
		dir:       dir,
		toolTypes: toolTypes,
	}
}

// update consumes one key. done reports the dialog is finished; params
// is nil when it was cancelled.
func (d *newDialog) update(msg tea.KeyMsg) (done bool, params *manager.CreateParams, cmd tea.Cmd) {
	switch msg.String() {
	case "esc":
		return true, nil, nil

	case "enter":
		name := strings.TrimSpace(d.name.Value())
		if name == "" {
			return false, nil, nil
		}
		return true, &manager.CreateParams{
			AgentType:  d.toolTypes[d.toolIdx],
			Name:       name,
			WorkingDir: strings.TrimSpace(d.dir.Value()),
		}, nil

	case "tab", "shift+tab":
		if msg.String() == "tab" {
			d.focus = (d.focus + 1) % 3
		} else {
			d.focus = (d.focus + 2) % 3
		}
		d.name.Blur()
		d.dir.Blur()
		switch d.focus {
		case 0:
			d.name.Focus()
		case 2:
			d.dir.Focus()
		}
		return false, nil, nil

	case "left", "right":
		if d.focus == 1 {
			if msg.String() == "right" {
				d.toolIdx = (d.toolIdx + 1) % len(d.toolTypes)
			} else {
				d.toolIdx = (d.toolIdx + len(d.toolTypes) - 1) % len(d.toolTypes)
			}
			return false, nil, nil
		}
	}

	switch d.focus {
	case 0:
		d.name, cmd = d.name.Update(msg)
	case 2:
		d.dir, cmd = d.dir.Update(msg)
	}
	return false, nil, cmd
}

func (d *newDialog) view() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("New Session") + "\n\n")

	b.WriteString("Name: " + d.name.View() + "\n")

	typeLine := "Type: "
	for i, t := range d.toolTypes {
		if i == d.toolIdx {
			typeLine += selectedStyle.Render("["+t+"]") + " "
		} else {
			typeLine += dimStyle.Render(t) + " "
		}
	}
	b.WriteString(typeLine + "\n")

	b.WriteString("Dir:  " + d.dir.View() + "\n\n")
	b.WriteString(menuDescStyle.Render("enter create · tab next field · ←/→ type · esc cancel"))

	return dialogBoxStyle.Render(b.String())
}
