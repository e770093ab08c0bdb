package ui

import (
	"github.com/charmbracelet/lipgloss"
	dark "github.com/thiagokokada/dark-mode-go"

	"agentmanager/internal/agent"
)

// Theme represents the current color scheme
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

var currentTheme Theme = ThemeDark

// Dark palette - Tokyo Night
var darkColors = struct {
	Border, Text, TextDim, Accent       lipgloss.Color
	Green, Yellow, Orange, Red, Comment lipgloss.Color
}{
	Border:  lipgloss.Color("#414868"),
	Text:    lipgloss.Color("#c0caf5"),
	TextDim: lipgloss.Color("#787fa0"),
	Accent:  lipgloss.Color("#7aa2f7"),
	Green:   lipgloss.Color("#9ece6a"),
	Yellow:  lipgloss.Color("#e0af68"),
	Orange:  lipgloss.Color("#ff9e64"),
	Red:     lipgloss.Color("#f7768e"),
	Comment: lipgloss.Color("#787fa0"),
}

// Light palette - Tokyo Night Light variant
var lightColors = struct {
	Border, Text, TextDim, Accent       lipgloss.Color
	Green, Yellow, Orange, Red, Comment lipgloss.Color
}{
	Border:  lipgloss.Color("#9699a3"),
	Text:    lipgloss.Color("#343b58"),
	TextDim: lipgloss.Color("#6a6d7c"),
	Accent:  lipgloss.Color("#34548a"),
	Green:   lipgloss.Color("#485e30"),
	Yellow:  lipgloss.Color("#8f5e15"),
	Orange:  lipgloss.Color("#965027"),
	Red:     lipgloss.Color("#8c4351"),
	Comment: lipgloss.Color("#6a6d7c"),
}

var (
	titleStyle     lipgloss.Style
	dimStyle       lipgloss.Style
	errorStyle     lipgloss.Style
	selectedStyle  lipgloss.Style
	menuKeyStyle   lipgloss.Style
	menuDescStyle  lipgloss.Style
	dialogBoxStyle lipgloss.Style
	filterStyle    lipgloss.Style

	statusStyles map[agent.Status]lipgloss.Style
)

// InitTheme sets the active palette. "system" asks the OS; failures fall
// back to dark. Must run before any rendering.
func InitTheme(theme string) {
	if theme == "system" {
		theme = "dark"
		if isDark, err := dark.IsDarkMode(); err == nil && !isDark {
			theme = "light"
		}
	}

	colors := darkColors
	currentTheme = ThemeDark
	if theme == "light" {
		colors = lightColors
		currentTheme = ThemeLight
	}

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colors.Accent)
	dimStyle = lipgloss.NewStyle().Foreground(colors.TextDim)
	errorStyle = lipgloss.NewStyle().Foreground(colors.Red)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colors.Text)
	menuKeyStyle = lipgloss.NewStyle().Foreground(colors.Accent).Bold(true)
	menuDescStyle = lipgloss.NewStyle().Foreground(colors.Comment)
	filterStyle = lipgloss.NewStyle().Foreground(colors.Yellow)
	dialogBoxStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colors.Border).
		Padding(1, 2)

	statusStyles = map[agent.Status]lipgloss.Style{
		agent.StatusActive:      lipgloss.NewStyle().Foreground(colors.Green),
		agent.StatusIdle:        lipgloss.NewStyle().Foreground(colors.TextDim),
		agent.StatusWaiting:     lipgloss.NewStyle().Foreground(colors.Yellow),
		agent.StatusRecoverable: lipgloss.NewStyle().Foreground(colors.Orange),
	}
}

// GetCurrentTheme returns the active theme
func GetCurrentTheme() Theme {
	return currentTheme
}

func init() {
	InitTheme("dark")
}

// statusGlyph is the one-character indicator shown before each row.
func statusGlyph(s agent.Status) string {
	switch s {
	case agent.StatusActive:
		return "●"
	case agent.StatusWaiting:
		return "◐"
	case agent.StatusRecoverable:
		return "◌"
	default:
		return "○"
	}
}

func styledStatus(s agent.Status) string {
	if st, ok := statusStyles[s]; ok {
		return st.Render(statusGlyph(s))
	}
	return statusGlyph(s)
}
