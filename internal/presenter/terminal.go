package presenter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// Generic launches whatever terminal emulator the host offers with an
// attach command. It cannot enumerate or focus existing tabs, so
// FocusIfAttached always reports no match and activation falls through
// to opening a fresh window.
type Generic struct {
	// candidates tried in order; each must accept `-e <command...>`
	candidates []string
}

func NewGeneric() *Generic {
	return &Generic{
		candidates: []string{
			"x-terminal-emulator",
			"gnome-terminal",
			"konsole",
			"kitty",
			"alacritty",
			"xterm",
		},
	}
}

func (p *Generic) terminal() (string, error) {
	if t := os.Getenv("TERMINAL"); t != "" {
		if path, err := exec.LookPath(t); err == nil {
			return path, nil
		}
	}
	for _, c := range p.candidates {
		if path, err := exec.LookPath(c); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no terminal emulator found")
}

func (p *Generic) OpenOrFocus(ctx context.Context, sessionKey, label string) error {
	term, err := p.terminal()
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, term, "-e", "tmux", "attach-session", "-t", sessionKey)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open terminal: %w", err)
	}
	// The emulator owns its own lifetime from here; reap it when it exits
	go func() { _ = cmd.Wait() }()

	log.Debug("terminal_opened",
		slog.String("terminal", term),
		slog.String("session", sessionKey))
	return nil
}

func (p *Generic) FocusIfAttached(_ context.Context, _ string) (bool, error) {
	return false, nil
}
