package presenter

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// ITerm presents sessions as iTerm2 tabs driven over AppleScript. Tabs
// are located later by scanning visible session text for the session
// key's leading characters; the multiplexer truncates names in its
// status bar, so only a short prefix is searchable.
type ITerm struct{}

func NewITerm() *ITerm {
	return &ITerm{}
}

// ensureRunning starts iTerm2 if no process is found. The sleep gives
// the app time to accept AppleScript before the first tab is created.
func (p *ITerm) ensureRunning(ctx context.Context) {
	if err := exec.CommandContext(ctx, "pgrep", "-x", "iTerm2").Run(); err != nil {
		if err := exec.CommandContext(ctx, "open", "-a", "iTerm").Run(); err != nil {
			log.Warn("iterm_launch_failed", slog.String("error", err.Error()))
			return
		}
		time.Sleep(2 * time.Second)
	}
}

// OpenOrFocus opens a new iTerm tab attached to the session. The tab
// title is set with an OSC 0 escape before attaching so the label
// survives the multiplexer taking over the terminal.
func (p *ITerm) OpenOrFocus(ctx context.Context, sessionKey, label string) error {
	p.ensureRunning(ctx)

	title := friendlyLabel(sessionKey, label)
	script := fmt.Sprintf(`
tell application "iTerm"
	activate
	if (count of windows) = 0 then
		create window with default profile
	end if
	tell current window
		create tab with default profile
		tell current session
			write text "printf '\\033]0;%s\\007'"
			write text "tmux attach-session -t %s"
		end tell
	end tell
end tell`, escapeAppleScript(title), escapeAppleScript(sessionKey))

	if _, err := runScript(ctx, "osascript", "-e", script); err != nil {
		return fmt.Errorf("failed to open tab: %w", err)
	}
	return nil
}

// FocusIfAttached scans open tabs for one showing this session and
// selects it. Returns false when no tab matches; the caller decides
// whether to open a fresh one.
func (p *ITerm) FocusIfAttached(ctx context.Context, sessionKey string) (bool, error) {
	p.ensureRunning(ctx)

	script := fmt.Sprintf(`
tell application "iTerm"
	activate
	repeat with w in windows
		repeat with t in tabs of w
			repeat with s in sessions of t
				try
					if text of s contains "%s" then
						select t
						return true
					end if
				end try
			end repeat
		end repeat
	end repeat
	return false
end tell`, escapeAppleScript(searchTerm(sessionKey)))

	out, err := runScript(ctx, "osascript", "-e", script)
	if err != nil {
		return false, err
	}
	return out == "true", nil
}

// searchTerm shortens a session key to the part that survives status-bar
// truncation: the prefix plus the first few characters of the name.
func searchTerm(sessionKey string) string {
	i := strings.Index(sessionKey, "-")
	if i < 0 {
		return sessionKey
	}
	prefix, rest := sessionKey[:i+1], sessionKey[i+1:]
	if j := strings.IndexByte(rest, '-'); j >= 0 {
		rest = rest[:j]
	}
	if len(rest) > 3 {
		rest = rest[:3]
	}
	return prefix + rest
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
