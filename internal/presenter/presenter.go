// Package presenter puts terminal-multiplexer sessions in front of the
// user: opening a tab attached to a session, or focusing one that is
// already attached. All implementations shell out to external tools and
// treat failures as non-fatal; lifecycle state never depends on a tab
// being visible.
package presenter

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"agentmanager/internal/logging"
	"agentmanager/internal/platform"
)

var log = logging.ForComponent(logging.CompPresent)

// scriptTimeout bounds every external presentation call. AppleScript can
// hang when the target app shows a modal dialog.
const scriptTimeout = 10 * time.Second

// New picks the presenter for the current platform: iTerm2 via
// AppleScript on macOS, a generic terminal-emulator launcher elsewhere.
// WSL gets the generic launcher; Windows terminal apps are not
// scriptable from inside the VM.
func New() Presenter {
	if platform.Detect() == platform.PlatformMacOS {
		return NewITerm()
	}
	return NewGeneric()
}

// Presenter is implemented by ITerm and Generic.
type Presenter interface {
	OpenOrFocus(ctx context.Context, sessionKey, label string) error
	FocusIfAttached(ctx context.Context, sessionKey string) (bool, error)
}

func runScript(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, scriptTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%s timed out", name)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%s: %s", name, msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// friendlyLabel derives a short tab title from a session key, stripping
// the prefix and the uniqueness suffix.
func friendlyLabel(sessionKey, fallback string) string {
	if fallback != "" {
		return fallback
	}
	name := sessionKey
	if i := strings.Index(name, "-"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "-"); i > 0 {
		name = name[:i]
	}
	if name == "" {
		return sessionKey
	}
	return name
}
