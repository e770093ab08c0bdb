// Package tmux wraps the tmux binary as the terminal multiplexer backing
// agent sessions. Every call shells out with a bounded timeout so a hung
// tmux server degrades to a per-call failure instead of stalling the
// refresh loop.
package tmux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"agentmanager/internal/logging"
)

var muxLog = logging.ForComponent(logging.CompMux)

// ErrCaptureTimeout is returned when a capture-pane call exceeds its
// deadline. Callers treat it as "no signal this tick", not as session death.
var ErrCaptureTimeout = errors.New("tmux capture timed out")

const (
	// callTimeout bounds every tmux subprocess invocation.
	callTimeout = 3 * time.Second

	// captureCacheTTL keeps one pane capture hot across rapid re-reads
	// within a tick (UI preview + detector share one subprocess call).
	captureCacheTTL = 500 * time.Millisecond
)

// Client runs tmux commands for sessions under a common name prefix.
type Client struct {
	prefix       string
	captureLines int

	cacheMu   sync.Mutex
	captures  map[string]captureEntry
	captureSf singleflight.Group
}

type captureEntry struct {
	content string
	at      time.Time
}

// NewClient creates a tmux client managing sessions named prefix*.
func NewClient(prefix string, captureLines int) *Client {
	if captureLines <= 0 {
		captureLines = 30
	}
	return &Client{
		prefix:       prefix,
		captureLines: captureLines,
		captures:     make(map[string]captureEntry),
	}
}

// IsAvailable reports whether the tmux binary can be found.
func IsAvailable() error {
	if _, err := exec.LookPath("tmux"); err != nil {
		return fmt.Errorf("tmux not found in PATH: %w", err)
	}
	return nil
}

// Prefix returns the session name prefix this client manages.
func (c *Client) Prefix() string {
	return c.prefix
}

// CurrentSessionName returns the name of the session the calling process
// is running inside. Only meaningful when $TMUX is set.
func CurrentSessionName(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, "tmux", "display-message", "-p", "#S").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

var sessionNameRe = regexp.MustCompile(`[^a-zA-Z0-9-]+`)

// SessionKey derives a unique session name from a user-supplied label:
// prefix + sanitized label + unix-timestamp suffix. The suffix avoids
// collisions when two sessions share a label.
func (c *Client) SessionKey(name string) string {
	sanitized := sessionNameRe.ReplaceAllString(strings.ToLower(name), "-")
	sanitized = strings.Trim(sanitized, "-")
	if sanitized == "" {
		sanitized = "session"
	}
	return fmt.Sprintf("%s%s-%d", c.prefix, sanitized, time.Now().Unix())
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "tmux", args...)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("tmux %s timed out: %w", args[0], ctx.Err())
		}
		return "", err
	}
	return string(output), nil
}

// CreateSession starts a detached session in workDir and types command into
// it. The session is created first so a bad command still leaves an
// attachable shell behind.
func (c *Client) CreateSession(ctx context.Context, key, workDir, command string) error {
	if workDir == "" {
		workDir = os.Getenv("HOME")
	}

	if _, err := c.run(ctx, "new-session", "-d", "-s", key, "-c", workDir); err != nil {
		return fmt.Errorf("failed to create tmux session %s: %w", key, err)
	}

	if command != "" {
		if err := c.SendKeys(ctx, key, command); err != nil {
			return fmt.Errorf("failed to send launch command: %w", err)
		}
	}

	muxLog.Info("session_created",
		slog.String("session", key),
		slog.String("dir", workDir))
	return nil
}

// SendKeys types keys into the session followed by Enter.
func (c *Client) SendKeys(ctx context.Context, key, keys string) error {
	_, err := c.run(ctx, "send-keys", "-t", key, keys, "Enter")
	return err
}

// HasSession reports whether the named session exists.
func (c *Client) HasSession(ctx context.Context, key string) bool {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return exec.CommandContext(ctx, "tmux", "has-session", "-t", key).Run() == nil
}

// ListSessions returns the set of live session names carrying our prefix.
// The error distinguishes "tmux unreachable" from "no sessions": tmux exits
// non-zero when no server is running, which callers must treat as an empty
// live set, not a failure to enumerate.
func (c *Client) ListSessions(ctx context.Context) (map[string]bool, error) {
	out, err := c.run(ctx, "list-sessions", "-F", "#{session_name}")
	if err != nil {
		// No server at all means no live sessions
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && strings.Contains(string(exitErr.Stderr), "no server") {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("failed to list tmux sessions: %w", err)
	}

	keys := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && strings.HasPrefix(line, c.prefix) {
			keys[line] = true
		}
	}
	return keys, nil
}

// CapturePane returns the last captureLines lines of the session's visible
// text. Concurrent callers within captureCacheTTL share one subprocess via
// singleflight.
func (c *Client) CapturePane(ctx context.Context, key string) (string, error) {
	c.cacheMu.Lock()
	if entry, ok := c.captures[key]; ok && time.Since(entry.at) < captureCacheTTL {
		c.cacheMu.Unlock()
		return entry.content, nil
	}
	c.cacheMu.Unlock()

	v, err, _ := c.captureSf.Do(key, func() (interface{}, error) {
		// -p prints to stdout, -J joins wrapped lines so a resize does not
		// change the fingerprint, -S starts N lines back
		out, err := c.run(ctx, "capture-pane", "-t", key, "-p", "-J",
			"-S", fmt.Sprintf("-%d", c.captureLines))
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return "", ErrCaptureTimeout
			}
			return "", fmt.Errorf("failed to capture pane %s: %w", key, err)
		}

		c.cacheMu.Lock()
		c.captures[key] = captureEntry{content: out, at: time.Now()}
		c.cacheMu.Unlock()
		return out, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// KillSession destroys the named session.
func (c *Client) KillSession(ctx context.Context, key string) error {
	c.cacheMu.Lock()
	delete(c.captures, key)
	c.cacheMu.Unlock()

	if _, err := c.run(ctx, "kill-session", "-t", key); err != nil {
		return fmt.Errorf("failed to kill tmux session %s: %w", key, err)
	}
	muxLog.Info("session_killed", slog.String("session", key))
	return nil
}

// AttachedClients returns how many clients are attached to the session.
func (c *Client) AttachedClients(ctx context.Context, key string) (int, error) {
	out, err := c.run(ctx, "list-clients", "-t", key, "-F", "#{client_tty}")
	if err != nil {
		return 0, err
	}
	n := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n, nil
}

// DetachClients detaches every client from the session without killing it.
// The backing process keeps running; this is what archiving a visible tab
// maps to.
func (c *Client) DetachClients(ctx context.Context, key string) error {
	_, err := c.run(ctx, "detach-client", "-s", key)
	return err
}

// SessionPID returns the PID of the session's server-side process group
// leader. Used only for diagnostics.
func (c *Client) SessionPID(ctx context.Context, key string) (int, error) {
	out, err := c.run(ctx, "display-message", "-p", "-t", key, "#{pane_pid}")
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(out))
}
