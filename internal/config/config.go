// Package config loads the agent-manager user configuration.
//
// Configuration lives in <dataDir>/config.toml. Every field has a working
// default so the tool runs with no config file at all. The data directory
// itself is resolved from the AGENTMANAGER_DIR environment variable, falling
// back to ~/.agent-manager.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// ConfigFileName is the TOML config file inside the data directory.
	ConfigFileName = "config.toml"

	// AgentsFileName is the persisted agent state file.
	AgentsFileName = "agents.json"

	// SessionsDirName holds per-session metadata files written by agent hooks.
	SessionsDirName = "sessions"

	// HistoryDBName is the SQLite event history database.
	HistoryDBName = "history.db"
)

// ToolDef describes how to launch and resume one agent type.
type ToolDef struct {
	// Command launches a fresh session. "{id}" is replaced with the agent ID
	// for tools that accept a caller-chosen session identifier.
	Command string `toml:"command"`

	// ResumeCommand resumes a conversation by ID. "{conversation_id}" is
	// replaced with the saved resume token. Empty means resume-by-id is not
	// supported for this tool.
	ResumeCommand string `toml:"resume_command"`

	// ContinueCommand continues the most recent conversation in the working
	// directory. Used as a fallback when no usable resume token exists.
	ContinueCommand string `toml:"continue_command"`
}

// UserConfig represents user-facing configuration in TOML format.
type UserConfig struct {
	// PollIntervalSecs is the refresh loop interval in seconds (default 2).
	PollIntervalSecs int `toml:"poll_interval_secs"`

	// StabilityThreshold is how many consecutive unchanged polls flip a
	// session from active to waiting (default 3).
	StabilityThreshold int `toml:"stability_threshold"`

	// SessionPrefix namespaces our tmux sessions (default "agent-").
	SessionPrefix string `toml:"session_prefix"`

	// CaptureLines is how many pane lines feed the liveness fingerprint
	// (default 30).
	CaptureLines int `toml:"capture_lines"`

	// DefaultWorkingDir pre-fills the new-session dialog. Empty means $HOME.
	DefaultWorkingDir string `toml:"default_working_dir"`

	// Theme sets the color scheme: "dark" (default), "light", or "system".
	Theme string `toml:"theme"`

	// Tools maps agent type names to launch/resume commands. Unknown types
	// fall back to running the type name as the command.
	Tools map[string]ToolDef `toml:"tools"`

	// Logs configures file logging.
	Logs LogSettings `toml:"logs"`
}

// LogSettings configures the rotating debug log.
type LogSettings struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

var defaultUserConfig = UserConfig{
	PollIntervalSecs:   2,
	StabilityThreshold: 3,
	SessionPrefix:      "agent-",
	CaptureLines:       30,
	Theme:              "dark",
	Tools: map[string]ToolDef{
		"claude": {
			Command:         "claude --session-id {id}",
			ResumeCommand:   "claude --resume {conversation_id}",
			ContinueCommand: "claude --continue",
		},
		"gemini": {
			Command:         "gemini",
			ContinueCommand: "gemini",
		},
		"codex": {
			Command:         "codex",
			ResumeCommand:   "codex resume {conversation_id}",
			ContinueCommand: "codex resume --last",
		},
	},
}

var (
	userConfigCache   *UserConfig
	userConfigCacheMu sync.RWMutex
)

// DataDir returns the base data directory (~/.agent-manager), honoring the
// AGENTMANAGER_DIR override.
func DataDir() (string, error) {
	if dir := os.Getenv("AGENTMANAGER_DIR"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".agent-manager"), nil
}

// AgentsPath returns the path of the persisted agent state file.
func AgentsPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AgentsFileName), nil
}

// SessionsDir returns the per-session metadata directory.
func SessionsDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, SessionsDirName), nil
}

// HistoryPath returns the SQLite event history path.
func HistoryPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, HistoryDBName), nil
}

// Load returns the user configuration, reading config.toml on first call.
// A missing file yields defaults; a malformed file yields defaults plus the
// parse error so the caller can surface it. The result is cached.
func Load() (*UserConfig, error) {
	userConfigCacheMu.RLock()
	if userConfigCache != nil {
		defer userConfigCacheMu.RUnlock()
		return userConfigCache, nil
	}
	userConfigCacheMu.RUnlock()

	userConfigCacheMu.Lock()
	defer userConfigCacheMu.Unlock()

	// Double-check after acquiring write lock
	if userConfigCache != nil {
		return userConfigCache, nil
	}

	dir, err := DataDir()
	if err != nil {
		cfg := defaultUserConfig
		userConfigCache = &cfg
		return userConfigCache, nil
	}

	configPath := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := defaultUserConfig
		userConfigCache = &cfg
		return userConfigCache, nil
	}

	cfg := defaultUserConfig
	if _, err := toml.DecodeFile(configPath, &cfg); err != nil {
		// Cache defaults anyway to prevent repeated parse attempts
		fallback := defaultUserConfig
		userConfigCache = &fallback
		return userConfigCache, fmt.Errorf("config.toml parse error: %w", err)
	}

	cfg.applyDefaults()
	userConfigCache = &cfg
	return userConfigCache, nil
}

// Reset clears the cached config. Tests only.
func Reset() {
	userConfigCacheMu.Lock()
	userConfigCache = nil
	userConfigCacheMu.Unlock()
}

func (c *UserConfig) applyDefaults() {
	if c.PollIntervalSecs <= 0 {
		c.PollIntervalSecs = defaultUserConfig.PollIntervalSecs
	}
	if c.StabilityThreshold <= 0 {
		c.StabilityThreshold = defaultUserConfig.StabilityThreshold
	}
	if c.SessionPrefix == "" {
		c.SessionPrefix = defaultUserConfig.SessionPrefix
	}
	if c.CaptureLines <= 0 {
		c.CaptureLines = defaultUserConfig.CaptureLines
	}
	if c.Theme == "" {
		c.Theme = defaultUserConfig.Theme
	}
	if c.Tools == nil {
		c.Tools = make(map[string]ToolDef)
	}
	// User-defined tools extend the built-ins rather than replacing them
	for name, def := range defaultUserConfig.Tools {
		if _, ok := c.Tools[name]; !ok {
			c.Tools[name] = def
		}
	}
}

// PollInterval returns the refresh loop interval as a Duration.
func (c *UserConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecs) * time.Second
}

// Debug reports whether debug mode is enabled via AGENTMANAGER_DEBUG.
func Debug() bool {
	return os.Getenv("AGENTMANAGER_DEBUG") != ""
}
