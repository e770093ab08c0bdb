package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withTempDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AGENTMANAGER_DIR", dir)
	Reset()
	t.Cleanup(Reset)
	return dir
}

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	withTempDataDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.PollIntervalSecs)
	assert.Equal(t, 3, cfg.StabilityThreshold)
	assert.Equal(t, "agent-", cfg.SessionPrefix)
	assert.Equal(t, 30, cfg.CaptureLines)
	assert.Contains(t, cfg.Tools, "claude")
	assert.Contains(t, cfg.Tools, "gemini")
	assert.Contains(t, cfg.Tools, "codex")
}

func TestLoadOverridesFromTOML(t *testing.T) {
	dir := withTempDataDir(t)

	content := `
poll_interval_secs = 5
stability_threshold = 4
session_prefix = "ai-"

[tools.aider]
command = "aider"
continue_command = "aider --restore-chat-history"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.PollIntervalSecs)
	assert.Equal(t, 4, cfg.StabilityThreshold)
	assert.Equal(t, "ai-", cfg.SessionPrefix)

	// Custom tool added, built-ins retained
	assert.Contains(t, cfg.Tools, "aider")
	assert.Contains(t, cfg.Tools, "claude")
	assert.Equal(t, "claude --session-id {id}", cfg.Tools["claude"].Command)
}

func TestLoadMalformedTOMLFallsBackToDefaults(t *testing.T) {
	dir := withTempDataDir(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("not = [valid"), 0o644))

	cfg, err := Load()
	assert.Error(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 2, cfg.PollIntervalSecs)
}

func TestDataDirHonorsEnvOverride(t *testing.T) {
	dir := withTempDataDir(t)

	got, err := DataDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	agents, err := AgentsPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, AgentsFileName), agents)

	sessions, err := SessionsDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, SessionsDirName), sessions)
}
