package presenter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFriendlyLabel(t *testing.T) {
	tests := []struct {
		sessionKey string
		fallback   string
		want       string
	}{
		{"agent-project-manager-1700000000", "", "project-manager"},
		{"agent-fixbug-123", "", "fixbug"},
		{"agent-fixbug-123", "Fix Bug", "Fix Bug"},
		{"plainname", "", "plainname"},
		{"", "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, friendlyLabel(tt.sessionKey, tt.fallback), tt.sessionKey)
	}
}

func TestSearchTerm(t *testing.T) {
	tests := []struct {
		sessionKey string
		want       string
	}{
		{"agent-program-manager-123", "agent-pro"},
		{"agent-personal-assistant-99", "agent-per"},
		{"agent-ci-42", "agent-ci"},
		{"nodash", "nodash"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, searchTerm(tt.sessionKey), tt.sessionKey)
	}
}

func TestEscapeAppleScript(t *testing.T) {
	assert.Equal(t, `a\"b`, escapeAppleScript(`a"b`))
	assert.Equal(t, `a\\b`, escapeAppleScript(`a\b`))
}

func TestGenericFocusNeverMatches(t *testing.T) {
	p := NewGeneric()
	ok, err := p.FocusIfAttached(context.Background(), "agent-x-1")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestGenericTerminalHonorsEnv(t *testing.T) {
	t.Setenv("TERMINAL", "definitely-not-a-real-terminal-binary")
	p := NewGeneric()
	// Unresolvable override falls back to the candidate list; either a
	// candidate resolves or the lookup errors, but the bogus env value
	// must never be returned
	term, err := p.terminal()
	if err == nil {
		assert.NotContains(t, term, "definitely-not-a-real")
	}
}
