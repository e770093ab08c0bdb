package agent

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeInfoFile(t *testing.T, dir, key, conversationID string) {
	t.Helper()
	content := `{"conversation_id":"` + conversationID + `","last_tool":"Edit","updated_at":"2026-08-01T10:00:00Z"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, key+".json"), []byte(content), 0o644))
}

func TestReadSessionInfo(t *testing.T) {
	dir := t.TempDir()
	writeInfoFile(t, dir, "agent-foo-1", "conv-42")

	info := ReadSessionInfo(dir, "agent-foo-1")
	require.NotNil(t, info)
	assert.Equal(t, "conv-42", info.ConversationID)
	assert.Equal(t, "Edit", info.LastTool)
	assert.True(t, info.Recoverable())
}

func TestReadSessionInfoMissingFile(t *testing.T) {
	assert.Nil(t, ReadSessionInfo(t.TempDir(), "nope"))
}

func TestReadSessionInfoMalformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{"), 0o644))
	assert.Nil(t, ReadSessionInfo(dir, "bad"))
}

func TestRecoverableRequiresConversationID(t *testing.T) {
	var nilInfo *SessionInfo
	assert.False(t, nilInfo.Recoverable())
	assert.False(t, (&SessionInfo{}).Recoverable())
	assert.True(t, (&SessionInfo{ConversationID: "x"}).Recoverable())
}

func TestInfoWatcherLoadsExistingAndPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	writeInfoFile(t, dir, "agent-pre-1", "conv-pre")

	changed := make(chan struct{}, 8)
	w, err := NewInfoWatcher(dir, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	go w.Start()
	defer w.Stop()

	// Existing file is visible shortly after Start
	require.Eventually(t, func() bool {
		return w.Get("agent-pre-1") != nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, w.Recoverable("agent-pre-1"))

	// New file appears
	writeInfoFile(t, dir, "agent-new-1", "conv-new")
	require.Eventually(t, func() bool {
		return w.Recoverable("agent-new-1")
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("onChange was not called for new metadata file")
	}

	// Removal clears the cache entry
	require.NoError(t, os.Remove(filepath.Join(dir, "agent-new-1.json")))
	require.Eventually(t, func() bool {
		return w.Get("agent-new-1") == nil
	}, 2*time.Second, 10*time.Millisecond)
}
