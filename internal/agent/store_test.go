package agent

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "agents.json"))
	require.NoError(t, err)
	return s
}

func addAgent(t *testing.T, s *Store, name, sessionKey string) *Agent {
	t.Helper()
	a := New(name, "claude", sessionKey, "/tmp/x")
	require.NoError(t, s.Add(a))
	return a
}

func TestAddListCount(t *testing.T) {
	s := newTestStore(t)
	addAgent(t, s, "Foo", "agent-foo-1")

	active := s.List(false)
	require.Len(t, active, 1)
	assert.Equal(t, "Foo", active[0].Name)
	assert.False(t, active[0].Archived)
	assert.Equal(t, 1, s.Count(false))
	assert.Equal(t, 0, s.Count(true))
}

func TestArchiveUnarchiveRoundTrip(t *testing.T) {
	s := newTestStore(t)
	a := addAgent(t, s, "Foo", "agent-foo-1")

	s.Archive(a.ID)
	assert.Equal(t, 0, s.Count(false))
	assert.Equal(t, 1, s.Count(true))

	s.Unarchive(a.ID)
	assert.Equal(t, 1, s.Count(false))
	assert.Equal(t, 0, s.Count(true))
}

// List(false) and List(true) must partition the agent set with no overlap
// and no omission for any sequence of mutations.
func TestListPartitionsAgentSet(t *testing.T) {
	s := newTestStore(t)
	a := addAgent(t, s, "a", "agent-a-1")
	b := addAgent(t, s, "b", "agent-b-1")
	c := addAgent(t, s, "c", "agent-c-1")

	s.Archive(b.ID)
	s.Archive(c.ID)
	s.Unarchive(c.ID)
	s.Remove(a.ID)

	seen := make(map[string]int)
	for _, ag := range s.List(false) {
		seen[ag.ID]++
	}
	for _, ag := range s.List(true) {
		seen[ag.ID]++
	}

	assert.Len(t, seen, 2)
	for id, n := range seen {
		assert.Equal(t, 1, n, "agent %s appeared %d times", id, n)
	}
}

func TestListOrderedByCreationTime(t *testing.T) {
	s := newTestStore(t)

	old := New("old", "claude", "agent-old-1", "/tmp")
	old.CreatedAt = time.Now().Add(-time.Hour)
	mid := New("mid", "gemini", "agent-mid-1", "/tmp")
	mid.CreatedAt = time.Now().Add(-time.Minute)
	fresh := New("fresh", "codex", "agent-fresh-1", "/tmp")

	// Insert out of order
	require.NoError(t, s.Add(fresh))
	require.NoError(t, s.Add(old))
	require.NoError(t, s.Add(mid))

	names := []string{}
	for _, a := range s.List(false) {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"old", "mid", "fresh"}, names)
}

func TestMutationsIdempotentOnMissingID(t *testing.T) {
	s := newTestStore(t)
	addAgent(t, s, "Foo", "agent-foo-1")

	s.Remove("nope")
	s.Rename("nope", "x")
	s.Archive("nope")
	s.Unarchive("nope")
	s.UpdateStatus("nope", StatusActive)

	assert.Equal(t, 1, s.Count(false))
}

func TestPruneEmptySetIsNoOp(t *testing.T) {
	s := newTestStore(t)
	addAgent(t, s, "a", "agent-a-1")
	addAgent(t, s, "b", "agent-b-1")

	deleted := s.Prune(map[string]bool{}, nil)
	assert.Empty(t, deleted)
	assert.Equal(t, 2, s.Count(false))
}

func TestPruneDeletesDeadKeepsLiveAndRecoverable(t *testing.T) {
	s := newTestStore(t)
	live := addAgent(t, s, "live", "agent-live-1")
	dead := addAgent(t, s, "dead", "agent-dead-1")
	resumable := addAgent(t, s, "resumable", "agent-res-1")

	valid := map[string]bool{"agent-live-1": true}
	recoverable := func(key string) bool { return key == "agent-res-1" }

	deleted := s.Prune(valid, recoverable)
	assert.Equal(t, []string{dead.ID}, deleted)

	assert.NotNil(t, s.Get(live.ID))
	assert.Nil(t, s.Get(dead.ID))
	assert.NotNil(t, s.Get(resumable.ID))
}

func TestPruneAfterNoOpPruneLeavesStoreIdentical(t *testing.T) {
	s := newTestStore(t)
	addAgent(t, s, "a", "agent-a-1")
	addAgent(t, s, "b", "agent-b-1")

	// First prune removes nothing
	deleted := s.Prune(map[string]bool{"agent-a-1": true, "agent-b-1": true}, nil)
	assert.Empty(t, deleted)
	before := s.List(false)

	// Empty set is treated as "liveness unavailable"
	deleted = s.Prune(map[string]bool{}, nil)
	assert.Empty(t, deleted)

	assert.Equal(t, before, s.List(false))
}

func TestUpdateStatusNotPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.json")
	s, err := NewStore(path)
	require.NoError(t, err)

	a := addAgent(t, s, "Foo", "agent-foo-1")
	s.UpdateStatus(a.ID, StatusWaiting)
	assert.Equal(t, StatusWaiting, s.Get(a.ID).Status)

	// Reload from disk: the status write must not have touched the file
	reloaded, err := NewStore(path)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, reloaded.Get(a.ID).Status)
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.json")
	s, err := NewStore(path)
	require.NoError(t, err)

	a := addAgent(t, s, "Foo", "agent-foo-1")
	b := addAgent(t, s, "Bar", "agent-bar-1")
	s.Archive(b.ID)
	s.Rename(a.ID, "Foo2")

	reloaded, err := NewStore(path)
	require.NoError(t, err)

	got := reloaded.Get(a.ID)
	require.NotNil(t, got)
	assert.Equal(t, "Foo2", got.Name)
	assert.Equal(t, "claude", got.AgentType)
	assert.Equal(t, "agent-foo-1", got.SessionKey)
	assert.Equal(t, "/tmp/x", got.WorkingDir)
	assert.False(t, got.Archived)
	assert.WithinDuration(t, a.CreatedAt, got.CreatedAt, time.Second)

	gotB := reloaded.Get(b.ID)
	require.NotNil(t, gotB)
	assert.True(t, gotB.Archived)
}

func TestLoadCorruptStateStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s, err := NewStore(path)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Count(false))
	assert.Equal(t, 0, s.Count(true))
}

func TestLoadLegacyRecordShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.json")

	// Older record shape: no session_key, no archived flag
	legacy := map[string]map[string]any{
		"abc-123": {
			"id":               "abc-123",
			"name":             "Old",
			"agent_type":       "claude",
			"iterm_session_id": "w0t1p0:UUID",
			"working_dir":      "/tmp",
			"status":           "active",
			"created_at":       time.Now().Format(time.RFC3339),
		},
	}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	s, err := NewStore(path)
	require.NoError(t, err)

	got := s.Get("abc-123")
	require.NotNil(t, got)
	assert.Equal(t, "w0t1p0:UUID", got.SessionKey)
	assert.False(t, got.Archived)
}

func TestGetBySessionKey(t *testing.T) {
	s := newTestStore(t)
	a := addAgent(t, s, "Foo", "agent-foo-1")

	got := s.GetBySessionKey("agent-foo-1")
	require.NotNil(t, got)
	assert.Equal(t, a.ID, got.ID)
	assert.Nil(t, s.GetBySessionKey("missing"))
}
