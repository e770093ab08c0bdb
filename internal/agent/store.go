package agent

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"agentmanager/internal/logging"
)

var storeLog = logging.ForComponent(logging.CompStore)

// Store is the durable, consistent mapping from agent ID to Agent.
//
// Safe for concurrent read (presentation) and write (worker) access. Every
// mutation except pure status updates is written through to disk
// immediately; the file is rewritten whole and swapped into place so
// concurrent readers never observe a partial write. All writes originate
// from this process, so no cross-process locking is attempted.
type Store struct {
	mu     sync.RWMutex
	path   string
	agents map[string]*Agent
}

// NewStore creates a store persisting to path and loads any existing state.
// A malformed state file is discarded with a warning; it never fails the
// caller.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:   path,
		agents: make(map[string]*Agent),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	s.load()
	return s, nil
}

// Path returns the state file path.
func (s *Store) Path() string {
	return s.path
}

// load reads the state file. Corrupt data starts from an empty store.
func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			storeLog.Warn("state_read_failed", slog.String("error", err.Error()))
		}
		return
	}

	var decoded map[string]*Agent
	if err := json.Unmarshal(data, &decoded); err != nil {
		storeLog.Warn("state_corrupt_discarded",
			slog.String("path", s.path),
			slog.String("error", err.Error()))
		return
	}

	for id, a := range decoded {
		if a == nil || id == "" {
			continue
		}
		a.ID = id
		a.normalize()
		s.agents[id] = a
	}
}

// persist rewrites the whole state file atomically. Callers hold s.mu.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.agents, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// persistWarn persists and downgrades failure to a warning. The in-memory
// state stays authoritative for this process; the next successful write
// reconciles the file.
func (s *Store) persistWarn() {
	if err := s.persist(); err != nil {
		storeLog.Warn("state_write_failed", slog.String("error", err.Error()))
	}
}

// Add inserts an agent and persists immediately. A persistence failure is
// returned to the caller but the agent remains in memory.
func (s *Store) Add(a *Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.agents[a.ID] = a.clone()
	if err := s.persist(); err != nil {
		storeLog.Warn("state_write_failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Remove deletes an agent by ID. No-op if the ID is absent.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[id]; !ok {
		return
	}
	delete(s.agents, id)
	s.persistWarn()
}

// Rename changes an agent's display name. No-op if the ID is absent.
func (s *Store) Rename(id, newName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[id]
	if !ok {
		return
	}
	a.Name = newName
	s.persistWarn()
}

// Archive hides an agent from the default listing. No-op if absent.
func (s *Store) Archive(id string) {
	s.setArchived(id, true)
}

// Unarchive moves an agent back into the default listing. No-op if absent.
func (s *Store) Unarchive(id string) {
	s.setArchived(id, false)
}

func (s *Store) setArchived(id string, archived bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[id]
	if !ok {
		return
	}
	if a.Archived == archived {
		return
	}
	a.Archived = archived
	s.persistWarn()
}

// UpdateStatus sets an agent's derived status in memory only. Status churns
// once per poll tick, so it is intentionally never persisted.
func (s *Store) UpdateStatus(id string, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.agents[id]; ok {
		a.Status = status
	}
}

// Get returns a copy of the agent with the given ID, or nil.
func (s *Store) Get(id string) *Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.agents[id]; ok {
		return a.clone()
	}
	return nil
}

// GetBySessionKey returns a copy of the agent owning sessionKey, or nil.
func (s *Store) GetBySessionKey(sessionKey string) *Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.agents {
		if a.SessionKey == sessionKey {
			return a.clone()
		}
	}
	return nil
}

// List returns copies of all agents with the matching archived flag,
// ordered ascending by creation time. Ties break on ID so the order is
// total: index-based UI addressing depends on consecutive calls agreeing.
func (s *Store) List(archived bool) []*Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Agent
	for _, a := range s.agents {
		if a.Archived == archived {
			out = append(out, a.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Count returns how many agents have the matching archived flag.
func (s *Store) Count(archived bool) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, a := range s.agents {
		if a.Archived == archived {
			n++
		}
	}
	return n
}

// SessionKeys returns the session keys of all known agents.
func (s *Store) SessionKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.agents))
	for _, a := range s.agents {
		keys = append(keys, a.SessionKey)
	}
	return keys
}

// Prune deletes agents whose session key is not in validKeys, unless
// recoverable(key) reports a saved conversation for that key. An empty
// validKeys set means liveness data was unavailable (multiplexer unreachable)
// and pruning is skipped entirely rather than wiping all state.
// Returns the IDs of deleted agents.
func (s *Store) Prune(validKeys map[string]bool, recoverable func(sessionKey string) bool) []string {
	if len(validKeys) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted []string
	for id, a := range s.agents {
		if validKeys[a.SessionKey] {
			continue
		}
		if recoverable != nil && recoverable(a.SessionKey) {
			// Dead but resumable: keep as a recovery candidate
			continue
		}
		delete(s.agents, id)
		deleted = append(deleted, id)
	}

	if len(deleted) > 0 {
		storeLog.Info("pruned_dead_agents", slog.Int("count", len(deleted)))
		s.persistWarn()
	}
	return deleted
}
