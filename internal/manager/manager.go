// Package manager owns the session lifecycle: it is the only component
// allowed to mutate multiplexer state and coordinate it with the store.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"agentmanager/internal/agent"
	"agentmanager/internal/config"
	"agentmanager/internal/logging"
	"agentmanager/internal/tmux"
)

var lifecycleLog = logging.ForComponent(logging.CompLifecycle)

// Sentinel errors surfaced to user actions.
var (
	ErrUnknownAgent    = errors.New("unknown agent")
	ErrNotRecoverable  = errors.New("session is gone and has no saved conversation")
	ErrUnknownToolType = errors.New("unknown agent type")
)

// Multiplexer is the terminal-multiplexer capability the manager drives.
// Implemented by tmux.Client; faked in tests.
type Multiplexer interface {
	SessionKey(name string) string
	CreateSession(ctx context.Context, key, workDir, command string) error
	HasSession(ctx context.Context, key string) bool
	ListSessions(ctx context.Context) (map[string]bool, error)
	CapturePane(ctx context.Context, key string) (string, error)
	KillSession(ctx context.Context, key string) error
	AttachedClients(ctx context.Context, key string) (int, error)
	DetachClients(ctx context.Context, key string) error
}

// TabPresenter opens or focuses a visible terminal tab attached to a
// session. Presentation failures are never fatal to lifecycle operations.
type TabPresenter interface {
	OpenOrFocus(ctx context.Context, sessionKey, label string) error
	FocusIfAttached(ctx context.Context, sessionKey string) (bool, error)
}

// InfoSource provides per-session metadata written by agent hooks.
// Implemented by agent.InfoWatcher.
type InfoSource interface {
	Get(sessionKey string) *agent.SessionInfo
	Recoverable(sessionKey string) bool
	All() map[string]*agent.SessionInfo
}

// Recorder appends lifecycle events to the history log. Optional.
type Recorder interface {
	Record(agentID, agentName, event, detail string) error
}

// Manager orchestrates store, multiplexer, presenter and detector.
type Manager struct {
	store     *agent.Store
	mux       Multiplexer
	presenter TabPresenter
	infos     InfoSource
	detector  *tmux.Detector
	recorder  Recorder
	tools     map[string]config.ToolDef
}

// New creates a Manager. recorder may be nil.
func New(store *agent.Store, mux Multiplexer, presenter TabPresenter, infos InfoSource, detector *tmux.Detector, tools map[string]config.ToolDef, recorder Recorder) *Manager {
	return &Manager{
		store:     store,
		mux:       mux,
		presenter: presenter,
		infos:     infos,
		detector:  detector,
		recorder:  recorder,
		tools:     tools,
	}
}

// Store exposes the underlying store for read-only callers (CLI listing).
func (m *Manager) Store() *agent.Store {
	return m.store
}

func (m *Manager) record(agentID, agentName, event, detail string) {
	if m.recorder == nil {
		return
	}
	if err := m.recorder.Record(agentID, agentName, event, detail); err != nil {
		lifecycleLog.Warn("history_record_failed",
			slog.String("event", event),
			slog.String("error", err.Error()))
	}
}

// launchCommand builds the command that starts a fresh session for an
// agent type. The agent ID is threaded into tools that accept a
// caller-chosen session identifier, which is what makes resume-by-id work
// after the session dies.
func (m *Manager) launchCommand(agentType, agentID string) (string, error) {
	def, ok := m.tools[agentType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownToolType, agentType)
	}
	cmd := def.Command
	if cmd == "" {
		cmd = agentType
	}
	return strings.ReplaceAll(cmd, "{id}", agentID), nil
}

// recoveryCommand builds the command that resumes a dead session's
// conversation. Prefers resume-by-id, falls back to "continue most
// recent" when the tool has no usable resume token.
func (m *Manager) recoveryCommand(agentType string, info *agent.SessionInfo) (string, error) {
	def, ok := m.tools[agentType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownToolType, agentType)
	}
	if def.ResumeCommand != "" && info.Recoverable() {
		return strings.ReplaceAll(def.ResumeCommand, "{conversation_id}", info.ConversationID), nil
	}
	if def.ContinueCommand != "" {
		return def.ContinueCommand, nil
	}
	return "", ErrNotRecoverable
}

// Create starts a new session and tracks it. The agent ID is generated
// before anything launches so it can ride along in the launch command.
// On multiplexer failure nothing is persisted and the error is returned;
// a presenter failure is logged but does not abort (the session exists
// and is worth tracking).
func (m *Manager) Create(ctx context.Context, agentType, name, workingDir string) (*agent.Agent, error) {
	id := uuid.NewString()

	command, err := m.launchCommand(agentType, id)
	if err != nil {
		return nil, err
	}

	key := m.mux.SessionKey(name)
	if err := m.mux.CreateSession(ctx, key, workingDir, command); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := m.presenter.OpenOrFocus(ctx, key, name); err != nil {
		lifecycleLog.Warn("present_tab_failed",
			slog.String("session", key),
			slog.String("error", err.Error()))
	}

	a := agent.New(name, agentType, key, workingDir)
	a.ID = id
	a.Status = agent.StatusActive

	if err := m.store.Add(a); err != nil {
		// In-memory state is authoritative; disk catches up on the next write
		lifecycleLog.Warn("agent_persist_failed", slog.String("id", id), slog.String("error", err.Error()))
	}

	lifecycleLog.Info("agent_created",
		slog.String("id", id),
		slog.String("type", agentType),
		slog.String("session", key))
	m.record(id, name, "created", key)
	return a, nil
}

// Kill destroys the backing session and removes the agent. A multiplexer
// failure does not block removal: the user's intent to discard wins.
func (m *Manager) Kill(ctx context.Context, id string) error {
	a := m.store.Get(id)
	if a == nil {
		return ErrUnknownAgent
	}

	if err := m.mux.KillSession(ctx, a.SessionKey); err != nil {
		lifecycleLog.Warn("kill_session_failed",
			slog.String("session", a.SessionKey),
			slog.String("error", err.Error()))
	}

	m.detector.Forget(a.SessionKey)
	m.store.Remove(id)
	m.record(id, a.Name, "killed", a.SessionKey)
	return nil
}

// Archive hides the agent from the default view and detaches any visible
// tab. The backing session keeps running.
func (m *Manager) Archive(ctx context.Context, id string) error {
	a := m.store.Get(id)
	if a == nil {
		return ErrUnknownAgent
	}

	if err := m.mux.DetachClients(ctx, a.SessionKey); err != nil {
		lifecycleLog.Debug("detach_clients_failed",
			slog.String("session", a.SessionKey),
			slog.String("error", err.Error()))
	}

	m.store.Archive(id)
	m.record(id, a.Name, "archived", "")
	return nil
}

// Unarchive moves the agent back into the default view and reopens a tab.
func (m *Manager) Unarchive(ctx context.Context, id string) error {
	a := m.store.Get(id)
	if a == nil {
		return ErrUnknownAgent
	}

	m.store.Unarchive(id)

	if err := m.presenter.OpenOrFocus(ctx, a.SessionKey, a.Name); err != nil {
		lifecycleLog.Warn("present_tab_failed",
			slog.String("session", a.SessionKey),
			slog.String("error", err.Error()))
	}
	m.record(id, a.Name, "unarchived", "")
	return nil
}

// Rename changes the agent's display label. The session key is unaffected.
func (m *Manager) Rename(id, newName string) error {
	if m.store.Get(id) == nil {
		return ErrUnknownAgent
	}
	m.store.Rename(id, newName)
	return nil
}

// Activate brings a live session's tab to front, preferring an existing
// attachment over opening a duplicate. A dead session with a saved
// conversation is relaunched in a fresh session under the same key and
// working directory, resuming where it left off.
func (m *Manager) Activate(ctx context.Context, id string) error {
	a := m.store.Get(id)
	if a == nil {
		return ErrUnknownAgent
	}

	if m.mux.HasSession(ctx, a.SessionKey) {
		if n, err := m.mux.AttachedClients(ctx, a.SessionKey); err == nil && n > 0 {
			if ok, err := m.presenter.FocusIfAttached(ctx, a.SessionKey); err == nil && ok {
				return nil
			}
		}
		return m.presenter.OpenOrFocus(ctx, a.SessionKey, a.Name)
	}

	return m.recover(ctx, a)
}

// recover relaunches a dead session from its saved conversation.
func (m *Manager) recover(ctx context.Context, a *agent.Agent) error {
	info := m.infos.Get(a.SessionKey)
	if !info.Recoverable() {
		return ErrNotRecoverable
	}

	command, err := m.recoveryCommand(a.AgentType, info)
	if err != nil {
		return err
	}

	// Reuse the original session key: the old session is gone, so the name
	// is free again, and the agent's key stays immutable.
	if err := m.mux.CreateSession(ctx, a.SessionKey, a.WorkingDir, command); err != nil {
		return fmt.Errorf("failed to recover session: %w", err)
	}

	m.store.UpdateStatus(a.ID, agent.StatusActive)

	lifecycleLog.Info("agent_recovered",
		slog.String("id", a.ID),
		slog.String("session", a.SessionKey),
		slog.String("conversation", info.ConversationID))
	m.record(a.ID, a.Name, "recovered", info.ConversationID)

	return m.presenter.OpenOrFocus(ctx, a.SessionKey, a.Name)
}

// Adopt registers an already-running session that is not in the store
// (discovered by prefix scan). Used at startup and by `list --discover`.
func (m *Manager) Adopt(sessionKey, agentType string) (*agent.Agent, error) {
	if existing := m.store.GetBySessionKey(sessionKey); existing != nil {
		return existing, nil
	}

	name := sessionKey
	if i := strings.Index(name, "-"); i >= 0 {
		name = name[i+1:]
	}
	// Strip the uniqueness suffix for a friendlier label
	if i := strings.LastIndex(name, "-"); i > 0 {
		name = name[:i]
	}

	a := agent.New(name, agentType, sessionKey, "")
	if err := m.store.Add(a); err != nil {
		lifecycleLog.Warn("agent_persist_failed", slog.String("id", a.ID), slog.String("error", err.Error()))
	}
	lifecycleLog.Info("session_adopted", slog.String("session", sessionKey))
	m.record(a.ID, a.Name, "adopted", sessionKey)
	return a, nil
}
