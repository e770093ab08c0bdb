// Package agent holds the data model and durable store for tracked
// assistant sessions.
package agent

import (
	"time"

	"github.com/google/uuid"
)

// Status is the derived activity state of an agent's terminal session.
// Persisted values are advisory only: the refresh loop recomputes status
// from live observation before anything is shown.
type Status string

const (
	// StatusActive means the session's output is still changing.
	StatusActive Status = "active"

	// StatusIdle means the session produced no classifiable signal
	// (capture failed, or nothing observed yet).
	StatusIdle Status = "idle"

	// StatusWaiting means the output has been stable for several polls;
	// the assistant is most likely waiting on the user.
	StatusWaiting Status = "waiting"

	// StatusRecoverable means the backing session is gone but a saved
	// conversation ID allows resuming it.
	StatusRecoverable Status = "recoverable"
)

// Agent is one tracked assistant session.
type Agent struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	AgentType  string    `json:"agent_type"`
	SessionKey string    `json:"session_key"`
	WorkingDir string    `json:"working_dir"`
	Status     Status    `json:"status"`
	Archived   bool      `json:"archived"`
	CreatedAt  time.Time `json:"created_at"`

	// LegacySessionID absorbs the pre-tmux record shape where the session
	// reference was a terminal-emulator session UUID. Decoded only; new
	// records always carry SessionKey.
	LegacySessionID string `json:"iterm_session_id,omitempty"`
}

// New creates an agent with a generated ID and creation timestamp.
func New(name, agentType, sessionKey, workingDir string) *Agent {
	return &Agent{
		ID:         uuid.NewString(),
		Name:       name,
		AgentType:  agentType,
		SessionKey: sessionKey,
		WorkingDir: workingDir,
		Status:     StatusIdle,
		CreatedAt:  time.Now(),
	}
}

// normalize fixes up records loaded from older state files.
func (a *Agent) normalize() {
	if a.SessionKey == "" && a.LegacySessionID != "" {
		a.SessionKey = a.LegacySessionID
	}
	a.LegacySessionID = ""
	switch a.Status {
	case StatusActive, StatusIdle, StatusWaiting, StatusRecoverable:
	default:
		a.Status = StatusIdle
	}
}

// clone returns a copy so store snapshots cannot alias internal state.
func (a *Agent) clone() *Agent {
	c := *a
	return &c
}
