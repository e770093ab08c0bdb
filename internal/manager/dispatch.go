package manager

import (
	"context"
	"fmt"
)

// ActionType enumerates the user-driven operations. Anything outside this
// set is rejected rather than guessed at.
type ActionType string

const (
	ActionCreate     ActionType = "create"
	ActionActivate   ActionType = "activate"
	ActionKill       ActionType = "kill"
	ActionArchive    ActionType = "archive"
	ActionUnarchive  ActionType = "unarchive"
	ActionRename     ActionType = "rename"
	ActionToggleView ActionType = "toggle_view"
	ActionRefresh    ActionType = "refresh"
)

// CreateParams carries the inputs for ActionCreate.
type CreateParams struct {
	AgentType  string
	Name       string
	WorkingDir string
}

// Command is a single dispatched action. AgentID is required for the
// per-agent actions; Create is required for ActionCreate and Name for
// ActionRename.
type Command struct {
	Type    ActionType
	AgentID string
	Name    string
	Create  CreateParams
}

// Do executes a lifecycle command. View and refresh commands belong to
// the Loop, which wraps this method.
func (m *Manager) Do(ctx context.Context, cmd Command) error {
	switch cmd.Type {
	case ActionCreate:
		_, err := m.Create(ctx, cmd.Create.AgentType, cmd.Create.Name, cmd.Create.WorkingDir)
		return err
	case ActionActivate:
		return m.Activate(ctx, cmd.AgentID)
	case ActionKill:
		return m.Kill(ctx, cmd.AgentID)
	case ActionArchive:
		return m.Archive(ctx, cmd.AgentID)
	case ActionUnarchive:
		return m.Unarchive(ctx, cmd.AgentID)
	case ActionRename:
		return m.Rename(cmd.AgentID, cmd.Name)
	default:
		return fmt.Errorf("unsupported action: %s", cmd.Type)
	}
}
