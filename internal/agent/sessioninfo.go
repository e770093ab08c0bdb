package agent

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// SessionInfo is per-session metadata written by the agent process itself
// (a hook script), read-only to this system. A non-empty ConversationID is
// what makes a dead session recoverable rather than simply lost.
type SessionInfo struct {
	ConversationID string    `json:"conversation_id"`
	TranscriptPath string    `json:"transcript_path,omitempty"`
	LastTool       string    `json:"last_tool,omitempty"`
	LastFile       string    `json:"last_file,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}

// Recoverable reports whether this metadata carries a usable resume token.
func (si *SessionInfo) Recoverable() bool {
	return si != nil && si.ConversationID != ""
}

// infoPath maps a session key to its metadata file.
func infoPath(dir, sessionKey string) string {
	// filepath.Base guards against a hostile key escaping the directory
	return filepath.Join(dir, filepath.Base(sessionKey)+".json")
}

// ReadSessionInfo loads the metadata file for sessionKey from dir.
// Returns nil (no error) when the file is absent or unreadable: missing
// metadata just means the session is not recoverable.
func ReadSessionInfo(dir, sessionKey string) *SessionInfo {
	data, err := os.ReadFile(infoPath(dir, sessionKey))
	if err != nil {
		return nil
	}
	var info SessionInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil
	}
	return &info
}
