package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	sessionFile = "session.json"
)

// SessionState remembers the conversation a chat front end last used,
// per backend.
type SessionState struct {
	// Conversations maps a backend URL to its last conversation ID.
	Conversations map[string]string `json:"conversations"`

	UpdatedAt time.Time `json:"updated_at"`
}

// LastConversation returns the conversation last used against apiTarget.
func (s *SessionState) LastConversation(apiTarget string) (string, bool) {
	if s == nil {
		return "", false
	}
	id, ok := s.Conversations[apiTarget]
	return id, ok && id != ""
}

// LoadSession loads the session state from a target .chatstream/session.json.
// Returns an empty state if none exists yet.
func (m *Manager) LoadSession(overrideDir string) (*SessionState, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, sessionFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &SessionState{Conversations: map[string]string{}}, nil
		}
		return nil, fmt.Errorf("reading session state: %w", err)
	}

	state := &SessionState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing session state: %w", err)
	}
	if state.Conversations == nil {
		state.Conversations = map[string]string{}
	}

	return state, nil
}

// RememberConversation records conversationID as the last one used against
// apiTarget.
func (m *Manager) RememberConversation(apiTarget, conversationID, overrideDir string) error {
	state, err := m.LoadSession(overrideDir)
	if err != nil {
		return err
	}

	state.Conversations[apiTarget] = conversationID
	state.UpdatedAt = time.Now().UTC()

	return m.saveSession(state, overrideDir)
}

// ClearSession removes the session state file.
// Returns nil if the file doesn't exist (already cleared).
func (m *Manager) ClearSession(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(dir, sessionFile)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing session state: %w", err)
	}

	return nil
}

func (m *Manager) saveSession(state *SessionState, overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session state: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, sessionFile), data, 0o600); err != nil {
		return fmt.Errorf("writing session state: %w", err)
	}

	return nil
}
