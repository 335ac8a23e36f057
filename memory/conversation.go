package memory

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/kestrelworks/chatloop/messages"
)

// DefaultPath returns the session file location under the artifacts
// directory. CHATLOOP_ARTIFACTS_DIR overrides the default ".chatloop".
func DefaultPath() string {
	dir := os.Getenv("CHATLOOP_ARTIFACTS_DIR")
	if dir == "" {
		dir = ".chatloop"
	}
	return filepath.Join(dir, "session.json")
}

// LoadConversation reads a persisted transcript. A missing file is an empty
// conversation, not an error.
func LoadConversation(path string) ([]messages.Message, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var msgs []messages.Message
	if err := json.Unmarshal(b, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SaveConversation writes the full structured transcript, creating the parent
// directory if needed. Tool pairs and reasoning blocks survive restarts so a
// resumed session replays exactly what was sent before.
func SaveConversation(path string, msgs []messages.Message) error {
	if msgs == nil {
		msgs = []messages.Message{}
	}
	b, err := json.MarshalIndent(msgs, "", " ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, b, 0o644)
}
