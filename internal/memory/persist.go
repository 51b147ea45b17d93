// internal/memory/persist.go
package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/webpilot-ai/webpilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// sessionFile is the on-disk shape of a persisted session history.
type sessionFile struct {
	SessionID string                  `json:"session_id"`
	SavedAt   time.Time               `json:"saved_at"`
	Records   []schemas.AttemptRecord `json:"records"`
}

// Persist writes the full attempt history to <dir>/<sessionID>.json,
// creating dir if needed. The write goes through a temp file and rename so a
// crash mid-write never leaves a truncated history behind.
func Persist(l *Log, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	payload := sessionFile{
		SessionID: l.SessionID(),
		SavedAt:   time.Now().UTC(),
		Records:   l.All(),
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session history: %w", err)
	}

	final := filepath.Join(dir, l.SessionID()+".json")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing session history: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("committing session history: %w", err)
	}
	return nil
}

// LoadRecords reads a persisted session history back from disk. It is used by
// the CLI's inspection path, not by the live loop; histories are never
// rehydrated into a running session.
func LoadRecords(path string) (string, []schemas.AttemptRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("reading session history: %w", err)
	}
	var payload sessionFile
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", nil, fmt.Errorf("decoding session history: %w", err)
	}
	return payload.SessionID, payload.Records, nil
}
