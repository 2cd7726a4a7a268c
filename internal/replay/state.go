package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State tracks progress for resumable replay runs.
type State struct {
	StartedAt       time.Time `json:"started_at"`
	LastProcessedAt time.Time `json:"last_processed_at"`
	// Lines maps a file path to the last line number applied from it.
	Lines        map[string]int `json:"lines"`
	Interactions int            `json:"interactions"`
	Failures     int            `json:"failures"`
	Errors       []string       `json:"errors"`

	path string // not serialized
}

// maxErrors bounds the error log kept in the state file.
const maxErrors = 100

// LoadState loads the replay state at path, or starts a new one. An empty
// path keeps the state in memory only.
func LoadState(path string) (*State, error) {
	fresh := &State{
		StartedAt: time.Now().UTC(),
		Lines:     map[string]int{},
		path:      path,
	}
	if path == "" {
		return fresh, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fresh, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	if s.Lines == nil {
		s.Lines = map[string]int{}
	}
	s.path = path
	return &s, nil
}

// Save persists the state to disk. It is a no-op for in-memory state.
func (s *State) Save() error {
	s.LastProcessedAt = time.Now().UTC()
	if s.path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Done returns the last applied line of path, 0 if none.
func (s *State) Done(path string) int {
	return s.Lines[path]
}

// MarkLine records line as applied for path.
func (s *State) MarkLine(path string, line int) {
	if line > s.Lines[path] {
		s.Lines[path] = line
	}
}

// AddError records a processing error.
func (s *State) AddError(msg string) {
	s.Failures++
	if len(s.Errors) >= maxErrors {
		s.Errors = s.Errors[1:]
	}
	s.Errors = append(s.Errors, msg)
}
