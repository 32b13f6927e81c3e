package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultStateFile is the file name FileSink writes when given a directory.
const DefaultStateFile = "conversation_state.json"

// FileSink overwrites one JSON file with the latest Record.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink writes to path. A path that names an existing directory gets
// DefaultStateFile appended.
func NewFileSink(path string) (*FileSink, error) {
	if path == "" {
		path = DefaultStateFile
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, DefaultStateFile)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileSink{path: path}, nil
}

// Path returns the file being written.
func (s *FileSink) Path() string { return s.path }

// Save replaces the file atomically with e.Record.
func (s *FileSink) Save(_ context.Context, e Entry) error {
	data, err := json.MarshalIndent(e.Record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// Load reads the current record. A missing file yields an empty record.
func (s *FileSink) Load() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Record{Locations: []string{}, Summary: []string{}}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("read state: %w", err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decode state: %w", err)
	}
	return r, nil
}

func (s *FileSink) Close() error { return nil }
