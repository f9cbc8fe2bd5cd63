package offline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const queueFileName = "pending.json"

// FileStore persists the queue as a JSON file under a base directory.
// Writes go to a temp file first and are renamed into place, so a crash
// mid-write leaves the previous contents readable.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file store rooted at baseDir, creating the
// directory if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("offline: resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("offline: create base directory: %w", err)
	}
	return &FileStore{path: filepath.Join(abs, queueFileName)}, nil
}

// Load reads the persisted queue. A missing file loads as empty.
func (s *FileStore) Load() ([]Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("offline: read queue file: %w", err)
	}

	var ops []Operation
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("offline: decode queue file: %w", err)
	}
	return ops, nil
}

// Save atomically replaces the persisted queue.
func (s *FileStore) Save(ops []Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("offline: encode queue: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("offline: write queue file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("offline: replace queue file: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
