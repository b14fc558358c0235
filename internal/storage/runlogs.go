package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tnpilot/tnpilot/internal/domain"
)

// RunLogStorage appends finished execution logs under <baseDir>/logs, one
// file per run, named <script>-<timestamp>.json.
type RunLogStorage struct {
	baseDir string
	mu      sync.Mutex
}

func NewRunLogStorage(baseDir string) (*RunLogStorage, error) {
	dir := filepath.Join(baseDir, "logs")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}
	return &RunLogStorage{baseDir: baseDir}, nil
}

func (s *RunLogStorage) SaveRunLog(log *domain.ExecutionLog) error {
	if err := validateScriptID(log.ScriptID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run log: %w", err)
	}

	name := fmt.Sprintf("%s-%s.json", log.ScriptID, log.StartedAt.UTC().Format("20060102T150405.000"))
	path := filepath.Join(s.baseDir, "logs", name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	return nil
}

// Prune removes run logs older than the retention window. Returns the number
// of files removed.
func (s *RunLogStorage) Prune(retention time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.baseDir, "logs")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := time.Now().Add(-retention)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
