package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/tnpilot/tnpilot/internal/domain"
)

var (
	ErrScriptNotFound   = errors.New("script not found")
	ErrScriptExists     = errors.New("script already exists")
	ErrStorageWrite     = errors.New("failed to write script")
	ErrInvalidScriptID  = errors.New("invalid script id")
	ErrScriptFileTooBig = errors.New("script file too large")
	ErrSymlinkRejected  = errors.New("symlinks not allowed for script files")
)

const maxScriptFileSize = 5 * 1024 * 1024 // 5MB

var scriptIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func validateScriptID(id string) error {
	if !scriptIDRegex.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidScriptID, id)
	}
	return nil
}

// ScriptSummary is the listing shape for stored scripts.
type ScriptSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Host        string `json:"host"`
	StepsCount  int    `json:"steps_count"`
}

// ScriptStorage keeps one JSON document per script under <baseDir>/scripts.
// Writes are atomic: temp file, fsync, rename, directory sync.
type ScriptStorage struct {
	baseDir string
	mu      sync.RWMutex
}

func NewScriptStorage(baseDir string) (*ScriptStorage, error) {
	dir := filepath.Join(baseDir, "scripts")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create scripts directory: %w", err)
	}
	if info, err := os.Stat(dir); err == nil && info.Mode().Perm()&0o077 != 0 {
		_ = os.Chmod(dir, 0o700)
	}
	return &ScriptStorage{baseDir: baseDir}, nil
}

func (s *ScriptStorage) scriptsDir() string {
	return filepath.Join(s.baseDir, "scripts")
}

func (s *ScriptStorage) scriptPath(id string) string {
	return filepath.Join(s.scriptsDir(), id+".json")
}

// Exists reports whether a script document is present.
func (s *ScriptStorage) Exists(id string) bool {
	if err := validateScriptID(id); err != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := os.Lstat(s.scriptPath(id))
	return err == nil
}

func (s *ScriptStorage) Save(script *domain.Script) error {
	if err := validateScriptID(script.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(script, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal script: %w", err)
	}

	dir := s.scriptsDir()
	f, err := os.CreateTemp(dir, script.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	tmpName := f.Name()
	_ = os.Chmod(tmpName, 0o600)

	defer func() {
		if f != nil {
			f.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	if err := f.Close(); err != nil {
		f = nil
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	f = nil

	if err := os.Rename(tmpName, s.scriptPath(script.ID)); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}

	df, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	defer df.Close()
	if err := df.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	return nil
}

func (s *ScriptStorage) Load(id string) (*domain.Script, error) {
	if err := validateScriptID(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadUnlocked(id)
}

func (s *ScriptStorage) Delete(id string) error {
	if err := validateScriptID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.scriptPath(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrScriptNotFound
		}
		return fmt.Errorf("failed to delete script file: %w", err)
	}
	return nil
}

// ListError aggregates per-script load failures from List.
type ListError struct {
	Errors []error
}

func (e *ListError) Error() string {
	return fmt.Sprintf("failed to load %d scripts", len(e.Errors))
}

// List returns summaries for every stored script. Unreadable documents are
// skipped and reported through a ListError alongside the good ones.
func (s *ScriptStorage) List() ([]ScriptSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.scriptsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []ScriptSummary{}, nil
		}
		return nil, fmt.Errorf("failed to read scripts directory: %w", err)
	}

	summaries := make([]ScriptSummary, 0, len(entries))
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		id := entry.Name()[:len(entry.Name())-5]
		if err := validateScriptID(id); err != nil {
			continue
		}
		script, err := s.loadUnlocked(id)
		if err != nil {
			errs = append(errs, fmt.Errorf("script %s: %w", id, err))
			continue
		}
		summaries = append(summaries, ScriptSummary{
			ID:          script.ID,
			Name:        script.Name,
			Description: script.Description,
			Host:        script.Host,
			StepsCount:  len(script.Steps),
		})
	}

	if len(errs) > 0 {
		return summaries, &ListError{Errors: errs}
	}
	return summaries, nil
}

func (s *ScriptStorage) loadUnlocked(id string) (*domain.Script, error) {
	path := s.scriptPath(id)

	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrScriptNotFound
		}
		return nil, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("%w: %s", ErrSymlinkRejected, id)
	}
	if info.Size() > maxScriptFileSize {
		return nil, fmt.Errorf("%w: %s (%d bytes)", ErrScriptFileTooBig, id, info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var script domain.Script
	if err := json.Unmarshal(data, &script); err != nil {
		return nil, err
	}
	script.Normalize()
	return &script, nil
}
