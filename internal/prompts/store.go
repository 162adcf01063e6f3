package prompts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/stockscope/backend/internal/logger"
)

// Store scans a directory of prompt files and keeps the last loaded set as an immutable
// snapshot. Files are only re-read on an explicit Reload.
type Store struct {
	dir string

	mu      sync.RWMutex
	current []Definition
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the scanned directory.
func (s *Store) Dir() string { return s.dir }

// LoadAll reads every *.yml / *.yaml file in the directory, in lexical order.
// A malformed file is logged and skipped; it never prevents the others from loading.
// A missing directory yields an empty set.
func (s *Store) LoadAll() ([]Definition, error) {
	defs, skipped, err := s.scan()
	if err != nil {
		return nil, err
	}
	for _, derr := range skipped {
		logger.Warn("Skipping prompt file: %v", derr)
	}
	return defs, nil
}

// Validate scans the directory without touching the snapshot and returns both the
// definitions that would load and the files that would be skipped.
func (s *Store) Validate() ([]Definition, []*DefinitionError, error) {
	return s.scan()
}

// Reload rescans the directory and replaces the snapshot returned by Definitions.
func (s *Store) Reload() ([]Definition, error) {
	defs, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.current = defs
	s.mu.Unlock()
	logger.Info("Loaded %d prompt definitions from %s", len(defs), s.dir)
	return defs, nil
}

// Definitions returns the snapshot from the last Reload.
func (s *Store) Definitions() []Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Definition, len(s.current))
	copy(out, s.current)
	return out
}

func (s *Store) scan() ([]Definition, []*DefinitionError, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("Prompt directory %s does not exist", s.dir)
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("read prompt directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yml", ".yaml":
			files = append(files, filepath.Join(s.dir, e.Name()))
		}
	}
	sort.Strings(files)

	var (
		defs    []Definition
		skipped []*DefinitionError
	)
	seen := make(map[string]string)
	for _, f := range files {
		def, err := parseFile(f)
		if err != nil {
			var derr *DefinitionError
			if !errors.As(err, &derr) {
				derr = &DefinitionError{File: f, Err: err}
			}
			skipped = append(skipped, derr)
			continue
		}
		key := fmt.Sprintf("%s@%d", def.ID, def.Version)
		if prev, dup := seen[key]; dup {
			skipped = append(skipped, &DefinitionError{
				File: f,
				Err:  fmt.Errorf("duplicate prompt %s (already defined in %s)", key, filepath.Base(prev)),
			})
			continue
		}
		seen[key] = f
		defs = append(defs, def)
	}
	return defs, skipped, nil
}
