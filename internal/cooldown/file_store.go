package cooldown

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore keeps every job's records in one JSON document:
//
//	{"<job id>": {"<item id>": "2026-10-18T09:00:00Z", ...}, ...}
//
// Writes go to a temp file that is renamed into place.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file is created lazily.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Get returns the records for jobID. A missing file or job yields an empty map.
func (s *FileStore) Get(_ context.Context, jobID string) (Records, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	out := Records{}
	for id, raw := range doc[jobID] {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: job %s item %s: %v", ErrCorruptState, jobID, id, err)
		}
		out[id] = t.UTC()
	}
	return out, nil
}

// Put replaces jobID's records, leaving other jobs untouched.
func (s *FileStore) Put(_ context.Context, jobID string, records Records) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	entry := make(map[string]string, len(records))
	for id, t := range records {
		entry[id] = t.UTC().Format(time.RFC3339Nano)
	}
	doc[jobID] = entry
	return s.save(doc)
}

func (s *FileStore) load() (map[string]map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]map[string]string{}, nil
		}
		return nil, fmt.Errorf("read cooldown state: %w", err)
	}
	doc := map[string]map[string]string{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	return doc, nil
}

func (s *FileStore) save(doc map[string]map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("ensure cooldown dir: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cooldown state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".cooldown-*.json")
	if err != nil {
		return fmt.Errorf("write cooldown state: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write cooldown state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write cooldown state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace cooldown state: %w", err)
	}
	return nil
}
