// Package artifact stores full audit transcripts that are too large to post
// as work-item comments, and hands back a reference the comment can point to.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

// ErrEmptyItemID is returned when an artifact is stored without an owner.
var ErrEmptyItemID = errors.New("artifact item id is empty")

// Store persists transcript text for a work item.
type Store interface {
	// Store writes data under itemID and returns a reference URI
	// (file://, s3://, gs://). Storing identical data twice is a no-op that
	// returns the same reference.
	Store(ctx context.Context, itemID string, data []byte) (string, error)
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// objectKey is "<item>/<sha256>.md" with the item id reduced to safe
// characters.
func objectKey(itemID string, data []byte) (string, error) {
	safe := unsafeKeyChars.ReplaceAllString(itemID, "_")
	if safe == "" || safe == "." || safe == ".." {
		return "", ErrEmptyItemID
	}
	sum := sha256.Sum256(data)
	return safe + "/" + hex.EncodeToString(sum[:]) + ".md", nil
}

// FileStore is a filesystem-backed implementation of Store.
type FileStore struct {
	baseDir string
	mu      sync.Mutex
}

// NewFileStore creates a store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure artifact dir: %w", err)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve artifact dir: %w", err)
	}
	return &FileStore{baseDir: abs}, nil
}

func (s *FileStore) Store(_ context.Context, itemID string, data []byte) (string, error) {
	key, err := objectKey(itemID, data)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.baseDir, filepath.FromSlash(key))
	ref := "file://" + filepath.ToSlash(path)
	if _, err := os.Stat(path); err == nil {
		return ref, nil // Already exists
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to ensure artifact dir: %w", err)
	}
	// Write to temp, then rename
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("failed to commit artifact: %w", err)
	}
	return ref, nil
}
