package library

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	// ErrUnknownID is returned when no library entry exists for a video id.
	ErrUnknownID = errors.New("unknown video id")

	// ErrOutsideRoot is returned when a catalog entry resolves to a path
	// outside the library root.
	ErrOutsideRoot = errors.New("path escapes library root")

	// ErrFileMissing is returned when the catalog entry exists but the file
	// is gone from disk.
	ErrFileMissing = errors.New("source file missing")
)

// Index maps opaque video ids to source paths relative to a library root.
// Populating the index (scanning, hashing, rename detection) is the catalog's
// job; the engine only ever calls Resolve.
type Index struct {
	mu    sync.RWMutex
	root  string
	paths map[string]string
}

// NewIndex returns an empty index rooted at the given library directory.
func NewIndex(root string) *Index {
	return &Index{
		root:  filepath.Clean(root),
		paths: make(map[string]string),
	}
}

// Add registers a video id with a path relative to the library root.
func (ix *Index) Add(videoID, relPath string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.paths[videoID] = relPath
}

// Resolve returns the absolute source path for a video id. It fails distinctly
// for unknown ids, entries that resolve outside the library root, and entries
// whose file no longer exists.
func (ix *Index) Resolve(videoID string) (string, error) {
	ix.mu.RLock()
	rel, ok := ix.paths[videoID]
	ix.mu.RUnlock()
	if !ok {
		return "", ErrUnknownID
	}

	abs, err := filepath.Abs(filepath.Join(ix.root, rel))
	if err != nil {
		return "", ErrOutsideRoot
	}
	rootAbs, err := filepath.Abs(ix.root)
	if err != nil {
		return "", ErrOutsideRoot
	}
	if abs != rootAbs && !strings.HasPrefix(abs, rootAbs+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}

	if _, err := os.Stat(abs); err != nil {
		return "", ErrFileMissing
	}
	return abs, nil
}
