package oracle

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/standardbeagle/reflens/internal/types"
)

// CachingFileReader reads files from disk and memoizes their line split.
// The classifier touches one line per reference, often many references per
// file; caching the split keeps that O(1) per reference after the first.
type CachingFileReader struct {
	mu    sync.RWMutex
	lines map[types.FileID][]string
}

// NewCachingFileReader creates an empty reader cache.
func NewCachingFileReader() *CachingFileReader {
	return &CachingFileReader{
		lines: make(map[types.FileID][]string),
	}
}

// Line returns the text of the given zero-based line.
func (r *CachingFileReader) Line(file types.FileID, line int) (string, error) {
	r.mu.RLock()
	cached, ok := r.lines[file]
	r.mu.RUnlock()

	if !ok {
		content, err := os.ReadFile(string(file))
		if err != nil {
			return "", err
		}
		cached = strings.Split(string(content), "\n")

		r.mu.Lock()
		r.lines[file] = cached
		r.mu.Unlock()
	}

	if line < 0 || line >= len(cached) {
		return "", fmt.Errorf("line %d out of range for %s (%d lines)", line, file, len(cached))
	}
	return strings.TrimSuffix(cached[line], "\r"), nil
}

// Invalidate drops the cached lines for a file. Called when the file changes.
func (r *CachingFileReader) Invalidate(file types.FileID) {
	r.mu.Lock()
	delete(r.lines, file)
	r.mu.Unlock()
}

// Clear drops the whole cache.
func (r *CachingFileReader) Clear() {
	r.mu.Lock()
	r.lines = make(map[types.FileID][]string)
	r.mu.Unlock()
}
