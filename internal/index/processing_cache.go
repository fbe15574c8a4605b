package index

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/reflens/internal/types"
)

// ProcessingCache tracks per-file analysis bookkeeping: whether a file is
// currently being processed, when it was last analyzed, and a digest of the
// content that analysis saw. It holds no symbol data; the WorkspaceIndex
// owns that. Two cooperating caches, not one.
//
// The isProcessing guard is advisory: it dedups concurrent work on the same
// file, it is not a mutual-exclusion lock.
type ProcessingCache struct {
	mu      sync.Mutex
	entries map[types.FileID]*procEntry
	now     func() time.Time // injectable clock for tests
}

type procEntry struct {
	processing   bool
	lastAnalyzed time.Time
	digest       uint64
}

// NewProcessingCache creates an empty cache.
func NewProcessingCache() *ProcessingCache {
	return &ProcessingCache{
		entries: make(map[types.FileID]*procEntry),
		now:     time.Now,
	}
}

// IsProcessing reports whether an analysis pass for the file is in flight.
func (c *ProcessingCache) IsProcessing(file types.FileID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.entries[file]
	return entry != nil && entry.processing
}

// MarkProcessing claims the file for analysis. It returns false if another
// pass already holds it, in which case the caller skips the file rather
// than duplicating work.
func (c *ProcessingCache) MarkProcessing(file types.FileID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.ensure(file)
	if entry.processing {
		return false
	}
	entry.processing = true
	return true
}

// MarkDone releases the file and stamps its analysis time.
func (c *ProcessingCache) MarkDone(file types.FileID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.ensure(file)
	entry.processing = false
	entry.lastAnalyzed = c.now()
}

// ShouldReanalyze reports whether the file was never analyzed or its
// cooldown has elapsed.
func (c *ProcessingCache) ShouldReanalyze(file types.FileID, cooldown time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.entries[file]
	if entry == nil || entry.lastAnalyzed.IsZero() {
		return true
	}
	return c.now().Sub(entry.lastAnalyzed) > cooldown
}

// LastAnalyzedAt returns the time of the last completed analysis, or the
// zero time if the file was never analyzed.
func (c *ProcessingCache) LastAnalyzedAt(file types.FileID) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry := c.entries[file]; entry != nil {
		return entry.lastAnalyzed
	}
	return time.Time{}
}

// DigestChanged records the digest of content and reports whether it
// differs from the digest seen by the previous analysis. Unchanged content
// lets callers skip re-analysis even after the cooldown elapses.
func (c *ProcessingCache) DigestChanged(file types.FileID, content []byte) bool {
	digest := xxhash.Sum64(content)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.ensure(file)
	changed := entry.digest != digest
	entry.digest = digest
	return changed
}

// Forget removes all bookkeeping for a file (deleted/closed).
func (c *ProcessingCache) Forget(file types.FileID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, file)
}

// Clear drops all bookkeeping.
func (c *ProcessingCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[types.FileID]*procEntry)
}

func (c *ProcessingCache) ensure(file types.FileID) *procEntry {
	entry := c.entries[file]
	if entry == nil {
		entry = &procEntry{}
		c.entries[file] = entry
	}
	return entry
}
