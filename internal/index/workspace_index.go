package index

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/reflens/internal/accounting"
	"github.com/standardbeagle/reflens/internal/debug"
	"github.com/standardbeagle/reflens/internal/oracle"
	"github.com/standardbeagle/reflens/internal/types"
)

// WorkspaceIndex holds the eligible symbols of every analyzed file and a
// memoized effective-count per symbol. It supports full rebuild and
// single-file incremental update; a file's descriptors are always replaced
// wholesale when the file is re-analyzed.
//
// All map mutation happens inside the index's own methods. Callers never
// see the internal maps; accessors return snapshots.
type WorkspaceIndex struct {
	symOracle oracle.SymbolOracle
	refOracle oracle.ReferenceOracle
	agg       *accounting.Aggregator
	exclude   types.ExcludePredicate
	proc      *ProcessingCache
	workers   int

	mu      sync.RWMutex
	symbols map[types.FileID]map[types.SymbolKey]*types.SymbolDescriptor
	counts  map[types.SymbolKey]int
}

// Options configures a WorkspaceIndex.
type Options struct {
	Exclude types.ExcludePredicate
	Workers int // parallel file analyses during rebuild; 0 = NumCPU
}

// New creates an empty index. symOracle should already carry the retry
// policy (see oracle.NewRetryingSymbolOracle).
func New(symOracle oracle.SymbolOracle, refOracle oracle.ReferenceOracle, agg *accounting.Aggregator, proc *ProcessingCache, opts Options) *WorkspaceIndex {
	exclude := opts.Exclude
	if exclude == nil {
		exclude = types.NeverExclude
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &WorkspaceIndex{
		symOracle: symOracle,
		refOracle: refOracle,
		agg:       agg,
		exclude:   exclude,
		proc:      proc,
		workers:   workers,
		symbols:   make(map[types.FileID]map[types.SymbolKey]*types.SymbolDescriptor),
		counts:    make(map[types.SymbolKey]int),
	}
}

// Rebuild analyzes every given file and stores its eligible symbols.
// Files matching the exclude predicate are skipped, as is any file that is
// already being processed (idempotent dedup, not queuing). Cancellation is
// checked between files; symbols collected before cancellation remain in
// the index.
func (ix *WorkspaceIndex) Rebuild(ctx context.Context, files []types.FileID) error {
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)

	for _, file := range files {
		if err := gctx.Err(); err != nil {
			break
		}
		if ix.exclude(string(file)) {
			continue
		}
		if !ix.proc.MarkProcessing(file) {
			debug.LogIndex("skipping %s: already processing\n", file)
			continue
		}

		file := file
		g.Go(func() error {
			defer ix.proc.MarkDone(file)
			ix.analyzeFile(gctx, file)
			return gctx.Err()
		})
	}

	err := g.Wait()
	debug.LogIndex("rebuild of %d files finished in %v\n", len(files), time.Since(start))
	return err
}

// UpdateFile removes every entry owned by the file, re-analyzes just that
// file and merges the result back in. O(symbols in the file), not
// O(workspace). A file whose content digest matches the previous analysis
// is skipped outright, no matter how long ago that analysis ran.
func (ix *WorkspaceIndex) UpdateFile(ctx context.Context, file types.FileID) error {
	if ix.exclude(string(file)) {
		ix.RemoveFile(file)
		return nil
	}
	if content, err := os.ReadFile(string(file)); err == nil {
		if !ix.proc.DigestChanged(file, content) && !ix.proc.LastAnalyzedAt(file).IsZero() {
			debug.LogIndex("skipping %s: content unchanged since last analysis\n", file)
			return nil
		}
	}
	if !ix.proc.MarkProcessing(file) {
		debug.LogIndex("skipping update of %s: already processing\n", file)
		return nil
	}
	defer ix.proc.MarkDone(file)

	ix.analyzeFile(ctx, file)
	return ctx.Err()
}

// analyzeFile fetches and filters the file's symbols and installs them,
// discarding any stale descriptors and memoized counts for the file first.
// Oracle failure degrades to an empty symbol set. A cancelled pass installs
// nothing: whatever an earlier completed analysis indexed stays intact.
func (ix *WorkspaceIndex) analyzeFile(ctx context.Context, file types.FileID) {
	raw, err := ix.symOracle.DefinitionSymbols(ctx, file)
	if ctx.Err() != nil {
		debug.LogIndex("analysis of %s cancelled, keeping previous entry\n", file)
		return
	}
	if err != nil {
		debug.LogIndex("symbol lookup failed for %s: %v\n", file, err)
		raw = nil
	}
	eligible := accounting.EligibleSymbols(raw)

	entry := make(map[types.SymbolKey]*types.SymbolDescriptor, len(eligible))
	for i := range eligible {
		sym := eligible[i]
		entry[sym.Key()] = &sym
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	for key := range ix.symbols[file] {
		delete(ix.counts, key)
	}
	if len(entry) == 0 {
		delete(ix.symbols, file)
	} else {
		ix.symbols[file] = entry
	}
}

// RemoveFile drops a file's symbols and memoized counts (file deleted or
// closed).
func (ix *WorkspaceIndex) RemoveFile(file types.FileID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for key := range ix.symbols[file] {
		delete(ix.counts, key)
	}
	delete(ix.symbols, file)
	ix.proc.Forget(file)
}

// EffectiveCount returns the memoized count for the symbol, computing and
// memoizing it on first use. Unknown keys report 0 with ok=false.
func (ix *WorkspaceIndex) EffectiveCount(ctx context.Context, key types.SymbolKey) (int, bool) {
	ix.mu.RLock()
	entry, ok := ix.symbols[key.File]
	if !ok {
		ix.mu.RUnlock()
		return 0, false
	}
	sym, ok := entry[key]
	if !ok {
		ix.mu.RUnlock()
		return 0, false
	}
	if count, ok := ix.counts[key]; ok {
		ix.mu.RUnlock()
		return count, true
	}
	// Copy the descriptor before releasing the lock; the entry may be
	// replaced by a concurrent update while the oracle call is in flight.
	symCopy := *sym
	ix.mu.RUnlock()

	refs, err := ix.refOracle.References(ctx, symCopy.File, symCopy.Selection, false)
	if err != nil {
		debug.LogIndex("references failed for %s: %v\n", key, err)
		refs = nil
	}
	count := ix.agg.EffectiveCount(&symCopy, refs)

	ix.mu.Lock()
	ix.counts[key] = count
	ix.mu.Unlock()
	return count, true
}

// ClearCounts drops all memoized effective counts while leaving symbols
// indexed. Used when a setting the counts depend on changes, such as
// whether imports are counted.
func (ix *WorkspaceIndex) ClearCounts() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.counts = make(map[types.SymbolKey]int)
}

// Stale reports whether the file's cached results are older than the
// cooldown. Callers wanting freshness check this before trusting a count.
func (ix *WorkspaceIndex) Stale(file types.FileID, cooldown time.Duration) bool {
	return ix.proc.ShouldReanalyze(file, cooldown)
}

// Files returns a snapshot of the indexed file IDs.
func (ix *WorkspaceIndex) Files() []types.FileID {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]types.FileID, 0, len(ix.symbols))
	for file := range ix.symbols {
		out = append(out, file)
	}
	return out
}

// SymbolsForFile returns a snapshot of the file's indexed descriptors.
func (ix *WorkspaceIndex) SymbolsForFile(file types.FileID) []types.SymbolDescriptor {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	entry := ix.symbols[file]
	out := make([]types.SymbolDescriptor, 0, len(entry))
	for _, sym := range entry {
		out = append(out, *sym)
	}
	return out
}

// Symbol looks up one descriptor by key.
func (ix *WorkspaceIndex) Symbol(key types.SymbolKey) (types.SymbolDescriptor, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if entry, ok := ix.symbols[key.File]; ok {
		if sym, ok := entry[key]; ok {
			return *sym, true
		}
	}
	return types.SymbolDescriptor{}, false
}

// AllKeys returns a snapshot of every indexed symbol key.
func (ix *WorkspaceIndex) AllKeys() []types.SymbolKey {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []types.SymbolKey
	for _, entry := range ix.symbols {
		for key := range entry {
			out = append(out, key)
		}
	}
	return out
}

// SymbolCount returns the number of indexed symbols.
func (ix *WorkspaceIndex) SymbolCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	n := 0
	for _, entry := range ix.symbols {
		n += len(entry)
	}
	return n
}
