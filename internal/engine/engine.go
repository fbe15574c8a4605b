// Package engine is the composition root: it constructs and wires the
// scanner, oracles, aggregator, caches, index and scheduler into one
// reference accounting service. All collaborators are explicit instances;
// nothing here is a package-level singleton.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/standardbeagle/reflens/internal/accounting"
	"github.com/standardbeagle/reflens/internal/config"
	"github.com/standardbeagle/reflens/internal/debug"
	accerrors "github.com/standardbeagle/reflens/internal/errors"
	"github.com/standardbeagle/reflens/internal/index"
	"github.com/standardbeagle/reflens/internal/oracle"
	"github.com/standardbeagle/reflens/internal/oracle/treesitter"
	"github.com/standardbeagle/reflens/internal/scan"
	"github.com/standardbeagle/reflens/internal/schedule"
	"github.com/standardbeagle/reflens/internal/types"
)

// Engine owns the full accounting pipeline for one workspace.
type Engine struct {
	cfg     *config.Config
	scanner *scan.Scanner
	reader  *oracle.CachingFileReader
	agg     *accounting.Aggregator
	proc    *index.ProcessingCache
	ix      *index.WorkspaceIndex
	sched   *schedule.Scheduler

	symOracle oracle.SymbolOracle
	refOracle oracle.ReferenceOracle

	mu        sync.Mutex
	sessions  map[types.FileID]*accounting.Session
	listeners []func(types.FileID)
}

// New builds an engine from configuration using the built-in tree-sitter
// oracle. NewWithOracle allows hosts to supply their own.
func New(cfg *config.Config) (*Engine, error) {
	var e *Engine
	ts := treesitter.New(func() ([]types.FileID, error) {
		return e.scanner.Files()
	})
	e, err := NewWithOracle(cfg, ts, ts)
	return e, err
}

// NewWithOracle builds an engine around externally supplied oracles.
func NewWithOracle(cfg *config.Config, symOracle oracle.SymbolOracle, refOracle oracle.ReferenceOracle) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, accerrors.NewConfigError("validate", err)
	}

	reader := oracle.NewCachingFileReader()
	classifier := accounting.NewClassifier(reader)
	exclude := cfg.ExcludePredicate()
	agg := accounting.NewAggregator(classifier, exclude, cfg.Accounting.IncludeImports)
	proc := index.NewProcessingCache()

	retrying := oracle.NewRetryingSymbolOracle(
		symOracle,
		cfg.Performance.RetryAttempts,
		time.Duration(cfg.Performance.RetryBackoffMs)*time.Millisecond,
	)

	e := &Engine{
		cfg:       cfg,
		scanner:   scan.NewScanner(cfg),
		reader:    reader,
		agg:       agg,
		proc:      proc,
		symOracle: retrying,
		refOracle: refOracle,
		sessions:  make(map[types.FileID]*accounting.Session),
	}
	e.ix = index.New(retrying, refOracle, agg, proc, index.Options{
		Exclude: exclude,
		Workers: cfg.Performance.ParallelFileWorkers,
	})
	e.sched = schedule.NewScheduler(cfg.Performance.DebounceMs, e.runPass)

	return e, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() *config.Config { return e.cfg }

// Index exposes the workspace index for detection and queries.
func (e *Engine) Index() *index.WorkspaceIndex { return e.ix }

// Scheduler exposes the update scheduler (used by watch mode).
func (e *Engine) Scheduler() *schedule.Scheduler { return e.sched }

// ScanFiles enumerates the workspace's eligible files.
func (e *Engine) ScanFiles() ([]types.FileID, error) {
	return e.scanner.Files()
}

// RebuildIndex scans the workspace and (re)indexes every eligible file.
func (e *Engine) RebuildIndex(ctx context.Context) error {
	files, err := e.ScanFiles()
	if err != nil {
		return err
	}
	return e.ix.Rebuild(ctx, files)
}

// UnusedSymbols walks the index and returns every symbol with an effective
// count of zero.
func (e *Engine) UnusedSymbols(ctx context.Context, reporter index.ProgressReporter) []types.UnusedSymbolInfo {
	return index.DetectUnused(ctx, e.ix, reporter)
}

// FileAccounts runs a synchronous accounting pass for one file and returns
// the per-symbol results in symbol order.
func (e *Engine) FileAccounts(ctx context.Context, file types.FileID) ([]accounting.SymbolAccount, error) {
	session := e.session(file)
	if err := session.Refresh(ctx); err != nil {
		return nil, err
	}
	return session.Accounts(), nil
}

// EffectiveCount returns the memoized count for one indexed symbol. A file
// past its cooldown is re-analyzed first, so the caller never trusts a
// count older than the configured window; unchanged content makes that
// refresh a no-op.
func (e *Engine) EffectiveCount(ctx context.Context, key types.SymbolKey) (int, bool) {
	cooldown := time.Duration(e.cfg.Accounting.CooldownMs) * time.Millisecond
	if _, ok := e.ix.Symbol(key); ok && e.ix.Stale(key.File, cooldown) {
		if err := e.ix.UpdateFile(ctx, key.File); err != nil {
			debug.LogIndex("refresh of stale %s failed: %v\n", key.File, err)
		}
	}
	return e.ix.EffectiveCount(ctx, key)
}

// NotifyChange records an edit/save event for a file: cached line text is
// dropped and an accounting pass is debounced.
func (e *Engine) NotifyChange(file types.FileID) {
	e.reader.Invalidate(file)
	e.sched.Schedule(file)
}

// NotifyRemove drops all state for a deleted file.
func (e *Engine) NotifyRemove(file types.FileID) {
	e.sched.Cancel(file)
	e.reader.Invalidate(file)
	e.ix.RemoveFile(file)

	e.mu.Lock()
	delete(e.sessions, file)
	e.mu.Unlock()
}

// SetIncludeImports toggles whether import-style references count as usage.
// Memoized counts depend on the flag, so they are dropped and open sessions
// are refreshed immediately rather than after the debounce delay.
func (e *Engine) SetIncludeImports(v bool) {
	if e.agg.IncludeImports() == v {
		return
	}
	e.agg.SetIncludeImports(v)
	e.ix.ClearCounts()

	e.mu.Lock()
	files := make([]types.FileID, 0, len(e.sessions))
	for file := range e.sessions {
		files = append(files, file)
	}
	e.mu.Unlock()

	for _, file := range files {
		e.sched.ScheduleImmediate(file)
	}
}

// OnUpdated registers a listener invoked after any file's accounting pass
// completes.
func (e *Engine) OnUpdated(fn func(types.FileID)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Close shuts down the scheduler and releases caches.
func (e *Engine) Close() {
	e.sched.Shutdown()
	e.reader.Clear()
}

// session returns the accounting session for a file, creating it on first
// use and wiring the update notification.
func (e *Engine) session(file types.FileID) *accounting.Session {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.sessions[file]; ok {
		return s
	}
	s := accounting.NewSession(file, e.symOracle, e.refOracle, e.agg)
	s.SetOnUpdated(e.notifyUpdated)
	e.sessions[file] = s
	return s
}

func (e *Engine) notifyUpdated(file types.FileID) {
	e.mu.Lock()
	listeners := append([]func(types.FileID){}, e.listeners...)
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(file)
	}
}

// runPass is the scheduler's debounced unit of work: refresh the file's
// session and fold the file back into the workspace index.
func (e *Engine) runPass(ctx context.Context, file types.FileID) {
	if err := e.session(file).Refresh(ctx); err != nil {
		debug.LogAccounting("pass for %s aborted: %v\n", file, err)
		return
	}
	if err := e.ix.UpdateFile(ctx, file); err != nil {
		debug.LogIndex("update of %s aborted: %v\n", file, err)
	}
}
