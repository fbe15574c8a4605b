package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/reflens/internal/accounting"
	"github.com/standardbeagle/reflens/internal/types"
)

type memReader struct {
	files map[types.FileID][]string
}

func (r *memReader) Line(file types.FileID, line int) (string, error) {
	lines, ok := r.files[file]
	if !ok || line < 0 || line >= len(lines) {
		return "", fmt.Errorf("no line %d in %s", line, file)
	}
	return lines[line], nil
}

type stubSymbolOracle struct {
	mu       sync.Mutex
	symbols  map[types.FileID][]types.SymbolDescriptor
	onLookup func()
	calls    int
}

func (o *stubSymbolOracle) DefinitionSymbols(ctx context.Context, file types.FileID) ([]types.SymbolDescriptor, error) {
	o.mu.Lock()
	o.calls++
	hook := o.onLookup
	symbols := o.symbols[file]
	o.mu.Unlock()

	if hook != nil {
		hook()
	}
	return symbols, nil
}

func (o *stubSymbolOracle) set(file types.FileID, symbols []types.SymbolDescriptor) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.symbols[file] = symbols
}

func (o *stubSymbolOracle) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

type stubRefOracle struct {
	mu    sync.Mutex
	refs  map[string][]types.ReferenceLocation
	calls int
}

func posKey(file types.FileID, pos types.Position) string {
	return fmt.Sprintf("%s@%d:%d", file, pos.Line, pos.Character)
}

func (o *stubRefOracle) References(ctx context.Context, file types.FileID, pos types.Position, includeDeclaration bool) ([]types.ReferenceLocation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	return o.refs[posKey(file, pos)], nil
}

func (o *stubRefOracle) set(file types.FileID, pos types.Position, refs []types.ReferenceLocation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refs[posKey(file, pos)] = refs
}

func (o *stubRefOracle) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

func fn(name string, file types.FileID, line, selChar int) types.SymbolDescriptor {
	return types.SymbolDescriptor{
		Name:      name,
		Kind:      types.KindFunction,
		File:      file,
		Selection: types.Position{Line: line, Character: selChar},
		Range: types.Range{
			Start: types.Position{Line: line, Character: 0},
			End:   types.Position{Line: line + 1, Character: 1},
		},
	}
}

func loc(file types.FileID, line, char int) types.ReferenceLocation {
	return types.ReferenceLocation{
		File: file,
		Range: types.Range{
			Start: types.Position{Line: line, Character: char},
			End:   types.Position{Line: line, Character: char + 1},
		},
	}
}

// indexFixture: greeter.ts defines greet (used from app.ts) and square
// (unused); app.ts defines main (unused).
type indexFixture struct {
	ix      *WorkspaceIndex
	symbols *stubSymbolOracle
	refs    *stubRefOracle
	proc    *ProcessingCache
	agg     *accounting.Aggregator

	greet, square, main types.SymbolDescriptor
}

func newIndexFixture(t *testing.T, opts Options) *indexFixture {
	t.Helper()

	reader := &memReader{files: map[types.FileID][]string{
		"greeter.ts": {
			"export function greet(name) {",
			"}",
			"function square(x) { return x; }",
		},
		"app.ts": {
			`import { greet } from "./greeter";`,
			`greet("world");`,
			"function main() {}",
		},
	}}

	f := &indexFixture{
		greet:  fn("greet", "greeter.ts", 0, 16),
		square: fn("square", "greeter.ts", 2, 9),
		main:   fn("main", "app.ts", 2, 9),
	}
	f.symbols = &stubSymbolOracle{symbols: map[types.FileID][]types.SymbolDescriptor{
		"greeter.ts": {f.greet, f.square},
		"app.ts":     {f.main},
	}}
	f.refs = &stubRefOracle{refs: map[string][]types.ReferenceLocation{
		posKey("greeter.ts", f.greet.Selection): {
			loc("app.ts", 0, 9),
			loc("app.ts", 1, 0),
		},
	}}

	f.agg = accounting.NewAggregator(accounting.NewClassifier(reader), opts.Exclude, false)
	f.proc = NewProcessingCache()
	f.ix = New(f.symbols, f.refs, f.agg, f.proc, opts)
	return f
}

func (f *indexFixture) allFiles() []types.FileID {
	return []types.FileID{"greeter.ts", "app.ts"}
}

func TestRebuildIndexesEligibleSymbols(t *testing.T) {
	f := newIndexFixture(t, Options{Workers: 1})

	require.NoError(t, f.ix.Rebuild(context.Background(), f.allFiles()))

	assert.Equal(t, 3, f.ix.SymbolCount())
	assert.ElementsMatch(t, []types.FileID{"greeter.ts", "app.ts"}, f.ix.Files())

	got, ok := f.ix.Symbol(f.greet.Key())
	require.True(t, ok)
	assert.Equal(t, "greet", got.Name)
}

func TestRebuildIsIdempotent(t *testing.T) {
	f := newIndexFixture(t, Options{Workers: 1})

	require.NoError(t, f.ix.Rebuild(context.Background(), f.allFiles()))
	require.NoError(t, f.ix.Rebuild(context.Background(), f.allFiles()))

	assert.Equal(t, 3, f.ix.SymbolCount())
}

func TestRebuildSkipsExcludedFiles(t *testing.T) {
	exclude := func(path string) bool { return strings.HasPrefix(path, "greeter") }
	f := newIndexFixture(t, Options{Workers: 1, Exclude: exclude})

	require.NoError(t, f.ix.Rebuild(context.Background(), f.allFiles()))

	assert.Equal(t, []types.FileID{"app.ts"}, f.ix.Files())
}

func TestRebuildSkipsFilesAlreadyProcessing(t *testing.T) {
	f := newIndexFixture(t, Options{Workers: 1})

	// Another pass holds the file: this rebuild must skip it, not queue.
	require.True(t, f.proc.MarkProcessing("greeter.ts"))

	require.NoError(t, f.ix.Rebuild(context.Background(), f.allFiles()))

	_, ok := f.ix.Symbol(f.greet.Key())
	assert.False(t, ok)
	_, ok = f.ix.Symbol(f.main.Key())
	assert.True(t, ok)
}

func TestEffectiveCountMemoizes(t *testing.T) {
	f := newIndexFixture(t, Options{Workers: 1})
	ctx := context.Background()
	require.NoError(t, f.ix.Rebuild(ctx, f.allFiles()))

	count, ok := f.ix.EffectiveCount(ctx, f.greet.Key())
	require.True(t, ok)
	assert.Equal(t, 1, count) // import filtered out, one usage remains
	calls := f.refs.callCount()

	count, ok = f.ix.EffectiveCount(ctx, f.greet.Key())
	require.True(t, ok)
	assert.Equal(t, 1, count)
	assert.Equal(t, calls, f.refs.callCount(), "memoized count must not hit the oracle again")
}

func TestEffectiveCountUnknownKey(t *testing.T) {
	f := newIndexFixture(t, Options{Workers: 1})

	_, ok := f.ix.EffectiveCount(context.Background(), types.SymbolKey{File: "nope.ts", Name: "x"})
	assert.False(t, ok)
}

func TestClearCountsForcesRecompute(t *testing.T) {
	f := newIndexFixture(t, Options{Workers: 1})
	ctx := context.Background()
	require.NoError(t, f.ix.Rebuild(ctx, f.allFiles()))

	count, _ := f.ix.EffectiveCount(ctx, f.greet.Key())
	assert.Equal(t, 1, count)

	// Flipping the import setting invalidates every memoized count; the
	// next lookup recomputes under the new rule.
	f.agg.SetIncludeImports(true)
	f.ix.ClearCounts()

	count, ok := f.ix.EffectiveCount(ctx, f.greet.Key())
	require.True(t, ok)
	assert.Equal(t, 2, count)
}

func TestUpdateFileReplacesWholesale(t *testing.T) {
	f := newIndexFixture(t, Options{Workers: 1})
	ctx := context.Background()
	require.NoError(t, f.ix.Rebuild(ctx, f.allFiles()))

	// greeter.ts no longer defines square.
	f.symbols.set("greeter.ts", []types.SymbolDescriptor{f.greet})
	require.NoError(t, f.ix.UpdateFile(ctx, "greeter.ts"))

	_, ok := f.ix.Symbol(f.square.Key())
	assert.False(t, ok)
	_, ok = f.ix.Symbol(f.greet.Key())
	assert.True(t, ok)

	// Other files' entries are untouched.
	_, ok = f.ix.Symbol(f.main.Key())
	assert.True(t, ok)
}

func TestUpdateFileDropsStaleMemoizedCounts(t *testing.T) {
	f := newIndexFixture(t, Options{Workers: 1})
	ctx := context.Background()
	require.NoError(t, f.ix.Rebuild(ctx, f.allFiles()))

	count, _ := f.ix.EffectiveCount(ctx, f.greet.Key())
	require.Equal(t, 1, count)

	// The file changed: greet gained a second call site.
	f.refs.set("greeter.ts", f.greet.Selection, []types.ReferenceLocation{
		loc("app.ts", 1, 0),
		loc("app.ts", 1, 6),
	})
	require.NoError(t, f.ix.UpdateFile(ctx, "greeter.ts"))

	count, ok := f.ix.EffectiveCount(ctx, f.greet.Key())
	require.True(t, ok)
	assert.Equal(t, 2, count)
}

func TestRebuildCancellationPreservesIndexedEntries(t *testing.T) {
	f := newIndexFixture(t, Options{Workers: 1})
	ctx := context.Background()
	require.NoError(t, f.ix.Rebuild(ctx, f.allFiles()))
	require.Equal(t, 3, f.ix.SymbolCount())

	// The next rebuild is cancelled from inside the first symbol lookup.
	// Entries from the completed rebuild must survive untouched.
	cancelCtx, cancel := context.WithCancel(ctx)
	f.symbols.onLookup = cancel

	err := f.ix.Rebuild(cancelCtx, f.allFiles())
	assert.Error(t, err)
	assert.Equal(t, 3, f.ix.SymbolCount())
	_, ok := f.ix.Symbol(f.greet.Key())
	assert.True(t, ok)
}

func TestUpdateFileCancellationKeepsPreviousEntry(t *testing.T) {
	f := newIndexFixture(t, Options{Workers: 1})
	ctx := context.Background()
	require.NoError(t, f.ix.Rebuild(ctx, f.allFiles()))

	cancelCtx, cancel := context.WithCancel(ctx)
	f.symbols.onLookup = cancel

	err := f.ix.UpdateFile(cancelCtx, "greeter.ts")
	assert.Error(t, err)

	_, ok := f.ix.Symbol(f.greet.Key())
	assert.True(t, ok, "a cancelled update must not erase the file's symbols")
	_, ok = f.ix.Symbol(f.square.Key())
	assert.True(t, ok)
}

func TestUpdateFileSkipsUnchangedContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "greeter.ts")
	require.NoError(t, os.WriteFile(path, []byte("export function greet() {}\n"), 0644))
	file := types.FileID(path)

	symbols := &stubSymbolOracle{symbols: map[types.FileID][]types.SymbolDescriptor{
		file: {fn("greet", file, 0, 16)},
	}}
	refs := &stubRefOracle{refs: map[string][]types.ReferenceLocation{}}
	agg := accounting.NewAggregator(accounting.NewClassifier(&memReader{}), nil, false)
	ix := New(symbols, refs, agg, NewProcessingCache(), Options{Workers: 1})

	ctx := context.Background()
	require.NoError(t, ix.UpdateFile(ctx, file))
	require.Equal(t, 1, symbols.callCount())
	assert.Equal(t, 1, ix.SymbolCount())

	// Identical content: the analysis is skipped outright.
	require.NoError(t, ix.UpdateFile(ctx, file))
	assert.Equal(t, 1, symbols.callCount())

	// A real edit brings the file back through analysis.
	require.NoError(t, os.WriteFile(path, []byte("export function greet(name) {}\n"), 0644))
	require.NoError(t, ix.UpdateFile(ctx, file))
	assert.Equal(t, 2, symbols.callCount())
}

func TestRemoveFile(t *testing.T) {
	f := newIndexFixture(t, Options{Workers: 1})
	ctx := context.Background()
	require.NoError(t, f.ix.Rebuild(ctx, f.allFiles()))

	f.ix.RemoveFile("greeter.ts")

	_, ok := f.ix.Symbol(f.greet.Key())
	assert.False(t, ok)
	assert.Equal(t, []types.FileID{"app.ts"}, f.ix.Files())
}

func TestDetectUnused(t *testing.T) {
	f := newIndexFixture(t, Options{Workers: 1})
	ctx := context.Background()
	require.NoError(t, f.ix.Rebuild(ctx, f.allFiles()))

	unused := DetectUnused(ctx, f.ix, nil)

	names := make([]string, 0, len(unused))
	for _, info := range unused {
		names = append(names, info.Symbol.Name)
	}
	assert.ElementsMatch(t, []string{"square", "main"}, names)
}

// cancelAfterReporter flips to cancelled once n progress callbacks arrive.
type cancelAfterReporter struct {
	n    int
	seen int
}

func (r *cancelAfterReporter) Progress(done, total int) { r.seen++ }
func (r *cancelAfterReporter) Cancelled() bool          { return r.seen >= r.n }

func TestDetectUnusedCancellationKeepsPartialResults(t *testing.T) {
	f := newIndexFixture(t, Options{Workers: 1})
	ctx := context.Background()
	require.NoError(t, f.ix.Rebuild(ctx, f.allFiles()))

	reporter := &cancelAfterReporter{n: 1}
	unused := DetectUnused(ctx, f.ix, reporter)

	// Only the first symbol was examined before cancellation; whatever was
	// found so far is returned rather than discarded.
	assert.Equal(t, 1, f.refs.callCount())
	assert.LessOrEqual(t, len(unused), 1)
}

func TestDetectUnusedCancelledBeforeStart(t *testing.T) {
	f := newIndexFixture(t, Options{Workers: 1})
	ctx := context.Background()
	require.NoError(t, f.ix.Rebuild(ctx, f.allFiles()))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	unused := DetectUnused(cancelled, f.ix, nil)
	assert.Empty(t, unused)
	assert.Equal(t, 0, f.refs.callCount())
}
