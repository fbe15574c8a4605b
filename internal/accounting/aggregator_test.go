package accounting

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/standardbeagle/reflens/internal/types"
)

// aggFixture builds an aggregator over an in-memory workspace of two files:
// greeter.ts defines the symbols, app.ts consumes them.
func aggFixture(includeImports bool, exclude types.ExcludePredicate) *Aggregator {
	reader := &fakeReader{files: map[types.FileID][]string{
		"greeter.ts": {
			"export function greet(name) {", // 0
			"  return greet0(name);",        // 1
			"}",                             // 2
			"function square(x) {",          // 3
			"  return x * x;",               // 4
			"}",                             // 5
			"square(2);",                    // 6
			"square(3);",                    // 7
			"function recurse(n) {",         // 8
			"  return recurse(n - 1);",      // 9
			"}",                             // 10
		},
		"app.ts": {
			`import { greet } from "./greeter";`, // 0
			`greet("world");`,                    // 1
			`greet("again");`,                    // 2
		},
		"vendor/lib.ts": {
			"greet('vendored');", // 0
		},
	}}
	return NewAggregator(NewClassifier(reader), exclude, includeImports)
}

func defSymbol(name string, startLine, endLine, selChar int) types.SymbolDescriptor {
	return types.SymbolDescriptor{
		Name:      name,
		Kind:      types.KindFunction,
		File:      "greeter.ts",
		Selection: types.Position{Line: startLine, Character: selChar},
		Range: types.Range{
			Start: types.Position{Line: startLine, Character: 0},
			End:   types.Position{Line: endLine, Character: 1},
		},
	}
}

func TestEffectiveCountZeroReferences(t *testing.T) {
	agg := aggFixture(false, nil)
	sym := defSymbol("unused_function", 3, 5, 9)

	assert.Equal(t, 0, agg.EffectiveCount(&sym, nil))
}

func TestEffectiveCountDropsDeclaration(t *testing.T) {
	agg := aggFixture(false, nil)
	sym := defSymbol("square", 3, 5, 9)

	refs := []types.ReferenceLocation{refAt("greeter.ts", 3, 9)} // the definition itself
	assert.Equal(t, 0, agg.EffectiveCount(&sym, refs))
}

func TestEffectiveCountPurelySelfRecursive(t *testing.T) {
	agg := aggFixture(false, nil)
	sym := defSymbol("recurse", 8, 10, 9)

	// The only reference is the recursive call inside its own body: the
	// symbol is still used, exactly once.
	refs := []types.ReferenceLocation{refAt("greeter.ts", 9, 9)}
	assert.Equal(t, 1, agg.EffectiveCount(&sym, refs))
}

func TestEffectiveCountSameFileOutsideOwnRange(t *testing.T) {
	agg := aggFixture(false, nil)
	sym := defSymbol("square", 3, 5, 9)

	// Two usage references in the defining file, none inside the symbol's
	// own range: both count.
	refs := []types.ReferenceLocation{
		refAt("greeter.ts", 6, 0),
		refAt("greeter.ts", 7, 0),
	}
	assert.Equal(t, 2, agg.EffectiveCount(&sym, refs))
}

func TestEffectiveCountMixedSelfFileReferences(t *testing.T) {
	agg := aggFixture(false, nil)
	sym := defSymbol("recurse", 8, 10, 9)

	// One recursive call inside the body plus two real call sites: the
	// self-contained reference is subtracted, not collapsed.
	refs := []types.ReferenceLocation{
		refAt("greeter.ts", 9, 9),
		refAt("greeter.ts", 6, 0),
		refAt("greeter.ts", 7, 0),
	}
	assert.Equal(t, 2, agg.EffectiveCount(&sym, refs))
}

func TestEffectiveCountImportVsUsage(t *testing.T) {
	sym := defSymbol("greet", 0, 2, 16)
	refs := []types.ReferenceLocation{
		refAt("app.ts", 0, 9), // import line
		refAt("app.ts", 1, 0), // usage
	}

	// Import excluded by default.
	agg := aggFixture(false, nil)
	assert.Equal(t, 1, agg.EffectiveCount(&sym, refs))

	// Counting imports raises the count.
	agg = aggFixture(true, nil)
	assert.Equal(t, 2, agg.EffectiveCount(&sym, refs))
}

func TestEffectiveCountCrossFileSums(t *testing.T) {
	agg := aggFixture(false, nil)
	sym := defSymbol("greet", 0, 2, 16)

	refs := []types.ReferenceLocation{
		refAt("app.ts", 1, 0),
		refAt("app.ts", 2, 0),
		refAt("vendor/lib.ts", 0, 0),
	}
	assert.Equal(t, 3, agg.EffectiveCount(&sym, refs))
}

func TestEffectiveCountExcludePredicate(t *testing.T) {
	exclude := func(path string) bool { return strings.HasPrefix(path, "vendor/") }
	agg := aggFixture(false, exclude)
	sym := defSymbol("greet", 0, 2, 16)

	refs := []types.ReferenceLocation{
		refAt("app.ts", 1, 0),
		refAt("vendor/lib.ts", 0, 0),
	}
	assert.Equal(t, 1, agg.EffectiveCount(&sym, refs))
}

func TestEffectiveCountExportedFloor(t *testing.T) {
	agg := aggFixture(false, nil)
	sym := defSymbol("greet", 0, 2, 16)
	sym.Detail = "export function greet(name)"

	// The only raw reference is an import; filtering yields zero, but an
	// exported symbol with an external touchpoint is clamped to 1.
	refs := []types.ReferenceLocation{refAt("app.ts", 0, 9)}
	assert.Equal(t, 1, agg.EffectiveCount(&sym, refs))
}

func TestEffectiveCountExportedFloorByAPIPath(t *testing.T) {
	agg := aggFixture(false, nil)
	sym := defSymbol("handler", 3, 5, 9)
	sym.File = "src/api/users.ts"

	refs := []types.ReferenceLocation{refAt("app.ts", 0, 9)} // import only
	assert.Equal(t, 1, agg.EffectiveCount(&sym, refs))
}

func TestIncludeImportsToggleIsConcurrencySafe(t *testing.T) {
	agg := aggFixture(false, nil)
	sym := defSymbol("greet", 0, 2, 16)
	refs := []types.ReferenceLocation{
		refAt("app.ts", 0, 9), // import
		refAt("app.ts", 1, 0), // usage
	}

	// Concurrent toggles and counts must not race; every observed count
	// reflects one setting or the other, never a torn read.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		include := i%2 == 0
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				agg.SetIncludeImports(include)
				if count := agg.EffectiveCount(&sym, refs); count != 1 && count != 2 {
					t.Errorf("effective count = %d, want 1 or 2", count)
				}
			}
		}()
	}
	wg.Wait()

	agg.SetIncludeImports(true)
	assert.True(t, agg.IncludeImports())
	assert.Equal(t, 2, agg.EffectiveCount(&sym, refs))
}

func TestEffectiveCountNoFloorWithoutRawReferences(t *testing.T) {
	agg := aggFixture(false, nil)
	sym := defSymbol("greet", 0, 2, 16)
	sym.Detail = "export function greet(name)"

	// Exported but genuinely untouched: still unused.
	assert.Equal(t, 0, agg.EffectiveCount(&sym, nil))
}
