package accounting

import (
	"strings"
	"sync"

	"github.com/standardbeagle/reflens/internal/debug"
	"github.com/standardbeagle/reflens/internal/types"
)

// Aggregator turns a symbol's raw reference list into one effective usage
// count. Naive counting double-penalizes symbols whose only reference is
// their own recursive call, and over-counts files that both import a symbol
// and then use it once; the rules here correct both.
type Aggregator struct {
	classifier *Classifier
	exclude    types.ExcludePredicate

	mu             sync.RWMutex
	includeImports bool
}

// NewAggregator creates an aggregator. exclude may be nil to exclude nothing.
func NewAggregator(classifier *Classifier, exclude types.ExcludePredicate, includeImports bool) *Aggregator {
	if exclude == nil {
		exclude = types.NeverExclude
	}
	return &Aggregator{
		classifier:     classifier,
		exclude:        exclude,
		includeImports: includeImports,
	}
}

// IncludeImports reports whether import-style references count as usage.
func (a *Aggregator) IncludeImports() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.includeImports
}

// SetIncludeImports toggles whether import-style references count as usage.
// Callers holding memoized counts must drop them after a change.
func (a *Aggregator) SetIncludeImports(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.includeImports = v
}

// EffectiveCount computes the usage count for one symbol.
//
// The self-file rule: references in the symbol's own file that all fall
// inside the symbol's own definition range mean the symbol only ever refers
// to itself (a recursive call); that still counts as used, exactly once.
// Self-contained references are otherwise subtracted so a recursive helper
// with real callers is not over-counted.
func (a *Aggregator) EffectiveCount(sym *types.SymbolDescriptor, refs []types.ReferenceLocation) int {
	rawTotal := len(refs)

	candidates := a.usageCandidates(sym, refs)

	groups := make(map[types.FileID][]types.ReferenceLocation)
	for _, ref := range candidates {
		groups[ref.File] = append(groups[ref.File], ref)
	}

	count := 0
	for file, group := range groups {
		if file != sym.File {
			count += len(group)
			continue
		}

		selfContained := 0
		for _, ref := range group {
			if sym.Range.Contains(ref.Range.Start) {
				selfContained++
			}
		}
		if selfContained == len(group) {
			// Used only within its own body; still used, not unused.
			count++
		} else {
			count += len(group) - selfContained
		}
	}

	// Exported-symbol floor: an exported symbol with any external touchpoint
	// is never reported as fully unused on the strength of a heuristic count
	// alone. Best-effort rule with no formal guarantee; kept as-is.
	if count == 0 && rawTotal > 0 && looksExported(sym) {
		debug.LogAccounting("floor applied for exported symbol %s in %s\n", sym.Name, sym.File)
		count = 1
	}

	return count
}

// usageCandidates applies steps 1-3: drop the declaration itself, drop
// excluded paths, then drop imports unless they are being counted.
func (a *Aggregator) usageCandidates(sym *types.SymbolDescriptor, refs []types.ReferenceLocation) []types.ReferenceLocation {
	includeImports := a.IncludeImports()

	out := make([]types.ReferenceLocation, 0, len(refs))
	for _, ref := range refs {
		if ref.File == sym.File && ref.Range.Start == sym.Selection {
			continue // the definition is not a reference to itself
		}
		if a.exclude(string(ref.File)) {
			continue
		}
		if !includeImports && a.classifier.Classify(ref) == types.ClassImport {
			continue
		}
		out = append(out, ref)
	}
	return out
}

// Classify exposes the aggregator's classifier for callers that store the
// classified set alongside the raw one.
func (a *Aggregator) Classify(refs []types.ReferenceLocation) []types.ClassifiedReference {
	return a.classifier.ClassifyAll(refs)
}

// looksExported reports whether the symbol's detail text carries an export
// marker or its owning file sits on an API/route-style path.
func looksExported(sym *types.SymbolDescriptor) bool {
	if strings.Contains(sym.Detail, "export") {
		return true
	}
	path := strings.ToLower(string(sym.File))
	return strings.Contains(path, "/api/") || strings.Contains(path, "/routes/")
}
