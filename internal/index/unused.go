package index

import (
	"context"

	"github.com/standardbeagle/reflens/internal/types"
)

// ProgressReporter receives detection progress and carries the cooperative
// cancellation signal. Cancellation is checked between symbols, never
// mid-symbol: an in-flight reference lookup always completes.
type ProgressReporter interface {
	Progress(done, total int)
	Cancelled() bool
}

// NopReporter is a ProgressReporter that reports nothing and never cancels.
type NopReporter struct{}

func (NopReporter) Progress(done, total int) {}
func (NopReporter) Cancelled() bool          { return false }

// DetectUnused walks the index snapshot and returns every symbol whose
// effective count is zero. A scan cancelled partway returns the unused
// symbols found so far, not an empty result. Result order is unspecified;
// presentation layers sort.
func DetectUnused(ctx context.Context, ix *WorkspaceIndex, reporter ProgressReporter) []types.UnusedSymbolInfo {
	if reporter == nil {
		reporter = NopReporter{}
	}

	keys := ix.AllKeys()
	total := len(keys)

	var unused []types.UnusedSymbolInfo
	for done, key := range keys {
		if ctx.Err() != nil || reporter.Cancelled() {
			return unused
		}

		count, ok := ix.EffectiveCount(ctx, key)
		if ok && count <= 0 {
			if sym, ok := ix.Symbol(key); ok {
				unused = append(unused, types.UnusedSymbolInfo{Symbol: sym})
			}
		}
		reporter.Progress(done+1, total)
	}

	return unused
}
