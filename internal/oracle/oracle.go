// Package oracle defines the contracts for the external language-analysis
// collaborators that supply raw symbol and reference data. The accounting
// engine never resolves references itself; it only consumes these interfaces.
package oracle

import (
	"context"
	"time"

	"github.com/standardbeagle/reflens/internal/debug"
	accerrors "github.com/standardbeagle/reflens/internal/errors"
	"github.com/standardbeagle/reflens/internal/types"
)

// SymbolOracle supplies the definition symbols of a file. Implementations
// may return empty results transiently during warm-up; callers wrap them
// with RetryingSymbolOracle to absorb that.
type SymbolOracle interface {
	DefinitionSymbols(ctx context.Context, file types.FileID) ([]types.SymbolDescriptor, error)
}

// ReferenceOracle supplies every location in the workspace that references
// the symbol at the given position. Errors are treated by callers as "no
// references found" for that symbol only.
type ReferenceOracle interface {
	References(ctx context.Context, file types.FileID, pos types.Position, includeDeclaration bool) ([]types.ReferenceLocation, error)
}

// Oracle combines both lookups; the built-in tree-sitter oracle and any
// language-server adapter implement it.
type Oracle interface {
	SymbolOracle
	ReferenceOracle
}

// FileReader gives the reference classifier access to line text. Reads are
// cheap and idempotent; failures make the classifier fail open to Usage.
type FileReader interface {
	Line(file types.FileID, line int) (string, error)
}

// RetryingSymbolOracle wraps a SymbolOracle with a bounded retry loop.
// Symbol providers commonly return empty results while their own index is
// warming up; a few retries with a short fixed backoff absorb that window.
// After the last attempt an empty result is accepted as valid.
type RetryingSymbolOracle struct {
	inner    SymbolOracle
	attempts int
	backoff  time.Duration
}

// NewRetryingSymbolOracle creates a retry wrapper. attempts must be >= 1.
func NewRetryingSymbolOracle(inner SymbolOracle, attempts int, backoff time.Duration) *RetryingSymbolOracle {
	if attempts < 1 {
		attempts = 1
	}
	return &RetryingSymbolOracle{
		inner:    inner,
		attempts: attempts,
		backoff:  backoff,
	}
}

// DefinitionSymbols retries empty and failed lookups up to the configured
// attempt count. The final attempt's result is returned as-is: an empty
// list is a valid answer, and a final error surfaces to the caller.
func (r *RetryingSymbolOracle) DefinitionSymbols(ctx context.Context, file types.FileID) ([]types.SymbolDescriptor, error) {
	var symbols []types.SymbolDescriptor
	var err error

	for attempt := 1; attempt <= r.attempts; attempt++ {
		symbols, err = r.inner.DefinitionSymbols(ctx, file)
		if err == nil && len(symbols) > 0 {
			return symbols, nil
		}
		if attempt == r.attempts {
			break
		}

		debug.LogOracle("symbols for %s empty on attempt %d/%d, retrying\n", file, attempt, r.attempts)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.backoff):
		}
	}

	if err != nil {
		return nil, accerrors.NewOracleError("definition_symbols", err).WithFile(file)
	}
	return symbols, nil
}
