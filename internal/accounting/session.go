package accounting

import (
	"context"
	"sync"

	"github.com/standardbeagle/reflens/internal/debug"
	"github.com/standardbeagle/reflens/internal/oracle"
	"github.com/standardbeagle/reflens/internal/types"
)

// SessionState tracks where a session is in its collection cycle.
type SessionState uint8

const (
	StateIdle SessionState = iota
	StateCollecting
	StateReady
)

func (s SessionState) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StateReady:
		return "ready"
	default:
		return "idle"
	}
}

// SymbolAccount holds everything the session collected for one symbol: the
// raw reference set, the classified set, and the effective count.
type SymbolAccount struct {
	Symbol     types.SymbolDescriptor
	Raw        []types.ReferenceLocation
	Classified []types.ClassifiedReference
	Count      int
}

// Session is the per-open-file accounting session. A refresh walks the
// file's eligible symbols, fetches and classifies their references, and
// exposes the results for decoration. Collecting is re-entrant: a refresh
// started while another is in flight supersedes it, and the superseded
// pass abandons its results for this file only.
type Session struct {
	file    types.FileID
	symbols oracle.SymbolOracle
	refs    oracle.ReferenceOracle
	agg     *Aggregator

	mu         sync.Mutex
	state      SessionState
	generation uint64
	accounts   map[types.SymbolKey]*SymbolAccount
	order      []types.SymbolKey

	onUpdated func(types.FileID)
}

// NewSession creates an idle session for one file. symbols should already
// carry the retry policy (see oracle.NewRetryingSymbolOracle).
func NewSession(file types.FileID, symbols oracle.SymbolOracle, refs oracle.ReferenceOracle, agg *Aggregator) *Session {
	return &Session{
		file:     file,
		symbols:  symbols,
		refs:     refs,
		agg:      agg,
		accounts: make(map[types.SymbolKey]*SymbolAccount),
	}
}

// SetOnUpdated registers a callback invoked after a refresh completes.
func (s *Session) SetOnUpdated(fn func(types.FileID)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdated = fn
}

// File returns the file this session accounts for.
func (s *Session) File() types.FileID { return s.file }

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Refresh runs one full accounting pass for the file. A reference oracle
// failure for one symbol records that symbol with an empty reference set
// and continues; it never aborts the whole file.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	prev := s.state
	s.state = StateCollecting
	s.mu.Unlock()

	raw, err := s.symbols.DefinitionSymbols(ctx, s.file)
	if err != nil {
		// Degrade to "nothing found here"; the session still settles.
		debug.LogAccounting("symbol lookup failed for %s: %v\n", s.file, err)
		raw = nil
	}
	eligible := EligibleSymbols(raw)

	accounts := make(map[types.SymbolKey]*SymbolAccount, len(eligible))
	order := make([]types.SymbolKey, 0, len(eligible))

	for i := range eligible {
		if err := ctx.Err(); err != nil {
			s.restoreState(gen, prev)
			return err
		}
		if s.superseded(gen) {
			debug.LogAccounting("refresh of %s superseded, abandoning\n", s.file)
			return nil
		}

		sym := eligible[i]
		refs, err := s.refs.References(ctx, sym.File, sym.Selection, false)
		if err != nil {
			debug.LogAccounting("references failed for %s in %s: %v\n", sym.Name, s.file, err)
			refs = nil
		}

		account := &SymbolAccount{
			Symbol:     sym,
			Raw:        refs,
			Classified: s.agg.Classify(refs),
			Count:      s.agg.EffectiveCount(&sym, refs),
		}
		key := sym.Key()
		accounts[key] = account
		order = append(order, key)
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return nil
	}
	s.accounts = accounts
	s.order = order
	s.state = StateReady
	notify := s.onUpdated
	s.mu.Unlock()

	if notify != nil {
		notify(s.file)
	}
	return nil
}

// restoreState puts the pre-refresh state back after a cancelled pass,
// unless a newer refresh owns the session by now.
func (s *Session) restoreState(gen uint64, prev SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == gen {
		s.state = prev
	}
}

// superseded reports whether a newer refresh has started since gen.
func (s *Session) superseded(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation != gen
}

// Accounts returns the collected symbol accounts in symbol-filter order.
func (s *Session) Accounts() []SymbolAccount {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SymbolAccount, 0, len(s.order))
	for _, key := range s.order {
		if account, ok := s.accounts[key]; ok {
			out = append(out, *account)
		}
	}
	return out
}

// EffectiveCount returns the count for one symbol, if collected.
func (s *Session) EffectiveCount(key types.SymbolKey) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[key]
	if !ok {
		return 0, false
	}
	return account.Count, true
}
