package types

import (
	"fmt"
)

// Common system-wide constants
const (
	// File size limit for analysis
	DefaultMaxFileSize = 10 * 1024 * 1024 // 10MB per file
	// Rationale: Prevents memory exhaustion from large
	// generated files while covering 99.9% of source files.

	// Debounce delay between an edit event and the accounting pass
	DefaultDebounceMs = 500

	// Cooldown before a cached file entry is considered stale
	DefaultCooldownMs = 5000

	// Symbol oracle warm-up retry policy
	DefaultRetryAttempts  = 3
	DefaultRetryBackoffMs = 150

	// Binary detection threshold
	BinaryPreCheckBytes = 512 // bytes read for binary content detection
)

// FileID identifies a file in the workspace. It is the cleaned path of the
// file, absolute or workspace-relative depending on how the host enumerated
// it; the engine only requires that the same file always maps to the same ID.
type FileID string

func (f FileID) String() string { return string(f) }

// SymbolKind classifies a definition symbol as reported by the symbol oracle.
type SymbolKind uint8

const (
	KindFunction SymbolKind = iota
	KindMethod
	KindClass
	KindVariable
	KindConstant
	KindInterface
	KindModule
	KindOther
)

func (k SymbolKind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindMethod:
		return "method"
	case KindClass:
		return "class"
	case KindVariable:
		return "variable"
	case KindConstant:
		return "constant"
	case KindInterface:
		return "interface"
	case KindModule:
		return "module"
	default:
		return "other"
	}
}

// Countable reports whether symbols of this kind participate in reference
// accounting at all.
func (k SymbolKind) Countable() bool {
	return k == KindFunction || k == KindMethod || k == KindClass
}

// Position is a zero-based line/character location inside a file.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Character)
}

// Before reports whether p precedes q in document order.
func (p Position) Before(q Position) bool {
	if p.Line != q.Line {
		return p.Line < q.Line
	}
	return p.Character < q.Character
}

// Range is a half-open-feeling but inclusive span between two positions.
// Start and End both lie inside the range.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Contains reports whether p lies within the range (inclusive on both ends).
func (r Range) Contains(p Position) bool {
	return !p.Before(r.Start) && !r.End.Before(p)
}

// SymbolKey is the identity of a logical definition: two descriptors with the
// same key are the same definition and must be deduplicated.
type SymbolKey struct {
	File FileID `json:"file"`
	Name string `json:"name"`
	Line int    `json:"line"`
	Char int    `json:"char"`
}

func (k SymbolKey) String() string {
	return fmt.Sprintf("%s#%s@%d:%d", k.File, k.Name, k.Line, k.Char)
}

// SymbolDescriptor is a single function/method/class definition reported by
// the symbol oracle. Descriptors for a file are replaced wholesale whenever
// the file is re-analyzed.
type SymbolDescriptor struct {
	Name      string     `json:"name"`
	Kind      SymbolKind `json:"kind"`
	Detail    string     `json:"detail,omitempty"` // oracle detail text, e.g. export markers
	File      FileID     `json:"file"`
	Range     Range      `json:"range"`     // full definition body
	Selection Position   `json:"selection"` // position of the name itself

	// Children holds the oracle's direct child symbols (e.g. methods of a
	// class). Only one level deep; the symbol filter never recurses further.
	Children []SymbolDescriptor `json:"-"`
}

// Key returns the identity key for this descriptor.
func (s *SymbolDescriptor) Key() SymbolKey {
	return SymbolKey{
		File: s.File,
		Name: s.Name,
		Line: s.Selection.Line,
		Char: s.Selection.Character,
	}
}

// ReferenceLocation is one place in the workspace where a symbol's name
// resolves back to its definition, as reported by the reference oracle.
// The engine only reads, filters and classifies these.
type ReferenceLocation struct {
	File  FileID `json:"file"`
	Range Range  `json:"range"`
}

// ReferenceClass tags a reference as an import-style mention or a genuine
// usage. It is derived from line text each time references are fetched and
// never stored independently.
type ReferenceClass uint8

const (
	ClassUsage ReferenceClass = iota
	ClassImport
)

func (c ReferenceClass) String() string {
	if c == ClassImport {
		return "import"
	}
	return "usage"
}

// ClassifiedReference pairs a raw reference location with its derived class.
type ClassifiedReference struct {
	Location ReferenceLocation `json:"location"`
	Class    ReferenceClass    `json:"class"`
}

// UnusedSymbolInfo describes a symbol whose effective reference count is zero.
type UnusedSymbolInfo struct {
	Symbol SymbolDescriptor `json:"symbol"`
}

// ExcludePredicate reports whether a path is excluded from accounting. It is
// applied identically to files scanned and references counted. Supplied by
// configuration; treated as an opaque, stateless collaborator.
type ExcludePredicate func(path string) bool

// NeverExclude is the predicate that excludes nothing.
func NeverExclude(string) bool { return false }
