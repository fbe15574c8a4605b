package accounting

import (
	"strings"

	"github.com/standardbeagle/reflens/internal/types"
)

// EligibleSymbols narrows the oracle's raw symbol tree to the definitions
// that participate in reference accounting.
//
// Rules:
//   - only functions, methods and classes are eligible
//   - names beginning with "_" are excluded (private by convention)
//   - direct Method children of a Class are pulled up as additional
//     top-level symbols; other children are ignored and nested classes are
//     not recursed into (matches the oracle's one-level symbol tree shape)
//   - two symbols at the same selection position collapse to one,
//     first-seen wins; some oracles report a class and one of its methods
//     at the same location
func EligibleSymbols(raw []types.SymbolDescriptor) []types.SymbolDescriptor {
	var out []types.SymbolDescriptor
	seen := make(map[types.Position]bool, len(raw))

	add := func(s types.SymbolDescriptor) {
		if !s.Kind.Countable() {
			return
		}
		if strings.HasPrefix(s.Name, "_") {
			return
		}
		if seen[s.Selection] {
			return
		}
		seen[s.Selection] = true
		s.Children = nil
		out = append(out, s)
	}

	for _, s := range raw {
		add(s)
		if s.Kind == types.KindClass {
			for _, child := range s.Children {
				if child.Kind == types.KindMethod {
					add(child)
				}
			}
		}
	}

	return out
}
