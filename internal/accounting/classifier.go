package accounting

import (
	"regexp"
	"strings"

	"github.com/standardbeagle/reflens/internal/oracle"
	"github.com/standardbeagle/reflens/internal/types"
)

// destructuredImportRe matches "import { a, b } from" style lines.
var destructuredImportRe = regexp.MustCompile(`import\s*\{[^}]*\}\s*from`)

// Classifier decides whether a single reference location is an import-style
// mention or a genuine usage, by inspecting the text of the line it points
// to. It is line-local and language-agnostic; it never parses an AST.
//
// Known limitation: a line that merely looks like an import statement is
// misclassified as one.
type Classifier struct {
	reader oracle.FileReader
}

// NewClassifier creates a classifier backed by the given line reader.
func NewClassifier(reader oracle.FileReader) *Classifier {
	return &Classifier{reader: reader}
}

// Classify tags one reference. A failed line read classifies the reference
// as Usage: fail open, never silently drop a real usage.
func (c *Classifier) Classify(ref types.ReferenceLocation) types.ReferenceClass {
	line, err := c.reader.Line(ref.File, ref.Range.Start.Line)
	if err != nil {
		return types.ClassUsage
	}
	return ClassifyLine(line)
}

// ClassifyAll tags a batch of references, preserving order.
func (c *Classifier) ClassifyAll(refs []types.ReferenceLocation) []types.ClassifiedReference {
	out := make([]types.ClassifiedReference, 0, len(refs))
	for _, ref := range refs {
		out = append(out, types.ClassifiedReference{
			Location: ref,
			Class:    c.Classify(ref),
		})
	}
	return out
}

// ClassifyLine applies the import heuristics, in priority order, to the
// trimmed text of one line.
func ClassifyLine(line string) types.ReferenceClass {
	trimmed := strings.TrimSpace(line)

	switch {
	case strings.HasPrefix(trimmed, "import "):
		return types.ClassImport
	case strings.Contains(trimmed, " from "):
		return types.ClassImport
	case strings.Contains(trimmed, "require("):
		return types.ClassImport
	case destructuredImportRe.MatchString(trimmed):
		return types.ClassImport
	case strings.HasPrefix(trimmed, "from "):
		return types.ClassImport
	case strings.HasPrefix(trimmed, "using "):
		return types.ClassImport
	default:
		return types.ClassUsage
	}
}
