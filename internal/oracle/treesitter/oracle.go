// Package treesitter provides a built-in symbol/reference oracle backed by
// tree-sitter grammars, so the engine is usable without an external
// language server. Reference resolution is name-based: every identifier in
// the workspace whose text matches the symbol's name is reported, mirroring
// the textual model the accounting core expects from any oracle.
package treesitter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/standardbeagle/reflens/internal/debug"
	"github.com/standardbeagle/reflens/internal/types"
)

// Oracle implements oracle.Oracle over the workspace file list.
type Oracle struct {
	files func() ([]types.FileID, error)
}

// New creates an oracle. files supplies the current workspace file set for
// reference scans; it is called per lookup so the list stays fresh.
func New(files func() ([]types.FileID, error)) *Oracle {
	return &Oracle{files: files}
}

// DefinitionSymbols parses the file and returns its definition symbols.
// Unsupported languages yield an empty result, not an error.
func (o *Oracle) DefinitionSymbols(ctx context.Context, file types.FileID) ([]types.SymbolDescriptor, error) {
	spec := specForPath(string(file))
	if spec == nil {
		return nil, nil
	}

	src, err := os.ReadFile(string(file))
	if err != nil {
		return nil, err
	}

	root, tree, err := parse(ctx, spec, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var out []types.SymbolDescriptor
	var visit func(n *sitter.Node, skipDirect bool)
	visit = func(n *sitter.Node, skipDirect bool) {
		nodeType := n.Type()

		switch {
		case spec.classNodes[nodeType]:
			if sym, ok := o.describe(n, types.KindClass, spec, src, file); ok {
				sym.Children = o.classMethods(n, spec, src, file)
				out = append(out, sym)
			}
			// Recurse past the class body with direct definitions skipped;
			// they are already attached as children.
			body := n.ChildByFieldName("body")
			for i := 0; i < int(n.NamedChildCount()); i++ {
				child := n.NamedChild(i)
				if body != nil && child.StartByte() == body.StartByte() && child.EndByte() == body.EndByte() {
					for j := 0; j < int(body.NamedChildCount()); j++ {
						visit(body.NamedChild(j), true)
					}
					continue
				}
				visit(child, false)
			}
			return

		case spec.methodNodes[nodeType]:
			if !skipDirect {
				if sym, ok := o.describe(n, types.KindMethod, spec, src, file); ok {
					out = append(out, sym)
				}
			}

		case spec.functionNodes[nodeType]:
			if !skipDirect {
				if sym, ok := o.describe(n, types.KindFunction, spec, src, file); ok {
					out = append(out, sym)
				}
			}

		case nodeType == "variable_declarator":
			// const f = () => {} and friends count as function definitions.
			if value := n.ChildByFieldName("value"); value != nil {
				vt := value.Type()
				if vt == "arrow_function" || vt == "function_expression" || vt == "function" {
					if sym, ok := o.describe(n, types.KindFunction, spec, src, file); ok {
						out = append(out, sym)
					}
				}
			}
		}

		for i := 0; i < int(n.NamedChildCount()); i++ {
			visit(n.NamedChild(i), false)
		}
	}
	visit(root, false)

	debug.LogOracle("%s: %d definition symbols\n", file, len(out))
	return out, nil
}

// References returns every identifier in the workspace whose text matches
// the name of the symbol defined at pos.
func (o *Oracle) References(ctx context.Context, file types.FileID, pos types.Position, includeDeclaration bool) ([]types.ReferenceLocation, error) {
	name, err := o.nameAt(ctx, file, pos)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("no identifier at %s %s", file, pos)
	}

	files, err := o.files()
	if err != nil {
		return nil, err
	}

	needle := []byte(name)
	var refs []types.ReferenceLocation
	for _, candidate := range files {
		if err := ctx.Err(); err != nil {
			return refs, err
		}

		spec := specForPath(string(candidate))
		if spec == nil {
			continue
		}
		src, err := os.ReadFile(string(candidate))
		if err != nil || !bytes.Contains(src, needle) {
			continue
		}

		root, tree, err := parse(ctx, spec, src)
		if err != nil {
			continue
		}
		collectIdentifiers(root, spec, src, name, func(r types.Range) {
			if !includeDeclaration && candidate == file && r.Start == pos {
				return
			}
			refs = append(refs, types.ReferenceLocation{File: candidate, Range: r})
		})
		tree.Close()
	}

	debug.LogOracle("%s at %s: %d references for %q\n", file, pos, len(refs), name)
	return refs, nil
}

// nameAt finds the identifier text at a position in a file.
func (o *Oracle) nameAt(ctx context.Context, file types.FileID, pos types.Position) (string, error) {
	spec := specForPath(string(file))
	if spec == nil {
		return "", fmt.Errorf("unsupported language: %s", file)
	}
	src, err := os.ReadFile(string(file))
	if err != nil {
		return "", err
	}

	root, tree, err := parse(ctx, spec, src)
	if err != nil {
		return "", err
	}
	defer tree.Close()

	point := sitter.Point{Row: uint32(pos.Line), Column: uint32(pos.Character)}
	node := root.NamedDescendantForPointRange(point, point)
	for node != nil && !spec.identifierNodes[node.Type()] {
		node = node.Parent()
	}
	if node == nil {
		return "", nil
	}
	return node.Content(src), nil
}

func (o *Oracle) describe(n *sitter.Node, kind types.SymbolKind, spec *langSpec, src []byte, file types.FileID) (types.SymbolDescriptor, bool) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return types.SymbolDescriptor{}, false
	}

	name := nameNode.Content(src)
	if name == "" {
		return types.SymbolDescriptor{}, false
	}

	// Go type definitions only count as classes for structs and interfaces.
	if spec == goSpec && kind == types.KindClass {
		typeNode := n.ChildByFieldName("type")
		if typeNode == nil {
			return types.SymbolDescriptor{}, false
		}
		tt := typeNode.Type()
		if tt != "struct_type" && tt != "interface_type" {
			return types.SymbolDescriptor{}, false
		}
	}

	return types.SymbolDescriptor{
		Name:      name,
		Kind:      kind,
		Detail:    exportDetail(n, spec, name),
		File:      file,
		Range:     nodeRange(n),
		Selection: pointToPosition(nameNode.StartPoint()),
	}, true
}

// classMethods pulls the direct method definitions out of a class body.
func (o *Oracle) classMethods(class *sitter.Node, spec *langSpec, src []byte, file types.FileID) []types.SymbolDescriptor {
	if len(spec.classMethodNodes) == 0 {
		return nil
	}
	body := class.ChildByFieldName("body")
	if body == nil {
		return nil
	}

	var methods []types.SymbolDescriptor
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		if !spec.classMethodNodes[child.Type()] {
			continue
		}
		if sym, ok := o.describe(child, types.KindMethod, spec, src, file); ok {
			methods = append(methods, sym)
		}
	}
	return methods
}

func collectIdentifiers(n *sitter.Node, spec *langSpec, src []byte, name string, emit func(types.Range)) {
	if spec.identifierNodes[n.Type()] && n.Content(src) == name {
		emit(nodeRange(n))
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		collectIdentifiers(n.NamedChild(i), spec, src, name, emit)
	}
}

// exportDetail produces the oracle detail text carrying export markers.
func exportDetail(n *sitter.Node, spec *langSpec, name string) string {
	if spec == goSpec {
		r, _ := utf8.DecodeRuneInString(name)
		if unicode.IsUpper(r) {
			return "exported"
		}
		return ""
	}

	for p, depth := n.Parent(), 0; p != nil && depth < 3; p, depth = p.Parent(), depth+1 {
		if p.Type() == "export_statement" {
			return "export"
		}
	}
	return ""
}

func parse(ctx context.Context, spec *langSpec, src []byte) (*sitter.Node, *sitter.Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(spec.language)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, nil, err
	}
	return tree.RootNode(), tree, nil
}

func nodeRange(n *sitter.Node) types.Range {
	return types.Range{
		Start: pointToPosition(n.StartPoint()),
		End:   pointToPosition(n.EndPoint()),
	}
}

func pointToPosition(p sitter.Point) types.Position {
	return types.Position{Line: int(p.Row), Character: int(p.Column)}
}
