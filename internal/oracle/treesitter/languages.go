package treesitter

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// langSpec maps one grammar's node types onto the engine's symbol kinds.
type langSpec struct {
	language *sitter.Language

	// functionNodes define free functions wherever they appear.
	functionNodes map[string]bool
	// methodNodes define methods wherever they appear (e.g. Go receivers).
	methodNodes map[string]bool
	// classNodes define classes; their direct bodies are searched for
	// classMethodNodes, which become Method children.
	classNodes       map[string]bool
	classMethodNodes map[string]bool

	// identifierNodes are the node types a reference scan matches on.
	identifierNodes map[string]bool
}

var goSpec = &langSpec{
	language:      golang.GetLanguage(),
	functionNodes: set("function_declaration"),
	methodNodes:   set("method_declaration"),
	classNodes:    set("type_spec"),
	identifierNodes: set(
		"identifier", "type_identifier", "field_identifier", "package_identifier",
	),
}

var jsSpec = &langSpec{
	language:         javascript.GetLanguage(),
	functionNodes:    set("function_declaration", "generator_function_declaration"),
	classNodes:       set("class_declaration"),
	classMethodNodes: set("method_definition"),
	identifierNodes: set(
		"identifier", "property_identifier", "shorthand_property_identifier",
	),
}

var tsSpec = &langSpec{
	language:         typescript.GetLanguage(),
	functionNodes:    set("function_declaration", "generator_function_declaration"),
	classNodes:       set("class_declaration"),
	classMethodNodes: set("method_definition"),
	identifierNodes: set(
		"identifier", "property_identifier", "shorthand_property_identifier",
		"type_identifier",
	),
}

var tsxSpec = &langSpec{
	language:         tsx.GetLanguage(),
	functionNodes:    tsSpec.functionNodes,
	classNodes:       tsSpec.classNodes,
	classMethodNodes: tsSpec.classMethodNodes,
	identifierNodes:  tsSpec.identifierNodes,
}

var pySpec = &langSpec{
	language:         python.GetLanguage(),
	functionNodes:    set("function_definition"),
	classNodes:       set("class_definition"),
	classMethodNodes: set("function_definition"),
	identifierNodes:  set("identifier"),
}

var specsByExt = map[string]*langSpec{
	".go":  goSpec,
	".js":  jsSpec,
	".jsx": jsSpec,
	".mjs": jsSpec,
	".ts":  tsSpec,
	".tsx": tsxSpec,
	".py":  pySpec,
}

// specForPath returns the language spec for a file path, or nil when the
// language is unsupported.
func specForPath(path string) *langSpec {
	return specsByExt[strings.ToLower(filepath.Ext(path))]
}

// SupportedExtensions lists the extensions the built-in oracle understands.
func SupportedExtensions() []string {
	out := make([]string, 0, len(specsByExt))
	for ext := range specsByExt {
		out = append(out, ext)
	}
	return out
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}
