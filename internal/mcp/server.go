// Package mcp exposes the accounting engine to editors and AI assistants
// over the Model Context Protocol (stdio transport).
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/reflens/internal/debug"
	"github.com/standardbeagle/reflens/internal/engine"
	"github.com/standardbeagle/reflens/internal/index"
	"github.com/standardbeagle/reflens/internal/types"
	"github.com/standardbeagle/reflens/internal/version"
)

// Server wraps the engine behind MCP tools.
type Server struct {
	server *mcp.Server
	eng    *engine.Engine
}

// NewServer creates the MCP server and registers its tools. The engine's
// index should be rebuilt before or shortly after Start.
func NewServer(eng *engine.Engine) *Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "reflens-mcp-server",
		Version: version.Version,
	}, nil)

	s := &Server{
		server: server,
		eng:    eng,
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "unused_symbols",
		Description: "List every function, method and class in the workspace whose effective reference count is zero.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"limit": {
					Type:        "integer",
					Description: "Maximum number of symbols to return (default: all)",
				},
			},
		},
	}, s.handleUnusedSymbols)

	s.server.AddTool(&mcp.Tool{
		Name:        "symbol_usage",
		Description: "Report per-symbol usage counts for one file, with import references separated from genuine usage.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"file": {
					Type:        "string",
					Description: "Path of the file to account",
				},
			},
			Required: []string{"file"},
		},
	}, s.handleSymbolUsage)

	s.server.AddTool(&mcp.Tool{
		Name:        "reindex_file",
		Description: "Re-analyze one file and fold its symbols back into the workspace index.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"file": {
					Type:        "string",
					Description: "Path of the file to re-analyze",
				},
			},
			Required: []string{"file"},
		},
	}, s.handleReindexFile)

	s.server.AddTool(&mcp.Tool{
		Name:        "set_include_imports",
		Description: "Toggle whether import-style references count as usage. Recomputes counts without a full rebuild.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"value": {
					Type:        "boolean",
					Description: "true to count import references as usage",
				},
			},
			Required: []string{"value"},
		},
	}, s.handleSetIncludeImports)
}

type unusedParams struct {
	Limit int `json:"limit"`
}

func (s *Server) handleUnusedSymbols(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params unusedParams
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
			return createErrorResponse("unused_symbols", fmt.Errorf("invalid parameters: %w", err))
		}
	}

	unused := s.eng.UnusedSymbols(ctx, index.NopReporter{})
	sort.Slice(unused, func(i, j int) bool {
		a, b := unused[i].Symbol, unused[j].Symbol
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Selection.Before(b.Selection)
	})
	if params.Limit > 0 && len(unused) > params.Limit {
		unused = unused[:params.Limit]
	}

	items := make([]map[string]interface{}, 0, len(unused))
	for _, info := range unused {
		items = append(items, map[string]interface{}{
			"name": info.Symbol.Name,
			"kind": info.Symbol.Kind.String(),
			"file": info.Symbol.File,
			"line": info.Symbol.Selection.Line + 1,
		})
	}

	return createJSONResponse(map[string]interface{}{
		"total_indexed": s.eng.Index().SymbolCount(),
		"unused_count":  len(items),
		"unused":        items,
	})
}

type fileParams struct {
	File string `json:"file"`
}

func (s *Server) handleSymbolUsage(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params fileParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil || params.File == "" {
		return createErrorResponse("symbol_usage", fmt.Errorf("invalid parameters: a file path is required"))
	}

	accounts, err := s.eng.FileAccounts(ctx, types.FileID(params.File))
	if err != nil {
		return createErrorResponse("symbol_usage", err)
	}

	items := make([]map[string]interface{}, 0, len(accounts))
	for _, account := range accounts {
		imports := 0
		for _, ref := range account.Classified {
			if ref.Class == types.ClassImport {
				imports++
			}
		}
		items = append(items, map[string]interface{}{
			"name":            account.Symbol.Name,
			"kind":            account.Symbol.Kind.String(),
			"line":            account.Symbol.Selection.Line + 1,
			"effective_count": account.Count,
			"raw_references":  len(account.Raw),
			"import_refs":     imports,
		})
	}

	debug.LogMCP("symbol_usage for %s: %d symbols\n", params.File, len(items))
	return createJSONResponse(map[string]interface{}{
		"file":    params.File,
		"symbols": items,
	})
}

func (s *Server) handleReindexFile(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params fileParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil || params.File == "" {
		return createErrorResponse("reindex_file", fmt.Errorf("invalid parameters: a file path is required"))
	}

	file := types.FileID(params.File)
	if err := s.eng.Index().UpdateFile(ctx, file); err != nil {
		return createErrorResponse("reindex_file", err)
	}

	return createJSONResponse(map[string]interface{}{
		"file":    params.File,
		"symbols": len(s.eng.Index().SymbolsForFile(file)),
	})
}

type includeImportsParams struct {
	Value bool `json:"value"`
}

func (s *Server) handleSetIncludeImports(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params includeImportsParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("set_include_imports", fmt.Errorf("invalid parameters: %w", err))
	}

	s.eng.SetIncludeImports(params.Value)
	return createJSONResponse(map[string]interface{}{
		"include_imports": params.Value,
	})
}

// Start runs the server over stdio until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	debug.LogMCP("starting MCP server over stdio\n")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
