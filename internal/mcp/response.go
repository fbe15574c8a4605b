package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// createJSONResponse creates a standardized JSON response for MCP tools
func createJSONResponse(data interface{}) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(content)},
		},
	}, nil
}

// createErrorResponse reports a tool failure without breaking the session
func createErrorResponse(operation string, err error) (*mcp.CallToolResult, error) {
	return createJSONResponse(map[string]interface{}{
		"error":     err.Error(),
		"operation": operation,
	})
}
