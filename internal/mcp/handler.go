package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// codeArg returns the trimmed key code argument. Codes are compared exactly
// by the store, so only surrounding whitespace is removed.
func codeArg(request mcp.CallToolRequest) (string, error) {
	code, err := request.RequireString("code")
	code = strings.TrimSpace(code)
	if err != nil || code == "" {
		return "", fmt.Errorf(`missing required parameter "code"`)
	}
	return code, nil
}

// limitArg reads the "limit" argument and bounds it to [1, maxListLimit].
func limitArg(request mcp.CallToolRequest, def int) int {
	return clamp(request.GetInt("limit", def), 1, maxListLimit)
}

func clamp(val, lo, hi int) int {
	return min(max(val, lo), hi)
}

// jsonResult renders v as an indented JSON text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// failure reports err to the client as a tool error; the session stays open.
func failure(what string, err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(what + ": " + err.Error()), nil
}
