package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/prismkeys/prism/internal/keycode"
	"github.com/prismkeys/prism/internal/model"
)

const tiersURI = "prism://tiers"

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {

	// -------------------------------------------------------------------
	// prism://tiers: key tiers, their code prefix and lifetime
	// -------------------------------------------------------------------
	srv.AddResource(
		mcp.NewResource(
			tiersURI,
			"Key Tiers",
			mcp.WithResourceDescription(
				"Every key tier with its code prefix, configured lifetime, and whether "+
					"issuing it is restricted and whether it is transferable.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleTiersResource,
	)
}

type tierInfo struct {
	Tier         model.Tier `json:"tier"`
	Label        string     `json:"label"`
	Prefix       string     `json:"prefix"`
	TTL          string     `json:"ttl"`
	Restricted   bool       `json:"restricted"`
	Transferable bool       `json:"transferable"`
}

func (s *MCPServer) tiers() []tierInfo {
	out := make([]tierInfo, 0, len(model.Tiers))
	for _, t := range model.Tiers {
		out = append(out, tierInfo{
			Tier:         t,
			Label:        t.Label(),
			Prefix:       keycode.Prefix(t),
			TTL:          s.deps.Keys.TTL(t).String(),
			Restricted:   t.Elevated(),
			Transferable: t.Transferable(),
		})
	}
	return out
}

// handleTiersResource returns the tier table as JSON.
func (s *MCPServer) handleTiersResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	b, err := json.MarshalIndent(s.tiers(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tiers: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      tiersURI,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
