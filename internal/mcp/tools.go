package mcp

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/prismkeys/prism/internal/model"
)

const maxListLimit = 500

// registerTools registers the read-only Prism tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	srv.AddTool(
		mcp.NewTool("prism_validate_key",
			mcp.WithDescription(
				"Check whether a key code is currently usable. When caller_id is given, "+
					"24-hour keys are only valid for their owner; month, year and lifetime "+
					"keys are valid for anyone. Never changes any state.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("code",
				mcp.Required(),
				mcp.Description("Full key code, e.g. \"PrismKey - ABCD - EFGH - IJKL - MNOP\""),
			),
			mcp.WithString("caller_id",
				mcp.Description("Discord user id presenting the key. Omit to skip the ownership check."),
			),
		),
		s.handleValidateKey,
	)

	srv.AddTool(
		mcp.NewTool("prism_stats",
			mcp.WithDescription(
				"Summary of issued keys: total, currently usable, distinct users issued a key "+
					"today and the usable percentage.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleStats,
	)

	srv.AddTool(
		mcp.NewTool("prism_recent_keys",
			mcp.WithDescription("Most recently issued keys, newest first."),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of keys to return (default 10, max 500)"),
			),
		),
		s.handleRecentKeys,
	)

	srv.AddTool(
		mcp.NewTool("prism_recent_logs",
			mcp.WithDescription("Recent audit log entries, newest first."),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of entries to return (default 50, max 500)"),
			),
			mcp.WithString("level",
				mcp.Description("Only return entries of this level"),
				mcp.Enum(string(model.LevelInfo), string(model.LevelWarn), string(model.LevelError)),
			),
		),
		s.handleRecentLogs,
	)

	srv.AddTool(
		mcp.NewTool("prism_list_cooldowns",
			mcp.WithDescription(
				"Per-user cooldown markers: when each user was last issued a key and when the "+
					"advisory cooldown ends.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListCooldowns,
	)
}

type validateKeyResult struct {
	Valid      bool       `json:"valid"`
	Reason     string     `json:"reason"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	OwnerLabel string     `json:"discordUsername,omitempty"`
}

func (s *MCPServer) handleValidateKey(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	code, err := codeArg(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	caller := request.GetString("caller_id", "")

	res, err := s.deps.Validator.Validate(ctx, code, caller)
	if err != nil {
		return failure("Validation failed", err)
	}

	out := validateKeyResult{Valid: res.Valid, Reason: res.Reason, OwnerLabel: res.OwnerLabel}
	if res.Valid {
		expires := res.ExpiresAt
		out.ExpiresAt = &expires
	}
	return jsonResult(out)
}

func (s *MCPServer) handleStats(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	stats, err := s.deps.Stats.Stats(ctx)
	if err != nil {
		return failure("Failed to compute stats", err)
	}
	return jsonResult(stats)
}

func (s *MCPServer) handleRecentKeys(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	limit := limitArg(request, 10)
	keys, err := s.deps.Store.ListRecentKeys(ctx, limit)
	if err != nil {
		return failure("Failed to list keys", err)
	}
	if keys == nil {
		keys = []model.Key{}
	}
	return jsonResult(keys)
}

func (s *MCPServer) handleRecentLogs(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	limit := limitArg(request, 50)
	level := model.Level(request.GetString("level", ""))

	logs, err := s.deps.Store.ListRecentLogs(ctx, limit)
	if err != nil {
		return failure("Failed to list logs", err)
	}

	out := make([]model.LogEntry, 0, len(logs))
	for _, e := range logs {
		if level == "" || e.Level == level {
			out = append(out, e)
		}
	}
	return jsonResult(out)
}

func (s *MCPServer) handleListCooldowns(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	cooldowns, err := s.deps.Store.ListCooldowns(ctx)
	if err != nil {
		return failure("Failed to list cooldowns", err)
	}
	if cooldowns == nil {
		cooldowns = []model.Cooldown{}
	}
	return jsonResult(cooldowns)
}
