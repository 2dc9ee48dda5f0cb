package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/prismkeys/prism/internal/config"
	"github.com/prismkeys/prism/internal/model"
	"github.com/prismkeys/prism/internal/service"
	"github.com/prismkeys/prism/internal/store"
)

const shortCode = "PrismKey - AAAA - BBBB - CCCC - DDDD"

func newTestServer(t *testing.T) (*MCPServer, *store.Store) {
	t.Helper()
	s, err := store.NewStore("")
	if err != nil {
		t.Fatalf("store.NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewMCPServer(Deps{
		Store:     s,
		Validator: service.NewValidator(s, nil, logger),
		Stats:     service.NewStatsService(s, nil, time.UTC),
		Keys:      config.Default().Keys,
	}, "test", logger)
	return srv, s
}

func seedKey(t *testing.T, s *store.Store, code, owner string, ttl time.Duration) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	if err := s.CreateKey(context.Background(), &model.Key{
		Code: code, Tier: model.TierShort, OwnerID: owner, OwnerLabel: "user-" + owner,
		CreatedAt: now, ExpiresAt: now.Add(ttl), Active: true,
	}); err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
}

func call(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (*mcp.CallToolResult, string) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	if err != nil {
		t.Fatalf("tool returned protocol error: %v", err)
	}
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", res.Content[0])
	}
	return res, text.Text
}

func TestValidateKeyTool(t *testing.T) {
	srv, s := newTestServer(t)
	seedKey(t, s, shortCode, "100", time.Hour)

	tests := []struct {
		name   string
		args   map[string]any
		valid  bool
		reason string
	}{
		{"owner", map[string]any{"code": shortCode, "caller_id": "100"}, true, service.MessageValid},
		{"no caller skips ownership", map[string]any{"code": shortCode}, true, service.MessageValid},
		{"other caller", map[string]any{"code": shortCode, "caller_id": "555"}, false, service.ReasonNotOwner},
		{"unknown", map[string]any{"code": "PrismKey - NONE - NONE - NONE - NONE"}, false, service.ReasonNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, text := call(t, srv.handleValidateKey, tt.args)
			if res.IsError {
				t.Fatalf("unexpected tool error: %s", text)
			}
			var out validateKeyResult
			if err := json.Unmarshal([]byte(text), &out); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if out.Valid != tt.valid || out.Reason != tt.reason {
				t.Errorf("got %+v, want valid=%v reason=%q", out, tt.valid, tt.reason)
			}
			if out.Valid && out.ExpiresAt == nil {
				t.Error("valid result should carry expiresAt")
			}
		})
	}
}

func TestValidateKeyToolRequiresCode(t *testing.T) {
	srv, _ := newTestServer(t)
	res, text := call(t, srv.handleValidateKey, map[string]any{})
	if !res.IsError {
		t.Errorf("expected tool error, got %s", text)
	}
}

func TestStatsTool(t *testing.T) {
	srv, s := newTestServer(t)
	seedKey(t, s, shortCode, "100", time.Hour)

	_, text := call(t, srv.handleStats, nil)
	var stats model.Stats
	if err := json.Unmarshal([]byte(text), &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats.TotalKeys != 1 || stats.ActiveKeys != 1 || stats.SuccessRate != 100 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRecentKeysTool(t *testing.T) {
	srv, s := newTestServer(t)
	seedKey(t, s, shortCode, "100", time.Hour)
	seedKey(t, s, "PrismKey - EEEE - FFFF - GGGG - HHHH", "101", time.Hour)

	_, text := call(t, srv.handleRecentKeys, map[string]any{"limit": 1})
	var keys []model.Key
	if err := json.Unmarshal([]byte(text), &keys); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("got %d keys, want 1", len(keys))
	}
}

func TestRecentLogsToolFiltersLevel(t *testing.T) {
	srv, s := newTestServer(t)
	ctx := context.Background()
	for _, lvl := range []model.Level{model.LevelInfo, model.LevelWarn, model.LevelInfo} {
		if err := s.AppendLog(ctx, &model.LogEntry{Level: lvl, Message: string(lvl)}); err != nil {
			t.Fatalf("AppendLog: %v", err)
		}
	}

	_, text := call(t, srv.handleRecentLogs, map[string]any{"level": "INFO"})
	var logs []model.LogEntry
	if err := json.Unmarshal([]byte(text), &logs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(logs) != 2 {
		t.Errorf("got %d INFO entries, want 2", len(logs))
	}
}

func TestListCooldownsToolEmpty(t *testing.T) {
	srv, _ := newTestServer(t)
	_, text := call(t, srv.handleListCooldowns, nil)
	if text != "[]" {
		t.Errorf("expected empty array, got %s", text)
	}
}

func TestTiersResource(t *testing.T) {
	srv, _ := newTestServer(t)

	contents, err := srv.handleTiersResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatalf("handleTiersResource: %v", err)
	}
	text := contents[0].(mcp.TextResourceContents).Text

	var tiers []tierInfo
	if err := json.Unmarshal([]byte(text), &tiers); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(tiers) != 4 {
		t.Fatalf("got %d tiers, want 4", len(tiers))
	}
	if tiers[0].Tier != model.TierShort || tiers[0].Prefix != "PrismKey" || tiers[0].TTL != "24h0m0s" {
		t.Errorf("short tier = %+v", tiers[0])
	}
	if tiers[0].Restricted || !tiers[1].Restricted || !tiers[3].Transferable {
		t.Errorf("unexpected tier flags: %+v", tiers)
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name     string
		val      int
		min      int
		max      int
		expected int
	}{
		{"value in range", 5, 1, 10, 5},
		{"value below min", -3, 1, 10, 1},
		{"value above max", 15, 1, 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clamp(tt.val, tt.min, tt.max); got != tt.expected {
				t.Errorf("clamp(%d, %d, %d) = %d, want %d", tt.val, tt.min, tt.max, got, tt.expected)
			}
		})
	}
}

func TestReadOnlyAnnotation(t *testing.T) {
	ann := readOnlyAnnotation()
	if ann.ReadOnlyHint == nil || !*ann.ReadOnlyHint {
		t.Error("ReadOnlyHint should be true")
	}
}

func TestLimitArg(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want int
	}{
		{"default", nil, 10},
		{"explicit", map[string]any{"limit": 25}, 25},
		{"zero clamps up", map[string]any{"limit": 0}, 1},
		{"huge clamps down", map[string]any{"limit": 10000}, maxListLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req mcp.CallToolRequest
			req.Params.Arguments = tt.args
			if got := limitArg(req, 10); got != tt.want {
				t.Errorf("limitArg = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestValidateKeyToolTrimsCode(t *testing.T) {
	srv, s := newTestServer(t)
	seedKey(t, s, shortCode, "100", time.Hour)

	_, text := call(t, srv.handleValidateKey, map[string]any{"code": "  " + shortCode + "\n"})
	var out validateKeyResult
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Valid {
		t.Errorf("expected valid result, got %+v", out)
	}
}
