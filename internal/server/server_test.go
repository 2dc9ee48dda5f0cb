package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prismkeys/prism/internal/model"
	"github.com/prismkeys/prism/internal/server/middleware"
	"github.com/prismkeys/prism/internal/service"
	"github.com/prismkeys/prism/internal/store"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

const (
	testSessionSecret = "test-secret-for-session-integration-tests"
	vipID             = "900"
	userID            = "100"
)

// testEnv holds all the shared state for integration tests.
type testEnv struct {
	server  *Server
	store   *store.Store
	authSvc *service.AuthService
}

type onlineBot struct{}

func (onlineBot) Online() bool   { return true }
func (onlineBot) Uptime() string { return "0d 1h 5m" }

// newTestEnv creates a fresh test environment with an in-memory store and a
// fully wired Server.
func newTestEnv(t *testing.T, tweak ...func(*Config)) *testEnv {
	t.Helper()

	s, err := store.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("store.NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authSvc := service.NewAuthService(s, service.AuthOptions{
		VIPs:          []string{vipID},
		SessionSecret: testSessionSecret,
	})

	cfg := DefaultConfig()
	for _, f := range tweak {
		f(&cfg)
	}
	srv := New(cfg, Deps{
		Store:     s,
		Auth:      authSvc,
		Validator: service.NewValidator(s, nil, logger),
		Stats:     service.NewStatsService(s, nil, time.UTC),
		Status:    onlineBot{},
	}, logger)

	return &testEnv{server: srv, store: s, authSvc: authSvc}
}

// session returns a session cookie for userID.
func (e *testEnv) session(t *testing.T, id string) *http.Cookie {
	t.Helper()
	token, err := e.authSvc.IssueSession(id, "user-"+id)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	return &http.Cookie{Name: middleware.SessionCookie, Value: token}
}

func (e *testEnv) do(t *testing.T, method, path string, cookie *http.Cookie, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) seedKey(t *testing.T, code, owner string, ttl time.Duration) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	if err := e.store.CreateKey(context.Background(), &model.Key{
		Code: code, Tier: model.TierShort, OwnerID: owner, OwnerLabel: "user-" + owner,
		CreatedAt: now, ExpiresAt: now.Add(ttl), Active: true,
	}); err != nil {
		t.Fatalf("seedKey: %v", err)
	}
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Operational endpoints
// ---------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, "GET", "/healthz", nil)
	assertStatus(t, rr, http.StatusOK)
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestReadyz(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, "GET", "/readyz", nil)
	assertStatus(t, rr, http.StatusOK)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeJSON(t, rr, &body)
	if body.Status != "ok" || body.Checks["store"] != "ok" {
		t.Errorf("readyz = %+v", body)
	}

	e.store.Close()
	rr = e.do(t, "GET", "/readyz", nil)
	assertStatus(t, rr, http.StatusServiceUnavailable)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	// Drive one validation so the counter vec has a child to export.
	e.do(t, "GET", "/api/keys/validate/"+url.PathEscape("PrismKey - X - X - X - X")+"/1", nil)

	rr := e.do(t, "GET", "/metrics", nil)
	assertStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), "prism_validations_total") {
		t.Error("expected prism_validations_total in metrics output")
	}
}

func TestOpenAPIEndpoint(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, "GET", "/openapi.json", nil)
	assertStatus(t, rr, http.StatusOK)
	var doc map[string]interface{}
	decodeJSON(t, rr, &doc)
	if doc["openapi"] != "3.1.0" {
		t.Errorf("openapi = %v", doc["openapi"])
	}
}

func TestBotStatusIsPublic(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, "GET", "/api/bot/status", nil)
	assertStatus(t, rr, http.StatusOK)
	var status model.BotStatus
	decodeJSON(t, rr, &status)
	if !status.Online || status.Uptime != "0d 1h 5m" {
		t.Errorf("status = %+v", status)
	}
}

// ---------------------------------------------------------------------------
// Dashboard auth
// ---------------------------------------------------------------------------

func TestDashboardRequiresSession(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{"/api/stats", "/api/keys/recent", "/api/cooldowns", "/api/logs", "/api/auth/user"} {
		rr := e.do(t, "GET", path, nil)
		assertStatus(t, rr, http.StatusUnauthorized)
	}
}

func TestDashboardRejectsNonVIP(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, "GET", "/api/stats", e.session(t, userID))
	assertStatus(t, rr, http.StatusForbidden)

	var resp model.ErrorResponse
	decodeJSON(t, rr, &resp)
	if resp.Message != "Access denied. VIP users only." {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestDashboardAdmitsVIP(t *testing.T) {
	e := newTestEnv(t)
	e.seedKey(t, "PrismKey - AAAA - BBBB - CCCC - DDDD", userID, time.Hour)
	cookie := e.session(t, vipID)

	rr := e.do(t, "GET", "/api/stats", cookie)
	assertStatus(t, rr, http.StatusOK)
	var stats model.Stats
	decodeJSON(t, rr, &stats)
	if stats.TotalKeys != 1 || stats.ActiveKeys != 1 {
		t.Errorf("stats = %+v", stats)
	}

	rr = e.do(t, "GET", "/api/keys/recent", cookie)
	assertStatus(t, rr, http.StatusOK)
	var keys []model.Key
	decodeJSON(t, rr, &keys)
	if len(keys) != 1 {
		t.Errorf("got %d keys", len(keys))
	}
}

func TestDashboardBearerToken(t *testing.T) {
	e := newTestEnv(t)
	c := e.session(t, vipID)
	rr := e.do(t, "GET", "/api/logs", nil, "Authorization", "Bearer "+c.Value)
	assertStatus(t, rr, http.StatusOK)
}

func TestLoginWithoutOAuth(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, "GET", "/api/login", nil)
	assertStatus(t, rr, http.StatusInternalServerError)
}

// ---------------------------------------------------------------------------
// Validation routes
// ---------------------------------------------------------------------------

func TestValidateRouteIsPublic(t *testing.T) {
	e := newTestEnv(t)
	code := "PrismKey - AAAA - BBBB - CCCC - DDDD"
	e.seedKey(t, code, userID, time.Hour)

	rr := e.do(t, "GET", "/api/keys/validate/"+url.PathEscape(code)+"/"+userID, nil)
	assertStatus(t, rr, http.StatusOK)
	var resp model.ValidationResponse
	decodeJSON(t, rr, &resp)
	if !resp.Valid {
		t.Errorf("expected valid, got %+v", resp)
	}
}

func TestValidateRouteRateLimited(t *testing.T) {
	e := newTestEnv(t, func(c *Config) { c.RateLimit = 3 })
	path := "/api/keys/validate/" + url.PathEscape("PrismKey - NONE - NONE - NONE - NONE")

	var last int
	for i := 0; i < 4; i++ {
		last = e.do(t, "GET", path, nil).Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("4th request status = %d, want 429", last)
	}

	// Dashboard routes are not behind the limiter.
	rr := e.do(t, "GET", "/api/bot/status", nil)
	assertStatus(t, rr, http.StatusOK)
}

func TestCORSPreflight(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, "OPTIONS", "/api/stats", nil,
		"Origin", "http://dashboard.example",
		"Access-Control-Request-Method", "GET",
	)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Errorf("expected Access-Control-Allow-Origin, headers = %v", rr.Header())
	}
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func TestListenAndServeStopsOnCancel(t *testing.T) {
	e := newTestEnv(t, func(c *Config) {
		c.Host = "127.0.0.1"
		c.Port = 0
		c.ShutdownTimeout = time.Second
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.server.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
