package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prismkeys/prism/internal/model"
	"github.com/prismkeys/prism/internal/store"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu      sync.Mutex
	entries []model.LogEntry
}

func (n *recordingNotifier) Notify(_ context.Context, e model.LogEntry) {
	n.mu.Lock()
	n.entries = append(n.entries, e)
	n.mu.Unlock()
}

// failingKeys wraps a KeyStore and injects errors.
type failingKeys struct {
	KeyStore
	createErr  error
	listErr    error
	expireCode string
	expireErr  error
}

func (f *failingKeys) CreateKey(ctx context.Context, k *model.Key) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.KeyStore.CreateKey(ctx, k)
}

func (f *failingKeys) ListKeysByOwner(ctx context.Context, owner string) ([]model.Key, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.KeyStore.ListKeysByOwner(ctx, owner)
}

func (f *failingKeys) ListAllKeys(ctx context.Context) ([]model.Key, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.KeyStore.ListAllKeys(ctx)
}

func (f *failingKeys) ExpireKey(ctx context.Context, code string) error {
	if f.expireErr != nil && code == f.expireCode {
		return f.expireErr
	}
	return f.KeyStore.ExpireKey(ctx, code)
}

type testEnv struct {
	store    *store.Store
	clock    *fakeClock
	notifier *recordingNotifier
	audit    *Audit
	issuer   *Issuer
}

const (
	vipID  = "900"
	userID = "100"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s, err := store.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	clock := &fakeClock{t: t0}
	notifier := &recordingNotifier{}
	audit := NewAudit(s, notifier, quietLogger(), WithAuditClock(clock.Now))

	e := &testEnv{store: s, clock: clock, notifier: notifier, audit: audit}
	e.issuer = e.newIssuer(s)
	return e
}

func (e *testEnv) newIssuer(keys KeyStore) *Issuer {
	return NewIssuer(keys, e.store, e.audit, IssuerOptions{
		Issuers: []string{vipID},
		Now:     e.clock.Now,
		Logger:  quietLogger(),
	})
}

func (e *testEnv) logs(t *testing.T) []model.LogEntry {
	t.Helper()
	logs, err := e.store.ListRecentLogs(context.Background(), 1000)
	if err != nil {
		t.Fatalf("ListRecentLogs: %v", err)
	}
	return logs
}

func (e *testEnv) keyCount(t *testing.T) int {
	t.Helper()
	keys, err := e.store.ListAllKeys(context.Background())
	if err != nil {
		t.Fatalf("ListAllKeys: %v", err)
	}
	return len(keys)
}
