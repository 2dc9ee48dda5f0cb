package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prismkeys/prism/internal/model"
)

func (e *testEnv) seedKey(t *testing.T, code, owner string, created time.Time, ttl time.Duration) {
	t.Helper()
	k := &model.Key{
		Code: code, Tier: model.TierShort, OwnerID: owner, OwnerLabel: owner + "-label",
		CreatedAt: created, ExpiresAt: created.Add(ttl), Active: true,
	}
	if err := e.store.CreateKey(context.Background(), k); err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
}

func TestSweepOnceExpiresDueKeys(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	e.seedKey(t, "past", "1", t0.Add(-48*time.Hour), 24*time.Hour)
	e.seedKey(t, "exact", "2", t0.Add(-24*time.Hour), 24*time.Hour) // expiresAt == now
	e.seedKey(t, "future", "3", t0, 24*time.Hour)

	s := NewSweeper(e.store, e.audit, time.Minute, e.clock.Now, quietLogger())
	report, err := s.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if report.Scanned != 3 || report.Expired != 2 || report.Failed != 0 {
		t.Errorf("report = %+v", report)
	}

	for code, wantActive := range map[string]bool{"past": false, "exact": false, "future": true} {
		k, err := e.store.GetKey(ctx, code)
		if err != nil {
			t.Fatalf("GetKey(%s): %v", code, err)
		}
		if k.Active != wantActive {
			t.Errorf("%s active = %v, want %v", code, k.Active, wantActive)
		}
	}

	logs := e.logs(t)
	if len(logs) != 2 {
		t.Fatalf("got %d log entries, want 2", len(logs))
	}
	seen := map[string]bool{}
	for _, l := range logs {
		if l.Level != model.LevelInfo {
			t.Errorf("level = %s, want INFO", l.Level)
		}
		seen[l.Message] = true
	}
	for _, want := range []string{"Key past expired for 1-label", "Key exact expired for 2-label"} {
		if !seen[want] {
			t.Errorf("missing log %q", want)
		}
	}

	// A second pass finds nothing new.
	report, _ = s.SweepOnce(ctx)
	if report.Expired != 0 {
		t.Errorf("second pass expired %d keys", report.Expired)
	}
	if n := len(e.logs(t)); n != 2 {
		t.Errorf("second pass wrote %d entries", n-2)
	}
}

func TestSweepOnceContinuesPastFailures(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		e.seedKey(t, fmt.Sprintf("k%d", i), "1", t0.Add(-48*time.Hour), time.Hour)
	}

	keys := &failingKeys{KeyStore: e.store, expireCode: "k1", expireErr: errors.New("locked")}
	s := NewSweeper(keys, e.audit, 0, e.clock.Now, quietLogger())
	report, err := s.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if report.Expired != 2 || report.Failed != 1 {
		t.Errorf("report = %+v", report)
	}

	for code, wantActive := range map[string]bool{"k0": false, "k1": true, "k2": false} {
		k, _ := e.store.GetKey(ctx, code)
		if k.Active != wantActive {
			t.Errorf("%s active = %v, want %v", code, k.Active, wantActive)
		}
	}

	var errorsLogged int
	for _, l := range e.logs(t) {
		if l.Level == model.LevelError {
			errorsLogged++
		}
	}
	if errorsLogged != 1 {
		t.Errorf("got %d ERROR entries, want 1", errorsLogged)
	}
}

func TestSweepOnceListFailure(t *testing.T) {
	e := newTestEnv(t)
	s := NewSweeper(&failingKeys{KeyStore: e.store, listErr: errors.New("down")}, e.audit, 0, e.clock.Now, quietLogger())
	if _, err := s.SweepOnce(context.Background()); !errors.Is(err, ErrStore) {
		t.Errorf("got %v, want ErrStore", err)
	}
}

func TestSweeperStartShutdown(t *testing.T) {
	e := newTestEnv(t)
	e.seedKey(t, "old", "1", t0.Add(-48*time.Hour), time.Hour)

	s := NewSweeper(e.store, e.audit, 10*time.Millisecond, e.clock.Now, quietLogger())
	s.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for {
		k, err := e.store.GetKey(context.Background(), "old")
		if err != nil {
			t.Fatalf("GetKey: %v", err)
		}
		if !k.Active {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not expire key in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Shutdown()
	s.Shutdown() // safe to call twice
}

func TestNewSweeperDefaults(t *testing.T) {
	s := NewSweeper(nil, nil, 0, nil, nil)
	if s.interval != DefaultSweepInterval {
		t.Errorf("interval = %v, want %v", s.interval, DefaultSweepInterval)
	}
}
