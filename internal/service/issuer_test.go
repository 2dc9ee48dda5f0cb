package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prismkeys/prism/internal/keycode"
	"github.com/prismkeys/prism/internal/model"
	"github.com/prismkeys/prism/internal/store"
)

func TestIssueShortReusesWithinWindow(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	req := Requester{ID: userID, Label: "alice"}

	first, err := e.issuer.Issue(ctx, req, model.TierShort)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if first.WasReused {
		t.Error("first issuance should be fresh")
	}
	if !first.ExpiresAt.Equal(t0.Add(86400 * time.Second)) {
		t.Errorf("ExpiresAt = %v, want t0+24h", first.ExpiresAt)
	}
	if first.Transferable {
		t.Error("short keys are not transferable")
	}

	e.clock.Advance(time.Hour)
	second, err := e.issuer.Issue(ctx, req, model.TierShort)
	if err != nil {
		t.Fatalf("Issue again: %v", err)
	}
	if !second.WasReused || second.Code != first.Code {
		t.Errorf("expected reuse of %q, got %+v", first.Code, second)
	}
	if n := e.keyCount(t); n != 1 {
		t.Errorf("got %d keys, want 1", n)
	}

	logs := e.logs(t)
	if len(logs) != 2 {
		t.Fatalf("got %d log entries, want 2", len(logs))
	}
	if !strings.HasPrefix(logs[0].Message, "Existing key returned for alice") {
		t.Errorf("reuse log = %q", logs[0].Message)
	}
	if !strings.HasPrefix(logs[1].Message, "New key generated for alice") {
		t.Errorf("fresh log = %q", logs[1].Message)
	}
}

func TestIssueShortAfterExpiryMintsNew(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	req := Requester{ID: userID, Label: "alice"}

	first, err := e.issuer.Issue(ctx, req, model.TierShort)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	e.clock.Advance(90000 * time.Second)
	second, err := e.issuer.Issue(ctx, req, model.TierShort)
	if err != nil {
		t.Fatalf("Issue after expiry: %v", err)
	}
	if second.WasReused || second.Code == first.Code {
		t.Errorf("expected a new code, got %+v", second)
	}
	if n := e.keyCount(t); n != 2 {
		t.Errorf("got %d keys, want 2", n)
	}
}

func TestIssueShortIgnoresOtherOwners(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	a, _ := e.issuer.Issue(ctx, Requester{ID: "1", Label: "a"}, model.TierShort)
	b, _ := e.issuer.Issue(ctx, Requester{ID: "2", Label: "b"}, model.TierShort)
	if a.Code == b.Code || b.WasReused {
		t.Error("keys of other owners must not be reused")
	}
}

func TestIssueElevatedDenied(t *testing.T) {
	for _, tier := range []model.Tier{model.TierMonth, model.TierYear, model.TierLifetime} {
		t.Run(string(tier), func(t *testing.T) {
			e := newTestEnv(t)
			_, err := e.issuer.Issue(context.Background(), Requester{ID: userID, Label: "mallory"}, tier)

			var authErr *AuthorizationError
			if !errors.As(err, &authErr) || !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("got %v, want AuthorizationError", err)
			}
			if n := e.keyCount(t); n != 0 {
				t.Errorf("got %d keys, want 0", n)
			}
			logs := e.logs(t)
			if len(logs) != 1 || logs[0].Level != model.LevelWarn {
				t.Fatalf("want one WARN entry, got %+v", logs)
			}
			want := "Unauthorized " + string(tier) + " key attempt by mallory"
			if logs[0].Message != want {
				t.Errorf("message = %q, want %q", logs[0].Message, want)
			}
		})
	}
}

func TestIssueElevatedAlwaysMints(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	req := Requester{ID: vipID, Label: "vip"}

	tests := []struct {
		tier model.Tier
		ttl  time.Duration
	}{
		{model.TierMonth, 30 * 24 * time.Hour},
		{model.TierYear, 365 * 24 * time.Hour},
		{model.TierLifetime, 50 * 365 * 24 * time.Hour},
	}
	for _, tt := range tests {
		first, err := e.issuer.Issue(ctx, req, tt.tier)
		if err != nil {
			t.Fatalf("Issue %s: %v", tt.tier, err)
		}
		second, err := e.issuer.Issue(ctx, req, tt.tier)
		if err != nil {
			t.Fatalf("Issue %s again: %v", tt.tier, err)
		}
		if first.Code == second.Code || second.WasReused {
			t.Errorf("%s: expected distinct fresh codes", tt.tier)
		}
		if !first.Transferable {
			t.Errorf("%s keys should be transferable", tt.tier)
		}
		if !first.ExpiresAt.Equal(t0.Add(tt.ttl)) {
			t.Errorf("%s ExpiresAt = %v", tt.tier, first.ExpiresAt)
		}
		if got, _ := keycode.TierFromCode(first.Code); got != tt.tier {
			t.Errorf("code %q does not carry tier %s", first.Code, tt.tier)
		}
	}
	if n := e.keyCount(t); n != 6 {
		t.Errorf("got %d keys, want 6", n)
	}
	logs := e.logs(t)
	if !strings.HasPrefix(logs[0].Message, "Lifetime key generated by VIP vip") {
		t.Errorf("latest log = %q", logs[0].Message)
	}
}

func TestIssueRecordsCooldown(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	res, err := e.issuer.Issue(ctx, Requester{ID: userID, Label: "alice"}, model.TierShort)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	c, err := e.store.GetCooldown(ctx, userID)
	if err != nil {
		t.Fatalf("GetCooldown: %v", err)
	}
	if !c.CooldownEndsAt.Equal(res.ExpiresAt) || !c.LastIssuedAt.Equal(t0) {
		t.Errorf("unexpected cooldown %+v", c)
	}
}

func TestIssueStoreFailure(t *testing.T) {
	e := newTestEnv(t)
	boom := errors.New("disk full")
	issuer := e.newIssuer(&failingKeys{KeyStore: e.store, createErr: boom})

	_, err := issuer.Issue(context.Background(), Requester{ID: vipID, Label: "vip"}, model.TierMonth)
	var storeErr *StoreError
	if !errors.As(err, &storeErr) || !errors.Is(err, ErrStore) || !errors.Is(err, boom) {
		t.Fatalf("got %v, want StoreError wrapping cause", err)
	}

	logs := e.logs(t)
	if len(logs) != 1 || logs[0].Level != model.LevelError || logs[0].Actor() != vipID {
		t.Fatalf("want one ERROR entry attributed to requester, got %+v", logs)
	}
	if !strings.HasPrefix(logs[0].Message, "Failed to generate month key for vip") {
		t.Errorf("message = %q", logs[0].Message)
	}
}

func TestIssueListFailure(t *testing.T) {
	e := newTestEnv(t)
	issuer := e.newIssuer(&failingKeys{KeyStore: e.store, listErr: errors.New("timeout")})

	_, err := issuer.Issue(context.Background(), Requester{ID: userID, Label: "alice"}, model.TierShort)
	if !errors.Is(err, ErrStore) {
		t.Fatalf("got %v, want ErrStore", err)
	}
	if n := e.keyCount(t); n != 0 {
		t.Errorf("got %d keys, want 0", n)
	}
}

// collidingKeys reports a duplicate for the first n inserts.
type collidingKeys struct {
	KeyStore
	n int
}

func (c *collidingKeys) CreateKey(ctx context.Context, k *model.Key) error {
	if c.n > 0 {
		c.n--
		return store.ErrDuplicate
	}
	return c.KeyStore.CreateKey(ctx, k)
}

func TestIssueRetriesOnCollision(t *testing.T) {
	e := newTestEnv(t)

	issuer := e.newIssuer(&collidingKeys{KeyStore: e.store, n: 2})
	if _, err := issuer.Issue(context.Background(), Requester{ID: vipID, Label: "vip"}, model.TierYear); err != nil {
		t.Fatalf("Issue with two collisions: %v", err)
	}

	issuer = e.newIssuer(&collidingKeys{KeyStore: e.store, n: maxCodeAttempts})
	_, err := issuer.Issue(context.Background(), Requester{ID: vipID, Label: "vip"}, model.TierYear)
	if !errors.Is(err, ErrStore) || !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("got %v, want StoreError wrapping ErrDuplicate", err)
	}
}

func TestIssueUnknownTier(t *testing.T) {
	e := newTestEnv(t)
	if _, err := e.issuer.Issue(context.Background(), Requester{ID: vipID}, "weekly"); err == nil {
		t.Error("expected error for unknown tier")
	}
}

func TestCanIssue(t *testing.T) {
	e := newTestEnv(t)
	if !e.issuer.CanIssue(userID, model.TierShort) {
		t.Error("anyone may issue short keys")
	}
	if e.issuer.CanIssue(userID, model.TierMonth) {
		t.Error("non-allowlisted user must not issue month keys")
	}
	if !e.issuer.CanIssue(vipID, model.TierLifetime) {
		t.Error("allowlisted user may issue lifetime keys")
	}
}
