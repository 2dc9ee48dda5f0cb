package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prismkeys/prism/internal/config"
	"github.com/prismkeys/prism/internal/keycode"
	"github.com/prismkeys/prism/internal/metrics"
	"github.com/prismkeys/prism/internal/model"
	"github.com/prismkeys/prism/internal/store"
)

// maxCodeAttempts bounds regeneration after a code collision.
const maxCodeAttempts = 3

// Requester identifies who asked for a key.
type Requester struct {
	ID    string
	Label string
}

// IssueResult describes the key handed back to a requester.
type IssueResult struct {
	Code         string     `json:"keyCode"`
	Tier         model.Tier `json:"tier"`
	CreatedAt    time.Time  `json:"createdAt"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	WasReused    bool       `json:"wasReused"`
	Transferable bool       `json:"transferable"`
}

// IssuerOptions configures an Issuer. Zero values fall back to defaults.
type IssuerOptions struct {
	// Issuers may mint month, year and lifetime keys.
	Issuers   []string
	TTL       config.KeysConfig
	Generator *keycode.Generator
	Now       func() time.Time
	Logger    *slog.Logger
}

// Issuer mints keys and enforces the per-tier reuse and authorization rules.
// It keeps no key state in memory; every decision re-reads the store.
type Issuer struct {
	keys      KeyStore
	cooldowns CooldownStore
	audit     *Audit
	issuers   Allowlist
	ttl       config.KeysConfig
	gen       *keycode.Generator
	now       func() time.Time
	logger    *slog.Logger
}

// NewIssuer creates an Issuer. cooldowns may be nil.
func NewIssuer(keys KeyStore, cooldowns CooldownStore, audit *Audit, opts IssuerOptions) *Issuer {
	if opts.TTL == (config.KeysConfig{}) {
		opts.TTL = config.Default().Keys
	}
	if opts.Generator == nil {
		opts.Generator = keycode.Default
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Issuer{
		keys:      keys,
		cooldowns: cooldowns,
		audit:     audit,
		issuers:   NewAllowlist(opts.Issuers),
		ttl:       opts.TTL,
		gen:       opts.Generator,
		now:       opts.Now,
		logger:    opts.Logger.With("component", "issuer"),
	}
}

// CanIssue reports whether userID may request keys of tier.
func (i *Issuer) CanIssue(userID string, tier model.Tier) bool {
	return !tier.Elevated() || i.issuers.Contains(userID)
}

// Issue hands a key of tier to req. Short-tier requests return the
// requester's newest usable key when one exists. Elevated tiers require an
// allowlisted requester and always mint.
//
// Denials return an *AuthorizationError and persistence failures a
// *StoreError; both have already been written to the audit log.
func (i *Issuer) Issue(ctx context.Context, req Requester, tier model.Tier) (*IssueResult, error) {
	if _, err := model.ParseTier(string(tier)); err != nil {
		return nil, err
	}
	now := i.now()

	if tier.Elevated() {
		if !i.issuers.Contains(req.ID) {
			i.audit.Warn(ctx, req.ID, fmt.Sprintf("Unauthorized %s key attempt by %s", tier, req.Label))
			metrics.KeysIssuedTotal.WithLabelValues(string(tier), metrics.OutcomeDenied).Inc()
			return nil, &AuthorizationError{UserID: req.ID, Tier: tier}
		}
	} else {
		existing, err := i.keys.ListKeysByOwner(ctx, req.ID)
		if err != nil {
			return nil, i.fail(ctx, req, tier, "list keys", err)
		}
		for _, k := range existing {
			if !k.UsableAt(now) {
				continue
			}
			i.audit.Info(ctx, req.ID, fmt.Sprintf("Existing key returned for %s: %s", req.Label, k.Code))
			metrics.KeysIssuedTotal.WithLabelValues(string(tier), metrics.OutcomeReused).Inc()
			return resultFor(&k, true), nil
		}
	}

	k, err := i.mint(ctx, req, tier, now)
	if err != nil {
		return nil, i.fail(ctx, req, tier, "create key", err)
	}

	if tier.Elevated() {
		i.audit.Info(ctx, req.ID, fmt.Sprintf("%s key generated by VIP %s: %s", tier.Label(), req.Label, k.Code))
	} else {
		i.audit.Info(ctx, req.ID, fmt.Sprintf("New key generated for %s: %s", req.Label, k.Code))
	}
	metrics.KeysIssuedTotal.WithLabelValues(string(tier), metrics.OutcomeFresh).Inc()

	i.markCooldown(ctx, k)
	return resultFor(k, false), nil
}

// mint generates and persists a new key, regenerating on code collisions.
func (i *Issuer) mint(ctx context.Context, req Requester, tier model.Tier, now time.Time) (*model.Key, error) {
	var lastErr error
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := i.gen.Generate(tier)
		if err != nil {
			return nil, err
		}
		k := &model.Key{
			Code:       code,
			Tier:       tier,
			OwnerID:    req.ID,
			OwnerLabel: req.Label,
			CreatedAt:  now,
			ExpiresAt:  now.Add(i.ttl.TTL(tier)),
			Active:     true,
		}
		err = i.keys.CreateKey(ctx, k)
		if err == nil {
			return k, nil
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return nil, err
		}
		i.logger.Warn("key code collision, regenerating", "tier", tier, "attempt", attempt+1)
		lastErr = err
	}
	return nil, lastErr
}

// markCooldown records the advisory cooldown marker. Failures never fail
// the issuance.
func (i *Issuer) markCooldown(ctx context.Context, k *model.Key) {
	if i.cooldowns == nil {
		return
	}
	ends := k.CreatedAt
	if k.Tier == model.TierShort {
		ends = k.ExpiresAt
	}
	c := &model.Cooldown{
		OwnerID:        k.OwnerID,
		OwnerLabel:     k.OwnerLabel,
		LastIssuedAt:   k.CreatedAt,
		CooldownEndsAt: ends,
	}
	if err := i.cooldowns.UpsertCooldown(ctx, c); err != nil {
		i.logger.Warn("update cooldown", "owner", k.OwnerID, "error", err)
	}
}

func (i *Issuer) fail(ctx context.Context, req Requester, tier model.Tier, op string, err error) error {
	i.audit.Error(ctx, req.ID, fmt.Sprintf("Failed to generate %s key for %s: %v", tier, req.Label, err))
	metrics.KeysIssuedTotal.WithLabelValues(string(tier), metrics.OutcomeError).Inc()
	i.logger.Error("issue key", "op", op, "tier", tier, "requester", req.ID, "error", err)
	return &StoreError{Op: op, Err: err}
}

func resultFor(k *model.Key, reused bool) *IssueResult {
	return &IssueResult{
		Code:         k.Code,
		Tier:         k.Tier,
		CreatedAt:    k.CreatedAt,
		ExpiresAt:    k.ExpiresAt,
		WasReused:    reused,
		Transferable: k.Transferable(),
	}
}
