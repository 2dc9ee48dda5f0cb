package model

import (
	"fmt"
	"time"
)

// Tier determines a key's lifetime, reuse policy and transferability.
type Tier string

const (
	TierShort    Tier = "short"
	TierMonth    Tier = "month"
	TierYear     Tier = "year"
	TierLifetime Tier = "lifetime"
)

// Tiers lists every tier, shortest first.
var Tiers = []Tier{TierShort, TierMonth, TierYear, TierLifetime}

// ParseTier converts a tier name into a Tier.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierShort, TierMonth, TierYear, TierLifetime:
		return Tier(s), nil
	case "24h", "day":
		return TierShort, nil
	}
	return "", fmt.Errorf("unknown tier %q", s)
}

// Elevated reports whether issuing keys of this tier requires an allowlisted
// issuer.
func (t Tier) Elevated() bool {
	return t == TierMonth || t == TierYear || t == TierLifetime
}

// Transferable reports whether keys of this tier may be used by callers other
// than the owner.
func (t Tier) Transferable() bool {
	return t == TierMonth || t == TierYear || t == TierLifetime
}

// Label returns a human-readable name for display.
func (t Tier) Label() string {
	switch t {
	case TierShort:
		return "24-hour"
	case TierMonth:
		return "Month"
	case TierYear:
		return "Year"
	case TierLifetime:
		return "Lifetime"
	}
	return string(t)
}

// Key is one issued access credential. The code is the credential itself;
// the tier is persisted alongside it at issuance time.
type Key struct {
	ID         int64     `json:"id" db:"id"`
	Code       string    `json:"keyCode" db:"key_code"`
	Tier       Tier      `json:"tier" db:"tier"`
	OwnerID    string    `json:"discordUserId" db:"owner_id"`
	OwnerLabel string    `json:"discordUsername" db:"owner_label"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	ExpiresAt  time.Time `json:"expiresAt" db:"expires_at"`
	Active     bool      `json:"isActive" db:"is_active"`
}

// Transferable reports whether the key may be redeemed by any caller.
func (k *Key) Transferable() bool {
	return k.Tier.Transferable()
}

// UsableAt reports whether the key is active and not yet expired at now.
func (k *Key) UsableAt(now time.Time) bool {
	return k.Active && k.ExpiresAt.After(now)
}

// ExpiredAt reports whether the sweeper should deactivate the key at now.
func (k *Key) ExpiredAt(now time.Time) bool {
	return k.Active && !k.ExpiresAt.After(now)
}
