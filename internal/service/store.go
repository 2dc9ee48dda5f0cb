package service

import (
	"context"

	"github.com/prismkeys/prism/internal/model"
)

// KeyStore is the subset of the store used for key issuance, validation and
// sweeping.
type KeyStore interface {
	CreateKey(ctx context.Context, k *model.Key) error
	GetKey(ctx context.Context, code string) (*model.Key, error)
	ListAllKeys(ctx context.Context) ([]model.Key, error)
	ListKeysByOwner(ctx context.Context, ownerID string) ([]model.Key, error)
	ExpireKey(ctx context.Context, code string) error
}

// CooldownStore records advisory cooldown markers.
type CooldownStore interface {
	UpsertCooldown(ctx context.Context, c *model.Cooldown) error
}

// LogStore is the append-only audit trail.
type LogStore interface {
	AppendLog(ctx context.Context, e *model.LogEntry) error
}

// UserStore caches dashboard identities.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	UpsertUser(ctx context.Context, u *model.User) (*model.User, error)
}
