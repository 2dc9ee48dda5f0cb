package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prismkeys/prism/internal/metrics"
	"github.com/prismkeys/prism/internal/model"
	"github.com/prismkeys/prism/internal/store"
)

// Validation reasons and messages returned to clients.
const (
	ReasonNotFound = "Key not found"
	ReasonNotOwner = "Key does not belong to this user"
	ReasonExpired  = "Key has expired or is inactive"
	MessageValid   = "Key is valid for this user"
	MessageLegacy  = "Key is valid"
)

// ValidationResult is the outcome of an owner-checked validation. A negative
// result is not an error.
type ValidationResult struct {
	Valid      bool
	Reason     string
	ExpiresAt  time.Time
	OwnerLabel string
}

// LegacyResult is the outcome of an unchecked validation. Key is set only
// when the key is valid.
type LegacyResult struct {
	Valid   bool
	Key     *model.Key
	Message string
}

// Validator answers whether a code is usable by a caller right now. It never
// writes to the store.
type Validator struct {
	keys   KeyStore
	now    func() time.Time
	logger *slog.Logger
}

// NewValidator creates a Validator. A nil now uses time.Now.
func NewValidator(keys KeyStore, now func() time.Time, logger *slog.Logger) *Validator {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{keys: keys, now: now, logger: logger.With("component", "validator")}
}

// Validate checks code for callerID. An empty callerID skips the ownership
// check. Ownership applies only to non-transferable tiers; expiry applies to
// every key.
func (v *Validator) Validate(ctx context.Context, code, callerID string) (*ValidationResult, error) {
	k, err := v.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if k == nil {
		metrics.ValidationsTotal.WithLabelValues("not_found").Inc()
		return &ValidationResult{Reason: ReasonNotFound}, nil
	}

	if !k.Transferable() && callerID != "" && callerID != k.OwnerID {
		metrics.ValidationsTotal.WithLabelValues("not_owner").Inc()
		return &ValidationResult{Reason: ReasonNotOwner}, nil
	}
	if !k.UsableAt(v.now()) {
		metrics.ValidationsTotal.WithLabelValues("expired").Inc()
		return &ValidationResult{Reason: ReasonExpired}, nil
	}

	metrics.ValidationsTotal.WithLabelValues("valid").Inc()
	return &ValidationResult{
		Valid:      true,
		Reason:     MessageValid,
		ExpiresAt:  k.ExpiresAt,
		OwnerLabel: k.OwnerLabel,
	}, nil
}

// ValidateLegacy checks code without an ownership check. Unknown codes
// return a *NotFoundError.
func (v *Validator) ValidateLegacy(ctx context.Context, code string) (*LegacyResult, error) {
	k, err := v.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if k == nil {
		metrics.ValidationsTotal.WithLabelValues("not_found").Inc()
		return nil, &NotFoundError{Kind: "key", ID: code}
	}
	if !k.UsableAt(v.now()) {
		metrics.ValidationsTotal.WithLabelValues("expired").Inc()
		return &LegacyResult{Message: ReasonExpired}, nil
	}
	metrics.ValidationsTotal.WithLabelValues("valid").Inc()
	return &LegacyResult{Valid: true, Key: k, Message: MessageLegacy}, nil
}

// lookup returns nil, nil for unknown codes.
func (v *Validator) lookup(ctx context.Context, code string) (*model.Key, error) {
	k, err := v.keys.GetKey(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		metrics.ValidationsTotal.WithLabelValues("error").Inc()
		v.logger.Error("validate key", "error", err)
		return nil, &StoreError{Op: "get key", Err: err}
	}
	return k, nil
}
