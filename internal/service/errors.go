package service

import (
	"errors"
	"fmt"

	"github.com/prismkeys/prism/internal/model"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrStore              = errors.New("store failure")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotConfigured      = errors.New("not configured")
)

// AuthorizationError reports that a caller lacks permission for an action.
// It is an expected outcome, not a fault.
type AuthorizationError struct {
	UserID string
	Tier   model.Tier
	Action string
}

func (e *AuthorizationError) Error() string {
	if e.Tier != "" {
		return fmt.Sprintf("user %s may not issue %s keys", e.UserID, e.Tier)
	}
	return fmt.Sprintf("user %s may not %s", e.UserID, e.Action)
}

func (e *AuthorizationError) Is(target error) bool { return target == ErrUnauthorized }

// NotFoundError reports that a key or user does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// StoreError wraps a persistence failure. Callers surface it as a generic
// transient failure and never retry automatically.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }
