package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/prismkeys/prism/internal/model"
)

// Notifier forwards audit entries to an external channel. Implementations
// must not block for long and must swallow their own failures.
type Notifier interface {
	Notify(ctx context.Context, e model.LogEntry)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, model.LogEntry) {}

// Audit appends leveled entries to the log store and mirrors them to a
// Notifier. It never returns an error: a failed append is reported to the
// process logger only.
type Audit struct {
	logs     LogStore
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// AuditOption customizes an Audit.
type AuditOption func(*Audit)

// WithAuditClock stamps entries with now instead of time.Now. Pass the same
// clock the Issuer and Sweeper use.
func WithAuditClock(now func() time.Time) AuditOption {
	return func(a *Audit) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAudit creates an Audit. A nil notifier disables forwarding.
func NewAudit(logs LogStore, notifier Notifier, logger *slog.Logger, opts ...AuditOption) *Audit {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Audit{logs: logs, notifier: notifier, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Audit) Info(ctx context.Context, actorID, msg string) {
	a.record(ctx, model.LevelInfo, actorID, msg)
}

// Warn is reserved for authorization denials.
func (a *Audit) Warn(ctx context.Context, actorID, msg string) {
	a.record(ctx, model.LevelWarn, actorID, msg)
}

func (a *Audit) Error(ctx context.Context, actorID, msg string) {
	a.record(ctx, model.LevelError, actorID, msg)
}

func (a *Audit) record(ctx context.Context, level model.Level, actorID, msg string) {
	e := model.LogEntry{
		Timestamp: a.now(),
		Level:     level,
		Message:   msg,
	}
	if actorID != "" {
		e.ActorID = &actorID
	}

	if err := a.logs.AppendLog(ctx, &e); err != nil {
		a.logger.Error("append audit entry", "level", level, "message", msg, "error", err)
	}
	a.notifier.Notify(ctx, e)
}
