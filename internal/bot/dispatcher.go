package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prismkeys/prism/internal/metrics"
	"github.com/prismkeys/prism/internal/model"
	"github.com/prismkeys/prism/internal/notify"
	"github.com/prismkeys/prism/internal/service"
)

// Command names.
const (
	CmdShortKey    = "generate24key"
	CmdMonthKey    = "generate1mkey"
	CmdYearKey     = "generateyearkey"
	CmdLifetimeKey = "generatelifetime"
	CmdSetupLogs   = "setup-logs"
)

var commandTiers = map[string]model.Tier{
	CmdShortKey:    model.TierShort,
	CmdMonthKey:    model.TierMonth,
	CmdYearKey:     model.TierYear,
	CmdLifetimeKey: model.TierLifetime,
}

// Command is one invocation, independent of the chat transport.
type Command struct {
	Name      string
	UserID    string
	UserLabel string
	GuildID   string
	ChannelID string
	// IsAdmin is true when the invoker holds the guild Administrator
	// permission.
	IsAdmin bool
}

// Field is a name/value pair rendered in a reply.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Reply is the structured answer to a Command.
type Reply struct {
	Title       string
	Description string
	Color       int
	Fields      []Field
	Footer      string
	Ephemeral   bool
}

// Issuer hands out keys.
type Issuer interface {
	Issue(ctx context.Context, req service.Requester, tier model.Tier) (*service.IssueResult, error)
}

// LogBinder persists the log channel binding.
type LogBinder interface {
	Bind(ctx context.Context, channelID, byUserID string) error
}

// Auditor records operational outcomes. *service.Audit satisfies it.
type Auditor interface {
	Info(ctx context.Context, actorID, msg string)
	Error(ctx context.Context, actorID, msg string)
}

// DispatcherOptions restricts where commands may be used.
type DispatcherOptions struct {
	// GuildID limits every command to one server when set.
	GuildID string
	// ChannelID limits the short-key command to one channel when set.
	ChannelID string
	// VIPs may bind the log channel without the Administrator permission.
	VIPs []string
	// Audit receives the setup-logs outcome. Nil records nothing.
	Audit  Auditor
	Logger *slog.Logger
}

// Dispatcher maps commands onto the issuance engine. Handle always returns
// a reply.
type Dispatcher struct {
	issuer    Issuer
	binder    LogBinder
	guildID   string
	channelID string
	vips      service.Allowlist
	audit     Auditor
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher. binder may be nil, in which case the
// setup-logs command reports an error.
func NewDispatcher(issuer Issuer, binder LogBinder, opts DispatcherOptions) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dispatcher{
		issuer:    issuer,
		binder:    binder,
		guildID:   opts.GuildID,
		channelID: opts.ChannelID,
		vips:      service.NewAllowlist(opts.VIPs),
		audit:     opts.Audit,
		logger:    opts.Logger.With("component", "dispatcher"),
	}
}

// Handle runs cmd. Panics and unexpected errors become a generic error
// reply.
func (d *Dispatcher) Handle(ctx context.Context, cmd Command) (reply Reply) {
	kind := "ok"
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("command panicked", "command", cmd.Name, "panic", r)
			reply, kind = failureReply(), "error"
		}
		reply.Ephemeral = true
		metrics.CommandsTotal.WithLabelValues(cmd.Name, kind).Inc()
	}()

	if d.guildID != "" && cmd.GuildID != d.guildID {
		kind = "restricted"
		return Reply{
			Title:       "Server Restricted",
			Description: "This bot can only be used in the authorized server.",
			Color:       notify.ColorError,
		}
	}

	if cmd.Name == CmdSetupLogs {
		reply, kind = d.setupLogs(ctx, cmd)
		return reply
	}

	tier, ok := commandTiers[cmd.Name]
	if !ok {
		kind = "unknown"
		return Reply{Title: "Unknown Command", Description: fmt.Sprintf("`/%s` is not a command.", cmd.Name), Color: notify.ColorError}
	}

	if tier == model.TierShort && d.channelID != "" && cmd.ChannelID != d.channelID {
		kind = "restricted"
		return Reply{
			Title:       "Channel Restricted",
			Description: fmt.Sprintf("Please use this command in <#%s>.", d.channelID),
			Color:       notify.ColorError,
		}
	}

	res, err := d.issuer.Issue(ctx, service.Requester{ID: cmd.UserID, Label: cmd.UserLabel}, tier)
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		kind = "denied"
		return Reply{
			Title:       "Access Denied",
			Description: fmt.Sprintf("You are not authorized to generate %s keys.", tier.Label()),
			Color:       notify.ColorError,
		}
	case err != nil:
		kind = "error"
		d.logger.Error("handle command", "command", cmd.Name, "user", cmd.UserID, "error", err)
		return failureReply()
	}
	return keyReply(res)
}

func (d *Dispatcher) setupLogs(ctx context.Context, cmd Command) (Reply, string) {
	if !cmd.IsAdmin && !d.vips.Contains(cmd.UserID) {
		return Reply{
			Title:       "Access Denied",
			Description: "You need Administrator permission or VIP access to set up the logs channel.",
			Color:       notify.ColorError,
		}, "denied"
	}
	err := errors.New("no log channel binder configured")
	if d.binder != nil {
		err = d.binder.Bind(ctx, cmd.ChannelID, cmd.UserID)
	}
	if err != nil {
		d.logger.Error("bind log channel", "channel", cmd.ChannelID, "error", err)
		if d.audit != nil {
			d.audit.Error(ctx, cmd.UserID, fmt.Sprintf("Setup logs command failed for %s: %v", cmd.UserLabel, err))
		}
		return failureReply(), "error"
	}
	if d.audit != nil {
		d.audit.Info(ctx, cmd.UserID, fmt.Sprintf("Logs channel set to %s by admin: %s", cmd.ChannelID, cmd.UserLabel))
	}
	return Reply{
		Title:       "Logs Channel Set",
		Description: fmt.Sprintf("Bot logs will now be sent to <#%s>.", cmd.ChannelID),
		Color:       notify.ColorInfo,
	}, "ok"
}

func keyReply(res *service.IssueResult) Reply {
	expires := fmt.Sprintf("<t:%d:F>", res.ExpiresAt.Unix())
	r := Reply{
		Color: notify.ColorInfo,
		Fields: []Field{
			{Name: "Key", Value: "```" + res.Code + "```"},
			{Name: "Expires", Value: expires, Inline: true},
		},
	}

	if res.WasReused {
		r.Title = "Your Active Key"
		r.Fields = append(r.Fields, Field{Name: "Status", Value: "Existing", Inline: true})
		if res.Transferable {
			r.Description = "You already have an active transferable key. Here it is again."
			r.Fields = append(r.Fields, Field{Name: "Transferable", Value: "Yes", Inline: true})
			r.Footer = "This key can be shared with anyone"
			return r
		}
		r.Description = "You already have an active key. Here it is again. It is bound to your account."
		r.Footer = "One key per user every 24 hours"
		return r
	}

	if res.Tier == model.TierShort {
		r.Title = "24-Hour Key Generated"
		r.Description = "Here is your access key. It is bound to your account."
		r.Fields = append(r.Fields, Field{Name: "Status", Value: "New", Inline: true})
		r.Footer = "One key per user every 24 hours"
		return r
	}

	r.Title = res.Tier.Label() + " Key Generated"
	r.Description = "A new transferable key has been created."
	r.Fields = append(r.Fields,
		Field{Name: "Duration", Value: durationLabel(res), Inline: true},
		Field{Name: "Transferable", Value: "Yes", Inline: true},
	)
	r.Footer = "This key can be shared with anyone"
	return r
}

func durationLabel(res *service.IssueResult) string {
	if res.Tier == model.TierLifetime {
		return "Lifetime"
	}
	days := int(res.ExpiresAt.Sub(res.CreatedAt).Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

func failureReply() Reply {
	return Reply{
		Title:       "Error",
		Description: "Something went wrong while processing your request. Please try again later.",
		Color:       notify.ColorError,
	}
}
