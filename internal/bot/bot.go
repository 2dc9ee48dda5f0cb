// Package bot is the chat command front-end. The Dispatcher is
// transport-agnostic; Bot connects it to a Discord gateway session.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Commands returns the slash command definitions registered on start.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{Name: CmdShortKey, Description: "Generate a 24-hour access key"},
		{Name: CmdMonthKey, Description: "Generate a 1-month transferable key (authorized users only)"},
		{Name: CmdYearKey, Description: "Generate a 1-year transferable key (authorized users only)"},
		{Name: CmdLifetimeKey, Description: "Generate a lifetime transferable key (authorized users only)"},
		{Name: CmdSetupLogs, Description: "Send bot logs to this channel (administrators only)"},
	}
}

// Config holds the bot credentials.
type Config struct {
	Token         string
	ApplicationID string
	// GuildID scopes command registration; empty registers globally.
	GuildID string
}

// Bot owns the gateway session.
type Bot struct {
	cfg     Config
	session *discordgo.Session
	logger  *slog.Logger

	mu        sync.RWMutex
	online    bool
	startedAt time.Time
	removers  []func()
}

// New creates a Bot without connecting.
func New(cfg Config, logger *slog.Logger) (*Bot, error) {
	if cfg.Token == "" || cfg.ApplicationID == "" {
		return nil, errors.New("bot token and application id are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds
	return &Bot{cfg: cfg, session: s, logger: logger.With("component", "bot")}, nil
}

// ChannelMessageSendEmbed posts an embed; it lets the Bot act as the log
// channel sender.
func (b *Bot) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return b.session.ChannelMessageSendEmbed(channelID, embed, options...)
}

// Start opens the gateway, registers the commands and routes interactions
// to d.
func (b *Bot) Start(ctx context.Context, d *Dispatcher) error {
	b.removers = append(b.removers,
		b.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
			b.mu.Lock()
			b.online = true
			b.startedAt = time.Now()
			b.mu.Unlock()
			b.logger.Info("bot ready", "user", r.User.Username)
		}),
		b.session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
			b.setOffline()
			b.logger.Warn("bot disconnected")
		}),
		b.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			if i.Type != discordgo.InteractionApplicationCommand {
				return
			}
			b.handleInteraction(ctx, s, i, d)
		}),
	)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}

	if _, err := b.session.ApplicationCommandBulkOverwrite(b.cfg.ApplicationID, b.cfg.GuildID, Commands(), discordgo.WithContext(ctx)); err != nil {
		b.session.Close()
		return fmt.Errorf("register commands: %w", err)
	}
	b.logger.Info("slash commands registered", "count", len(Commands()), "guild", b.cfg.GuildID)
	return nil
}

// Close disconnects from the gateway.
func (b *Bot) Close() error {
	for _, remove := range b.removers {
		remove()
	}
	b.removers = nil
	b.setOffline()
	return b.session.Close()
}

func (b *Bot) setOffline() {
	b.mu.Lock()
	b.online = false
	b.mu.Unlock()
}

// Online reports whether the gateway session is ready.
func (b *Bot) Online() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.online
}

// Uptime returns the time since the session became ready, or "0s" when
// offline.
func (b *Bot) Uptime() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.online {
		return "0s"
	}
	return FormatUptime(time.Since(b.startedAt))
}

// FormatUptime renders d as "<days>d <hours>h <minutes>m".
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d / (24 * time.Hour))
	hours := int(d/time.Hour) % 24
	minutes := int(d/time.Minute) % 60
	return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
}

func (b *Bot) handleInteraction(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, d *Dispatcher) {
	// Acknowledge first; issuance may outlast the interaction deadline.
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		b.logger.Error("defer interaction", "error", err)
		return
	}

	reply := d.Handle(ctx, CommandFrom(i))
	embeds := []*discordgo.MessageEmbed{ReplyEmbed(reply)}
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Embeds: &embeds}); err != nil {
		b.logger.Error("send interaction reply", "command", i.ApplicationCommandData().Name, "error", err)
	}
}

// CommandFrom converts an interaction into a Command.
func CommandFrom(i *discordgo.InteractionCreate) Command {
	cmd := Command{
		Name:      i.ApplicationCommandData().Name,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
	}

	user := i.User
	if i.Member != nil {
		user = i.Member.User
		cmd.IsAdmin = i.Member.Permissions&discordgo.PermissionAdministrator != 0
	}
	if user != nil {
		cmd.UserID = user.ID
		cmd.UserLabel = userLabel(user)
	}
	return cmd
}

func userLabel(u *discordgo.User) string {
	if u.Discriminator != "" && u.Discriminator != "0" {
		return u.Username + "#" + u.Discriminator
	}
	return u.Username
}

// ReplyEmbed renders a Reply.
func ReplyEmbed(r Reply) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       r.Title,
		Description: r.Description,
		Color:       r.Color,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	for _, f := range r.Fields {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if r.Footer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: r.Footer}
	}
	return e
}

// Offline is a status reporter for processes that run no bot.
type Offline struct{}

func (Offline) Online() bool   { return false }
func (Offline) Uptime() string { return "0s" }
