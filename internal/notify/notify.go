// Package notify mirrors audit entries to a chat channel. The target channel
// is persisted in the settings table so a binding survives restarts.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/prismkeys/prism/internal/metrics"
	"github.com/prismkeys/prism/internal/model"
	"github.com/prismkeys/prism/internal/store"
)

// Settings keys.
const (
	SettingChannel = "log_channel_id"
	SettingBoundBy = "log_channel_bound_by"
)

// Embed colors per level.
const (
	ColorInfo  = 0x5865F2
	ColorWarn  = 0xFEE75C
	ColorError = 0xED4245
)

// ColorFor returns the embed color for level.
func ColorFor(level model.Level) int {
	switch level {
	case model.LevelWarn:
		return ColorWarn
	case model.LevelError:
		return ColorError
	default:
		return ColorInfo
	}
}

// ChannelSender posts embeds. *discordgo.Session satisfies it.
type ChannelSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Settings is the key/value store holding the binding.
type Settings interface {
	GetSetting(ctx context.Context, name string) (string, error)
	SetSetting(ctx context.Context, name, value string) error
}

// Nop discards every entry.
type Nop struct{}

func (Nop) Notify(context.Context, model.LogEntry) {}

// ChannelNotifier sends each entry to the bound channel. With no channel
// bound it does nothing.
type ChannelNotifier struct {
	sender   ChannelSender
	settings Settings
	seed     string
	logger   *slog.Logger
}

// NewChannelNotifier creates a ChannelNotifier. seed is used until a channel
// is bound through Bind.
func NewChannelNotifier(sender ChannelSender, settings Settings, seed string, logger *slog.Logger) *ChannelNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelNotifier{
		sender:   sender,
		settings: settings,
		seed:     seed,
		logger:   logger.With("component", "notify"),
	}
}

// Bind persists channelID as the log channel.
func (n *ChannelNotifier) Bind(ctx context.Context, channelID, byUserID string) error {
	if channelID == "" {
		return errors.New("channel id is required")
	}
	if err := n.settings.SetSetting(ctx, SettingChannel, channelID); err != nil {
		return fmt.Errorf("bind log channel: %w", err)
	}
	if err := n.settings.SetSetting(ctx, SettingBoundBy, byUserID); err != nil {
		return fmt.Errorf("bind log channel: %w", err)
	}
	n.logger.Info("log channel bound", "channel", channelID, "by", byUserID)
	return nil
}

// ChannelID returns the bound channel, falling back to the seed.
func (n *ChannelNotifier) ChannelID(ctx context.Context) (string, error) {
	id, err := n.settings.GetSetting(ctx, SettingChannel)
	if errors.Is(err, store.ErrNotFound) || (err == nil && id == "") {
		return n.seed, nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// Notify posts e as an embed. Failures are logged and swallowed.
func (n *ChannelNotifier) Notify(ctx context.Context, e model.LogEntry) {
	channelID, err := n.ChannelID(ctx)
	if err != nil {
		n.logger.Warn("resolve log channel", "error", err)
		return
	}
	if channelID == "" {
		return
	}

	if _, err := n.sender.ChannelMessageSendEmbed(channelID, Embed(e), discordgo.WithContext(ctx)); err != nil {
		metrics.NotificationsFailedTotal.Inc()
		n.logger.Warn("send log entry", "channel", channelID, "error", err)
	}
}

// Embed renders a log entry.
func Embed(e model.LogEntry) *discordgo.MessageEmbed {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	embed := &discordgo.MessageEmbed{
		Title:       "Bot Log",
		Description: e.Message,
		Color:       ColorFor(e.Level),
		Timestamp:   ts.UTC().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: "Level: " + string(e.Level)},
	}
	if actor := e.Actor(); actor != "" {
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "User", Value: "<@" + actor + ">", Inline: true},
		}
	}
	return embed
}
