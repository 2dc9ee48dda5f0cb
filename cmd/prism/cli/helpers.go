package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/prismkeys/prism/internal/bot"
	"github.com/prismkeys/prism/internal/config"
	"github.com/prismkeys/prism/internal/handler"
	"github.com/prismkeys/prism/internal/notify"
	"github.com/prismkeys/prism/internal/service"
	"github.com/prismkeys/prism/internal/store"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// PRISM_DATA_DIR env var, store.data_dir, or ~/.prism as fallback.
func resolveDataDir(cfg *config.Config) string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("PRISM_DATA_DIR"); envDir != "" {
		return envDir
	}
	if cfg != nil && cfg.Store.DataDir != "" {
		return cfg.Store.DataDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".prism")
}

// loadConfig decodes the configuration gathered by initConfig.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// newLogger builds the process logger. --dev forces debug level.
func newLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if devMode {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openStore opens the configured store: SQLite under the data directory by
// default, or PostgreSQL / MySQL through store.dsn.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	dialect, err := store.ParseDialect(cfg.Store.Driver)
	if err != nil {
		return nil, err
	}
	if dialect == store.SQLite && cfg.Store.DSN == "" {
		return store.NewStore(resolveDataDir(cfg))
	}
	if cfg.Store.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required for the %s driver", dialect)
	}
	return store.Open(ctx, dialect, cfg.Store.DSN)
}

// openConfiguredStore loads the config and opens its store, for the one-shot
// maintenance commands.
func openConfiguredStore(ctx context.Context) (*config.Config, *store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	s, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, s, nil
}

// chatBot is the gateway connection driven by app. *bot.Bot satisfies it.
type chatBot interface {
	Start(ctx context.Context, d *bot.Dispatcher) error
	Close() error
	Online() bool
	Uptime() string
}

// app is the wired service graph shared by serve and bot.
type app struct {
	store      *store.Store
	audit      *service.Audit
	issuer     *service.Issuer
	validator  *service.Validator
	stats      *service.StatsService
	sweeper    *service.Sweeper
	bot        chatBot
	dispatcher *bot.Dispatcher
	logger     *slog.Logger
}

// status reports the bot's state, or offline when it is not running.
func (rt *app) status() handler.StatusReporter {
	if rt.bot == nil {
		return bot.Offline{}
	}
	return rt.bot
}

// buildApp wires the store, audit log, issuance engine, validator and
// sweeper. The bot is created only when withBot is set and credentials are
// configured; otherwise the audit log is not mirrored to Discord.
func buildApp(cfg *config.Config, s *store.Store, withBot bool, logger *slog.Logger) (*app, error) {
	rt := &app{store: s, logger: logger}

	var notifier service.Notifier = notify.Nop{}
	var binder bot.LogBinder
	if withBot {
		if cfg.Discord.Token == "" || cfg.Discord.ClientID == "" {
			logger.Warn("discord token or client id missing, running without the bot")
		} else {
			b, err := bot.New(bot.Config{
				Token:         cfg.Discord.Token,
				ApplicationID: cfg.Discord.ClientID,
				GuildID:       cfg.Discord.GuildID,
			}, logger)
			if err != nil {
				return nil, err
			}
			ch := notify.NewChannelNotifier(b, s, cfg.Discord.LogChannelID, logger)
			rt.bot, notifier, binder = b, ch, ch
		}
	}

	rt.audit = service.NewAudit(s, notifier, logger)
	rt.issuer = service.NewIssuer(s, s, rt.audit, service.IssuerOptions{
		Issuers: cfg.Access.Issuers,
		TTL:     cfg.Keys,
		Logger:  logger,
	})
	rt.validator = service.NewValidator(s, nil, logger)
	rt.stats = service.NewStatsService(s, nil, time.Local)
	rt.sweeper = service.NewSweeper(s, rt.audit, cfg.Sweeper.Interval, nil, logger)

	if rt.bot != nil {
		rt.dispatcher = bot.NewDispatcher(rt.issuer, binder, bot.DispatcherOptions{
			GuildID:   cfg.Discord.GuildID,
			ChannelID: cfg.Discord.ChannelID,
			VIPs:      cfg.Access.VIPs,
			Audit:     rt.audit,
			Logger:    logger,
		})
	}
	return rt, nil
}

// start launches the sweeper and, when configured, connects the bot. A bot
// that cannot connect is audited and dropped; the process keeps serving and
// reports the bot offline.
func (rt *app) start(ctx context.Context) {
	rt.sweeper.Start(ctx)
	if rt.bot == nil {
		return
	}
	if err := rt.bot.Start(ctx, rt.dispatcher); err != nil {
		rt.logger.Warn("discord bot unavailable, continuing without it", "error", err)
		rt.audit.Error(ctx, "", fmt.Sprintf("Failed to connect to Discord API: %v", err))
		rt.bot = nil
	}
}

// stop disconnects the bot and waits for the sweeper to finish.
func (rt *app) stop() {
	if rt.bot != nil {
		if err := rt.bot.Close(); err != nil {
			rt.logger.Warn("close bot", "error", err)
		}
	}
	rt.sweeper.Shutdown()
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
