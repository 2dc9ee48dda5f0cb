// Package config holds prism's runtime configuration. Values come from
// prism.yaml, PRISM_* environment variables and the bare DISCORD_* /
// DATABASE_URL / SESSION_SECRET variables older deployments already set.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/prismkeys/prism/internal/model"
)

// Config is the top-level prism configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Discord DiscordConfig `yaml:"discord" mapstructure:"discord"`
	Access  AccessConfig  `yaml:"access" mapstructure:"access"`
	Keys    KeysConfig    `yaml:"keys" mapstructure:"keys"`
	Sweeper SweeperConfig `yaml:"sweeper" mapstructure:"sweeper"`
	Session SessionConfig `yaml:"session" mapstructure:"session"`
	MCP     MCPConfig     `yaml:"mcp" mapstructure:"mcp"`
	Log     LoggingConfig `yaml:"log" mapstructure:"log"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	PublicURL       string        `yaml:"public_url" mapstructure:"public_url"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins" mapstructure:"cors_origins"`
	// RateLimit is the per-IP request budget per minute on the public
	// validation routes. Zero disables limiting.
	RateLimit int `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// StoreConfig selects the database.
type StoreConfig struct {
	Driver  string `yaml:"driver" mapstructure:"driver"`
	DSN     string `yaml:"dsn" mapstructure:"dsn"`
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`
}

// DiscordConfig holds bot and OAuth credentials.
type DiscordConfig struct {
	Token        string `yaml:"token" mapstructure:"token"`
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
	GuildID      string `yaml:"guild_id" mapstructure:"guild_id"`
	ChannelID    string `yaml:"channel_id" mapstructure:"channel_id"`
	LogChannelID string `yaml:"log_channel_id" mapstructure:"log_channel_id"`
	RedirectURL  string `yaml:"redirect_url" mapstructure:"redirect_url"`
}

// AccessConfig lists the user ids allowed to mint elevated keys and to use
// the dashboard.
type AccessConfig struct {
	Issuers []string `yaml:"issuers" mapstructure:"issuers"`
	VIPs    []string `yaml:"vips" mapstructure:"vips"`
}

// KeysConfig sets the lifetime of each tier.
type KeysConfig struct {
	Short    time.Duration `yaml:"short" mapstructure:"short"`
	Month    time.Duration `yaml:"month" mapstructure:"month"`
	Year     time.Duration `yaml:"year" mapstructure:"year"`
	Lifetime time.Duration `yaml:"lifetime" mapstructure:"lifetime"`
}

// TTL returns the configured lifetime for tier.
func (k KeysConfig) TTL(tier model.Tier) time.Duration {
	switch tier {
	case model.TierMonth:
		return k.Month
	case model.TierYear:
		return k.Year
	case model.TierLifetime:
		return k.Lifetime
	default:
		return k.Short
	}
}

// SweeperConfig controls the expiration sweeper.
type SweeperConfig struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// SessionConfig controls dashboard session cookies.
type SessionConfig struct {
	Secret string        `yaml:"secret" mapstructure:"secret"`
	TTL    time.Duration `yaml:"ttl" mapstructure:"ttl"`
	Secure bool          `yaml:"secure" mapstructure:"secure"`
}

// MCPConfig controls the MCP (Model Context Protocol) server.
type MCPConfig struct {
	Transport string `yaml:"transport" mapstructure:"transport"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Default returns a Config pre-filled with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			PublicURL:       "http://localhost:5000",
			ShutdownTimeout: 30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimit:       60,
		},
		Store: StoreConfig{Driver: "sqlite"},
		Access: AccessConfig{
			Issuers: []string{},
			VIPs:    []string{},
		},
		Keys: KeysConfig{
			Short:    24 * time.Hour,
			Month:    30 * 24 * time.Hour,
			Year:     365 * 24 * time.Hour,
			Lifetime: 50 * 365 * 24 * time.Hour,
		},
		Sweeper: SweeperConfig{Interval: time.Minute},
		Session: SessionConfig{TTL: 7 * 24 * time.Hour},
		MCP:     MCPConfig{Transport: "stdio"},
		Log:     LoggingConfig{Level: "info", Format: "text"},
	}
}

// aliases maps config keys onto the environment variables honored besides
// the PRISM_ prefixed form. Earlier names win.
var aliases = map[string][]string{
	"discord.token":          {"DISCORD_TOKEN", "DISCORD_BOT_TOKEN"},
	"discord.client_id":      {"DISCORD_CLIENT_ID"},
	"discord.client_secret":  {"DISCORD_CLIENT_SECRET"},
	"discord.guild_id":       {"DISCORD_GUILD_ID"},
	"discord.channel_id":     {"DISCORD_CHANNEL_ID"},
	"discord.log_channel_id": {"DISCORD_LOGS_CHANNEL_ID"},
	"access.vips":            {"DISCORD_WHITELIST_USERS"},
	"access.issuers":         {"DISCORD_MONTH_KEY_USERS"},
	"store.dsn":              {"DATABASE_URL"},
	"session.secret":         {"SESSION_SECRET"},
}

// Configure registers defaults, the PRISM env prefix and the legacy env
// aliases on v. Call it before reading a config file.
func Configure(v *viper.Viper) {
	v.SetEnvPrefix("PRISM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var defaults map[string]any
	raw, _ := yaml.Marshal(Default())
	yaml.Unmarshal(raw, &defaults) //nolint:errcheck
	setDefaults(v, "", defaults)

	for key, envs := range aliases {
		prefixed := "PRISM_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		v.BindEnv(append([]string{key, prefixed}, envs...)...) //nolint:errcheck
	}
}

func setDefaults(v *viper.Viper, prefix string, m map[string]any) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			setDefaults(v, key, nested)
			continue
		}
		v.SetDefault(key, val)
	}
}

// Load decodes the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Access.Issuers = cleanList(c.Access.Issuers)
	c.Access.VIPs = cleanList(c.Access.VIPs)
	c.Server.CORSOrigins = cleanList(c.Server.CORSOrigins)

	dsn := strings.ToLower(c.Store.DSN)
	if (c.Store.Driver == "" || c.Store.Driver == "sqlite") &&
		(strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")) {
		c.Store.Driver = "postgres"
	}
	if c.Discord.RedirectURL == "" {
		c.Discord.RedirectURL = strings.TrimSuffix(c.Server.PublicURL, "/") + "/api/callback"
	}
}

// cleanList splits comma-joined entries and drops blanks.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Validate checks values that would otherwise fail at first use.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	for _, tier := range model.Tiers {
		if c.Keys.TTL(tier) <= 0 {
			return fmt.Errorf("keys.%s must be positive", tier)
		}
	}
	if c.Sweeper.Interval <= 0 {
		return fmt.Errorf("sweeper.interval must be positive")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	out.Discord.Token = mask(c.Discord.Token)
	out.Discord.ClientSecret = mask(c.Discord.ClientSecret)
	out.Session.Secret = mask(c.Session.Secret)
	if c.Store.DSN != "" && c.Store.Driver != "sqlite" {
		out.Store.DSN = mask(c.Store.DSN)
	}
	return &out
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// WriteDefaultConfig writes the default configuration to a YAML file.
func WriteDefaultConfig(path string) error {
	data, err := Default().Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
