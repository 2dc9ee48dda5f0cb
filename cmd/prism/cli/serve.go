package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/prismkeys/prism/internal/config"
	"github.com/prismkeys/prism/internal/server"
	"github.com/prismkeys/prism/internal/service"
)

const banner = `
 ____  ____  ___ ____  __  __
|  _ \|  _ \|_ _/ ___||  \/  |
| |_) | |_) || |\___ \| |\/| |
|  __/|  _ < | | ___) | |  | |
|_|   |_| \_\___|____/|_|  |_|
`

func newServeCmd() *cobra.Command {
	var (
		port  int
		host  string
		noBot bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Prism API server, bot and sweeper",
		Long: `Start the HTTP server that exposes key validation and the VIP dashboard API.
The Discord bot and the expiration sweeper run in the same process; the bot is
skipped when no token or client id is configured.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(noBot)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 5000, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&noBot, "no-bot", false, "Do not connect the Discord bot")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(noBot bool) error {
	fmt.Print(banner)
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Store
	s, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()
	logger.Info("store opened", "driver", s.Dialect())

	// 2. Services, bot and sweeper
	rt, err := buildApp(cfg, s, !noBot, logger)
	if err != nil {
		return err
	}
	rt.start(ctx)
	defer rt.stop()

	// 3. Dashboard sign-in
	opts, err := authOptions(cfg, logger)
	if err != nil {
		return err
	}
	auth := service.NewAuthService(s, opts)
	if !auth.Configured() {
		logger.Warn("discord oauth not configured, dashboard sign-in disabled")
	}

	// 4. HTTP server
	srv := server.New(server.ConfigFrom(cfg, versionString()), server.Deps{
		Store:     s,
		Auth:      auth,
		Validator: rt.validator,
		Stats:     rt.stats,
		Status:    rt.status(),
	}, logger)

	fmt.Printf("  Prism %s\n", versionString())
	fmt.Printf("  API:        http://%s:%d/api\n", displayHost(cfg.Server.Host), cfg.Server.Port)
	fmt.Printf("  OpenAPI:    http://%s:%d/openapi.json\n", displayHost(cfg.Server.Host), cfg.Server.Port)
	fmt.Printf("  Health:     http://%s:%d/healthz\n", displayHost(cfg.Server.Host), cfg.Server.Port)
	fmt.Println()

	return srv.ListenAndServe(ctx)
}

// authOptions derives the dashboard auth settings. Without session.secret a
// random per-process secret signs sessions, so they end with the process.
func authOptions(cfg *config.Config, logger *slog.Logger) (service.AuthOptions, error) {
	secret := cfg.Session.Secret
	if secret == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return service.AuthOptions{}, fmt.Errorf("generate session secret: %w", err)
		}
		secret = hex.EncodeToString(b)
		logger.Warn("session.secret not set, using a random secret; dashboard sessions will not survive a restart")
	}
	return service.AuthOptions{
		ClientID:      cfg.Discord.ClientID,
		ClientSecret:  cfg.Discord.ClientSecret,
		RedirectURL:   cfg.Discord.RedirectURL,
		VIPs:          cfg.Access.VIPs,
		SessionSecret: secret,
		SessionTTL:    cfg.Session.TTL,
	}, nil
}

func displayHost(host string) string {
	if host == "" || host == "0.0.0.0" {
		return "localhost"
	}
	return host
}
