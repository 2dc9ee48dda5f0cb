package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newBotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run only the Discord bot and the expiration sweeper",
		Long: `Connect the Discord bot and run the expiration sweeper without the HTTP
server. Useful when the API is served by a separate process sharing the same
database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot()
		},
	}
}

func runBot() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Discord.Token == "" || cfg.Discord.ClientID == "" {
		return errors.New("discord.token and discord.client_id are required to run the bot")
	}
	logger := newLogger(os.Stderr, cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	rt, err := buildApp(cfg, s, true, logger)
	if err != nil {
		return err
	}
	rt.start(ctx)
	defer rt.stop()
	if rt.bot == nil {
		return errors.New("discord bot failed to connect, see the audit log")
	}

	logger.Info("bot running, press Ctrl+C to stop")
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
