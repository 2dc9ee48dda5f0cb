package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	pmcp "github.com/prismkeys/prism/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		port      int
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes read-only key
operations (validation, stats, recent keys, logs and cooldowns) as tools for AI
agents. Supports stdio (default) and HTTP transports.`,
		Example: `  prism mcp                              # stdio mode
  prism mcp --transport http --port 3001   # Streamable HTTP mode`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("transport") {
				if cfg, err := loadConfig(); err == nil && cfg.MCP.Transport != "" {
					transport = cfg.MCP.Transport
				}
			}
			return runMCP(transport, port)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().IntVar(&port, "port", 3001, "HTTP port (only used with --transport http)")

	return cmd
}

func runMCP(transport string, port int) error {
	if transport != "stdio" && transport != "http" {
		return fmt.Errorf("unknown transport %q (use stdio or http)", transport)
	}

	ctx := context.Background()
	cfg, s, err := openConfiguredStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	// stdout carries the protocol in stdio mode; logs go to stderr.
	logger := newLogger(os.Stderr, cfg.Log)

	rt, err := buildApp(cfg, s, false, logger)
	if err != nil {
		return err
	}

	srv := pmcp.NewMCPServer(pmcp.Deps{
		Store:     s,
		Validator: rt.validator,
		Stats:     rt.stats,
		Keys:      cfg.Keys,
	}, versionString(), logger)

	if transport == "http" {
		return srv.ServeHTTP(fmt.Sprintf(":%d", port))
	}
	return srv.ServeStdio()
}
