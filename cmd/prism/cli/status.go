package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/prismkeys/prism/internal/model"
)

func newStatusCmd() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check if the Prism server and bot are running",
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				url = fmt.Sprintf("http://%s:%d", displayHost(cfg.Server.Host), cfg.Server.Port)
			}
			return runStatus(cmd.OutOrStdout(), url)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Base URL of the server (default: from server.host and server.port)")

	return cmd
}

func runStatus(out io.Writer, baseURL string) error {
	baseURL = strings.TrimSuffix(baseURL, "/")
	client := &http.Client{Timeout: 2 * time.Second}

	healthAddr := baseURL + "/healthz"
	resp, err := client.Get(healthAddr)
	if err != nil {
		fmt.Fprintf(out, "Server is not responding at %s.\n", baseURL)
		return nil
	}
	resp.Body.Close()

	fmt.Fprintln(out, "Server is running")
	fmt.Fprintf(out, "  Health:  %s (%d)\n", healthAddr, resp.StatusCode)

	resp, err = client.Get(baseURL + "/api/bot/status")
	if err != nil {
		fmt.Fprintf(out, "  Bot:     unknown (%v)\n", err)
		return nil
	}
	defer resp.Body.Close()

	var status model.BotStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(out, "  Bot:     unknown (%v)\n", err)
		return nil
	}
	if status.Online {
		fmt.Fprintf(out, "  Bot:     online (up %s)\n", status.Uptime)
	} else {
		fmt.Fprintln(out, "  Bot:     offline")
	}
	return nil
}
