package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/prismkeys/prism/internal/model"
)

func newLogsCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent audit log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(cmd.OutOrStdout(), limit, jsonOutput)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Number of entries to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runLogs(out io.Writer, limit int, jsonOutput bool) error {
	if limit <= 0 {
		return fmt.Errorf("--limit must be positive")
	}

	ctx := context.Background()
	_, s, err := openConfiguredStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	logs, err := s.ListRecentLogs(ctx, limit)
	if err != nil {
		return fmt.Errorf("list logs: %w", err)
	}
	if logs == nil {
		logs = []model.LogEntry{}
	}

	if wantJSON(out, jsonOutput) {
		return encodeJSON(out, logs)
	}
	if len(logs) == 0 {
		fmt.Fprintln(out, "No log entries.")
		return nil
	}

	for _, e := range logs {
		fmt.Fprintf(out, "%s  %-5s  %-20s  %s\n", formatTime(e.Timestamp), e.Level, e.Actor(), e.Message)
	}
	return nil
}
