package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Deactivate expired keys once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.OutOrStdout(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the report as JSON")

	return cmd
}

func runSweep(out io.Writer, jsonOutput bool) error {
	ctx := context.Background()
	cfg, s, err := openConfiguredStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	logger := newLogger(io.Discard, cfg.Log)
	rt, err := buildApp(cfg, s, false, logger)
	if err != nil {
		return err
	}

	report, err := rt.sweeper.SweepOnce(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	fmt.Fprintf(out, "Scanned %d keys: %d expired, %d failed.\n", report.Scanned, report.Expired, report.Failed)
	return nil
}
