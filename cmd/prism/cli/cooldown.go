package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/prismkeys/prism/internal/model"
	"github.com/prismkeys/prism/internal/store"
)

func newCooldownCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cooldown",
		Short: "Inspect per-user cooldown markers",
		Long: `Cooldown markers record when each user was last issued a key. They are
advisory: issuance never refuses a request because of one.`,
	}

	cmd.AddCommand(newCooldownListCmd())
	cmd.AddCommand(newCooldownRemoveCmd())

	return cmd
}

func newCooldownListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List cooldown markers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCooldownList(cmd.OutOrStdout(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runCooldownList(out io.Writer, jsonOutput bool) error {
	ctx := context.Background()
	_, s, err := openConfiguredStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	cooldowns, err := s.ListCooldowns(ctx)
	if err != nil {
		return fmt.Errorf("list cooldowns: %w", err)
	}
	if cooldowns == nil {
		cooldowns = []model.Cooldown{}
	}

	if wantJSON(out, jsonOutput) {
		return encodeJSON(out, cooldowns)
	}
	if len(cooldowns) == 0 {
		fmt.Fprintln(out, "No cooldowns recorded.")
		return nil
	}

	fmt.Fprintf(out, "%-20s  %-20s  %-16s  %s\n", "USER ID", "NAME", "LAST ISSUED", "ENDS")
	for _, c := range cooldowns {
		fmt.Fprintf(out, "%-20s  %-20s  %-16s  %s\n",
			c.OwnerID, truncate(c.OwnerLabel, 20), formatTime(c.LastIssuedAt), formatTime(c.CooldownEndsAt))
	}
	return nil
}

func newCooldownRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <user-id>",
		Aliases: []string{"rm"},
		Short:   "Remove a user's cooldown marker",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCooldownRemove(cmd.OutOrStdout(), args[0])
		},
	}
}

func runCooldownRemove(out io.Writer, userID string) error {
	ctx := context.Background()
	_, s, err := openConfiguredStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.RemoveCooldown(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no cooldown recorded for %s", userID)
		}
		return fmt.Errorf("remove cooldown: %w", err)
	}
	fmt.Fprintf(out, "Cooldown for %s removed.\n", userID)
	return nil
}
