package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/prismkeys/prism/internal/keycode"
	"github.com/prismkeys/prism/internal/model"
	"github.com/prismkeys/prism/internal/service"
	"github.com/prismkeys/prism/internal/store"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage access keys",
		Long:  "Issue, list, validate and expire access keys directly against the store.",
	}

	cmd.AddCommand(newKeyIssueCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyValidateCmd())
	cmd.AddCommand(newKeyExpireCmd())

	return cmd
}

// ---------- key issue ----------

func newKeyIssueCmd() *cobra.Command {
	var (
		tier  string
		user  string
		label string
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a key on behalf of a Discord user",
		Long: `Issue a key exactly as the matching slash command would. A 24-hour request
returns the user's existing usable key when there is one. Month, year and
lifetime keys require --user to be an allowlisted issuer.`,
		Example: `  prism key issue --user 123456789012345678 --label alice
  prism key issue --tier month --user 987654321098765432`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyIssue(cmd.OutOrStdout(), tier, user, label)
		},
	}

	cmd.Flags().StringVar(&tier, "tier", string(model.TierShort), "Key tier: short, month, year or lifetime")
	cmd.Flags().StringVar(&user, "user", "", "Discord user id of the requester (required)")
	cmd.Flags().StringVar(&label, "label", "", "Display name recorded with the key (default: the user id)")
	cmd.MarkFlagRequired("user")

	return cmd
}

func runKeyIssue(out io.Writer, tierName, user, label string) error {
	t, err := model.ParseTier(tierName)
	if err != nil {
		return err
	}
	if label == "" {
		label = user
	}

	ctx := context.Background()
	cfg, s, err := openConfiguredStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	rt, err := buildApp(cfg, s, false, newLogger(io.Discard, cfg.Log))
	if err != nil {
		return err
	}

	res, err := rt.issuer.Issue(ctx, service.Requester{ID: user, Label: label}, t)
	var authErr *service.AuthorizationError
	if errors.As(err, &authErr) {
		return fmt.Errorf("user %s may not issue %s keys", user, t)
	}
	if err != nil {
		return fmt.Errorf("issue key: %w", err)
	}

	if res.WasReused {
		fmt.Fprintln(out, "Existing key returned:")
	} else {
		fmt.Fprintln(out, "Key issued:")
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Key:      %s\n", res.Code)
	fmt.Fprintf(out, "  Tier:     %s\n", res.Tier.Label())
	fmt.Fprintf(out, "  Expires:  %s\n", formatTime(res.ExpiresAt))
	if res.Transferable {
		fmt.Fprintln(out, "  This key is transferable and may be used by anyone.")
	}
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var (
		activeOnly bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List keys, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(cmd.OutOrStdout(), activeOnly, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only list active keys")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(out io.Writer, activeOnly, jsonOutput bool) error {
	ctx := context.Background()
	_, s, err := openConfiguredStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	var keys []model.Key
	if activeOnly {
		keys, err = s.ListActiveKeys(ctx)
	} else {
		keys, err = s.ListAllKeys(ctx)
	}
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}
	if keys == nil {
		keys = []model.Key{}
	}

	if wantJSON(out, jsonOutput) {
		return encodeJSON(out, keys)
	}

	if len(keys) == 0 {
		fmt.Fprintln(out, "No keys found.")
		return nil
	}

	fmt.Fprintf(out, "%-48s  %-9s  %-20s  %-16s  %-16s  %s\n", "KEY", "TIER", "OWNER", "CREATED", "EXPIRES", "ACTIVE")
	for _, k := range keys {
		active := "yes"
		if !k.Active {
			active = "no"
		}
		fmt.Fprintf(out, "%-48s  %-9s  %-20s  %-16s  %-16s  %s\n",
			k.Code, k.Tier, truncate(k.OwnerLabel, 20), formatTime(k.CreatedAt), formatTime(k.ExpiresAt), active)
	}
	return nil
}

// ---------- key validate ----------

func newKeyValidateCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "validate <code>",
		Short: "Check whether a key is usable",
		Long: `Check a key the way the API does. With --user, 24-hour keys are only valid for
their owner. Validation never changes the store.`,
		Example: `  prism key validate "PrismKey - ABCD - EFGH - IJKL - MNOP" --user 123456789012345678`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyValidate(cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], user)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Discord user id presenting the key")

	return cmd
}

func runKeyValidate(out, errOut io.Writer, code, user string) error {
	if !keycode.Valid(code) {
		fmt.Fprintf(errOut, "Warning: %q is not in the issued key format.\n", code)
	}

	ctx := context.Background()
	cfg, s, err := openConfiguredStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	v := service.NewValidator(s, nil, newLogger(io.Discard, cfg.Log))
	res, err := v.Validate(ctx, code, user)
	if err != nil {
		return fmt.Errorf("validate key: %w", err)
	}

	if !res.Valid {
		fmt.Fprintf(out, "Invalid: %s\n", res.Reason)
		return nil
	}
	fmt.Fprintf(out, "Valid: %s\n", res.Reason)
	fmt.Fprintf(out, "  Owner:    %s\n", res.OwnerLabel)
	fmt.Fprintf(out, "  Expires:  %s\n", formatTime(res.ExpiresAt))
	return nil
}

// ---------- key expire ----------

func newKeyExpireCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "expire <code>",
		Aliases: []string{"revoke"},
		Short:   "Deactivate a key immediately",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyExpire(cmd.OutOrStdout(), args[0])
		},
	}
}

func runKeyExpire(out io.Writer, code string) error {
	ctx := context.Background()
	cfg, s, err := openConfiguredStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	k, err := s.GetKey(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("key %q not found", code)
	}
	if err != nil {
		return fmt.Errorf("get key: %w", err)
	}
	if err := s.ExpireKey(ctx, code); err != nil {
		return fmt.Errorf("expire key: %w", err)
	}

	audit := service.NewAudit(s, nil, newLogger(io.Discard, cfg.Log))
	audit.Info(ctx, k.OwnerID, fmt.Sprintf("Key %s expired for %s by an operator", k.Code, k.OwnerLabel))

	fmt.Fprintf(out, "Key %s deactivated.\n", code)
	return nil
}
