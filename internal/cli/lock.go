package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"binmap/internal/core"
	"binmap/pkg/domain"
)

// LockCmd returns the lock command group.
func LockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspect and release blueprint editing locks",
	}
	addCallerFlags(cmd)
	cmd.AddCommand(lockStatusCmd())
	cmd.AddCommand(lockReleaseCmd())
	return cmd
}

func lockStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <blueprint-id>",
		Short: "Show who holds the editing lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *core.Service, caller domain.CallerContext) error {
				state, err := svc.LockStatus(ctx, caller, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), formatLockState(args[0], state))
				return nil
			})
		},
	}
}

func lockReleaseCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "release <blueprint-id>",
		Short: "Release the caller's lock, or any lock with --force",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *core.Service, caller domain.CallerContext) error {
				out := cmd.OutOrStdout()
				if force {
					res, err := svc.ForceReleaseLock(ctx, caller, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s %s\n", color.New(color.FgYellow).Sprint(res.Message), holderSuffix(res.PreviousHolder))
					printRevision(cmd, res.RevisionID)
					return nil
				}
				res, err := svc.ReleaseLock(ctx, caller, args[0])
				if err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("%s (%s)", res.Message, res.LockedBy)
				}
				fmt.Fprintln(out, color.New(color.FgGreen).Sprint(res.Message))
				printRevision(cmd, res.RevisionID)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "release regardless of holder (executive officers and above)")
	return cmd
}

func formatLockState(blueprintID string, state domain.LockState) string {
	if !state.Locked() {
		return fmt.Sprintf("%s %s", blueprintID, color.New(color.FgGreen).Sprint("UNLOCKED"))
	}
	return fmt.Sprintf("%s %s by %s until %s", blueprintID,
		color.New(color.FgYellow).Sprint("LOCKED"), state.Holder, state.ExpiresAt.UTC().Format(time.RFC3339))
}

func holderSuffix(holder string) string {
	if holder == "" {
		return "(no holder)"
	}
	return "(was " + holder + ")"
}

func printRevision(cmd *cobra.Command, id string) {
	if id != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "  saved revision %s\n", id)
	}
}
