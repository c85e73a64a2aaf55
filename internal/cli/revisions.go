package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"binmap/internal/core"
	"binmap/pkg/domain"
)

// RevisionsCmd returns the revisions command group.
func RevisionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revisions",
		Short: "Inspect and prune blueprint revision ledgers",
	}
	addCallerFlags(cmd)
	cmd.AddCommand(revisionsListCmd())
	cmd.AddCommand(revisionsPruneCmd())
	return cmd
}

func revisionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <blueprint-id>",
		Short: "List revisions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *core.Service, caller domain.CallerContext) error {
				revs, err := svc.ListRevisions(ctx, caller, args[0])
				if err != nil {
					return err
				}
				count, err := svc.CountRevisions(ctx, caller, args[0])
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "VERSION\tID\tCREATED\tBY\tDESCRIPTION")
				for _, r := range revs {
					desc := ""
					if r.Description != nil {
						desc = *r.Description
					}
					fmt.Fprintf(tw, "v%d\t%s\t%s\t%s\t%s\n", r.Version, r.ID, r.CreatedAt.UTC().Format(time.RFC3339), r.CreatedBy, desc)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				usage := fmt.Sprintf("%d/%d revisions", count.Count, count.Max)
				if count.NearLimit {
					usage = color.New(color.FgYellow).Sprint(usage + " (near limit)")
				}
				fmt.Fprintln(cmd.OutOrStdout(), usage)
				return nil
			})
		},
	}
}

func revisionsPruneCmd() *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune <blueprint-id>",
		Short: "Delete all but the newest --keep revisions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *core.Service, caller domain.CallerContext) error {
				n, err := svc.PruneRevisions(ctx, caller, args[0], keep)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d revisions\n", n)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 10, "number of newest revisions to keep")
	return cmd
}
