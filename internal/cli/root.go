package cli

import "github.com/spf13/cobra"

// RootCmd assembles the binmap command tree.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "binmap",
		Short: "Blueprint layout and inventory engine",
		Long: `binmap serves the blueprint engine over HTTP and offers
administrative commands for locks and revision ledgers.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "path to a YAML config file")
	root.AddCommand(ServeCmd())
	root.AddCommand(LockCmd())
	root.AddCommand(RevisionsCmd())
	return root
}
