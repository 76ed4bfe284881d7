package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brainbox0/brainbox/internal/app"
)

var purgeCmd = &cobra.Command{
	Use:   "purge [document-id]",
	Short: "Remove a document and its graph evidence",
	Long: `Remove a document from every store: its chunks and embeddings, the
graph evidence those chunks contributed, and its ledger record. Entities
and relations supported only by this document disappear with it.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(runPurge),
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
	if err := a.Brain.Purge(ctx, args[0]); err != nil {
		return fmt.Errorf("purging %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Purged %s\n", args[0])
	return nil
}
