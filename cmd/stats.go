package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brainbox0/brainbox/internal/app"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base statistics",
	RunE:  withApp(runStats),
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
	stats, err := a.Brain.Stats(ctx)
	if err != nil {
		return fmt.Errorf("collecting stats: %w", err)
	}

	w := cmd.OutOrStdout()
	if statsJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Fprintf(w, "Documents: %d\n", stats.Documents)
	fmt.Fprintf(w, "Chunks:    %d\n", stats.Chunks)
	fmt.Fprintf(w, "Entities:  %d\n", stats.Entities)
	fmt.Fprintf(w, "Relations: %d\n", stats.Relations)
	if len(stats.ByState) > 0 {
		fmt.Fprintln(w, "\nIndex health:")
		for state, n := range stats.ByState {
			fmt.Fprintf(w, "  %-22s %d\n", state, n)
		}
	}
	return nil
}
