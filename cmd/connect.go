package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brainbox0/brainbox/internal/app"
	"github.com/brainbox0/brainbox/internal/graph"
)

var connectMaxDepth int

var connectCmd = &cobra.Command{
	Use:   "connect [from] [to]",
	Short: "Find how two entities relate",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runConnect),
}

func init() {
	connectCmd.Flags().IntVarP(&connectMaxDepth, "max-depth", "d", 0, "maximum path length in hops (0 = default)")
	rootCmd.AddCommand(connectCmd)
}

func runConnect(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
	conns, err := a.Brain.Connect(ctx, args[0], args[1], connectMaxDepth)
	w := cmd.OutOrStdout()
	switch {
	case errors.Is(err, graph.ErrEntityNotFound):
		fmt.Fprintln(w, "One of the entities is not in the graph.")
		return nil
	case err != nil:
		return fmt.Errorf("connecting %s and %s: %w", args[0], args[1], err)
	}
	if len(conns) == 0 {
		fmt.Fprintf(w, "No path between %q and %q within the depth bound.\n", args[0], args[1])
		return nil
	}

	for n, conn := range conns {
		if n > 0 {
			fmt.Fprintln(w)
		}
		for i, ent := range conn.Path {
			if i > 0 {
				fmt.Fprintf(w, "  %s\n", conn.Relations[i-1].Label)
			}
			fmt.Fprintf(w, "%s (%s)\n", ent.Name, ent.Type)
		}
		fmt.Fprintf(w, "Path length: %d, novelty: %.3f\n", len(conn.Relations), conn.Novelty)
	}
	return nil
}
