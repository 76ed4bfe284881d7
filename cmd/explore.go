package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brainbox0/brainbox/internal/app"
	"github.com/brainbox0/brainbox/internal/graph"
)

var (
	exploreDepth     int
	exploreMinWeight int64
)

var exploreCmd = &cobra.Command{
	Use:   "explore [entity]",
	Short: "Show the graph neighborhood of an entity",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runExplore),
}

func init() {
	exploreCmd.Flags().IntVarP(&exploreDepth, "depth", "d", 2, "traversal depth in hops")
	exploreCmd.Flags().Int64Var(&exploreMinWeight, "min-weight", 2, "minimum edge evidence to follow")
	rootCmd.AddCommand(exploreCmd)
}

func runExplore(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
	sub, err := a.Brain.Explore(ctx, args[0], exploreDepth, exploreMinWeight)
	if errors.Is(err, graph.ErrEntityNotFound) {
		fmt.Fprintf(cmd.OutOrStdout(), "No entity found matching %q.\n", args[0])
		return nil
	}
	if err != nil {
		return fmt.Errorf("exploring %s: %w", args[0], err)
	}

	w := cmd.OutOrStdout()
	names := make(map[string]string, len(sub.Entities))
	fmt.Fprintf(w, "Entities (%d):\n", len(sub.Entities))
	for _, ent := range sub.Entities {
		names[ent.ID] = ent.Name
		fmt.Fprintf(w, "  %s (%s, weight %d)", ent.Name, ent.Type, ent.Weight)
		if ent.Description != "" {
			fmt.Fprintf(w, ": %s", ent.Description)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "\nRelations (%d):\n", len(sub.Relations))
	for _, rel := range sub.Relations {
		fmt.Fprintf(w, "  %s %s %s (weight %d)\n", names[rel.SourceID], rel.Label, names[rel.TargetID], rel.Weight)
	}
	return nil
}
