package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brainbox0/brainbox/internal/app"
	"github.com/brainbox0/brainbox/internal/graph"
)

var ideasCount int

var ideasCmd = &cobra.Command{
	Use:   "ideas [topic]",
	Short: "Generate ideas from the knowledge graph",
	Long: `Generate suggestions by combining entities from the knowledge graph.
With a topic, ideas are drawn from that entity's neighborhood; without
one, the most connected entities are used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: withApp(runIdeas),
}

func init() {
	ideasCmd.Flags().IntVarP(&ideasCount, "count", "n", 3, "number of ideas to generate")
	rootCmd.AddCommand(ideasCmd)
}

func runIdeas(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
	topic := ""
	if len(args) == 1 {
		topic = args[0]
	}

	ideas, err := a.Brain.Ideas(ctx, topic, ideasCount)
	w := cmd.OutOrStdout()
	if errors.Is(err, graph.ErrEntityNotFound) {
		fmt.Fprintln(w, "Not enough graph content to generate ideas yet.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("generating ideas: %w", err)
	}
	for i, idea := range ideas {
		fmt.Fprintf(w, "%d. %s\n", i+1, idea.Text)
		if idea.Explanation != "" {
			fmt.Fprintf(w, "   %s\n", idea.Explanation)
		}
		fmt.Fprintln(w)
	}
	return nil
}
