package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brainbox0/brainbox/internal/app"
	"github.com/brainbox0/brainbox/internal/brain"
	"github.com/brainbox0/brainbox/internal/retriever"
)

var (
	askTopK        int
	askBudget      int
	askSourcesOnly bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the knowledge base a question",
	Args:  cobra.MinimumNArgs(1),
	RunE:  withApp(runAsk),
}

func init() {
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "maximum results (0 = configured default)")
	askCmd.Flags().IntVar(&askBudget, "budget", 0, "token budget for retrieved chunks (0 = configured default)")
	askCmd.Flags().BoolVar(&askSourcesOnly, "sources-only", false, "print matching chunks without generating an answer")
	rootCmd.AddCommand(askCmd)
}

func runAsk(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	var opts []retriever.Option
	topK := askTopK
	if topK == 0 {
		topK = a.Config.RetrievalTopK
	}
	opts = append(opts, retriever.WithTopK(topK))
	budget := askBudget
	if budget == 0 {
		budget = a.Config.RetrievalTokenBudget
	}
	opts = append(opts, retriever.WithTokenBudget(budget))

	w := cmd.OutOrStdout()
	if askSourcesOnly {
		results, err := a.Brain.Query(ctx, question, opts...)
		if err != nil {
			return fmt.Errorf("querying: %w", err)
		}
		if len(results) == 0 {
			fmt.Fprintln(w, "No matching content found.")
			return nil
		}
		printSources(w, results)
		return nil
	}

	answer, err := a.Brain.Answer(ctx, brain.NewContext(), question, opts...)
	if err != nil {
		return fmt.Errorf("answering: %w", err)
	}
	fmt.Fprintln(w, answer.Text)
	if len(answer.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		printSources(w, answer.Sources)
	}
	return nil
}

func printSources(w io.Writer, results []retriever.Result) {
	for i, res := range results {
		fmt.Fprintf(w, "%d. [%.3f] %s\n", i+1, res.Score, res.Source)
		fmt.Fprintf(w, "   %s\n\n", strings.ReplaceAll(res.Text, "\n", "\n   "))
	}
}
