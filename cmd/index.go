package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brainbox0/brainbox/internal/app"
	"github.com/brainbox0/brainbox/internal/indexer"
	"github.com/brainbox0/brainbox/internal/knowledge"
)

var (
	indexSourceType string
	indexSourceName string
)

var indexCmd = &cobra.Command{
	Use:   "index [file|url|-]",
	Short: "Ingest content into the knowledge base",
	Long: `Index a file, a URL, or stdin ("-") into the knowledge base.
The content is chunked, embedded for search, and mined for entities and
relations. Re-indexing identical content is a no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(runIndex),
}

func init() {
	indexCmd.Flags().StringVarP(&indexSourceType, "type", "t", "", "source type (text, url); inferred when omitted")
	indexCmd.Flags().StringVarP(&indexSourceName, "source", "s", "", "source label to record; defaults to the path or URL")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
	target := args[0]

	source, sourceType, raw, err := readIndexInput(target)
	if err != nil {
		return err
	}
	if indexSourceType != "" {
		sourceType = indexSourceType
	}
	if indexSourceName != "" {
		source = indexSourceName
	}

	out, err := a.Brain.IndexContent(ctx, source, sourceType, raw)
	if err != nil {
		return fmt.Errorf("indexing %s: %w", source, err)
	}
	printOutcome(cmd.OutOrStdout(), out)
	return nil
}

func readIndexInput(target string) (source, sourceType, raw string, err error) {
	switch {
	case target == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", "", "", fmt.Errorf("reading stdin: %w", err)
		}
		return "stdin", string(knowledge.SourceText), string(data), nil
	case strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://"):
		// URL content is fetched by the normalizer.
		return target, string(knowledge.SourceURL), "", nil
	default:
		data, err := os.ReadFile(target)
		if err != nil {
			return "", "", "", fmt.Errorf("reading %s: %w", target, err)
		}
		return target, string(knowledge.SourceText), string(data), nil
	}
}

func printOutcome(w io.Writer, out indexer.Outcome) {
	fmt.Fprintf(w, "Document: %s\n", out.DocumentID)
	fmt.Fprintf(w, "Status:   %s\n", out.Status)
	if out.Status == indexer.StatusDuplicate {
		return
	}
	fmt.Fprintf(w, "Chunks:   %d\n", out.ChunkCount)
	fmt.Fprintf(w, "Entities: %d, Relations: %d\n", out.EntityCount, out.RelationCount)
	for _, e := range out.Errors {
		fmt.Fprintf(w, "Warning:  %s\n", e)
	}
}
