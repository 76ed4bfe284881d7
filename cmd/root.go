// Package cmd implements the brainbox command-line interface.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/brainbox0/brainbox/internal/app"
	"github.com/brainbox0/brainbox/internal/config"
	"github.com/brainbox0/brainbox/internal/log"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "brainbox",
	Short: "brainbox - a personal knowledge base with graph-augmented recall",
	Long: `brainbox ingests notes, articles, and web pages into a searchable
knowledge base. Content is chunked and embedded for semantic search, and
entities and relations are extracted into a knowledge graph for
exploration and idea generation.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func newLogger() *log.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level})
}

// withApp loads configuration, wires the application, runs fn, and tears
// everything down afterwards. Every subcommand that needs the stores goes
// through here.
func withApp(fn func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		a, err := app.Setup(ctx, cfg, newLogger())
		if err != nil {
			return fmt.Errorf("initializing application: %w", err)
		}
		defer func() {
			if err := a.Close(); err != nil {
				a.Logger.Warn("shutdown error", "error", err)
			}
		}()

		return fn(ctx, a, cmd, args)
	}
}
