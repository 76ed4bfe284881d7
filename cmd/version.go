package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, _ []string) {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "brainbox %s\n", AppVersion)
		fmt.Fprintf(w, "Build Time: %s\n", BuildTime)
		fmt.Fprintf(w, "Git Commit: %s\n", GitCommit)

		if key := os.Getenv("GEMINI_API_KEY"); key != "" && len(key) > 8 {
			fmt.Fprintf(w, "GEMINI_API_KEY: %s...%s (configured)\n", key[:4], key[len(key)-4:])
		} else if key != "" {
			fmt.Fprintln(w, "GEMINI_API_KEY: configured")
		} else {
			fmt.Fprintln(w, "GEMINI_API_KEY: not set")
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
