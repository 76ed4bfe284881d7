package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/brainbox0/brainbox/internal/app"
	"github.com/brainbox0/brainbox/internal/ledger"
)

var reconcileWatch bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair documents that only half-indexed",
	Long: `Run one repair pass over documents whose vector or graph half
failed during indexing. Only the failed half is retried, using the chunk
text recorded at index time.

With --watch the command keeps running and repeats the pass on the
configured interval until interrupted.`,
	RunE: withApp(runReconcile),
}

func init() {
	reconcileCmd.Flags().BoolVarP(&reconcileWatch, "watch", "w", false, "keep running and repair on the configured interval")
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
	n, err := a.Brain.Reconcile(ctx)
	if errors.Is(err, ledger.ErrReconcileBusy) {
		fmt.Fprintln(cmd.OutOrStdout(), "A reconcile pass is already running.")
		if !reconcileWatch {
			return nil
		}
	} else if err != nil {
		return fmt.Errorf("reconciling: %w", err)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Repaired %d document(s)\n", n)
	}

	if !reconcileWatch {
		return nil
	}

	watchCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	fmt.Fprintln(cmd.OutOrStdout(), "Watching for half-indexed documents (Ctrl-C to stop)...")
	a.Scheduler.Run(watchCtx)
	return nil
}
