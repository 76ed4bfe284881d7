package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/brainbox0/brainbox/internal/log"
)

// DefaultReconcileInterval is how often the background scheduler attempts
// a repair pass.
const DefaultReconcileInterval = 15 * time.Minute

// Scheduler periodically runs the reconciler so half-indexed documents
// heal without operator intervention.
type Scheduler struct {
	reconciler *Reconciler
	interval   time.Duration
	logger     *log.Logger
}

// NewScheduler creates a reconcile scheduler. A non-positive interval
// falls back to the default.
func NewScheduler(reconciler *Reconciler, interval time.Duration, logger *log.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Scheduler{
		reconciler: reconciler,
		interval:   interval,
		logger:     logger,
	}
}

// Run blocks until ctx is canceled, attempting a reconcile pass on each
// tick. Callers must track the goroutine with a WaitGroup.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	n, err := s.reconciler.Reconcile(ctx)
	switch {
	case errors.Is(err, ErrReconcileBusy):
		s.logger.Debug("reconcile skipped, already running")
	case err != nil:
		s.logger.Warn("scheduled reconcile failed", "error", err)
	case n > 0:
		s.logger.Info("scheduled reconcile repaired documents", "count", n)
	}
}
