package jobs

import (
	"context"
	"log/slog"
	"time"
)

const (
	reapInterval      = 6 * time.Hour
	terminalRetention = 24 * time.Hour
	staleProcessing   = 15 * time.Minute

	staleMessage = "Job abandoned: worker did not report progress"
)

// Reaper deletes old terminal jobs and fails processing jobs stranded by a
// crashed worker.
type Reaper struct {
	store Store
	log   *slog.Logger
}

func NewReaper(st Store, log *slog.Logger) *Reaper {
	return &Reaper{store: st, log: log}
}

// Start runs one sweep immediately, then every reapInterval until ctx is
// cancelled.
func (r *Reaper) Start(ctx context.Context) {
	r.sweep(ctx)
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	deleted, err := r.store.DeleteTerminalJobsBefore(ctx, time.Now().Add(-terminalRetention))
	if err != nil {
		r.log.Error("reap terminal jobs", "error", err)
	} else if deleted > 0 {
		jobsReaped.Add(float64(deleted))
		r.log.Info("reaped terminal jobs", "count", deleted)
	}

	failed, err := r.store.FailStaleProcessingJobs(ctx, time.Now().Add(-staleProcessing), staleMessage)
	if err != nil {
		r.log.Error("fail stale processing jobs", "error", err)
	} else if failed > 0 {
		jobsResweptStale.Add(float64(failed))
		r.log.Warn("failed stale processing jobs", "count", failed)
	}
}
