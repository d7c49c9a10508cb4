package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"wishlane/api/internal/browser"
	"wishlane/api/internal/store"
)

const pollInterval = 2 * time.Second

// JobRunner executes a claimed job and returns its result payload.
type JobRunner interface {
	Run(ctx context.Context, job store.Job) (json.RawMessage, error)
}

// Worker polls for pending jobs and drives them to a terminal state. Multiple
// workers across processes race on the claim; the store's compare-and-set
// makes losing the race harmless.
type Worker struct {
	store  Store
	runner JobRunner
	log    *slog.Logger
}

func NewWorker(st Store, runner JobRunner, log *slog.Logger) *Worker {
	return &Worker{store: st, runner: runner, log: log}
}

// Start runs the poll loop until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	w.log.Info("job worker started", "pollInterval", pollInterval)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("job worker stopped")
			return
		case <-ticker.C:
			w.drainPending(ctx)
		}
	}
}

// drainPending claims and runs jobs until the queue is empty, so a burst
// does not wait one poll interval per job.
func (w *Worker) drainPending(ctx context.Context) {
	for {
		job, err := w.store.ClaimOldestPendingJob(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.log.Error("claim pending job", "error", err)
			}
			return
		}
		if job == nil {
			return
		}
		w.runOne(ctx, *job)
		if ctx.Err() != nil {
			return
		}
	}
}

func (w *Worker) runOne(ctx context.Context, job store.Job) {
	started := time.Now()
	w.log.Info("job claimed", "jobId", job.ID, "type", job.JobType, "url", job.URL)

	result, err := w.runner.Run(ctx, job)
	if err != nil {
		message := err.Error()
		if errors.Is(err, browser.ErrBlocked) {
			message = "The site blocked automated access; please try again later"
		}
		if failErr := w.store.FailJob(ctx, job.ID, message); failErr != nil {
			w.log.Error("record job failure", "jobId", job.ID, "error", failErr)
		}
		observeTerminal(job.JobType, store.JobFailed, started)
		w.log.Warn("job failed", "jobId", job.ID, "type", job.JobType, "error", err)
		return
	}

	if err := w.store.CompleteJob(ctx, job.ID, result); err != nil {
		w.log.Error("record job completion", "jobId", job.ID, "error", err)
		return
	}
	observeTerminal(job.JobType, store.JobCompleted, started)
	w.log.Info("job completed", "jobId", job.ID, "type", job.JobType, "took", time.Since(started))
}
