// Package jobs implements the durable import job engine: acceptance with
// single-flight dedupe, the worker poll loop, and the reaper.
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"wishlane/api/internal/store"
	"wishlane/api/internal/util"
)

const cancelledMessage = "Job cancelled by user"

// Store is the slice of the entity store the engine drives.
type Store interface {
	CreateJob(ctx context.Context, j store.Job) error
	GetJob(ctx context.Context, jobID string) (store.Job, error)
	ListJobsForUser(ctx context.Context, userID string) ([]store.Job, error)
	FindActiveJobByURL(ctx context.Context, userID, url string) (*store.Job, error)
	FindActiveJobByType(ctx context.Context, userID, jobType string) (*store.Job, error)
	ClaimOldestPendingJob(ctx context.Context) (*store.Job, error)
	CompleteJob(ctx context.Context, jobID string, result json.RawMessage) error
	FailJob(ctx context.Context, jobID, message string) error
	CancelPendingJob(ctx context.Context, jobID, userID, message string) (bool, error)
	DeleteTerminalJobsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	FailStaleProcessingJobs(ctx context.Context, cutoff time.Time, message string) (int64, error)
}

var (
	ErrNotFound      = errors.New("job not found")
	ErrNotCancelable = errors.New("job is not pending")
)

// Engine accepts and tracks jobs. Execution happens in Worker.
type Engine struct {
	store Store
	log   *slog.Logger
}

func NewEngine(st Store, log *slog.Logger) *Engine {
	return &Engine{store: st, log: log}
}

// Accept queues a new job unless an equivalent one is already in flight.
// CSV imports single-flight on (user, type); URL jobs on (user, url). The
// returned bool reports whether an existing job was reused.
//
// The find-then-insert is raced by concurrent accepts (including from other
// processes); the partial unique indexes make the insert the arbiter, and a
// loser re-runs the find to return the winner's row.
func (e *Engine) Accept(ctx context.Context, userID, jobType, url string, metadata json.RawMessage) (store.Job, bool, error) {
	for attempt := 0; attempt < 3; attempt++ {
		var existing *store.Job
		var err error
		if jobType == store.JobTypeCSVImport {
			existing, err = e.store.FindActiveJobByType(ctx, userID, jobType)
		} else {
			existing, err = e.store.FindActiveJobByURL(ctx, userID, url)
		}
		if err != nil {
			return store.Job{}, false, err
		}
		if existing != nil {
			jobsAccepted.WithLabelValues(jobType, "true").Inc()
			return *existing, true, nil
		}

		job := store.Job{
			ID:       util.NewID("job"),
			UserID:   userID,
			URL:      url,
			Status:   store.JobPending,
			JobType:  jobType,
			Metadata: metadata,
		}
		err = e.store.CreateJob(ctx, job)
		if errors.Is(err, store.ErrDuplicateActiveJob) {
			continue
		}
		if err != nil {
			return store.Job{}, false, fmt.Errorf("queue job: %w", err)
		}
		jobsAccepted.WithLabelValues(jobType, "false").Inc()
		e.log.Info("job queued", "jobId", job.ID, "type", jobType, "userId", userID)
		return job, false, nil
	}
	return store.Job{}, false, fmt.Errorf("queue job: persistent contention for user %s", userID)
}

// Get returns a job if it belongs to the user.
func (e *Engine) Get(ctx context.Context, jobID, userID string) (store.Job, error) {
	job, err := e.store.GetJob(ctx, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Job{}, ErrNotFound
	}
	if err != nil {
		return store.Job{}, err
	}
	if job.UserID != userID {
		return store.Job{}, ErrNotFound
	}
	return job, nil
}

func (e *Engine) List(ctx context.Context, userID string) ([]store.Job, error) {
	return e.store.ListJobsForUser(ctx, userID)
}

// Cancel fails a pending job on the owner's behalf. Processing jobs run to
// their own terminal state and cannot be cancelled.
func (e *Engine) Cancel(ctx context.Context, jobID, userID string) error {
	ok, err := e.store.CancelPendingJob(ctx, jobID, userID, cancelledMessage)
	if err != nil {
		return err
	}
	if ok {
		e.log.Info("job cancelled", "jobId", jobID, "userId", userID)
		return nil
	}
	// Distinguish missing from non-pending for the caller's status code.
	job, err := e.store.GetJob(ctx, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if job.UserID != userID {
		return ErrNotFound
	}
	return fmt.Errorf("%w: status is %s", ErrNotCancelable, job.Status)
}

// CSVMetadata is the payload a csv_import job carries until a worker
// claims it.
type CSVMetadata struct {
	FileName  string `json:"fileName"`
	CSVBase64 string `json:"csvBase64"`
}

func EncodeCSVMetadata(fileName, csvBase64 string) json.RawMessage {
	raw, _ := json.Marshal(CSVMetadata{FileName: fileName, CSVBase64: csvBase64})
	return raw
}

// observeTerminal records metrics for a finished job.
func observeTerminal(jobType, status string, started time.Time) {
	jobsProcessed.WithLabelValues(jobType, status).Inc()
	jobDuration.WithLabelValues(jobType).Observe(time.Since(started).Seconds())
}
