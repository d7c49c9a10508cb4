package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const jobColumns = `id, user_id, url, status, job_type, metadata, result, error, queued_at, updated_at`

// ErrDuplicateActiveJob reports a unique violation on the single-flight
// indexes: another non-terminal job already holds the same key.
var ErrDuplicateActiveJob = errors.New("an equivalent job is already active")

func scanJob(row interface{ Scan(...any) error }) (Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.UserID, &j.URL, &j.Status, &j.JobType,
		nullRaw{&j.Metadata}, nullRaw{&j.Result}, &j.Error, &j.QueuedAt, &j.UpdatedAt)
	return j, err
}

func (s *PostgresStore) CreateJob(ctx context.Context, j Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, user_id, url, status, job_type, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, j.ID, j.UserID, j.URL, j.Status, j.JobType, rawArg(j.Metadata))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateActiveJob
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (Job, error) {
	return scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=$1`, jobID))
}

func (s *PostgresStore) ListJobsForUser(ctx context.Context, userID string) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE user_id=$1 ORDER BY queued_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// FindActiveJobByURL returns a pending/processing job for (user, url), if any.
// It backs the single-flight check for URL jobs.
func (s *PostgresStore) FindActiveJobByURL(ctx context.Context, userID, url string) (*Job, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE user_id=$1 AND url=$2 AND status IN ('pending', 'processing')
		ORDER BY queued_at LIMIT 1
	`, userID, url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active job by url: %w", err)
	}
	return &j, nil
}

// FindActiveJobByType is the CSV-upload variant of single-flight: one active
// job per (user, jobType) regardless of URL.
func (s *PostgresStore) FindActiveJobByType(ctx context.Context, userID, jobType string) (*Job, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE user_id=$1 AND job_type=$2 AND status IN ('pending', 'processing')
		ORDER BY queued_at LIMIT 1
	`, userID, jobType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active job by type: %w", err)
	}
	return &j, nil
}

// ClaimOldestPendingJob atomically moves the oldest pending job to
// processing. Workers across processes race on this; SKIP LOCKED plus the
// status guard makes the claim a compare-and-set, and a loser just gets nil.
func (s *PostgresStore) ClaimOldestPendingJob(ctx context.Context) (*Job, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, `
		UPDATE jobs SET status='processing', updated_at=NOW()
		WHERE id = (
			SELECT id FROM jobs WHERE status='pending'
			ORDER BY queued_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		) AND status='pending'
		RETURNING `+jobColumns+`
	`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim pending job: %w", err)
	}
	return &j, nil
}

// CompleteJob commits the terminal completed state. Status and result land in
// one row write, so any reader that observes completed observes the result.
func (s *PostgresStore) CompleteJob(ctx context.Context, jobID string, result json.RawMessage) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status='completed', result=$2, updated_at=NOW()
		WHERE id=$1 AND status='processing'
	`, jobID, rawArg(result))
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("complete job %s: not in processing state", jobID)
	}
	return nil
}

func (s *PostgresStore) FailJob(ctx context.Context, jobID, message string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status='failed', error=$2, updated_at=NOW()
		WHERE id=$1 AND status='processing'
	`, jobID, message)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("fail job %s: not in processing state", jobID)
	}
	return nil
}

// CancelPendingJob fails a pending job on behalf of its owner. Processing
// jobs are past the point of cancellation and return false.
func (s *PostgresStore) CancelPendingJob(ctx context.Context, jobID, userID, message string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status='failed', error=$3, updated_at=NOW()
		WHERE id=$1 AND user_id=$2 AND status='pending'
	`, jobID, userID, message)
	if err != nil {
		return false, fmt.Errorf("cancel job: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteTerminalJobsBefore hard-deletes completed/failed jobs whose last
// update is older than the cutoff. Reaper only.
func (s *PostgresStore) DeleteTerminalJobsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM jobs WHERE status IN ('completed', 'failed') AND updated_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete terminal jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// FailStaleProcessingJobs resweeps processing jobs stranded by a crashed
// worker: anything untouched since the cutoff fails with the given message.
func (s *PostgresStore) FailStaleProcessingJobs(ctx context.Context, cutoff time.Time, message string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status='failed', error=$2, updated_at=NOW()
		WHERE status='processing' AND updated_at < $1
	`, cutoff, message)
	if err != nil {
		return 0, fmt.Errorf("fail stale jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
