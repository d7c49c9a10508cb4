package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"wishlane/api/internal/store"
)

// memJobStore is an in-memory Store with the same claim and guard semantics
// as the postgres implementation.
type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]*store.Job
	seq  int
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[string]*store.Job)}
}

func (m *memJobStore) CreateJob(_ context.Context, j store.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Mirror the partial unique indexes: one non-terminal job per
	// (user, url), one active csv import per user.
	for _, existing := range m.jobs {
		if existing.UserID != j.UserID ||
			(existing.Status != store.JobPending && existing.Status != store.JobProcessing) {
			continue
		}
		if j.JobType == store.JobTypeCSVImport {
			if existing.JobType == store.JobTypeCSVImport {
				return store.ErrDuplicateActiveJob
			}
			continue
		}
		if existing.JobType != store.JobTypeCSVImport && existing.URL == j.URL {
			return store.ErrDuplicateActiveJob
		}
	}
	m.seq++
	j.QueuedAt = time.Now().Add(time.Duration(m.seq) * time.Millisecond)
	j.UpdatedAt = j.QueuedAt
	m.jobs[j.ID] = &j
	return nil
}

func (m *memJobStore) GetJob(_ context.Context, jobID string) (store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return store.Job{}, sql.ErrNoRows
	}
	return *j, nil
}

func (m *memJobStore) ListJobsForUser(_ context.Context, userID string) ([]store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Job
	for _, j := range m.jobs {
		if j.UserID == userID {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].QueuedAt.After(out[b].QueuedAt) })
	return out, nil
}

func (m *memJobStore) FindActiveJobByURL(_ context.Context, userID, url string) (*store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.UserID == userID && j.URL == url && (j.Status == store.JobPending || j.Status == store.JobProcessing) {
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memJobStore) FindActiveJobByType(_ context.Context, userID, jobType string) (*store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.UserID == userID && j.JobType == jobType && (j.Status == store.JobPending || j.Status == store.JobProcessing) {
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memJobStore) ClaimOldestPendingJob(_ context.Context) (*store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *store.Job
	for _, j := range m.jobs {
		if j.Status != store.JobPending {
			continue
		}
		if oldest == nil || j.QueuedAt.Before(oldest.QueuedAt) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, nil
	}
	oldest.Status = store.JobProcessing
	oldest.UpdatedAt = time.Now()
	cp := *oldest
	return &cp, nil
}

func (m *memJobStore) CompleteJob(_ context.Context, jobID string, result json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok || j.Status != store.JobProcessing {
		return fmt.Errorf("job %s not in processing state", jobID)
	}
	j.Status = store.JobCompleted
	j.Result = result
	j.UpdatedAt = time.Now()
	return nil
}

func (m *memJobStore) FailJob(_ context.Context, jobID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok || j.Status != store.JobProcessing {
		return fmt.Errorf("job %s not in processing state", jobID)
	}
	j.Status = store.JobFailed
	j.Error = message
	j.UpdatedAt = time.Now()
	return nil
}

func (m *memJobStore) CancelPendingJob(_ context.Context, jobID, userID, message string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok || j.UserID != userID || j.Status != store.JobPending {
		return false, nil
	}
	j.Status = store.JobFailed
	j.Error = message
	j.UpdatedAt = time.Now()
	return true, nil
}

func (m *memJobStore) DeleteTerminalJobsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, j := range m.jobs {
		if (j.Status == store.JobCompleted || j.Status == store.JobFailed) && j.UpdatedAt.Before(cutoff) {
			delete(m.jobs, id)
			n++
		}
	}
	return n, nil
}

func (m *memJobStore) FailStaleProcessingJobs(_ context.Context, cutoff time.Time, message string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, j := range m.jobs {
		if j.Status == store.JobProcessing && j.UpdatedAt.Before(cutoff) {
			j.Status = store.JobFailed
			j.Error = message
			j.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAcceptSingleFlightByURL(t *testing.T) {
	st := newMemJobStore()
	engine := NewEngine(st, discard())
	ctx := context.Background()

	first, reused, err := engine.Accept(ctx, "u1", store.JobTypeItemFetch, "https://x/y", nil)
	if err != nil || reused {
		t.Fatalf("first accept: reused=%v err=%v", reused, err)
	}
	second, reused, err := engine.Accept(ctx, "u1", store.JobTypeItemFetch, "https://x/y", nil)
	if err != nil {
		t.Fatalf("second accept: %v", err)
	}
	if !reused || second.ID != first.ID {
		t.Fatalf("expected reuse of %s, got %s (reused=%v)", first.ID, second.ID, reused)
	}
	if len(st.jobs) != 1 {
		t.Fatalf("job table has %d rows, want 1", len(st.jobs))
	}

	// A different user or URL is its own flight.
	other, reused, err := engine.Accept(ctx, "u2", store.JobTypeItemFetch, "https://x/y", nil)
	if err != nil || reused || other.ID == first.ID {
		t.Fatalf("cross-user accept: id=%s reused=%v err=%v", other.ID, reused, err)
	}
}

// gatedJobStore stalls the single-flight find until two callers have run it,
// reproducing the cross-process interleaving where both finds complete before
// either insert.
type gatedJobStore struct {
	*memJobStore
	gateMu  sync.Mutex
	finds   int
	barrier chan struct{}
}

func (g *gatedJobStore) FindActiveJobByURL(ctx context.Context, userID, url string) (*store.Job, error) {
	j, err := g.memJobStore.FindActiveJobByURL(ctx, userID, url)
	g.gateMu.Lock()
	g.finds++
	if g.finds == 2 {
		close(g.barrier)
	}
	g.gateMu.Unlock()
	<-g.barrier
	return j, err
}

func TestAcceptConcurrentSameURL(t *testing.T) {
	st := &gatedJobStore{memJobStore: newMemJobStore(), barrier: make(chan struct{})}
	engine := NewEngine(st, discard())
	ctx := context.Background()

	var wg sync.WaitGroup
	accepted := make([]store.Job, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			accepted[i], _, errs[i] = engine.Accept(ctx, "u1", store.JobTypeItemFetch, "https://x/y", nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("accept %d: %v", i, err)
		}
	}
	if accepted[0].ID != accepted[1].ID {
		t.Fatalf("single flight violated: %s vs %s", accepted[0].ID, accepted[1].ID)
	}
	if len(st.memJobStore.jobs) != 1 {
		t.Fatalf("jobs table has %d rows, want 1", len(st.memJobStore.jobs))
	}
}

func TestAcceptSingleFlightCSVIgnoresURL(t *testing.T) {
	st := newMemJobStore()
	engine := NewEngine(st, discard())
	ctx := context.Background()

	first, _, err := engine.Accept(ctx, "u1", store.JobTypeCSVImport, "", EncodeCSVMetadata("a.csv", "aGk="))
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	second, reused, err := engine.Accept(ctx, "u1", store.JobTypeCSVImport, "", EncodeCSVMetadata("b.csv", "eW8="))
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !reused || second.ID != first.ID {
		t.Fatal("csv imports should single-flight per user regardless of payload")
	}
}

func TestCancelOnlyPending(t *testing.T) {
	st := newMemJobStore()
	engine := NewEngine(st, discard())
	ctx := context.Background()

	job, _, err := engine.Accept(ctx, "u1", store.JobTypeItemFetch, "https://x/y", nil)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := engine.Cancel(ctx, job.ID, "u1"); err != nil {
		t.Fatalf("cancel pending: %v", err)
	}
	got, err := st.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != store.JobFailed || got.Error != "Job cancelled by user" {
		t.Fatalf("cancelled job = %+v", got)
	}

	// Terminal jobs cannot be cancelled again.
	if err := engine.Cancel(ctx, job.ID, "u1"); !errors.Is(err, ErrNotCancelable) {
		t.Fatalf("expected ErrNotCancelable, got %v", err)
	}

	// Other users get a not-found, not a hint the job exists.
	job2, _, _ := engine.Accept(ctx, "u1", store.JobTypeItemFetch, "https://x/z", nil)
	if err := engine.Cancel(ctx, job2.ID, "u2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign job, got %v", err)
	}
}

func TestGetHidesForeignJobs(t *testing.T) {
	st := newMemJobStore()
	engine := NewEngine(st, discard())
	ctx := context.Background()

	job, _, _ := engine.Accept(ctx, "u1", store.JobTypeItemFetch, "https://x/y", nil)
	if _, err := engine.Get(ctx, job.ID, "u2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := engine.Get(ctx, "missing", "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type scriptedRunner struct {
	results map[string]json.RawMessage
	errs    map[string]error
}

func (s *scriptedRunner) Run(_ context.Context, job store.Job) (json.RawMessage, error) {
	if err := s.errs[job.ID]; err != nil {
		return nil, err
	}
	return s.results[job.ID], nil
}

func TestWorkerDrivesJobsToTerminalStates(t *testing.T) {
	st := newMemJobStore()
	engine := NewEngine(st, discard())
	ctx := context.Background()

	ok, _, _ := engine.Accept(ctx, "u1", store.JobTypeItemFetch, "https://x/ok", nil)
	bad, _, _ := engine.Accept(ctx, "u1", store.JobTypeItemFetch, "https://x/bad", nil)

	runner := &scriptedRunner{
		results: map[string]json.RawMessage{ok.ID: json.RawMessage(`{"totalItems":1}`)},
		errs:    map[string]error{bad.ID: errors.New("render failed")},
	}
	w := NewWorker(st, runner, discard())
	w.drainPending(ctx)

	done, _ := st.GetJob(ctx, ok.ID)
	if done.Status != store.JobCompleted || string(done.Result) != `{"totalItems":1}` {
		t.Fatalf("completed job = %+v", done)
	}
	failed, _ := st.GetJob(ctx, bad.ID)
	if failed.Status != store.JobFailed || failed.Error != "render failed" {
		t.Fatalf("failed job = %+v", failed)
	}
}

func TestWorkerClaimsOldestFirst(t *testing.T) {
	st := newMemJobStore()
	engine := NewEngine(st, discard())
	ctx := context.Background()

	first, _, _ := engine.Accept(ctx, "u1", store.JobTypeItemFetch, "https://x/1", nil)
	engine.Accept(ctx, "u1", store.JobTypeItemFetch, "https://x/2", nil)

	claimed, err := st.ClaimOldestPendingJob(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.ID != first.ID {
		t.Fatalf("claimed %s, want oldest %s", claimed.ID, first.ID)
	}
	if claimed.Status != store.JobProcessing {
		t.Fatalf("claimed status = %s", claimed.Status)
	}
}

func TestReaperSweep(t *testing.T) {
	st := newMemJobStore()
	ctx := context.Background()

	old := store.Job{ID: "old", UserID: "u", Status: store.JobCompleted, JobType: store.JobTypeItemFetch}
	st.jobs["old"] = &old
	st.jobs["old"].UpdatedAt = time.Now().Add(-48 * time.Hour)

	fresh := store.Job{ID: "fresh", UserID: "u", Status: store.JobFailed, JobType: store.JobTypeItemFetch}
	st.jobs["fresh"] = &fresh
	st.jobs["fresh"].UpdatedAt = time.Now()

	stuck := store.Job{ID: "stuck", UserID: "u", Status: store.JobProcessing, JobType: store.JobTypeItemFetch}
	st.jobs["stuck"] = &stuck
	st.jobs["stuck"].UpdatedAt = time.Now().Add(-time.Hour)

	NewReaper(st, discard()).sweep(ctx)

	if _, err := st.GetJob(ctx, "old"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatal("old terminal job not reaped")
	}
	if _, err := st.GetJob(ctx, "fresh"); err != nil {
		t.Fatal("fresh terminal job reaped too early")
	}
	got, _ := st.GetJob(ctx, "stuck")
	if got.Status != store.JobFailed || got.Error != staleMessage {
		t.Fatalf("stale processing job = %+v", got)
	}
}
