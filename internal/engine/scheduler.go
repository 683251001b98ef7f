package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/IshaanNene/partscout/internal/types"
)

// JobStatus is the lifecycle state of a queued query.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// ErrQueueFull is returned by Submit when the backlog is at capacity.
var ErrQueueFull = errors.New("job queue full")

// ErrQueueClosed is returned by Submit after Stop.
var ErrQueueClosed = errors.New("job queue closed")

// Job is a query run in the background.
type Job struct {
	ID         string          `json:"id"`
	Status     JobStatus       `json:"status"`
	Query      *types.Query    `json:"query"`
	Result     json.RawMessage `json:"result,omitempty"`
	Cached     bool            `json:"cached,omitempty"`
	Error      string          `json:"error,omitempty"`
	ExitCode   int             `json:"exit_code"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`

	opts RunOptions
}

// RunFunc executes one query for the scheduler.
type RunFunc func(ctx context.Context, q *types.Query, opts RunOptions) (*Result, error)

// Scheduler runs submitted jobs on a fixed pool of workers and keeps
// finished jobs for an hour.
type Scheduler struct {
	run       RunFunc
	workers   int
	timeout   time.Duration
	retention time.Duration
	logger    *slog.Logger

	queue   chan *Job
	jobs    map[string]*Job
	mu      sync.RWMutex
	wg      sync.WaitGroup
	closed  atomic.Bool
	busy    atomic.Int32
	started atomic.Bool
}

// NewScheduler creates a Scheduler with the given number of workers. Each
// job runs under timeout when it is positive.
func NewScheduler(run RunFunc, workers int, timeout time.Duration, logger *slog.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		run:       run,
		workers:   workers,
		timeout:   timeout,
		retention: time.Hour,
		logger:    logger.With("component", "scheduler"),
		queue:     make(chan *Job, workers*16),
		jobs:      make(map[string]*Job),
	}
}

// Start launches the worker pool. It stops when ctx is cancelled or Stop
// is called.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.logger.Info("starting worker pool", "workers", s.workers)
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
}

// Stop closes the queue and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.closed.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return
	}
	close(s.queue)
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("worker pool stopped")
}

// Submit queues q and returns the job.
func (s *Scheduler) Submit(q *types.Query, opts RunOptions) (*Job, error) {
	job := &Job{
		ID:        uuid.NewString(),
		Status:    JobQueued,
		Query:     q,
		CreatedAt: time.Now().UTC(),
		opts:      opts,
	}
	snap := job.snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return nil, ErrQueueClosed
	}
	s.evictLocked()
	select {
	case s.queue <- job:
		s.jobs[job.ID] = job
		s.logger.Debug("job queued", "job_id", job.ID, "query", q.String())
		return snap, nil
	default:
		return nil, ErrQueueFull
	}
}

// Get returns a copy of the job.
func (s *Scheduler) Get(id string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	return job.snapshot(), true
}

// Pending returns the number of queued jobs.
func (s *Scheduler) Pending() int {
	return len(s.queue)
}

// Busy returns the number of workers running a job.
func (s *Scheduler) Busy() int {
	return int(s.busy.Load())
}

func (s *Scheduler) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	logger := s.logger.With("worker_id", id)

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-s.queue:
			if !ok {
				return
			}
			s.busy.Add(1)
			s.process(ctx, logger, job)
			s.busy.Add(-1)
		}
	}
}

func (s *Scheduler) process(ctx context.Context, logger *slog.Logger, job *Job) {
	logger = logger.With("job_id", job.ID)

	now := time.Now().UTC()
	s.mu.Lock()
	job.Status = JobRunning
	job.StartedAt = &now
	s.mu.Unlock()

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res, err := s.run(runCtx, job.Query, job.opts)

	done := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	job.FinishedAt = &done
	job.ExitCode = types.ExitCode(err)
	if res != nil {
		job.Result = res.JSON()
		job.Cached = res.Cached
	}
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
		logger.Warn("job failed", "error", err)
		return
	}
	job.Status = JobDone
	logger.Info("job finished", "duration", done.Sub(*job.StartedAt))
}

// evictLocked drops finished jobs older than the retention window.
func (s *Scheduler) evictLocked() {
	cutoff := time.Now().Add(-s.retention)
	for id, job := range s.jobs {
		if job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}

func (j *Job) snapshot() *Job {
	c := *j
	return &c
}
