// Package scheduler runs persisted jobs on cron, interval and one-off date
// triggers. Trigger state survives restarts through the job store.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/opcron/opcron/internal/store"
)

// ExecuteFunc runs one job. Implementations own their error handling; a
// failing execution must never reach the scheduler loop.
type ExecuteFunc func(ctx context.Context, job *Job)

// Scheduler wakes when the next job is due (or every tick at the latest),
// asks the store for due jobs, advances their next fire times and dispatches
// each execution as an independent task.
type Scheduler struct {
	store      *JobStore
	logger     *zap.Logger
	execute    ExecuteFunc
	tick       time.Duration
	jobTimeout time.Duration

	// mu serializes read-modify-write sequences against the store. Plain
	// request-path reads go through the store directly.
	mu sync.Mutex

	wake    chan struct{}
	stopCh  chan struct{}
	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a scheduler over the given store.
func New(jobStore *JobStore, tick, jobTimeout time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:      jobStore,
		logger:     logger,
		tick:       tick,
		jobTimeout: jobTimeout,
		wake:       make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
	}
}

// SetExecutor wires the job execution callback. Must be called before Start.
func (s *Scheduler) SetExecutor(fn ExecuteFunc) {
	s.execute = fn
}

// Start launches the wake loop.
func (s *Scheduler) Start() {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("scheduler already running")
		return
	}
	s.wg.Add(1)
	go s.loop()
	s.logger.Info("scheduler started", zap.Duration("tick", s.tick))
}

// Stop signals the loop to exit and waits for it. Executions already
// dispatched keep running under their own timeouts.
func (s *Scheduler) Stop() {
	if s.running.CompareAndSwap(true, false) {
		close(s.stopCh)
		s.wg.Wait()
		s.logger.Info("scheduler stopped")
	}
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	for {
		delay := s.nextDelay()
		timer := time.NewTimer(delay)
		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
			s.sweep()
		}
	}
}

// nextDelay sleeps until the earliest next_run_time, capped at the tick so a
// mutation made outside this process is still noticed eventually.
func (s *Scheduler) nextDelay() time.Duration {
	delay := s.tick
	next, err := s.store.GetNextRunTime()
	if err != nil {
		s.logger.Warn("next run time lookup failed", zap.Error(err))
		return delay
	}
	if next != nil {
		if until := time.Until(*next); until < delay {
			delay = until
		}
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// sweep collects due jobs, advances their schedules and dispatches them.
func (s *Scheduler) sweep() {
	now := time.Now()

	s.mu.Lock()
	due, err := s.store.GetDueJobs(now)
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("due job sweep failed", zap.Error(err))
		return
	}
	for _, job := range due {
		next := job.Trigger.NextFireTime(job.NextRunTime, now)
		if next == nil {
			// One-off or expired trigger: the job is finished.
			if err := s.store.RemoveJob(job.ID); err != nil && !errors.Is(err, store.ErrJobNotFound) {
				s.logger.Error("failed to remove finished job",
					zap.String("job_id", job.ID), zap.Error(err))
			}
		} else {
			job.NextRunTime = next
			if err := s.store.UpdateJob(job); err != nil {
				s.logger.Error("failed to reschedule job",
					zap.String("job_id", job.ID), zap.Error(err))
			}
		}
	}
	s.mu.Unlock()

	for _, job := range due {
		s.dispatch(job)
	}
}

// dispatch runs one job as a fire-and-forget task with its own deadline so a
// hung job cannot block the loop or other jobs.
func (s *Scheduler) dispatch(job *Job) {
	if s.execute == nil {
		s.logger.Warn("no executor wired, skipping job", zap.String("job_id", job.ID))
		return
	}
	go func(j *Job) {
		ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		defer cancel()
		s.execute(ctx, j)
	}(job)
}

// AddJob registers a job, computing its first fire time from the trigger.
// With replaceExisting, a conflicting id is overwritten in place.
func (s *Scheduler) AddJob(job *Job, replaceExisting bool) error {
	if job.NextRunTime == nil {
		job.NextRunTime = job.Trigger.NextFireTime(nil, time.Now())
	}

	s.mu.Lock()
	err := s.store.AddJob(job)
	if errors.Is(err, store.ErrConflictingID) && replaceExisting {
		err = s.store.UpdateJob(job)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.kick()
	return nil
}

// UpdateJob rewrites a registered job, keeping whatever NextRunTime the
// caller set.
func (s *Scheduler) UpdateJob(job *Job) error {
	s.mu.Lock()
	err := s.store.UpdateJob(job)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.kick()
	return nil
}

// RemoveJob hard-removes a job from the store.
func (s *Scheduler) RemoveJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.RemoveJob(id)
}

// Job returns one job, or nil when absent (including purged corrupt rows).
func (s *Scheduler) Job(id string) (*Job, error) {
	return s.store.LookupJob(id)
}

// Jobs returns all registered jobs, paused ones last.
func (s *Scheduler) Jobs() ([]*Job, error) {
	return s.store.GetAllJobs()
}

// TogglePause pauses a scheduled job or resumes a paused one. Resuming
// recomputes the fire time from the trigger; pausing an already-paused job
// reports paused again without error.
func (s *Scheduler) TogglePause(id string) (paused bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.store.LookupJob(id)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, store.ErrJobNotFound
	}

	if job.NextRunTime != nil {
		job.NextRunTime = nil
		paused = true
	} else {
		job.NextRunTime = job.Trigger.NextFireTime(nil, time.Now())
		if job.NextRunTime == nil {
			return false, fmt.Errorf("trigger for job %s will never fire again", id)
		}
	}
	if err := s.store.UpdateJob(job); err != nil {
		return false, err
	}
	if !paused {
		s.kick()
	}
	return paused, nil
}

// kick wakes the loop after a mutation so new fire times take effect.
func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
