package scheduler

import (
	"database/sql"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/opcron/opcron/internal/store"
)

// JobStore persists serialized job state through the SQLite layer. Rows whose
// bytes can no longer be decoded are purged during reads so corruption heals
// itself instead of wedging the scheduler.
type JobStore struct {
	db     *store.Store
	logger *zap.Logger
}

// NewJobStore wraps the SQLite layer for scheduler use.
func NewJobStore(db *store.Store, logger *zap.Logger) *JobStore {
	return &JobStore{db: db, logger: logger}
}

// AddJob inserts a new job. Fails with store.ErrConflictingID when the id is
// already present.
func (s *JobStore) AddJob(job *Job) error {
	state, err := encodeJob(job)
	if err != nil {
		return err
	}
	return s.db.InsertJob(store.JobRow{
		ID:          job.ID,
		NextRunTime: toNullFloat(timeToEpoch(job.NextRunTime)),
		State:       state,
	})
}

// UpdateJob rewrites an existing job. Fails with store.ErrJobNotFound.
func (s *JobStore) UpdateJob(job *Job) error {
	state, err := encodeJob(job)
	if err != nil {
		return err
	}
	return s.db.UpdateJob(store.JobRow{
		ID:          job.ID,
		NextRunTime: toNullFloat(timeToEpoch(job.NextRunTime)),
		State:       state,
	})
}

// RemoveJob deletes one job. Fails with store.ErrJobNotFound.
func (s *JobStore) RemoveJob(id string) error {
	return s.db.DeleteJob(id)
}

// RemoveAllJobs clears the store.
func (s *JobStore) RemoveAllJobs() error {
	return s.db.DeleteAllJobs()
}

// LookupJob reconstructs one job, or returns nil if the id is absent. An
// unreconstructable row is deleted and reported as absent.
func (s *JobStore) LookupJob(id string) (*Job, error) {
	row, err := s.db.JobRowByID(id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	job, err := decodeJob(row.State)
	if err != nil {
		s.logger.Warn("unable to restore job, removing it",
			zap.String("job_id", id),
			zap.Error(err),
		)
		if err := s.db.DeleteJob(id); err != nil && err != store.ErrJobNotFound {
			return nil, err
		}
		return nil, nil
	}
	return job, nil
}

// GetDueJobs returns all jobs with next_run_time <= now, ascending.
func (s *JobStore) GetDueJobs(now time.Time) ([]*Job, error) {
	due := timeToEpoch(&now)
	rows, err := s.db.JobRows(due)
	if err != nil {
		return nil, err
	}
	return s.decodeRows(rows)
}

// GetNextRunTime returns the earliest scheduled fire time across all jobs,
// or nil when every job is paused or none exist.
func (s *JobStore) GetNextRunTime() (*time.Time, error) {
	epoch, err := s.db.MinNextRunTime()
	if err != nil {
		return nil, err
	}
	return epochToTime(epoch), nil
}

// GetAllJobs returns every job ordered by next_run_time ascending, with
// paused jobs deterministically at the end regardless of how the underlying
// store orders null values.
func (s *JobStore) GetAllJobs() ([]*Job, error) {
	rows, err := s.db.JobRows(nil)
	if err != nil {
		return nil, err
	}
	jobs, err := s.decodeRows(rows)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		a, b := jobs[i].NextRunTime, jobs[j].NextRunTime
		switch {
		case a == nil && b == nil:
			return jobs[i].ID < jobs[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
	return jobs, nil
}

// decodeRows reconstructs each row, collecting and purging the ones that can
// no longer be decoded.
func (s *JobStore) decodeRows(rows []store.JobRow) ([]*Job, error) {
	jobs := make([]*Job, 0, len(rows))
	var failed []string
	for _, row := range rows {
		job, err := decodeJob(row.State)
		if err != nil {
			s.logger.Warn("unable to restore job, removing it",
				zap.String("job_id", row.ID),
				zap.Error(err),
			)
			failed = append(failed, row.ID)
			continue
		}
		jobs = append(jobs, job)
	}
	if len(failed) > 0 {
		if err := s.db.DeleteJobs(failed); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

func toNullFloat(epoch *float64) (out sql.NullFloat64) {
	if epoch != nil {
		out.Valid = true
		out.Float64 = *epoch
	}
	return out
}
