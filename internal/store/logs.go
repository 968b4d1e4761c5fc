package store

import (
	"time"

	"github.com/opcron/opcron/internal/model"
)

// CreateUserLog inserts one audit row for an API request. Rows are never
// updated afterwards.
func (s *Store) CreateUserLog(log *model.UserLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	res, err := s.db.Exec(`
        INSERT INTO user_logs (
            user, log_type, request_data, request_ip, request_url,
            request_method, response_data, error, created_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, log.UserID, log.LogType, log.RequestData, log.RequestIP,
		log.RequestURL, log.RequestMethod, log.ResponseData,
		nullable(log.Error), log.CreatedAt, log.FinishedAt)
	if err != nil {
		return err
	}
	log.ID, err = res.LastInsertId()
	return err
}

// CreateJobLog inserts one audit row for a job execution.
func (s *Store) CreateJobLog(log *model.JobLog) error {
	res, err := s.db.Exec(`
        INSERT INTO job_logs (
            user, job_id, job_data, job_result, error, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)
    `, log.UserID, log.JobID, log.JobData, log.JobResult,
		nullable(log.Error), log.StartedAt, log.FinishedAt)
	if err != nil {
		return err
	}
	log.ID, err = res.LastInsertId()
	return err
}

// CreateErrorLog inserts one row for an unrecognized failure.
func (s *Store) CreateErrorLog(log *model.ErrorLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	res, err := s.db.Exec(`
        INSERT INTO error_logs (
            request_data, request_ip, request_url, request_method,
            error, traceback, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)
    `, log.RequestData, log.RequestIP, log.RequestURL,
		log.RequestMethod, log.Error, log.Traceback, log.CreatedAt)
	if err != nil {
		return err
	}
	log.ID, err = res.LastInsertId()
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
