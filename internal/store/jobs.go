package store

import (
	"database/sql"
	"strings"
)

// JobRow is one persisted scheduler job. The state bytes are owned entirely
// by the scheduler runtime; this layer only moves them.
type JobRow struct {
	ID          string
	NextRunTime sql.NullFloat64 // epoch seconds; invalid while paused
	State       []byte
}

// InsertJob adds a job row. Fails with ErrConflictingID if the id exists.
func (s *Store) InsertJob(row JobRow) error {
	_, err := s.db.Exec(`
        INSERT INTO scheduler_jobs (id, next_run_time, job_state)
        VALUES (?, ?, ?)
    `, row.ID, row.NextRunTime, row.State)
	if err != nil {
		if isUniqueViolation(err) || strings.Contains(err.Error(), "PRIMARY KEY") {
			return ErrConflictingID
		}
		return err
	}
	return nil
}

// UpdateJob rewrites a job row. Fails with ErrJobNotFound if no row matches.
func (s *Store) UpdateJob(row JobRow) error {
	res, err := s.db.Exec(`
        UPDATE scheduler_jobs SET next_run_time = ?, job_state = ?
        WHERE id = ?
    `, row.NextRunTime, row.State, row.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// DeleteJob removes one job row. Fails with ErrJobNotFound if absent.
func (s *Store) DeleteJob(id string) error {
	res, err := s.db.Exec("DELETE FROM scheduler_jobs WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// DeleteJobs removes the given job rows, ignoring absent ids.
func (s *Store) DeleteJobs(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.Exec(
		"DELETE FROM scheduler_jobs WHERE id IN ("+placeholders+")", args...)
	return err
}

// DeleteAllJobs clears the job table. Safe to call when empty.
func (s *Store) DeleteAllJobs() error {
	_, err := s.db.Exec("DELETE FROM scheduler_jobs")
	return err
}

// JobRowByID returns one row, or nil if absent.
func (s *Store) JobRowByID(id string) (*JobRow, error) {
	var row JobRow
	err := s.db.QueryRow(`
        SELECT id, next_run_time, job_state FROM scheduler_jobs WHERE id = ?
    `, id).Scan(&row.ID, &row.NextRunTime, &row.State)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// JobRows returns all rows ordered by next_run_time ascending. When dueBefore
// is set, only rows with next_run_time <= dueBefore are returned.
func (s *Store) JobRows(dueBefore *float64) ([]JobRow, error) {
	query := "SELECT id, next_run_time, job_state FROM scheduler_jobs"
	var args []any
	if dueBefore != nil {
		query += " WHERE next_run_time <= ?"
		args = append(args, *dueBefore)
	}
	query += " ORDER BY next_run_time"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobRow
	for rows.Next() {
		var row JobRow
		if err := rows.Scan(&row.ID, &row.NextRunTime, &row.State); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// MinNextRunTime returns the smallest non-null next_run_time, or nil when
// every job is paused or the table is empty.
func (s *Store) MinNextRunTime() (*float64, error) {
	var next sql.NullFloat64
	err := s.db.QueryRow(`
        SELECT MIN(next_run_time) FROM scheduler_jobs
        WHERE next_run_time IS NOT NULL
    `).Scan(&next)
	if err != nil {
		return nil, err
	}
	if !next.Valid {
		return nil, nil
	}
	return &next.Float64, nil
}
