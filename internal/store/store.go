// Package store is the SQLite persistence layer: user accounts, the three
// audit log tables and the scheduler's job rows.
package store

import (
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"

	"go.uber.org/zap"
)

var (
	// ErrUserNotFound is returned when a user record is not found.
	ErrUserNotFound = errors.New("user not found")
	// ErrUsernameTaken is returned when creating a user with an existing username.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrConflictingID is returned when inserting a job row whose id already exists.
	ErrConflictingID = errors.New("conflicting job id")
	// ErrJobNotFound is returned when a job row does not exist.
	ErrJobNotFound = errors.New("job not found")
)

// Schema for the SQLite database. Job rows hold opaque serialized state owned
// by the scheduler runtime; next_run_time is null exactly when a job is paused.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT UNIQUE NOT NULL,
    password TEXT NOT NULL,              -- scrypt hash, base64
    salt TEXT NOT NULL,                  -- base64
    created_at DATETIME NOT NULL,
    last_login_at DATETIME,
    ip_list TEXT NOT NULL DEFAULT '[]',      -- JSON array of allowed IPs
    permissions TEXT NOT NULL DEFAULT '[]',  -- JSON array of permission names
    is_admin INTEGER NOT NULL DEFAULT 0,
    is_active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS scheduler_jobs (
    id TEXT PRIMARY KEY,
    next_run_time REAL,                  -- epoch seconds; null while paused
    job_state BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS user_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user INTEGER REFERENCES users (id) ON DELETE CASCADE,
    log_type INTEGER NOT NULL,
    request_data TEXT NOT NULL,
    request_ip TEXT,
    request_url TEXT NOT NULL,
    request_method TEXT NOT NULL,
    response_data TEXT NOT NULL DEFAULT '',
    error TEXT,
    created_at DATETIME NOT NULL,
    finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS job_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user INTEGER,                        -- job owner; may outlive the users row
    job_id TEXT NOT NULL,
    job_data TEXT NOT NULL DEFAULT '{}',
    job_result TEXT NOT NULL DEFAULT '{}',
    error TEXT,
    started_at DATETIME,
    finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS error_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_data TEXT NOT NULL,
    request_ip TEXT NOT NULL,
    request_url TEXT NOT NULL,
    request_method TEXT NOT NULL,
    error TEXT NOT NULL,
    traceback TEXT,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
CREATE INDEX IF NOT EXISTS idx_scheduler_jobs_next_run_time ON scheduler_jobs(next_run_time);
CREATE INDEX IF NOT EXISTS idx_user_logs_created_at ON user_logs(created_at);
CREATE INDEX IF NOT EXISTS idx_job_logs_job_id ON job_logs(job_id);
`

// Store wraps the SQLite handle.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens the SQLite database at path, enables foreign keys and ensures
// the schema exists. The pragma rides the DSN so every pooled connection
// gets it.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SelectMaps runs a query and returns each row as a column-name keyed map,
// used by the generic log listings where rows go straight to JSON.
func (s *Store) SelectMaps(query string, args ...any) ([]map[string]any, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	items := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		item := make(map[string]any, len(columns))
		for i, col := range columns {
			switch v := values[i].(type) {
			case []byte:
				item[col] = string(v)
			default:
				item[col] = v
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Count runs a COUNT query and returns the result.
func (s *Store) Count(query string, args ...any) (int, error) {
	var count int
	err := s.db.QueryRow(query, args...).Scan(&count)
	return count, err
}
