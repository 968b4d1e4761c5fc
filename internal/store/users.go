package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/opcron/opcron/internal/model"
)

const userColumns = `id, username, password, salt, created_at, last_login_at,
       ip_list, permissions, is_admin, is_active`

// CreateUser inserts a new user and sets its generated id.
func (s *Store) CreateUser(user *model.User) error {
	ipList, err := json.Marshal(orEmpty(user.IPList))
	if err != nil {
		return err
	}
	permissions, err := json.Marshal(orEmpty(user.Permissions))
	if err != nil {
		return err
	}

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	res, err := s.db.Exec(`
        INSERT INTO users (
            username, password, salt, created_at, ip_list,
            permissions, is_admin, is_active
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `, user.Username, user.Password, user.Salt, user.CreatedAt,
		string(ipList), string(permissions), user.IsAdmin, user.IsActive)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameTaken
		}
		return err
	}
	user.ID, err = res.LastInsertId()
	return err
}

// GetUserByID retrieves a user by id.
func (s *Store) GetUserByID(id int64) (*model.User, error) {
	return s.getUser("id = ?", id)
}

// GetUserByUsername retrieves a user by username.
func (s *Store) GetUserByUsername(username string) (*model.User, error) {
	return s.getUser("username = ?", username)
}

func (s *Store) getUser(where string, arg any) (*model.User, error) {
	row := s.db.QueryRow(
		"SELECT "+userColumns+" FROM users WHERE "+where, arg)
	user, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateUser rewrites every mutable user field.
func (s *Store) UpdateUser(user *model.User) error {
	ipList, err := json.Marshal(orEmpty(user.IPList))
	if err != nil {
		return err
	}
	permissions, err := json.Marshal(orEmpty(user.Permissions))
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
        UPDATE users SET
            username = ?,
            password = ?,
            salt = ?,
            ip_list = ?,
            permissions = ?,
            is_admin = ?,
            is_active = ?
        WHERE id = ?
    `, user.Username, user.Password, user.Salt, string(ipList),
		string(permissions), user.IsAdmin, user.IsActive, user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameTaken
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// TouchLastLogin records a successful login time.
func (s *Store) TouchLastLogin(userID int64, at time.Time) error {
	_, err := s.db.Exec(
		"UPDATE users SET last_login_at = ? WHERE id = ?", at, userID)
	return err
}

// DeleteUser removes a user. Audit rows cascade per schema.
func (s *Store) DeleteUser(id int64) error {
	res, err := s.db.Exec("DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CountUsers returns the number of user records.
func (s *Store) CountUsers() (int, error) {
	return s.Count("SELECT COUNT(*) FROM users")
}

func scanUser(row *sql.Row) (*model.User, error) {
	var (
		user        model.User
		ipList      string
		permissions string
	)
	err := row.Scan(
		&user.ID, &user.Username, &user.Password, &user.Salt,
		&user.CreatedAt, &user.LastLoginAt, &ipList, &permissions,
		&user.IsAdmin, &user.IsActive,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ipList), &user.IPList); err != nil {
		return nil, fmt.Errorf("user %d ip_list: %w", user.ID, err)
	}
	if err := json.Unmarshal([]byte(permissions), &user.Permissions); err != nil {
		return nil, fmt.Errorf("user %d permissions: %w", user.ID, err)
	}
	return &user, nil
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
