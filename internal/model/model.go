package model

import (
	"time"
)

// User is an operator account. Permissions hold machine names from the
// permission catalog; IPList optionally restricts the source addresses a
// user may call from.
type User struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Password    string     `json:"-"` // scrypt hash, base64
	Salt        string     `json:"-"` // base64
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at"`
	IPList      []string   `json:"ip_list"`
	Permissions []string   `json:"permissions"`
	IsAdmin     bool       `json:"is_admin"`
	IsActive    bool       `json:"is_active"`
}

// Summary is the user subset exposed to clients after login/validation.
type Summary struct {
	ID          int64    `json:"id"`
	Username    string   `json:"username"`
	Permissions []string `json:"permissions"`
	IsAdmin     bool     `json:"is_admin"`
	IsActive    bool     `json:"is_active"`
}

// Summary returns the client-visible subset of the user.
func (u *User) Summary() Summary {
	return Summary{
		ID:          u.ID,
		Username:    u.Username,
		Permissions: u.Permissions,
		IsAdmin:     u.IsAdmin,
		IsActive:    u.IsActive,
	}
}

// UserLog is the audit record written once per API request.
type UserLog struct {
	ID            int64      `json:"id"`
	UserID        *int64     `json:"user"`
	LogType       int        `json:"log_type"`
	RequestData   string     `json:"request_data"`
	RequestIP     string     `json:"request_ip"`
	RequestURL    string     `json:"request_url"`
	RequestMethod string     `json:"request_method"`
	ResponseData  string     `json:"response_data"`
	Error         string     `json:"error"`
	CreatedAt     time.Time  `json:"created_at"`
	FinishedAt    *time.Time `json:"finished_at"`
}

// JobLog is the audit record written once per job execution.
type JobLog struct {
	ID         int64      `json:"id"`
	UserID     *int64     `json:"user"`
	JobID      string     `json:"job_id"`
	JobData    string     `json:"job_data"`   // JSON kwargs
	JobResult  string     `json:"job_result"` // JSON result
	Error      string     `json:"error"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

// ErrorLog records an unrecognized failure with its stack trace.
type ErrorLog struct {
	ID            int64     `json:"id"`
	RequestData   string    `json:"request_data"`
	RequestIP     string    `json:"request_ip"`
	RequestURL    string    `json:"request_url"`
	RequestMethod string    `json:"request_method"`
	Error         string    `json:"error"`
	Traceback     string    `json:"traceback"`
	CreatedAt     time.Time `json:"created_at"`
}

// Log type identifiers recorded on audit rows.
const (
	LogUserLogin = iota + 1
	LogUserLogout
	LogUserList
	LogUserAdd
	LogUserGet
	LogUserEdit
	LogUserDelete
	LogJobList
	LogJobAdd
	LogJobGet
	LogJobEdit
	LogJobDelete
	LogJobPause
	LogCommonJobData
	LogCommonUserData
	LogLogView
)

// LogTypeLabels maps log type ids to human labels for filter options.
var LogTypeLabels = map[int]string{
	LogUserLogin:      "User login",
	LogUserLogout:     "User logout",
	LogUserList:       "User list",
	LogUserAdd:        "User add",
	LogUserGet:        "User view",
	LogUserEdit:       "User edit",
	LogUserDelete:     "User delete",
	LogJobList:        "Job list",
	LogJobAdd:         "Job add",
	LogJobGet:         "Job view",
	LogJobEdit:        "Job edit",
	LogJobDelete:      "Job delete",
	LogJobPause:       "Job pause",
	LogCommonJobData:  "Common job data view",
	LogCommonUserData: "Common user data view",
	LogLogView:        "Log view",
}
