// Package perm holds the static permission catalog and the authorization
// rules composed by API endpoints.
package perm

import "github.com/opcron/opcron/internal/model"

// Permission maps a stable id and machine name to a human label.
type Permission struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Label string `json:"label"`
}

// Machine names used by endpoint declarations.
const (
	UserLogin  = "post_login_view"
	UserLogout = "post_logout_view"
	UserList   = "get_users_view"
	UserAdd    = "post_users_view"
	UserGet    = "get_user_view"
	UserEdit   = "put_user_view"
	UserDelete = "delete_user_view"
	UserLog    = "get_user_log_view"
	JobList    = "get_jobs_view"
	JobAdd     = "post_jobs_view"
	JobGet     = "get_job_view"
	JobEdit    = "put_job_view"
	JobDelete  = "delete_job_view"
	JobPause   = "post_pause_job_view"
	JobLog     = "get_job_log_view"
	ErrorLog   = "get_error_log_view"
)

var catalog = []Permission{
	{1, UserLogin, "Login"},
	{2, UserLogout, "Logout"},
	{3, UserList, "View user list"},
	{4, UserAdd, "Add users"},
	{5, UserGet, "View user"},
	{6, UserEdit, "Edit user"},
	{7, UserDelete, "Delete user"},
	{8, UserLog, "View user log"},
	{9, JobList, "View job list"},
	{10, JobAdd, "Add jobs"},
	{11, JobGet, "View job"},
	{12, JobEdit, "Edit job"},
	{13, JobDelete, "Delete jobs"},
	{14, JobPause, "Pause/resume jobs"},
	{15, JobLog, "View job log"},
	{16, ErrorLog, "View error log"},
}

// All returns the full catalog in id order.
func All() []Permission {
	out := make([]Permission, len(catalog))
	copy(out, catalog)
	return out
}

// Valid reports whether name is a known permission machine name.
func Valid(name string) bool {
	for _, p := range catalog {
		if p.Name == name {
			return true
		}
	}
	return false
}

// AllNames returns every machine name in the catalog.
func AllNames() []string {
	names := make([]string, len(catalog))
	for i, p := range catalog {
		names[i] = p.Name
	}
	return names
}

// HasAuthorization applies the two authorization modes. An endpoint with no
// required and no related permissions is open to any caller. A caller holding
// any related permission is authorized; otherwise the caller's permissions
// must be a superset of required.
func HasAuthorization(user *model.User, required, related []string) bool {
	if len(required) == 0 && len(related) == 0 {
		return true
	}
	if user == nil {
		return false
	}
	held := make(map[string]struct{}, len(user.Permissions))
	for _, p := range user.Permissions {
		held[p] = struct{}{}
	}
	for _, p := range related {
		if _, ok := held[p]; ok {
			return true
		}
	}
	if len(required) == 0 {
		return false
	}
	for _, p := range required {
		if _, ok := held[p]; !ok {
			return false
		}
	}
	return true
}
