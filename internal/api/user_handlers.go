package api

import (
	"encoding/json"
	"errors"
	"net"
	"strconv"

	"github.com/opcron/opcron/internal/apperr"
	"github.com/opcron/opcron/internal/auth"
	"github.com/opcron/opcron/internal/model"
	"github.com/opcron/opcron/internal/perm"
	"github.com/opcron/opcron/internal/store"
)

const userListColumns = "id, username, created_at, last_login_at, " +
	"ip_list, permissions, is_admin, is_active"

func (a *API) userListEndpoint() Endpoint {
	return Endpoint{
		LogType:      model.LogUserList,
		AuthRequired: true,
		Required:     []string{perm.UserList},
		Handle:       a.handleUserList,
	}
}

func (a *API) handleUserList(c *Context) (any, error) {
	result, err := a.list(listSpec{
		Table:     "users",
		Columns:   userListColumns,
		OrderBy:   "id ASC",
		Exact:     []string{"id"},
		Numeric:   []string{"id"},
		Select:    []string{"is_admin", "is_active"},
		DateRange: []string{"created_at", "last_login_at"},
		Contains:  []string{"username"},
	}, c.Request.URL.Query())
	if err != nil {
		return nil, err
	}
	for _, row := range result["items"].([]map[string]any) {
		normalizeUserRow(row)
	}
	return result, nil
}

func (a *API) userAddEndpoint() Endpoint {
	return Endpoint{
		LogType:      model.LogUserAdd,
		AuthRequired: true,
		SaveLog:      true,
		Required:     []string{perm.UserAdd},
		Secrets:      []string{"password"},
		Handle:       a.handleUserAdd,
	}
}

func (a *API) handleUserAdd(c *Context) (any, error) {
	if err := c.Require("username", "password", "ip_list"); err != nil {
		return nil, err
	}
	ipList, err := validateIPList(c.StringList("ip_list"))
	if err != nil {
		return nil, err
	}
	permissions, err := validatePermissions(c.StringList("permissions"))
	if err != nil {
		return nil, err
	}
	hash, salt, err := auth.HashPassword(c.String("password"))
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:    c.String("username"),
		Password:    hash,
		Salt:        salt,
		IPList:      ipList,
		Permissions: permissions,
		IsAdmin:     c.Bool("is_admin"),
		IsActive:    c.Bool("is_active"),
	}
	if err := a.store.CreateUser(user); err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			return nil, apperr.New(apperr.Validation,
				"User with username %s already exists", user.Username)
		}
		return nil, err
	}

	c.Flash("New user "+user.Username+" has been created", VariantSuccess)
	response := userResponse(user)
	c.RecordResponse(response)
	return response, nil
}

func (a *API) userEditEndpoint(logType int, permission string) Endpoint {
	return Endpoint{
		LogType:      logType,
		AuthRequired: true,
		SaveLog:      true,
		Required:     []string{permission},
		Secrets:      []string{"password"},
		Handle:       a.handleUserEdit,
	}
}

func (a *API) handleUserEdit(c *Context) (any, error) {
	user, err := a.verifyUser(c.Param("id"))
	if err != nil {
		return nil, err
	}

	if c.Request.Method == "GET" {
		c.SkipLog()
		return map[string]any{
			"id":          user.ID,
			"username":    user.Username,
			"ip_list":     user.IPList,
			"permissions": user.Permissions,
			"is_admin":    user.IsAdmin,
			"is_active":   user.IsActive,
		}, nil
	}

	if err := c.Require("username", "ip_list"); err != nil {
		return nil, err
	}
	username := c.String("username")
	if username != user.Username {
		if _, err := a.store.GetUserByUsername(username); err == nil {
			return nil, apperr.New(apperr.Validation,
				"User with username %s already exists", username)
		} else if !errors.Is(err, store.ErrUserNotFound) {
			return nil, err
		}
	}
	user.Username = username

	user.IPList, err = validateIPList(c.StringList("ip_list"))
	if err != nil {
		return nil, err
	}
	user.Permissions, err = validatePermissions(c.StringList("permissions"))
	if err != nil {
		return nil, err
	}
	user.IsAdmin = c.Bool("is_admin")
	user.IsActive = c.Bool("is_active")

	if password := c.String("password"); password != "" {
		user.Password, user.Salt, err = auth.HashPassword(password)
		if err != nil {
			return nil, err
		}
	}

	if err := a.store.UpdateUser(user); err != nil {
		return nil, err
	}

	c.Flash("User "+user.Username+" has been updated", VariantSuccess)
	response := userResponse(user)
	c.RecordResponse(response)
	return response, nil
}

func (a *API) userDeleteEndpoint() Endpoint {
	return Endpoint{
		LogType:      model.LogUserDelete,
		AuthRequired: true,
		SaveLog:      true,
		Required:     []string{perm.UserDelete},
		Handle:       a.handleUserDelete,
	}
}

func (a *API) handleUserDelete(c *Context) (any, error) {
	user, err := a.verifyUser(c.Param("id"))
	if err != nil {
		return nil, err
	}
	if err := a.store.DeleteUser(user.ID); err != nil {
		return nil, err
	}
	message := "User " + user.Username + " has been deleted"
	c.Flash(message, VariantWarning)
	response := map[string]any{"message": message}
	c.RecordResponse(response)
	return response, nil
}

func (a *API) userCommonEndpoint() Endpoint {
	return Endpoint{
		LogType:      model.LogCommonUserData,
		AuthRequired: true,
		SaveLog:      true,
		Related:      []string{perm.JobAdd, perm.JobGet},
		Handle: func(c *Context) (any, error) {
			return map[string]any{"permissions": perm.All()}, nil
		},
	}
}

func (a *API) verifyUser(rawID string) (*model.User, error) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return nil, apperr.New(apperr.Validation,
			"User with id %s was not found", rawID)
	}
	user, err := a.store.GetUserByID(id)
	if errors.Is(err, store.ErrUserNotFound) {
		return nil, apperr.New(apperr.Validation,
			"User with id %s was not found", rawID)
	}
	return user, err
}

func validateIPList(ipList []string) ([]string, error) {
	for _, ip := range ipList {
		if net.ParseIP(ip) == nil {
			return nil, apperr.New(apperr.Validation,
				"Invalid IP format: %s", ip)
		}
	}
	return ipList, nil
}

func validatePermissions(permissions []string) ([]string, error) {
	for _, name := range permissions {
		if !perm.Valid(name) {
			return nil, apperr.New(apperr.Validation,
				"Unable to add user. Invalid permission %s", name)
		}
	}
	return permissions, nil
}

func userResponse(user *model.User) map[string]any {
	return map[string]any{
		"id":          user.ID,
		"username":    user.Username,
		"permissions": user.Permissions,
		"is_admin":    user.IsAdmin,
		"is_active":   user.IsActive,
		"ip_list":     user.IPList,
	}
}

// normalizeUserRow decodes the JSON list columns and boolean integers a raw
// users row carries.
func normalizeUserRow(row map[string]any) {
	for _, key := range []string{"ip_list", "permissions"} {
		if raw, ok := row[key].(string); ok {
			var list []string
			if json.Unmarshal([]byte(raw), &list) == nil {
				row[key] = list
			}
		}
	}
	for _, key := range []string{"is_admin", "is_active"} {
		if n, ok := row[key].(int64); ok {
			row[key] = n != 0
		}
	}
}
