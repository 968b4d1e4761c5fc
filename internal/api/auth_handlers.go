package api

import (
	"errors"
	"time"

	"github.com/opcron/opcron/internal/apperr"
	"github.com/opcron/opcron/internal/auth"
	"github.com/opcron/opcron/internal/model"
	"github.com/opcron/opcron/internal/perm"
	"github.com/opcron/opcron/internal/store"
)

func (a *API) loginEndpoint() Endpoint {
	return Endpoint{
		LogType:  model.LogUserLogin,
		SaveLog:  true,
		Required: []string{perm.UserLogin},
		Secrets:  []string{"password"},
		Handle:   a.handleLogin,
	}
}

func (a *API) handleLogin(c *Context) (any, error) {
	if err := c.Require("username", "password"); err != nil {
		return nil, err
	}
	username := c.String("username")

	user, err := a.store.GetUserByUsername(username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, apperr.New(apperr.Validation,
				"User with username %s was not found", username)
		}
		return nil, err
	}
	c.SetLogUser(user)
	if !user.IsActive {
		return nil, apperr.New(apperr.Unauthenticated,
			"User %s is disabled", user.Username)
	}
	if !auth.VerifyPassword(user, c.String("password")) {
		return nil, apperr.New(apperr.Validation,
			"User %s password is wrong", user.Username)
	}

	token, expiration, err := a.auth.Issue(user, c.Bool("keep_logged_in"))
	if err != nil {
		return nil, err
	}

	c.Flash("Login successful", VariantSuccess)
	response := map[string]any{
		"token":          token,
		"user":           user.Summary(),
		"expiration_utc": expiration.UTC().Format(time.DateTime),
	}
	c.RecordResponse(response)
	return response, nil
}

func (a *API) logoutEndpoint() Endpoint {
	return Endpoint{
		LogType:      model.LogUserLogout,
		AuthRequired: true,
		SaveLog:      true,
		Required:     []string{perm.UserLogout},
		Handle:       a.handleLogout,
	}
}

func (a *API) handleLogout(c *Context) (any, error) {
	a.auth.Revoke(a.auth.TokenFromRequest(c.Request))
	c.Flash("Logout successful", VariantSuccess)
	return nil, nil
}
