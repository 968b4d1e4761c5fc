package api

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opcron/opcron/internal/apperr"
	"github.com/opcron/opcron/internal/model"
	"github.com/opcron/opcron/internal/perm"
)

// rawSentinel marks a handler that wrote its own response (streams,
// upgrades). The pipeline skips the envelope but still audits.
type rawSentinel struct{}

// Raw is returned by handlers that bypass the generic envelope.
var Raw any = rawSentinel{}

// Endpoint declares one API operation for the pipeline: its audit log type,
// authentication/authorization requirements, fields redacted from audit
// data, and the business handler.
type Endpoint struct {
	LogType      int
	AuthRequired bool
	SaveLog      bool
	Required     []string
	Related      []string
	Secrets      []string
	Handle       func(c *Context) (any, error)
}

// run wraps an endpoint in the pipeline: capture, authentication, IP
// allow-list, authorization, handler, error funnel, audit write, envelope.
func (a *API) run(ep Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		secrets := ep.Secrets
		if secrets == nil {
			secrets = []string{"password"}
		}
		c := newContext(w, r, secrets)
		requestID := uuid.NewString()
		log := a.logger.With(zap.String("request_id", requestID))

		log.Info("request started",
			zap.String("method", c.method),
			zap.String("url", c.url),
			zap.String("ip", c.ip),
		)

		data, err := a.process(ep, c)

		status := http.StatusOK
		env := Envelope{OK: true, Data: data}
		if err != nil {
			kind := apperr.KindOf(err)
			if kind == apperr.Internal {
				log.Error("request failed", zap.Error(err))
				a.writeErrorLog(c, err, log)
			} else {
				log.Warn("request rejected", zap.Error(err))
			}
			status = kind.Status()
			c.Flash(err.Error(), VariantDanger)
			env = Envelope{OK: false}
		} else if _, ok := data.(rawSentinel); ok {
			a.writeAudit(ep, c, err, log)
			return
		}

		env.Messages = c.messages
		a.writeAudit(ep, c, err, log)
		writeEnvelope(w, status, env)
		log.Info("request finished", zap.Int("status", status))
	}
}

// process runs the pre-handler stages and the handler itself. The returned
// error is the single value the funnel above dispatches on.
func (a *API) process(ep Endpoint, c *Context) (any, error) {
	if ep.AuthRequired {
		user, err := a.auth.Validate(a.auth.TokenFromRequest(c.Request))
		if err != nil {
			return nil, err
		}
		c.User = user
		if err := verifyUserIP(c); err != nil {
			return nil, err
		}
	}
	if c.User != nil {
		if !perm.HasAuthorization(c.User, ep.Required, ep.Related) {
			return nil, apperr.New(apperr.Forbidden, "Forbidden")
		}
	}
	return ep.Handle(c)
}

// verifyUserIP enforces the per-user source address allow-list.
func verifyUserIP(c *Context) error {
	if c.User == nil || len(c.User.IPList) == 0 {
		return nil
	}
	for _, ip := range c.User.IPList {
		if ip == c.ip {
			return nil
		}
	}
	return apperr.New(apperr.Forbidden,
		"Invalid IP %s for user %s", c.ip, c.User.Username)
}

// writeAudit writes the single audit row for this request. A failed write
// is logged and never masks the response.
func (a *API) writeAudit(ep Endpoint, c *Context, reqErr error, log *zap.Logger) {
	if !ep.SaveLog || c.skipLog {
		return
	}
	finished := time.Now()
	entry := &model.UserLog{
		LogType:       ep.LogType,
		RequestData:   c.logData,
		RequestIP:     c.ip,
		RequestURL:    c.url,
		RequestMethod: c.method,
		ResponseData:  c.responseData,
		FinishedAt:    &finished,
	}
	if reqErr != nil {
		entry.Error = reqErr.Error()
	}
	if user := c.auditUser(); user != nil {
		entry.UserID = &user.ID
	}
	if err := a.store.CreateUserLog(entry); err != nil {
		log.Error("failed to write audit log", zap.Error(err))
		return
	}
	if a.hub != nil {
		a.hub.Broadcast(streamEvent{Kind: "user_log", Payload: entry})
	}
}

func (c *Context) auditUser() *model.User {
	if c.User != nil {
		return c.User
	}
	return c.logUser
}

// writeErrorLog records an unrecognized failure with its stack trace.
func (a *API) writeErrorLog(c *Context, reqErr error, log *zap.Logger) {
	entry := &model.ErrorLog{
		RequestData:   c.logData,
		RequestIP:     c.ip,
		RequestURL:    c.url,
		RequestMethod: c.method,
		Error:         reqErr.Error(),
		Traceback:     string(debug.Stack()),
	}
	if err := a.store.CreateErrorLog(entry); err != nil {
		log.Error("failed to write error log", zap.Error(err))
	}
}
