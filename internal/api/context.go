package api

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/opcron/opcron/internal/apperr"
	"github.com/opcron/opcron/internal/model"
)

// Context carries one request through the pipeline stages. Handlers read
// validated input from it and record flash messages and response data for
// the audit trail.
type Context struct {
	Request *http.Request
	Writer  http.ResponseWriter
	User    *model.User

	// Data is the decoded request payload: query values for GET, JSON or
	// form body otherwise.
	Data map[string]any

	ip      string
	url     string
	method  string
	logData string // redacted JSON copy of Data

	messages     []Message
	responseData string
	logUser      *model.User
	skipLog      bool
}

func newContext(w http.ResponseWriter, r *http.Request, secretFields []string) *Context {
	c := &Context{
		Request: r,
		Writer:  w,
		Data:    map[string]any{},
		ip:      remoteIP(r),
		url:     r.URL.String(),
		method:  r.Method,
	}
	c.captureData(secretFields)
	return c
}

func (c *Context) captureData(secretFields []string) {
	if c.Request.Method == http.MethodGet {
		for key, values := range c.Request.URL.Query() {
			if len(values) > 0 {
				c.Data[key] = values[0]
			}
		}
	} else {
		body, err := io.ReadAll(c.Request.Body)
		if err == nil && len(body) > 0 {
			var decoded map[string]any
			if json.Unmarshal(body, &decoded) == nil {
				c.Data = decoded
			}
		}
		if len(c.Data) == 0 {
			if err := c.Request.ParseForm(); err == nil {
				for key, values := range c.Request.PostForm {
					if len(values) > 0 {
						c.Data[key] = values[0]
					}
				}
			}
		}
	}

	redacted := make(map[string]any, len(c.Data))
	for k, v := range c.Data {
		redacted[k] = v
	}
	for _, field := range secretFields {
		delete(redacted, field)
	}
	encoded, err := json.Marshal(redacted)
	if err != nil {
		encoded = []byte("{}")
	}
	c.logData = string(encoded)
}

// Param returns a path parameter.
func (c *Context) Param(name string) string {
	return c.Request.PathValue(name)
}

// String returns a request field coerced to string. Absent fields return "".
func (c *Context) String(key string) string {
	switch v := c.Data[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return strings.Trim(string(encoded), `"`)
	}
}

// Bool returns a request field interpreted as a boolean. JSON booleans,
// "true"/"false" strings and non-empty values all count.
func (c *Context) Bool(key string) bool {
	switch v := c.Data[key].(type) {
	case bool:
		return v
	case string:
		return v != "" && v != "false" && v != "0"
	case float64:
		return v != 0
	case nil:
		return false
	default:
		return true
	}
}

// StringList returns a request field as a string slice.
func (c *Context) StringList(key string) []string {
	switch v := c.Data[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Require verifies that every named field is present and non-empty.
func (c *Context) Require(keys ...string) error {
	for _, key := range keys {
		v, ok := c.Data[key]
		if !ok || v == nil || v == "" {
			return apperr.New(apperr.Validation,
				"Invalid request, required key %s is missing", key)
		}
	}
	return nil
}

// Flash appends a user-visible message to the response envelope.
func (c *Context) Flash(text, variant string) {
	c.messages = append(c.messages, newMessage(text, variant))
}

// RecordResponse stores a JSON copy of v on the audit row.
func (c *Context) RecordResponse(v any) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.responseData = string(encoded)
}

// SetLogUser attributes the audit row to a user resolved by the handler
// itself, before authentication populated c.User (login does this).
func (c *Context) SetLogUser(user *model.User) {
	c.logUser = user
}

// SkipLog opts this request out of the audit write. Used by high-frequency
// read endpoints.
func (c *Context) SkipLog() {
	c.skipLog = true
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
