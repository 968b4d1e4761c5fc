package api

import (
	"github.com/opcron/opcron/internal/model"
	"github.com/opcron/opcron/internal/perm"
)

func (a *API) userLogEndpoint() Endpoint {
	return Endpoint{
		LogType:      model.LogLogView,
		AuthRequired: true,
		Required:     []string{perm.UserLog},
		Handle: func(c *Context) (any, error) {
			result, err := a.list(listSpec{
				Table: "user_logs",
				Columns: "id, user, log_type, request_data, request_ip, " +
					"request_url, request_method, response_data, error, " +
					"created_at, finished_at",
				Exact:     []string{"id", "user"},
				Numeric:   []string{"id", "user"},
				Select:    []string{"log_type"},
				DateRange: []string{"created_at"},
				Contains: []string{"error", "request_data", "response_data",
					"request_ip", "request_url"},
			}, c.Request.URL.Query())
			if err != nil {
				return nil, err
			}
			result["log_title"] = "Opcron User Logs"
			return result, nil
		},
	}
}

func (a *API) jobLogEndpoint() Endpoint {
	return Endpoint{
		LogType:      model.LogLogView,
		AuthRequired: true,
		Required:     []string{perm.JobLog},
		Handle: func(c *Context) (any, error) {
			result, err := a.list(listSpec{
				Table: "job_logs",
				Columns: "id, user, job_id, job_data, job_result, error, " +
					"started_at, finished_at",
				Exact:     []string{"id", "user"},
				Numeric:   []string{"id", "user"},
				DateRange: []string{"started_at", "finished_at"},
				Contains:  []string{"error", "job_id"},
			}, c.Request.URL.Query())
			if err != nil {
				return nil, err
			}
			result["log_title"] = "Opcron Job Logs"
			return result, nil
		},
	}
}

func (a *API) errorLogEndpoint() Endpoint {
	return Endpoint{
		LogType:      model.LogLogView,
		AuthRequired: true,
		Required:     []string{perm.ErrorLog},
		Handle: func(c *Context) (any, error) {
			result, err := a.list(listSpec{
				Table: "error_logs",
				Columns: "id, request_data, request_ip, request_url, " +
					"request_method, error, traceback, created_at",
				Exact:     []string{"id"},
				Numeric:   []string{"id"},
				DateRange: []string{"created_at"},
				Contains: []string{"request_data", "request_ip",
					"request_url", "error", "traceback"},
			}, c.Request.URL.Query())
			if err != nil {
				return nil, err
			}
			result["log_title"] = "Opcron Error Logs"
			return result, nil
		},
	}
}
