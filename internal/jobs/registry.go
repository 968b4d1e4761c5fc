// Package jobs holds the closed set of job modules the console can schedule
// and the executor that records every run in the job log.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/opcron/opcron/internal/mail"
	"github.com/opcron/opcron/internal/model"
	"github.com/opcron/opcron/internal/scheduler"
	"github.com/opcron/opcron/internal/store"
)

// Runner is one schedulable job module.
type Runner interface {
	// Run executes the job with its configured kwargs and returns a result
	// payload for the job log.
	Run(ctx context.Context, kwargs map[string]any) (map[string]any, error)
	// Doc describes the module and its kwargs for the console front end.
	Doc() string
}

// Available describes a registered module for the reference-data endpoint.
type Available struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Doc   string `json:"job_doc"`
}

type entry struct {
	name   string
	label  string
	runner Runner
}

// Registry maps module names to runners and executes scheduled jobs,
// writing exactly one job log row per execution.
type Registry struct {
	store   *store.Store
	logger  *zap.Logger
	entries []entry

	// OnLog, when set, observes every written job log row (live feed).
	OnLog func(*model.JobLog)
}

// NewRegistry builds the registry with every built-in module.
func NewRegistry(st *store.Store, sender *mail.Sender, logger *zap.Logger) *Registry {
	r := &Registry{store: st, logger: logger}
	r.register("test_job", "Test Job", &TestJob{logger: logger})
	r.register("monitor_sockets", "Monitor sockets", &MonitorSockets{
		sender: sender,
		logger: logger,
	})
	return r
}

func (r *Registry) register(name, label string, runner Runner) {
	r.entries = append(r.entries, entry{name: name, label: label, runner: runner})
}

// Valid reports whether a module name is registered.
func (r *Registry) Valid(name string) bool {
	for _, e := range r.entries {
		if e.name == name {
			return true
		}
	}
	return false
}

// Available lists every module in registration order.
func (r *Registry) Available() []Available {
	out := make([]Available, len(r.entries))
	for i, e := range r.entries {
		out[i] = Available{Name: e.name, Label: e.label, Doc: e.runner.Doc()}
	}
	return out
}

// Execute runs one scheduled job. All failures, including panics inside a
// runner, end up on the job's own log row and never propagate to the
// scheduler.
func (r *Registry) Execute(ctx context.Context, job *scheduler.Job) {
	started := time.Now()
	log := &model.JobLog{
		UserID:    &job.OwnerUserID,
		JobID:     job.ID,
		JobData:   mustJSON(job.Kwargs),
		JobResult: "{}",
		StartedAt: &started,
	}

	r.logger.Info("job started",
		zap.String("job_id", job.ID),
		zap.String("module", job.Module),
	)

	result, err := r.run(ctx, job)
	finished := time.Now()
	log.FinishedAt = &finished
	if err != nil {
		log.Error = err.Error()
		r.logger.Warn("job finished with error",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	} else {
		log.JobResult = mustJSON(result)
		r.logger.Info("job finished", zap.String("job_id", job.ID))
	}

	if err := r.store.CreateJobLog(log); err != nil {
		r.logger.Error("failed to write job log",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		return
	}
	if r.OnLog != nil {
		r.OnLog(log)
	}
}

func (r *Registry) run(ctx context.Context, job *scheduler.Job) (result map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panic: %v", rec)
			r.logger.Error("job panicked",
				zap.String("job_id", job.ID),
				zap.String("stack", string(debug.Stack())),
			)
		}
	}()

	for _, e := range r.entries {
		if e.name == job.Module {
			return e.runner.Run(ctx, job.Kwargs)
		}
	}
	return nil, fmt.Errorf("unknown job module %s", job.Module)
}

// requireKwargs checks that every named kwarg is present and non-empty.
func requireKwargs(kwargs map[string]any, keys ...string) error {
	for _, key := range keys {
		v, ok := kwargs[key]
		if !ok || v == nil || v == "" {
			return fmt.Errorf("invalid job settings, required key %s is invalid", key)
		}
	}
	return nil
}

// stringSlice coerces a JSON-decoded kwarg into a string slice.
func stringSlice(value any) []string {
	switch v := value.(type) {
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

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
