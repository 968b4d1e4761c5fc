package api

import (
	"fmt"
	"time"

	"github.com/opcron/opcron/internal/apperr"
	"github.com/opcron/opcron/internal/model"
	"github.com/opcron/opcron/internal/perm"
	"github.com/opcron/opcron/internal/scheduler"
)

func (a *API) jobListEndpoint() Endpoint {
	return Endpoint{
		LogType:      model.LogJobList,
		AuthRequired: true,
		Required:     []string{perm.JobList},
		Related:      []string{perm.JobAdd},
		Handle:       a.handleJobList,
	}
}

func (a *API) handleJobList(c *Context) (any, error) {
	jobs, err := a.sched.Jobs()
	if err != nil {
		return nil, err
	}

	// Ownership lives in the serialized job state, so non-admin visibility
	// is filtered here rather than in the store.
	items := []map[string]any{}
	for _, job := range jobs {
		if !c.User.IsAdmin && job.OwnerUserID != c.User.ID {
			continue
		}
		items = append(items, jobDict(job))
	}
	return map[string]any{
		"items":   items,
		"filters": map[string]any{},
	}, nil
}

func (a *API) jobAddEndpoint() Endpoint {
	return Endpoint{
		LogType:      model.LogJobAdd,
		AuthRequired: true,
		SaveLog:      true,
		Required:     []string{perm.JobAdd},
		Handle:       a.handleJobAdd,
	}
}

func (a *API) handleJobAdd(c *Context) (any, error) {
	if err := c.Require("name", "kwargs", "module", "trigger"); err != nil {
		return nil, err
	}
	module := c.String("module")
	if !a.registry.Valid(module) {
		return nil, apperr.New(apperr.Validation, "Invalid module %s", module)
	}
	kwargs, err := verifyKwargs(c.Data["kwargs"])
	if err != nil {
		return nil, err
	}
	trigger, err := scheduler.BuildTrigger(c.String("trigger"), c.String)
	if err != nil {
		return nil, err
	}

	job := &scheduler.Job{
		ID:          newJobID(module),
		Name:        c.String("name"),
		Module:      module,
		Kwargs:      kwargs,
		OwnerUserID: c.User.ID,
		Trigger:     trigger,
	}
	if err := a.sched.AddJob(job, true); err != nil {
		return nil, err
	}

	c.Flash("New job "+job.ID+" has been added", VariantSuccess)
	response := map[string]any{
		"job_id":     job.ID,
		"job_name":   job.Name,
		"job_kwargs": job.Kwargs,
	}
	c.RecordResponse(response)
	return response, nil
}

func (a *API) jobEditEndpoint(logType int, permission string) Endpoint {
	return Endpoint{
		LogType:      logType,
		AuthRequired: true,
		SaveLog:      true,
		Required:     []string{permission},
		Handle:       a.handleJobEdit,
	}
}

func (a *API) handleJobEdit(c *Context) (any, error) {
	job, err := a.verifyJob(c)
	if err != nil {
		return nil, err
	}

	if c.Request.Method == "GET" {
		c.SkipLog()
		return jobEditView(job), nil
	}

	if err := c.Require("name", "kwargs", "module", "trigger"); err != nil {
		return nil, err
	}
	module := c.String("module")
	if !a.registry.Valid(module) {
		return nil, apperr.New(apperr.Validation, "Invalid module %s", module)
	}
	kwargs, err := verifyKwargs(c.Data["kwargs"])
	if err != nil {
		return nil, err
	}
	trigger, err := scheduler.BuildTrigger(c.String("trigger"), c.String)
	if err != nil {
		return nil, err
	}

	// Re-register under the same id. The new trigger's start date wins;
	// otherwise the previous next run time is preserved, so editing a
	// paused job keeps it paused.
	next := job.NextRunTime
	if start := trigger.StartDate(); start != nil {
		next = start
	}
	updated := &scheduler.Job{
		ID:          job.ID,
		Name:        c.String("name"),
		Module:      module,
		Kwargs:      kwargs,
		OwnerUserID: c.User.ID,
		Trigger:     trigger,
		NextRunTime: next,
	}
	if err := a.sched.UpdateJob(updated); err != nil {
		return nil, err
	}

	c.Flash("Job "+job.ID+" has been updated", VariantSuccess)
	response := map[string]any{
		"job_id":     updated.ID,
		"job_name":   updated.Name,
		"job_kwargs": updated.Kwargs,
	}
	c.RecordResponse(response)
	return response, nil
}

func (a *API) jobPauseEndpoint() Endpoint {
	return Endpoint{
		LogType:      model.LogJobPause,
		AuthRequired: true,
		SaveLog:      true,
		Required:     []string{perm.JobPause},
		Handle:       a.handleJobPause,
	}
}

func (a *API) handleJobPause(c *Context) (any, error) {
	job, err := a.verifyJob(c)
	if err != nil {
		return nil, err
	}
	paused, err := a.sched.TogglePause(job.ID)
	if err != nil {
		return nil, err
	}
	message := "Job " + job.ID + " has been resumed"
	if paused {
		message = "Job " + job.ID + " has been paused"
	}
	c.Flash(message, VariantSuccess)
	response := map[string]any{"message": message}
	c.RecordResponse(response)
	return response, nil
}

func (a *API) jobDeleteEndpoint() Endpoint {
	return Endpoint{
		LogType:      model.LogJobDelete,
		AuthRequired: true,
		SaveLog:      true,
		Required:     []string{perm.JobDelete},
		Handle:       a.handleJobDelete,
	}
}

func (a *API) handleJobDelete(c *Context) (any, error) {
	job, err := a.verifyJob(c)
	if err != nil {
		return nil, err
	}
	if err := a.sched.RemoveJob(job.ID); err != nil {
		return nil, err
	}
	message := "Job " + job.ID + " has been deleted"
	c.Flash(message, VariantWarning)
	response := map[string]any{"message": message}
	c.RecordResponse(response)
	return response, nil
}

func (a *API) jobCommonEndpoint() Endpoint {
	return Endpoint{
		LogType:      model.LogCommonJobData,
		AuthRequired: true,
		SaveLog:      true,
		Related:      []string{perm.JobAdd, perm.JobGet},
		Handle: func(c *Context) (any, error) {
			return map[string]any{
				"job_triggers":   scheduler.TriggerCatalog(),
				"available_jobs": a.registry.Available(),
			}, nil
		},
	}
}

// verifyJob resolves the job named by the path and enforces ownership:
// non-admin callers only reach their own jobs.
func (a *API) verifyJob(c *Context) (*scheduler.Job, error) {
	jobID := c.Param("id")
	job, err := a.sched.Job(jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apperr.New(apperr.Validation,
			"Job id %s was not found", jobID)
	}
	if !c.User.IsAdmin && job.OwnerUserID != c.User.ID {
		return nil, apperr.New(apperr.Forbidden,
			"User %s has no access to job id %s", c.User.Username, jobID)
	}
	return job, nil
}

func verifyKwargs(raw any) (map[string]any, error) {
	kwargs, ok := raw.(map[string]any)
	if !ok {
		return nil, apperr.New(apperr.Validation, "Invalid job config")
	}
	return kwargs, nil
}

// newJobID synthesizes a human-stable id from the module name and the
// creation timestamp.
func newJobID(module string) string {
	now := time.Now()
	return fmt.Sprintf("%s__%s_%06d",
		module, now.Format("2006_01_02_15_04_05"), now.Nanosecond()/1000)
}

func jobDict(job *scheduler.Job) map[string]any {
	var next any
	if job.NextRunTime != nil {
		next = job.NextRunTime.Format(dateRangeLayout)
	}
	return map[string]any{
		"id":            job.ID,
		"name":          job.Name,
		"next_run_time": next,
		"kwargs":        job.Kwargs,
	}
}

// jobEditView materializes the job for the edit screen, exposing each
// trigger's fields the way the add form submits them.
func jobEditView(job *scheduler.Job) map[string]any {
	view := map[string]any{
		"id":     job.ID,
		"name":   job.Name,
		"kwargs": job.Kwargs,
		"module": job.Module,
	}
	if job.NextRunTime != nil {
		view["next_run_time"] = job.NextRunTime.Format(dateRangeLayout)
	} else {
		view["next_run_time"] = nil
	}

	switch t := job.Trigger.(type) {
	case *scheduler.CronTrigger:
		view["trigger"] = scheduler.KindCron
		view["year"] = orStarField(t.Year)
		view["month"] = orStarField(t.Month)
		view["day"] = orStarField(t.Day)
		view["day_of_week"] = orStarField(t.DayOfWeek)
		view["hour"] = orStarField(t.Hour)
		view["minute"] = orStarField(t.Minute)
		view["second"] = orStarField(t.Second)
		view["start_date"] = formatOptional(t.Start)
		view["end_date"] = formatOptional(t.End)
	case *scheduler.IntervalTrigger:
		view["trigger"] = scheduler.KindInterval
		view["days"] = t.IntervalDays()
		view["seconds"] = t.IntervalSeconds()
		view["start_date"] = formatOptional(t.Start)
		view["end_date"] = formatOptional(t.End)
	case *scheduler.DateTrigger:
		view["trigger"] = scheduler.KindDate
		view["run_date"] = t.RunDate.Format(dateRangeLayout)
	}
	return view
}

func orStarField(field string) string {
	if field == "" {
		return "*"
	}
	return field
}

func formatOptional(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateRangeLayout)
}
