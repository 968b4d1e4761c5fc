package scheduler

import (
	"encoding/json"
	"fmt"
	"time"
)

// Job is one scheduled unit of work. Ownership is a first-class field of the
// serialized state so it survives restarts without a separate table.
type Job struct {
	ID          string
	Name        string
	Module      string
	Kwargs      map[string]any
	OwnerUserID int64
	Trigger     Trigger
	NextRunTime *time.Time
}

// jobState is the serialized form persisted as opaque bytes in the job store.
type jobState struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Module      string         `json:"module"`
	Kwargs      map[string]any `json:"kwargs"`
	OwnerUserID int64          `json:"owner_user_id"`
	Trigger     triggerState   `json:"trigger"`
	NextRunTime *float64       `json:"next_run_time"`
}

type triggerState struct {
	Kind string `json:"kind"`

	// cron
	Year      string `json:"year,omitempty"`
	Month     string `json:"month,omitempty"`
	Day       string `json:"day,omitempty"`
	DayOfWeek string `json:"day_of_week,omitempty"`
	Hour      string `json:"hour,omitempty"`
	Minute    string `json:"minute,omitempty"`
	Second    string `json:"second,omitempty"`

	// interval
	Weeks   int `json:"weeks,omitempty"`
	Days    int `json:"days,omitempty"`
	Hours   int `json:"hours,omitempty"`
	Minutes int `json:"minutes,omitempty"`
	Seconds int `json:"seconds,omitempty"`

	// shared bounds / date
	StartDate *string `json:"start_date,omitempty"`
	EndDate   *string `json:"end_date,omitempty"`
	RunDate   *string `json:"run_date,omitempty"`
}

// encodeJob serializes a job to its opaque stored form.
func encodeJob(job *Job) ([]byte, error) {
	state := jobState{
		ID:          job.ID,
		Name:        job.Name,
		Module:      job.Module,
		Kwargs:      job.Kwargs,
		OwnerUserID: job.OwnerUserID,
		NextRunTime: timeToEpoch(job.NextRunTime),
	}

	switch t := job.Trigger.(type) {
	case *CronTrigger:
		state.Trigger = triggerState{
			Kind:      KindCron,
			Year:      t.Year,
			Month:     t.Month,
			Day:       t.Day,
			DayOfWeek: t.DayOfWeek,
			Hour:      t.Hour,
			Minute:    t.Minute,
			Second:    t.Second,
			StartDate: formatDate(t.Start),
			EndDate:   formatDate(t.End),
		}
	case *IntervalTrigger:
		state.Trigger = triggerState{
			Kind: KindInterval, Weeks: t.Weeks, Days: t.Days,
			Hours: t.Hours, Minutes: t.Minutes, Seconds: t.Seconds,
			StartDate: formatDate(t.Start), EndDate: formatDate(t.End),
		}
	case *DateTrigger:
		run := t.RunDate
		state.Trigger = triggerState{Kind: KindDate, RunDate: formatDate(&run)}
	default:
		return nil, fmt.Errorf("unsupported trigger %T", job.Trigger)
	}

	return json.Marshal(state)
}

// decodeJob reconstructs a job from stored bytes. Any failure marks the row
// unreconstructable.
func decodeJob(data []byte) (*Job, error) {
	var state jobState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if state.ID == "" {
		return nil, fmt.Errorf("job state missing id")
	}

	trigger, err := decodeTrigger(state.Trigger)
	if err != nil {
		return nil, err
	}

	kwargs := state.Kwargs
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return &Job{
		ID:          state.ID,
		Name:        state.Name,
		Module:      state.Module,
		Kwargs:      kwargs,
		OwnerUserID: state.OwnerUserID,
		Trigger:     trigger,
		NextRunTime: epochToTime(state.NextRunTime),
	}, nil
}

func decodeTrigger(state triggerState) (Trigger, error) {
	switch state.Kind {
	case KindCron:
		t := &CronTrigger{
			Year: state.Year, Month: state.Month, Day: state.Day,
			DayOfWeek: state.DayOfWeek, Hour: state.Hour,
			Minute: state.Minute, Second: state.Second,
		}
		var err error
		if t.Start, err = parseDatePtr(state.StartDate); err != nil {
			return nil, err
		}
		if t.End, err = parseDatePtr(state.EndDate); err != nil {
			return nil, err
		}
		if err := t.compile(); err != nil {
			return nil, err
		}
		return t, nil

	case KindInterval:
		t := &IntervalTrigger{
			Weeks: state.Weeks, Days: state.Days, Hours: state.Hours,
			Minutes: state.Minutes, Seconds: state.Seconds,
		}
		var err error
		if t.Start, err = parseDatePtr(state.StartDate); err != nil {
			return nil, err
		}
		if t.End, err = parseDatePtr(state.EndDate); err != nil {
			return nil, err
		}
		if t.Interval() <= 0 {
			return nil, fmt.Errorf("interval trigger with empty interval")
		}
		return t, nil

	case KindDate:
		run, err := parseDatePtr(state.RunDate)
		if err != nil {
			return nil, err
		}
		if run == nil {
			return nil, fmt.Errorf("date trigger missing run_date")
		}
		return &DateTrigger{RunDate: *run}, nil
	}
	return nil, fmt.Errorf("unknown trigger kind %q", state.Kind)
}

func timeToEpoch(t *time.Time) *float64 {
	if t == nil {
		return nil
	}
	epoch := float64(t.UnixMicro()) / 1e6
	return &epoch
}

func epochToTime(epoch *float64) *time.Time {
	if epoch == nil {
		return nil
	}
	t := time.UnixMicro(int64(*epoch * 1e6))
	return &t
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

func parseDatePtr(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
