package scheduler

import (
	"strconv"
	"strings"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/opcron/opcron/internal/apperr"
)

// Trigger kinds form a closed set.
const (
	KindCron     = "cron"
	KindInterval = "interval"
	KindDate     = "date"
)

// TriggerParams lists the accepted parameter names per kind, in the order
// they are read from a request.
var TriggerParams = map[string][]string{
	KindCron: {"year", "month", "day", "day_of_week", "hour", "minute",
		"second", "start_date", "end_date"},
	KindInterval: {"weeks", "days", "hours", "minutes", "seconds",
		"start_date", "end_date"},
	KindDate: {"run_date"},
}

// TriggerInfo describes a trigger kind for the common reference-data endpoint.
type TriggerInfo struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// TriggerCatalog lists every supported trigger kind.
func TriggerCatalog() []TriggerInfo {
	return []TriggerInfo{
		{1, KindCron, "Cron", "Job triggers when current time matches all " +
			"specified time constraints, similarly to how the UNIX cron " +
			"scheduler works."},
		{2, KindDate, "Date", "Schedules a job to be executed once at the " +
			"specified time."},
		{3, KindInterval, "Interval", "Schedules a job to be run " +
			"periodically, on selected intervals."},
	}
}

// Trigger computes a job's next fire time. prev is the previously scheduled
// run, nil on first scheduling. A nil result means the trigger will never
// fire again.
type Trigger interface {
	Kind() string
	NextFireTime(prev *time.Time, now time.Time) *time.Time
	StartDate() *time.Time
}

const dateLayout = "2006-01-02 15:04:05"

// cronParser accepts an optional seconds field ahead of the standard five.
var cronParser = cronlib.NewParser(
	cronlib.Second | cronlib.Minute | cronlib.Hour | cronlib.Dom |
		cronlib.Month | cronlib.Dow)

// CronTrigger fires when the current time matches every field constraint.
// Fields default to "*". Year is matched separately since cron expressions
// carry no year field.
type CronTrigger struct {
	Year      string
	Month     string
	Day       string
	DayOfWeek string
	Hour      string
	Minute    string
	Second    string
	Start     *time.Time
	End       *time.Time

	schedule cronlib.Schedule
}

func (t *CronTrigger) Kind() string          { return KindCron }
func (t *CronTrigger) StartDate() *time.Time { return t.Start }

// compile parses the assembled cron expression once.
func (t *CronTrigger) compile() error {
	expr := strings.Join([]string{
		orStar(t.Second), orStar(t.Minute), orStar(t.Hour),
		orStar(t.Day), orStar(t.Month), orStar(t.DayOfWeek),
	}, " ")
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return err
	}
	t.schedule = schedule
	return nil
}

func (t *CronTrigger) NextFireTime(prev *time.Time, now time.Time) *time.Time {
	base := now
	if prev != nil && prev.After(base) {
		base = *prev
	}
	if t.Start != nil && t.Start.After(base) {
		base = *t.Start
	}

	next := t.schedule.Next(base)
	if t.Year != "" && t.Year != "*" {
		year, err := strconv.Atoi(t.Year)
		if err != nil {
			return nil
		}
		for next.Year() != year {
			if next.Year() > year {
				return nil
			}
			// Jump to the start of the requested year instead of walking
			// every intermediate fire time.
			next = t.schedule.Next(time.Date(year, time.January, 1, 0, 0, 0, 0, next.Location()).Add(-time.Second))
			if next.IsZero() {
				return nil
			}
			if next.Year() > year {
				return nil
			}
		}
	}
	if next.IsZero() {
		return nil
	}
	if t.End != nil && next.After(*t.End) {
		return nil
	}
	return &next
}

// IntervalTrigger fires periodically at a fixed interval.
type IntervalTrigger struct {
	Weeks   int
	Days    int
	Hours   int
	Minutes int
	Seconds int
	Start   *time.Time
	End     *time.Time
}

func (t *IntervalTrigger) Kind() string          { return KindInterval }
func (t *IntervalTrigger) StartDate() *time.Time { return t.Start }

// Interval returns the total period.
func (t *IntervalTrigger) Interval() time.Duration {
	return time.Duration(t.Weeks)*7*24*time.Hour +
		time.Duration(t.Days)*24*time.Hour +
		time.Duration(t.Hours)*time.Hour +
		time.Duration(t.Minutes)*time.Minute +
		time.Duration(t.Seconds)*time.Second
}

// IntervalDays and IntervalSeconds expose the period split the way the edit
// view reports it: whole days plus the remaining seconds.
func (t *IntervalTrigger) IntervalDays() int {
	return int(t.Interval() / (24 * time.Hour))
}

func (t *IntervalTrigger) IntervalSeconds() int {
	return int((t.Interval() % (24 * time.Hour)) / time.Second)
}

func (t *IntervalTrigger) NextFireTime(prev *time.Time, now time.Time) *time.Time {
	interval := t.Interval()
	var next time.Time
	switch {
	case prev != nil:
		next = prev.Add(interval)
		// Missed runs coalesce into a single upcoming one.
		if !next.After(now) {
			next = now.Add(interval)
		}
	case t.Start != nil && t.Start.After(now):
		next = *t.Start
	default:
		next = now.Add(interval)
	}
	if t.End != nil && next.After(*t.End) {
		return nil
	}
	return &next
}

// DateTrigger fires exactly once at the configured time.
type DateTrigger struct {
	RunDate time.Time
}

func (t *DateTrigger) Kind() string          { return KindDate }
func (t *DateTrigger) StartDate() *time.Time { return &t.RunDate }

func (t *DateTrigger) NextFireTime(prev *time.Time, now time.Time) *time.Time {
	if prev != nil {
		return nil
	}
	run := t.RunDate
	return &run
}

// BuildTrigger constructs a trigger from raw request parameters. Numeric
// strings are coerced to integers, empty values fall back to defaults, and
// any construction failure names the trigger kind rather than the underlying
// parser's message.
func BuildTrigger(kind string, param func(name string) string) (Trigger, error) {
	params, ok := TriggerParams[kind]
	if !ok {
		return nil, apperr.New(apperr.Validation, "Invalid job trigger %s", kind)
	}

	values := make(map[string]string, len(params))
	for _, name := range params {
		values[name] = strings.TrimSpace(param(name))
	}

	trigger, err := buildTrigger(kind, values)
	if err != nil {
		return nil, apperr.New(apperr.Validation, "Invalid parameters for %s trigger", kind)
	}
	return trigger, nil
}

func buildTrigger(kind string, values map[string]string) (Trigger, error) {
	switch kind {
	case KindCron:
		start, err := parseOptionalDate(values["start_date"])
		if err != nil {
			return nil, err
		}
		end, err := parseOptionalDate(values["end_date"])
		if err != nil {
			return nil, err
		}
		t := &CronTrigger{
			Year:      values["year"],
			Month:     values["month"],
			Day:       values["day"],
			DayOfWeek: values["day_of_week"],
			Hour:      values["hour"],
			Minute:    values["minute"],
			Second:    values["second"],
			Start:     start,
			End:       end,
		}
		if err := t.compile(); err != nil {
			return nil, err
		}
		return t, nil

	case KindInterval:
		start, err := parseOptionalDate(values["start_date"])
		if err != nil {
			return nil, err
		}
		end, err := parseOptionalDate(values["end_date"])
		if err != nil {
			return nil, err
		}
		t := &IntervalTrigger{Start: start, End: end}
		for name, dst := range map[string]*int{
			"weeks":   &t.Weeks,
			"days":    &t.Days,
			"hours":   &t.Hours,
			"minutes": &t.Minutes,
			"seconds": &t.Seconds,
		} {
			if values[name] == "" {
				continue
			}
			n, err := strconv.Atoi(values[name])
			if err != nil || n < 0 {
				return nil, apperr.New(apperr.Validation, "invalid %s", name)
			}
			*dst = n
		}
		if t.Interval() <= 0 {
			return nil, apperr.New(apperr.Validation, "empty interval")
		}
		return t, nil

	case KindDate:
		run, err := parseOptionalDate(values["run_date"])
		if err != nil || run == nil {
			return nil, apperr.New(apperr.Validation, "invalid run_date")
		}
		return &DateTrigger{RunDate: *run}, nil
	}
	return nil, apperr.New(apperr.Validation, "Invalid job trigger %s", kind)
}

func parseOptionalDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{dateLayout, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, apperr.New(apperr.Validation, "invalid date %s", value)
}

func orStar(field string) string {
	if field == "" {
		return "*"
	}
	return field
}
