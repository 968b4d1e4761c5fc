package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func params(values map[string]string) func(string) string {
	return func(name string) string { return values[name] }
}

func TestBuildTriggerUnknownKind(t *testing.T) {
	_, err := BuildTrigger("hourly", params(nil))
	require.Error(t, err)
	assert.EqualError(t, err, "Invalid job trigger hourly")
}

func TestBuildCronTrigger(t *testing.T) {
	trigger, err := BuildTrigger(KindCron, params(map[string]string{
		"year": "*", "month": "*", "day": "*", "day_of_week": "*",
		"hour": "*", "minute": "*", "second": "0",
	}))
	require.NoError(t, err)
	cron, ok := trigger.(*CronTrigger)
	require.True(t, ok)
	assert.Equal(t, "0", cron.Second)

	now := time.Date(2026, time.March, 5, 10, 30, 15, 0, time.Local)
	next := cron.NextFireTime(nil, now)
	require.NotNil(t, next)
	// Fires on the next whole minute.
	assert.Equal(t, time.Date(2026, time.March, 5, 10, 31, 0, 0, time.Local), *next)
}

func TestBuildCronTriggerBadField(t *testing.T) {
	_, err := BuildTrigger(KindCron, params(map[string]string{
		"minute": "not-a-minute",
	}))
	require.Error(t, err)
	assert.EqualError(t, err, "Invalid parameters for cron trigger")
}

func TestCronTriggerYearFilter(t *testing.T) {
	trigger, err := BuildTrigger(KindCron, params(map[string]string{
		"year": "2030", "month": "1", "day": "1",
		"hour": "0", "minute": "0", "second": "0",
	}))
	require.NoError(t, err)

	now := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.Local)
	next := trigger.NextFireTime(nil, now)
	require.NotNil(t, next)
	assert.Equal(t, 2030, next.Year())

	// Past years never fire again.
	after := time.Date(2031, time.June, 1, 0, 0, 0, 0, time.Local)
	assert.Nil(t, trigger.NextFireTime(nil, after))
}

func TestCronTriggerEndDate(t *testing.T) {
	trigger, err := BuildTrigger(KindCron, params(map[string]string{
		"minute": "0", "second": "0",
		"end_date": "2026-01-01 00:00:00",
	}))
	require.NoError(t, err)

	now := time.Date(2026, time.June, 1, 0, 30, 0, 0, time.UTC)
	assert.Nil(t, trigger.NextFireTime(nil, now))
}

func TestBuildIntervalTrigger(t *testing.T) {
	trigger, err := BuildTrigger(KindInterval, params(map[string]string{
		"days": "1", "hours": "2",
	}))
	require.NoError(t, err)
	interval, ok := trigger.(*IntervalTrigger)
	require.True(t, ok)
	assert.Equal(t, 26*time.Hour, interval.Interval())
	assert.Equal(t, 1, interval.IntervalDays())
	assert.Equal(t, 2*60*60, interval.IntervalSeconds())
}

func TestIntervalTriggerNextFireTime(t *testing.T) {
	trigger := &IntervalTrigger{Minutes: 10}
	now := time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)

	t.Run("first schedule", func(t *testing.T) {
		next := trigger.NextFireTime(nil, now)
		require.NotNil(t, next)
		assert.Equal(t, now.Add(10*time.Minute), *next)
	})

	t.Run("follows previous run", func(t *testing.T) {
		prev := now.Add(-time.Minute)
		next := trigger.NextFireTime(&prev, now)
		require.NotNil(t, next)
		assert.Equal(t, prev.Add(10*time.Minute), *next)
	})

	t.Run("missed runs coalesce", func(t *testing.T) {
		prev := now.Add(-time.Hour)
		next := trigger.NextFireTime(&prev, now)
		require.NotNil(t, next)
		assert.Equal(t, now.Add(10*time.Minute), *next)
	})

	t.Run("future start date wins", func(t *testing.T) {
		start := now.Add(time.Hour)
		withStart := &IntervalTrigger{Minutes: 10, Start: &start}
		next := withStart.NextFireTime(nil, now)
		require.NotNil(t, next)
		assert.Equal(t, start, *next)
	})
}

func TestBuildIntervalTriggerEmpty(t *testing.T) {
	_, err := BuildTrigger(KindInterval, params(nil))
	require.Error(t, err)
	assert.EqualError(t, err, "Invalid parameters for interval trigger")
}

func TestDateTrigger(t *testing.T) {
	trigger, err := BuildTrigger(KindDate, params(map[string]string{
		"run_date": "2026-12-24 18:00:00",
	}))
	require.NoError(t, err)

	now := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	next := trigger.NextFireTime(nil, now)
	require.NotNil(t, next)
	assert.Equal(t, 2026, next.Year())
	assert.Equal(t, time.December, next.Month())

	// One-shot: once fired, never again.
	assert.Nil(t, trigger.NextFireTime(next, now))
}

func TestDateTriggerMissingRunDate(t *testing.T) {
	_, err := BuildTrigger(KindDate, params(nil))
	require.Error(t, err)
	assert.EqualError(t, err, "Invalid parameters for date trigger")
}
