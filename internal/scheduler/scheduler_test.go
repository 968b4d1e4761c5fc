package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	js, _ := newTestJobStore(t)
	return New(js, time.Minute, time.Minute, zap.NewNop())
}

func TestSchedulerAddComputesNextRunTime(t *testing.T) {
	s := newTestScheduler(t)
	job := testJob("auto", nil)
	require.NoError(t, s.AddJob(job, false))

	stored, err := s.Job("auto")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.NextRunTime)
	assert.WithinDuration(t,
		time.Now().Add(5*time.Minute), *stored.NextRunTime, time.Minute)
}

func TestSchedulerReplaceExisting(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.AddJob(testJob("job", nil), false))

	replacement := testJob("job", nil)
	replacement.Name = "renamed"
	require.Error(t, s.AddJob(testJob("job", nil), false))
	require.NoError(t, s.AddJob(replacement, true))

	stored, err := s.Job("job")
	require.NoError(t, err)
	assert.Equal(t, "renamed", stored.Name)
}

func TestSchedulerTogglePause(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.AddJob(testJob("job", nil), false))

	paused, err := s.TogglePause("job")
	require.NoError(t, err)
	assert.True(t, paused)

	stored, err := s.Job("job")
	require.NoError(t, err)
	assert.Nil(t, stored.NextRunTime)

	// Pausing again resumes with a fresh next run time from the trigger.
	paused, err = s.TogglePause("job")
	require.NoError(t, err)
	assert.False(t, paused)

	stored, err = s.Job("job")
	require.NoError(t, err)
	require.NotNil(t, stored.NextRunTime)
	assert.WithinDuration(t,
		time.Now().Add(5*time.Minute), *stored.NextRunTime, time.Minute)
}

func TestSchedulerDispatchesDueJobs(t *testing.T) {
	s := newTestScheduler(t)

	var mu sync.Mutex
	executed := map[string]int{}
	done := make(chan struct{}, 1)
	s.SetExecutor(func(ctx context.Context, job *Job) {
		mu.Lock()
		executed[job.ID]++
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
	})

	past := time.Now().Add(-time.Second)
	require.NoError(t, s.AddJob(testJob("due", &past), false))

	s.Start()
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not dispatched")
	}

	mu.Lock()
	count := executed["due"]
	mu.Unlock()
	assert.GreaterOrEqual(t, count, 1)

	// The job was rescheduled, not removed.
	stored, err := s.Job("due")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.NextRunTime)
	assert.True(t, stored.NextRunTime.After(time.Now()))
}
