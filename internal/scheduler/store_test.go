package scheduler

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opcron/opcron/internal/store"
)

func newTestJobStore(t *testing.T) (*JobStore, *store.Store) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewJobStore(db, zap.NewNop()), db
}

func testJob(id string, next *time.Time) *Job {
	return &Job{
		ID:          id,
		Name:        "probe",
		Module:      "test_job",
		Kwargs:      map[string]any{"message": "hello"},
		OwnerUserID: 7,
		Trigger:     &IntervalTrigger{Minutes: 5},
		NextRunTime: next,
	}
}

func TestJobStoreRoundTrip(t *testing.T) {
	js, _ := newTestJobStore(t)
	next := time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)
	require.NoError(t, js.AddJob(testJob("test_job__1", &next)))

	job, err := js.LookupJob("test_job__1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "test_job__1", job.ID)
	assert.Equal(t, "probe", job.Name)
	assert.Equal(t, "test_job", job.Module)
	assert.Equal(t, map[string]any{"message": "hello"}, job.Kwargs)
	assert.Equal(t, int64(7), job.OwnerUserID)
	require.NotNil(t, job.NextRunTime)
	assert.True(t, job.NextRunTime.Equal(next))

	interval, ok := job.Trigger.(*IntervalTrigger)
	require.True(t, ok)
	assert.Equal(t, 5, interval.Minutes)
}

func TestJobStoreConflictingID(t *testing.T) {
	js, _ := newTestJobStore(t)
	require.NoError(t, js.AddJob(testJob("dup", nil)))

	err := js.AddJob(testJob("dup", nil))
	assert.ErrorIs(t, err, store.ErrConflictingID)
}

func TestJobStoreUpdateMissing(t *testing.T) {
	js, _ := newTestJobStore(t)
	err := js.UpdateJob(testJob("ghost", nil))
	assert.ErrorIs(t, err, store.ErrJobNotFound)

	assert.ErrorIs(t, js.RemoveJob("ghost"), store.ErrJobNotFound)
	assert.NoError(t, js.RemoveAllJobs())
}

func TestJobStoreLookupAbsent(t *testing.T) {
	js, _ := newTestJobStore(t)
	job, err := js.LookupJob("missing")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestJobStoreDueJobsOrdering(t *testing.T) {
	js, _ := newTestJobStore(t)
	now := time.Now()

	late := now.Add(-time.Minute)
	early := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	require.NoError(t, js.AddJob(testJob("late", &late)))
	require.NoError(t, js.AddJob(testJob("early", &early)))
	require.NoError(t, js.AddJob(testJob("future", &future)))
	require.NoError(t, js.AddJob(testJob("paused", nil)))

	due, err := js.GetDueJobs(now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "early", due[0].ID)
	assert.Equal(t, "late", due[1].ID)

	next, err := js.GetNextRunTime()
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.WithinDuration(t, early, *next, time.Millisecond)
}

func TestJobStoreGetNextRunTimeAllPaused(t *testing.T) {
	js, _ := newTestJobStore(t)
	require.NoError(t, js.AddJob(testJob("a", nil)))
	require.NoError(t, js.AddJob(testJob("b", nil)))

	next, err := js.GetNextRunTime()
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestJobStoreGetAllJobsPausedLast(t *testing.T) {
	js, _ := newTestJobStore(t)
	now := time.Now()
	first := now.Add(time.Minute)
	second := now.Add(time.Hour)
	require.NoError(t, js.AddJob(testJob("paused_b", nil)))
	require.NoError(t, js.AddJob(testJob("second", &second)))
	require.NoError(t, js.AddJob(testJob("paused_a", nil)))
	require.NoError(t, js.AddJob(testJob("first", &first)))

	jobs, err := js.GetAllJobs()
	require.NoError(t, err)
	require.Len(t, jobs, 4)
	assert.Equal(t, "first", jobs[0].ID)
	assert.Equal(t, "second", jobs[1].ID)
	// Paused jobs sort to the end, deterministically by id.
	assert.Equal(t, "paused_a", jobs[2].ID)
	assert.Equal(t, "paused_b", jobs[3].ID)
}

func TestJobStoreCorruptionSelfHeals(t *testing.T) {
	js, db := newTestJobStore(t)
	next := time.Now().Add(time.Hour)
	require.NoError(t, js.AddJob(testJob("healthy", &next)))
	require.NoError(t, js.AddJob(testJob("corrupt", &next)))

	// Damage the serialized state directly in the store.
	require.NoError(t, db.UpdateJob(store.JobRow{
		ID:          "corrupt",
		NextRunTime: sql.NullFloat64{Float64: float64(next.Unix()), Valid: true},
		State:       []byte("not json"),
	}))

	jobs, err := js.GetAllJobs()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "healthy", jobs[0].ID)

	// The corrupt row was purged as part of the read.
	job, err := js.LookupJob("corrupt")
	require.NoError(t, err)
	assert.Nil(t, job)

	row, err := db.JobRowByID("corrupt")
	require.NoError(t, err)
	assert.Nil(t, row)
}
