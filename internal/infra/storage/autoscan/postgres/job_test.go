package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/internal/infra/storage"
)

func setupJobTest(t *testing.T) (context.Context, *jobStore) {
	t.Helper()

	pool := storage.SetupTestContainer(t)
	return context.Background(), NewJobStore(pool, storage.NoOpTracer())
}

func createTestJob(t *testing.T, workspace string) *autoscan.Job {
	t.Helper()
	job, err := autoscan.NewJob(workspace, "example.com", autoscan.Payload{"port_range": "top-100"})
	require.NoError(t, err)
	return job
}

func TestJobStore_CreateAndGet(t *testing.T) {
	t.Parallel()
	ctx, store := setupJobTest(t)

	job := createTestJob(t, "w1")
	require.NoError(t, store.CreateJob(ctx, job))

	loaded, err := store.GetJob(ctx, job.JobID())
	require.NoError(t, err)

	assert.Equal(t, job.JobID(), loaded.JobID())
	assert.Equal(t, "w1", loaded.WorkspaceID())
	assert.Equal(t, "example.com", loaded.TargetDomain())
	assert.Equal(t, autoscan.JobStatusPending, loaded.Status())
	assert.Equal(t, "top-100", loaded.Settings().GetString("port_range", ""))
	assert.Len(t, loaded.Logs(), 1)
	assert.WithinDuration(t, job.CreatedAt(), loaded.CreatedAt(), time.Millisecond)
	assert.True(t, loaded.StartedAt().IsZero())
	assert.True(t, loaded.CompletedAt().IsZero())
}

func TestJobStore_UpdateRoundTripsPhaseState(t *testing.T) {
	t.Parallel()
	ctx, store := setupJobTest(t)

	job := createTestJob(t, "w1")
	require.NoError(t, store.CreateJob(ctx, job))

	require.NoError(t, job.Start())
	require.NoError(t, job.BeginPhase(autoscan.PhaseSubdomainEnum))
	require.NoError(t, job.RecordOutcome(autoscan.Success(autoscan.PhaseSubdomainEnum, autoscan.Payload{
		autoscan.ResultSubdomains: []string{"a.example.com"},
	})))
	require.NoError(t, job.BeginPhase(autoscan.PhaseHTTPProbe))
	require.NoError(t, job.RecordOutcome(autoscan.PartialFailure(autoscan.PhaseHTTPProbe, nil, errors.New("probe timeout"))))
	require.NoError(t, job.UpdateProgress(autoscan.PhaseHTTPProbe, autoscan.Payload{"checked": 1}))
	require.NoError(t, job.Pause())
	require.NoError(t, store.UpdateJob(ctx, job))

	loaded, err := store.GetJob(ctx, job.JobID())
	require.NoError(t, err)

	assert.Equal(t, autoscan.JobStatusPaused, loaded.Status())
	assert.Equal(t, []autoscan.Phase{autoscan.PhaseSubdomainEnum}, loaded.CompletedPhases())
	assert.Equal(t, []autoscan.Phase{autoscan.PhaseHTTPProbe}, loaded.FailedPhases())
	assert.Equal(t,
		[]string{"a.example.com"},
		loaded.Results()[autoscan.PhaseSubdomainEnum].GetStrings(autoscan.ResultSubdomains),
	)
	assert.Equal(t, 1, loaded.PhaseProgress()[autoscan.PhaseHTTPProbe].GetInt("checked", 0))
	assert.False(t, loaded.StartedAt().IsZero())
	assert.Equal(t, len(job.Logs()), len(loaded.Logs()))
}

func TestJobStore_UpdateMissingJob(t *testing.T) {
	t.Parallel()
	ctx, store := setupJobTest(t)

	err := store.UpdateJob(ctx, createTestJob(t, "w1"))
	assert.ErrorIs(t, err, autoscan.ErrJobNotFound)

	_, err = store.GetJob(ctx, uuid.New())
	assert.ErrorIs(t, err, autoscan.ErrJobNotFound)

	err = store.DeleteJob(ctx, uuid.New())
	assert.ErrorIs(t, err, autoscan.ErrJobNotFound)
}

func TestJobStore_ListJobsFilters(t *testing.T) {
	t.Parallel()
	ctx, store := setupJobTest(t)

	done := createTestJob(t, "w1")
	require.NoError(t, store.CreateJob(ctx, done))
	require.NoError(t, done.Start())
	require.NoError(t, done.Complete())
	require.NoError(t, store.UpdateJob(ctx, done))

	time.Sleep(5 * time.Millisecond)
	active := createTestJob(t, "w2")
	require.NoError(t, store.CreateJob(ctx, active))

	all, err := store.ListJobs(ctx, autoscan.JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, active.JobID(), all[0].JobID(), "newest first")

	byWorkspace, err := store.ListJobs(ctx, autoscan.JobFilter{WorkspaceID: "w1"})
	require.NoError(t, err)
	require.Len(t, byWorkspace, 1)
	assert.Equal(t, done.JobID(), byWorkspace[0].JobID())

	terminal, err := store.ListJobs(ctx, autoscan.JobFilter{
		Statuses:        []autoscan.JobStatus{autoscan.JobStatusCompleted},
		CompletedBefore: time.Now().Add(time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, terminal, 1)
	assert.Equal(t, done.JobID(), terminal[0].JobID())

	limited, err := store.ListJobs(ctx, autoscan.JobFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestJobStore_Delete(t *testing.T) {
	t.Parallel()
	ctx, store := setupJobTest(t)

	job := createTestJob(t, "w1")
	require.NoError(t, store.CreateJob(ctx, job))
	require.NoError(t, store.DeleteJob(ctx, job.JobID()))

	_, err := store.GetJob(ctx, job.JobID())
	assert.ErrorIs(t, err, autoscan.ErrJobNotFound)
}
