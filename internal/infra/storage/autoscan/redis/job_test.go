package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/internal/infra/storage"
)

func setupJobTest(t *testing.T) (context.Context, *JobStore) {
	t.Helper()

	addr := storage.SetupRedisContainer(t)

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	return context.Background(), NewJobStore(client, storage.NoOpTracer(), WithKeyPrefix("test"))
}

func newJob(t *testing.T, workspace string) *autoscan.Job {
	t.Helper()
	job, err := autoscan.NewJob(workspace, "example.com", autoscan.Payload{"probe_concurrency": 10})
	require.NoError(t, err)
	return job
}

func TestJobStore_CreateGetUpdate(t *testing.T) {
	t.Parallel()
	ctx, store := setupJobTest(t)

	job := newJob(t, "w1")
	require.NoError(t, store.CreateJob(ctx, job))
	assert.Error(t, store.CreateJob(ctx, job), "duplicate ids are rejected")

	require.NoError(t, job.Start())
	require.NoError(t, job.BeginPhase(autoscan.PhaseSubdomainEnum))
	require.NoError(t, job.RecordOutcome(autoscan.PartialFailure(
		autoscan.PhaseSubdomainEnum,
		autoscan.Payload{autoscan.ResultSubdomains: []string{"a.example.com"}},
		errors.New("one source failed"),
	)))
	require.NoError(t, store.UpdateJob(ctx, job))

	loaded, err := store.GetJob(ctx, job.JobID())
	require.NoError(t, err)
	assert.Equal(t, autoscan.JobStatusRunning, loaded.Status())
	assert.Equal(t, []autoscan.Phase{autoscan.PhaseSubdomainEnum}, loaded.FailedPhases())
	assert.Equal(t, 10, loaded.Settings().GetInt("probe_concurrency", 0))
	assert.Equal(t,
		[]string{"a.example.com"},
		loaded.Results()[autoscan.PhaseSubdomainEnum].GetStrings(autoscan.ResultSubdomains),
	)
	assert.True(t, job.StartedAt().Equal(loaded.StartedAt()))
	assert.Equal(t, len(job.Logs()), len(loaded.Logs()))
}

func TestJobStore_MissingJob(t *testing.T) {
	t.Parallel()
	ctx, store := setupJobTest(t)

	assert.ErrorIs(t, store.UpdateJob(ctx, newJob(t, "w1")), autoscan.ErrJobNotFound)
	_, err := store.GetJob(ctx, uuid.New())
	assert.ErrorIs(t, err, autoscan.ErrJobNotFound)
	assert.ErrorIs(t, store.DeleteJob(ctx, uuid.New()), autoscan.ErrJobNotFound)
}

func TestJobStore_ListAndDelete(t *testing.T) {
	t.Parallel()
	ctx, store := setupJobTest(t)

	first := newJob(t, "w1")
	require.NoError(t, store.CreateJob(ctx, first))
	time.Sleep(5 * time.Millisecond)
	second := newJob(t, "w2")
	require.NoError(t, store.CreateJob(ctx, second))

	all, err := store.ListJobs(ctx, autoscan.JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.JobID(), all[0].JobID())

	w1, err := store.ListJobs(ctx, autoscan.JobFilter{WorkspaceID: "w1"})
	require.NoError(t, err)
	require.Len(t, w1, 1)
	assert.Equal(t, first.JobID(), w1[0].JobID())

	limited, err := store.ListJobs(ctx, autoscan.JobFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, store.DeleteJob(ctx, first.JobID()))
	all, err = store.ListJobs(ctx, autoscan.JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, second.JobID(), all[0].JobID())
	require.NoError(t, store.Ping(ctx))
}
