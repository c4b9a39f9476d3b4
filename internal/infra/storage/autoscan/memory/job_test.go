package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/recon-armada/internal/domain/autoscan"
)

func newJob(t *testing.T, workspace string) *autoscan.Job {
	t.Helper()
	job, err := autoscan.NewJob(workspace, "example.com", autoscan.DefaultSettings())
	require.NoError(t, err)
	return job
}

func TestJobStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	job := newJob(t, "w1")

	require.NoError(t, store.CreateJob(ctx, job))
	assert.Error(t, store.CreateJob(ctx, job), "duplicate ids are rejected")

	loaded, err := store.GetJob(ctx, job.JobID())
	require.NoError(t, err)
	assert.Equal(t, job.JobID(), loaded.JobID())
	assert.Equal(t, autoscan.JobStatusPending, loaded.Status())
	assert.Equal(t, job.Logs(), loaded.Logs())
	assert.Equal(t, "top-100", loaded.Settings().GetString(autoscan.SettingPortRange, ""))
}

func TestJobStore_StoredCopyIsIsolated(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	job := newJob(t, "w1")
	require.NoError(t, store.CreateJob(ctx, job))

	require.NoError(t, job.Start())

	loaded, err := store.GetJob(ctx, job.JobID())
	require.NoError(t, err)
	assert.Equal(t, autoscan.JobStatusPending, loaded.Status())

	require.NoError(t, store.UpdateJob(ctx, job))
	loaded, err = store.GetJob(ctx, job.JobID())
	require.NoError(t, err)
	assert.Equal(t, autoscan.JobStatusRunning, loaded.Status())
	assert.False(t, loaded.StartedAt().IsZero())
}

func TestJobStore_MissingJob(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()

	_, err := store.GetJob(ctx, uuid.New())
	assert.ErrorIs(t, err, autoscan.ErrJobNotFound)
	assert.ErrorIs(t, store.UpdateJob(ctx, newJob(t, "w1")), autoscan.ErrJobNotFound)
	assert.ErrorIs(t, store.DeleteJob(ctx, uuid.New()), autoscan.ErrJobNotFound)
}

func TestJobStore_ListJobs(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()

	first := newJob(t, "w1")
	second := newJob(t, "w2")
	require.NoError(t, second.Start())
	require.NoError(t, second.Complete())
	require.NoError(t, store.CreateJob(ctx, first))
	require.NoError(t, store.CreateJob(ctx, second))

	all, err := store.ListJobs(ctx, autoscan.JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	w1, err := store.ListJobs(ctx, autoscan.JobFilter{WorkspaceID: "w1"})
	require.NoError(t, err)
	require.Len(t, w1, 1)
	assert.Equal(t, first.JobID(), w1[0].JobID())

	done, err := store.ListJobs(ctx, autoscan.JobFilter{Statuses: []autoscan.JobStatus{autoscan.JobStatusCompleted}})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, second.JobID(), done[0].JobID())

	limited, err := store.ListJobs(ctx, autoscan.JobFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, store.DeleteJob(ctx, first.JobID()))
	all, err = store.ListJobs(ctx, autoscan.JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
