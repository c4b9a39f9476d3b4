package autoscan

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

func newRegistryJob(t *testing.T, workspace string, created time.Time) *domain.Job {
	t.Helper()
	job, err := domain.NewJob(workspace, "example.com", nil, domain.WithTimeProvider(&fixedClock{now: created}))
	require.NoError(t, err)
	return job
}

func TestRegistryReserveAndRelease(t *testing.T) {
	t.Parallel()

	reg := newRegistry()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	first := newRegistryJob(t, "w1", base)
	_, previous, err := reg.reserve(first)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, previous)

	second := newRegistryJob(t, "w1", base.Add(time.Minute))
	_, _, err = reg.reserve(second)
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, first.JobID(), conflict.ActiveJobID)

	h, _ := reg.get(first.JobID())
	h.mu.Lock()
	require.NoError(t, h.job.Start())
	require.NoError(t, h.job.Complete())
	h.mu.Unlock()

	_, previous, err = reg.reserve(second)
	require.NoError(t, err)
	assert.Equal(t, first.JobID(), previous)

	reg.release(second, previous)
	cur, ok := reg.workspaceJob("w1")
	require.True(t, ok)
	assert.Equal(t, first.JobID(), cur.snapshot().JobID(), "release restores the previous job")
	_, ok = reg.get(second.JobID())
	assert.False(t, ok)
}

func TestRegistryLoadPrefersActiveThenNewest(t *testing.T) {
	t.Parallel()

	reg := newRegistry()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	paused := newRegistryJob(t, "w1", base)
	require.NoError(t, paused.Start())
	require.NoError(t, paused.Pause())

	older := newRegistryJob(t, "w1", base.Add(-time.Hour))
	require.NoError(t, older.Start())
	require.NoError(t, older.Complete())

	reg.load(paused)
	reg.load(older)
	cur, ok := reg.workspaceJob("w1")
	require.True(t, ok)
	assert.Equal(t, paused.JobID(), cur.snapshot().JobID())

	a := newRegistryJob(t, "w2", base)
	require.NoError(t, a.Start())
	require.NoError(t, a.Cancel())
	b := newRegistryJob(t, "w2", base.Add(time.Hour))
	require.NoError(t, b.Start())
	require.NoError(t, b.Complete())

	reg.load(b)
	reg.load(a)
	cur, ok = reg.workspaceJob("w2")
	require.True(t, ok)
	assert.Equal(t, b.JobID(), cur.snapshot().JobID())

	reg.remove(b.JobID())
	cur, ok = reg.workspaceJob("w2")
	require.True(t, ok)
	assert.Equal(t, a.JobID(), cur.snapshot().JobID(), "pointer falls back to the newest remaining job")

	reg.remove(a.JobID())
	_, ok = reg.workspaceJob("w2")
	assert.False(t, ok)
}

func TestRegistryListAndCounts(t *testing.T) {
	t.Parallel()

	reg := newRegistry()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, ws := range []string{"w1", "w2", "w3"} {
		_, _, err := reg.reserve(newRegistryJob(t, ws, base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	all := reg.list(domain.JobFilter{})
	require.Len(t, all, 3)
	assert.Equal(t, "w3", all[0].WorkspaceID(), "newest first")

	assert.Len(t, reg.list(domain.JobFilter{Limit: 2}), 2)
	assert.Len(t, reg.list(domain.JobFilter{WorkspaceID: "w2"}), 1)
	assert.Equal(t, 3, reg.countByStatus()[domain.JobStatusPending])
}
