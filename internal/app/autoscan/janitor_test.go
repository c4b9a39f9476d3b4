package autoscan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/internal/infra/storage/autoscan/memory"
	"github.com/ahrav/recon-armada/pkg/common/logger"
)

func TestNewJanitorRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	_, err := NewJanitor(JanitorConfig{Schedule: "every tuesday", Retention: time.Hour}, nil, logger.Noop())
	assert.Error(t, err)

	j, err := NewJanitor(JanitorConfig{}, nil, logger.Noop())
	require.NoError(t, err)
	assert.Equal(t, DefaultRetentionSchedule, j.cfg.Schedule)
}

func TestJanitorSweepDeletesExpiredTerminalJobs(t *testing.T) {
	t.Parallel()

	p := newPipeline()
	g := newGate()
	svc := newTestService(t, memory.NewJobStore(), p.collaborators())
	ctx := context.Background()

	done := startScan(t, svc, "w1")
	waitForStatus(t, svc, done, domain.JobStatusCompleted)

	p.set(domain.PhaseSubdomainEnum, g.collaborator(domain.Payload{}, nil))
	active := startScan(t, svc, "w2")
	g.waitEntered(t)
	t.Cleanup(g.open)

	j, err := NewJanitor(JanitorConfig{Retention: time.Hour}, svc, logger.Noop())
	require.NoError(t, err)

	assert.Zero(t, j.Sweep(ctx), "nothing is old enough yet")

	j.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.Equal(t, 1, j.Sweep(ctx))

	_, err = svc.GetJob(ctx, done)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	_, err = svc.GetJob(ctx, active)
	assert.NoError(t, err, "active jobs are never swept")
}

func TestJanitorStartDisabled(t *testing.T) {
	t.Parallel()

	j, err := NewJanitor(JanitorConfig{}, nil, logger.Noop())
	require.NoError(t, err)
	require.NoError(t, j.Start(context.Background()))
	j.Stop()
}
