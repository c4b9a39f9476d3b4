package autoscan

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/pkg/common/logger"
)

// DefaultRetentionSchedule runs the sweep hourly.
const DefaultRetentionSchedule = "0 * * * *"

// jobSweeper is the slice of the service the janitor needs.
type jobSweeper interface {
	ListJobs(ctx context.Context, filter domain.JobFilter) []*domain.Job
	DeleteJob(ctx context.Context, jobID uuid.UUID) error
}

// JanitorConfig controls terminal job retention.
type JanitorConfig struct {
	// Schedule is a five field cron expression.
	Schedule string
	// Retention is how long a terminal job is kept after completion. Zero
	// disables the janitor.
	Retention time.Duration
}

// Janitor periodically deletes terminal jobs older than the retention period.
type Janitor struct {
	cfg     JanitorConfig
	sweeper jobSweeper
	cron    *cron.Cron
	now     func() time.Time

	logger *logger.Logger
}

// NewJanitor validates the schedule and returns a stopped janitor.
func NewJanitor(cfg JanitorConfig, sweeper jobSweeper, logger *logger.Logger) (*Janitor, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultRetentionSchedule
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", cfg.Schedule, err)
	}

	return &Janitor{
		cfg:     cfg,
		sweeper: sweeper,
		cron:    cron.New(cron.WithParser(parser)),
		now:     time.Now,
		logger:  logger.With("component", "autoscan_janitor"),
	}, nil
}

// Start registers the sweep and starts the scheduler. It is a no-op when
// retention is disabled.
func (j *Janitor) Start(ctx context.Context) error {
	if j.cfg.Retention <= 0 {
		j.logger.Info(ctx, "AutoScan retention disabled")
		return nil
	}
	if _, err := j.cron.AddFunc(j.cfg.Schedule, func() { j.Sweep(ctx) }); err != nil {
		return fmt.Errorf("failed to register retention sweep: %w", err)
	}
	j.cron.Start()
	j.logger.Info(ctx, "AutoScan janitor started", "schedule", j.cfg.Schedule, "retention", j.cfg.Retention)

	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep deletes every terminal job that completed before the retention cutoff
// and returns how many were removed.
func (j *Janitor) Sweep(ctx context.Context) int {
	cutoff := j.now().Add(-j.cfg.Retention)
	expired := j.sweeper.ListJobs(ctx, domain.JobFilter{
		Statuses: []domain.JobStatus{
			domain.JobStatusCompleted,
			domain.JobStatusFailed,
			domain.JobStatusCancelled,
		},
		CompletedBefore: cutoff,
	})

	var deleted int
	for _, job := range expired {
		if err := j.sweeper.DeleteJob(ctx, job.JobID()); err != nil {
			j.logger.Warn(ctx, "Failed to delete expired job", "job_id", job.JobID(), "error", err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		j.logger.Info(ctx, "Expired autoscan jobs deleted", "count", deleted, "cutoff", cutoff)
	}

	return deleted
}
