package autoscan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/pkg/common/logger"
)

// persister writes job snapshots to the store, retrying transient failures with
// exponential backoff. Writes run on a context detached from the caller's
// cancellation so a shutdown still records the last transition.
type persister struct {
	repo            domain.JobRepository
	retries         uint64
	initialInterval time.Duration
	timeout         time.Duration

	metrics AutoScanMetrics
	logger  *logger.Logger
}

func newPersister(repo domain.JobRepository, cfg Config, metrics AutoScanMetrics, logger *logger.Logger) *persister {
	return &persister{
		repo:            repo,
		retries:         cfg.PersistRetries,
		initialInterval: cfg.PersistInitialInterval,
		timeout:         cfg.PersistTimeout,
		metrics:         metrics,
		logger:          logger.With("component", "job_persister"),
	}
}

// save writes job with retries. A missing record is not retried; the job was
// deleted and no later write can succeed.
func (p *persister) save(ctx context.Context, job *domain.Job) error {
	ctx, cancel := p.detach(ctx)
	defer cancel()

	expBackoff := backoff.NewExponentialBackOff()
	if p.initialInterval > 0 {
		expBackoff.InitialInterval = p.initialInterval
	}
	expBackoff.MaxInterval = 5 * time.Second
	expBackoff.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(expBackoff, p.retries), ctx)

	operation := func() error {
		err := p.repo.UpdateJob(ctx, job)
		if errors.Is(err, domain.ErrJobNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		p.metrics.IncPersistRetries(ctx)
		p.logger.Warn(ctx, "Retrying job store write",
			"job_id", job.JobID(),
			"status", job.Status(),
			"error", err,
			"next_retry_in", next,
		)
	}

	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		p.metrics.IncPersistFailures(ctx)
		return fmt.Errorf("failed to persist autoscan job (job_id: %s): %w", job.JobID(), err)
	}
	return nil
}

// saveOnce makes a single best effort write, used after retries are exhausted.
func (p *persister) saveOnce(ctx context.Context, job *domain.Job) error {
	ctx, cancel := p.detach(ctx)
	defer cancel()
	return p.repo.UpdateJob(ctx, job)
}

func (p *persister) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if p.timeout > 0 {
		return context.WithTimeout(ctx, p.timeout)
	}
	return context.WithCancel(ctx)
}
