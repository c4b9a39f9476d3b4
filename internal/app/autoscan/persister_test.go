package autoscan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/pkg/common/logger"
)

func TestPersisterRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	job, err := domain.NewJob("w1", "example.com", nil)
	require.NoError(t, err)

	repo := new(mockJobRepository)
	repo.On("UpdateJob", mock.Anything, job).Return(errors.New("timeout")).Twice()
	repo.On("UpdateJob", mock.Anything, job).Return(nil).Once()

	p := newPersister(repo, testConfig(), noopMetrics{}, logger.Noop())
	require.NoError(t, p.save(context.Background(), job))
	repo.AssertNumberOfCalls(t, "UpdateJob", 3)
}

func TestPersisterGivesUp(t *testing.T) {
	t.Parallel()

	job, err := domain.NewJob("w1", "example.com", nil)
	require.NoError(t, err)

	repo := new(mockJobRepository)
	repo.On("UpdateJob", mock.Anything, job).Return(errors.New("timeout"))

	p := newPersister(repo, testConfig(), noopMetrics{}, logger.Noop())
	err = p.save(context.Background(), job)
	assert.ErrorContains(t, err, "failed to persist autoscan job")
	repo.AssertNumberOfCalls(t, "UpdateJob", 3)
}

func TestPersisterIgnoresCallerCancellation(t *testing.T) {
	t.Parallel()

	job, err := domain.NewJob("w1", "example.com", nil)
	require.NoError(t, err)

	repo := new(mockJobRepository)
	repo.On("UpdateJob", mock.Anything, job).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newPersister(repo, testConfig(), noopMetrics{}, logger.Noop())
	require.NoError(t, p.save(ctx, job))
	repo.AssertExpectations(t)
}

func TestPersisterDoesNotRetryMissingJob(t *testing.T) {
	t.Parallel()

	job, err := domain.NewJob("w1", "example.com", nil)
	require.NoError(t, err)

	repo := new(mockJobRepository)
	repo.On("UpdateJob", mock.Anything, job).Return(domain.ErrJobNotFound)

	p := newPersister(repo, testConfig(), noopMetrics{}, logger.Noop())
	err = p.save(context.Background(), job)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	repo.AssertNumberOfCalls(t, "UpdateJob", 1)
}
