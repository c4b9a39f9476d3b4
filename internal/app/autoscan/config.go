package autoscan

import "time"

// Default orchestration limits.
const (
	DefaultMaxConcurrentJobs = 8
	DefaultPhaseTimeout      = 30 * time.Minute
	DefaultPersistRetries    = 5
	DefaultPersistTimeout    = 10 * time.Second
)

// Config tunes the orchestrator.
type Config struct {
	// MaxConcurrentJobs bounds the number of jobs executing phases at once.
	// Zero disables the bound.
	MaxConcurrentJobs int
	// PhaseTimeout is the deadline handed to each collaborator call. Zero
	// disables it.
	PhaseTimeout time.Duration
	// PersistRetries is how many times a failed store write is retried before
	// the job is failed.
	PersistRetries uint64
	// PersistInitialInterval is the first backoff delay between store retries.
	PersistInitialInterval time.Duration
	// PersistTimeout bounds one persist step including its retries.
	PersistTimeout time.Duration
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentJobs:      DefaultMaxConcurrentJobs,
		PhaseTimeout:           DefaultPhaseTimeout,
		PersistRetries:         DefaultPersistRetries,
		PersistInitialInterval: 200 * time.Millisecond,
		PersistTimeout:         DefaultPersistTimeout,
	}
}
