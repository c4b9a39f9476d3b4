package autoscan

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTimeProvider struct{ current time.Time }

func (m *mockTimeProvider) Now() time.Time { return m.current }

func (m *mockTimeProvider) advance(d time.Duration) { m.current = m.current.Add(d) }

func newTestJob(t *testing.T) (*Job, *mockTimeProvider) {
	t.Helper()

	tp := &mockTimeProvider{current: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	job, err := NewJob("w1", "Example.com.", Payload{"probe_concurrency": 10}, WithTimeProvider(tp))
	require.NoError(t, err)
	return job, tp
}

func TestNewJob(t *testing.T) {
	t.Parallel()

	job, tp := newTestJob(t)
	assert.Equal(t, JobStatusPending, job.Status())
	assert.Equal(t, "example.com", job.TargetDomain())
	assert.Equal(t, "w1", job.WorkspaceID())
	assert.Equal(t, tp.current, job.CreatedAt())
	assert.True(t, job.StartedAt().IsZero())
	assert.True(t, job.CompletedAt().IsZero())
	assert.Empty(t, job.CurrentPhase())
	assert.Len(t, job.Logs(), 1)
}

func TestNewJobValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		workspace string
		domain    string
	}{
		{name: "empty workspace", workspace: " ", domain: "example.com"},
		{name: "empty domain", workspace: "w1", domain: ""},
		{name: "single label", workspace: "w1", domain: "localhost"},
		{name: "bad characters", workspace: "w1", domain: "exa_mple.com"},
		{name: "leading hyphen", workspace: "w1", domain: "-bad.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewJob(tt.workspace, tt.domain, nil)
			assert.Error(t, err)
		})
	}
}

func TestSettingsAreImmutable(t *testing.T) {
	t.Parallel()

	settings := Payload{"port_range": "top-100"}
	job, err := NewJob("w1", "example.com", settings)
	require.NoError(t, err)

	settings["port_range"] = "all-tcp"
	got := job.Settings()
	got["port_range"] = "top-1000"

	assert.Equal(t, "top-100", job.Settings().GetString("port_range", ""))
}

func TestJobLifecycleTimestamps(t *testing.T) {
	t.Parallel()

	job, tp := newTestJob(t)

	tp.advance(time.Second)
	require.NoError(t, job.Start())
	started := job.StartedAt()
	assert.Equal(t, tp.current, started)

	tp.advance(time.Second)
	require.NoError(t, job.Pause())
	tp.advance(time.Second)
	require.NoError(t, job.Resume())
	assert.Equal(t, started, job.StartedAt(), "started_at is set exactly once")

	tp.advance(time.Second)
	require.NoError(t, job.Complete())
	assert.Equal(t, tp.current, job.CompletedAt())
	assert.Equal(t, JobStatusCompleted, job.Status())
}

func TestJobIllegalTransitionsLeaveStateUnchanged(t *testing.T) {
	t.Parallel()

	job, _ := newTestJob(t)

	var ise *InvalidStateError
	err := job.Pause()
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "pause", ise.Op)
	assert.Equal(t, JobStatusPending, ise.Status)
	assert.Equal(t, JobStatusPending, job.Status())

	require.NoError(t, job.Start())
	require.NoError(t, job.Pause())

	err = job.Pause()
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, JobStatusPaused, job.Status())

	require.NoError(t, job.Cancel())
	logsBefore := len(job.Logs())
	assert.Error(t, job.Resume())
	assert.Error(t, job.Cancel())
	job.AddLog(LogLevelInfo, "", "ignored")
	assert.Len(t, job.Logs(), logsBefore, "terminal jobs are not mutated")
}

func TestCancelFromPausedStampsCompletion(t *testing.T) {
	t.Parallel()

	job, tp := newTestJob(t)
	require.NoError(t, job.Start())
	require.NoError(t, job.Pause())

	tp.advance(time.Minute)
	require.NoError(t, job.Cancel())
	assert.Equal(t, JobStatusCancelled, job.Status())
	assert.Equal(t, tp.current, job.CompletedAt())
}

func TestRecordOutcomeKeepsSetsDisjoint(t *testing.T) {
	t.Parallel()

	job, _ := newTestJob(t)
	require.NoError(t, job.Start())

	require.NoError(t, job.BeginPhase(PhaseSubdomainEnum))
	require.NoError(t, job.RecordOutcome(Success(PhaseSubdomainEnum, Payload{ResultSubdomains: []string{"a.example.com"}})))

	require.NoError(t, job.BeginPhase(PhaseHTTPProbe))
	require.NoError(t, job.RecordOutcome(PartialFailure(PhaseHTTPProbe, nil, errors.New("timeout"))))

	err := job.RecordOutcome(Success(PhaseHTTPProbe, nil))
	assert.Error(t, err, "a phase is recorded at most once")

	assert.Equal(t, []Phase{PhaseSubdomainEnum}, job.CompletedPhases())
	assert.Equal(t, []Phase{PhaseHTTPProbe}, job.FailedPhases())
	for _, p := range job.CompletedPhases() {
		assert.NotContains(t, job.FailedPhases(), p)
	}
	assert.Equal(t, []string{"a.example.com"}, job.Results()[PhaseSubdomainEnum].GetStrings(ResultSubdomains))
}

func TestRecordAbandonedOutcome(t *testing.T) {
	t.Parallel()

	job, _ := newTestJob(t)
	require.NoError(t, job.Start())
	require.NoError(t, job.BeginPhase(PhaseSubdomainEnum))

	job.RecordAbandonedOutcome(Success(PhaseSubdomainEnum, Payload{"total_unique_subdomains": 3}))
	require.NoError(t, job.Cancel())

	assert.Empty(t, job.CompletedPhases())
	assert.Empty(t, job.FailedPhases())
	assert.Equal(t, 3, job.Results()[PhaseSubdomainEnum].GetInt("total_unique_subdomains", 0))
	assert.Empty(t, job.CurrentPhase())
}

func TestNextStage(t *testing.T) {
	t.Parallel()

	job, _ := newTestJob(t)
	require.NoError(t, job.Start())

	stage, ok := job.NextStage()
	require.True(t, ok)
	assert.Equal(t, []Phase{PhaseSubdomainEnum}, stage)

	for _, p := range []Phase{PhaseSubdomainEnum, PhaseHTTPProbe, PhaseContentDiscovery} {
		require.NoError(t, job.RecordOutcome(Success(p, nil)))
	}

	stage, ok = job.NextStage()
	require.True(t, ok)
	assert.Equal(t, []Phase{PhasePortScan}, stage, "only the unrecorded half of a concurrent stage remains")

	require.NoError(t, job.RecordOutcome(Success(PhasePortScan, nil)))
	require.NoError(t, job.RecordOutcome(Success(PhaseVulnScan, nil)))
	_, ok = job.NextStage()
	assert.False(t, ok)
}

func TestLogBound(t *testing.T) {
	t.Parallel()

	job, _ := newTestJob(t)
	for i := range 150 {
		job.AddLog(LogLevelInfo, "", fmt.Sprintf("entry %d", i))
	}

	logs := job.Logs()
	require.Len(t, logs, MaxStoredLogs)
	assert.Equal(t, "entry 50", logs[0].Message, "oldest entries are dropped")
	assert.Equal(t, "entry 149", logs[len(logs)-1].Message)

	recent := job.RecentLogs()
	require.Len(t, recent, MaxVisibleLogs)
	assert.Equal(t, "entry 100", recent[0].Message)
}

func TestAbortPersistence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		prepare     func(*Job) error
		wantAborted bool
		wantStatus  JobStatus
	}{
		{
			name:        "running job fails",
			prepare:     func(j *Job) error { return j.Start() },
			wantAborted: true,
			wantStatus:  JobStatusFailed,
		},
		{
			name: "paused job fails",
			prepare: func(j *Job) error {
				return errors.Join(j.Start(), j.Pause())
			},
			wantAborted: true,
			wantStatus:  JobStatusFailed,
		},
		{
			name: "completed job is left alone",
			prepare: func(j *Job) error {
				return errors.Join(j.Start(), j.Complete())
			},
			wantStatus: JobStatusCompleted,
		},
		{
			name: "cancelled job is left alone",
			prepare: func(j *Job) error {
				return errors.Join(j.Start(), j.Pause(), j.Cancel())
			},
			wantStatus: JobStatusCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			job, _ := newTestJob(t)
			require.NoError(t, tt.prepare(job))
			completedAt := job.CompletedAt()

			assert.Equal(t, tt.wantAborted, job.AbortPersistence("store unavailable"))
			assert.Equal(t, tt.wantStatus, job.Status())
			assert.False(t, job.CompletedAt().IsZero())
			if tt.wantAborted {
				assert.Equal(t, "store unavailable", job.ErrorMessage())
				return
			}
			assert.Empty(t, job.ErrorMessage())
			assert.Equal(t, completedAt, job.CompletedAt())
		})
	}
}

func TestFailSetsErrorMessage(t *testing.T) {
	t.Parallel()

	job, _ := newTestJob(t)
	require.NoError(t, job.Start())
	require.NoError(t, job.BeginPhase(PhaseSubdomainEnum))
	require.NoError(t, job.Fail("target unresolvable"))

	assert.Equal(t, JobStatusFailed, job.Status())
	assert.Equal(t, "target unresolvable", job.ErrorMessage())
	assert.Error(t, job.Fail("again"))
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	job, _ := newTestJob(t)
	require.NoError(t, job.Start())
	require.NoError(t, job.RecordOutcome(Success(PhaseSubdomainEnum, Payload{"n": 1})))

	cp := job.Clone()
	require.NoError(t, job.RecordOutcome(Success(PhaseHTTPProbe, nil)))

	assert.Len(t, cp.CompletedPhases(), 1)
	assert.Len(t, job.CompletedPhases(), 2)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, OutcomeSuccess, Classify(PhasePortScan, nil, nil).Kind)
	assert.Equal(t, OutcomePartialFailure, Classify(PhasePortScan, nil, errors.New("boom")).Kind)
	assert.Equal(t, OutcomeFatalFailure, Classify(PhaseSubdomainEnum, nil, ErrTargetUnresolvable).Kind)
	assert.Equal(t, OutcomeFatalFailure, Classify(PhaseSubdomainEnum, nil, Fatal(errors.New("bad"))).Kind)
	assert.True(t, errors.Is(&NotFoundError{}, ErrJobNotFound))
}

func TestCurrentPhaseTracksInFlightPhases(t *testing.T) {
	t.Parallel()

	job, _ := newTestJob(t)
	require.NoError(t, job.Start())
	for _, p := range []Phase{PhaseSubdomainEnum, PhaseHTTPProbe} {
		require.NoError(t, job.RecordOutcome(Success(p, nil)))
	}

	require.NoError(t, job.BeginPhase(PhaseContentDiscovery))
	require.NoError(t, job.BeginPhase(PhasePortScan))
	assert.Equal(t, PhasePortScan, job.CurrentPhase())

	require.NoError(t, job.RecordOutcome(Success(PhasePortScan, nil)))
	assert.Equal(t, PhaseContentDiscovery, job.CurrentPhase(), "still executing")

	require.NoError(t, job.RecordOutcome(PartialFailure(PhaseContentDiscovery, nil, errors.New("crawl failed"))))
	require.NoError(t, job.Pause())
	assert.Equal(t, PhaseContentDiscovery, job.CurrentPhase())
	assert.Contains(t, job.FailedPhases(), PhaseContentDiscovery)
}
