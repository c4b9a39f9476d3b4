package autoscan

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/internal/domain/events"
	"github.com/ahrav/recon-armada/internal/infra/storage/autoscan/memory"
	"github.com/ahrav/recon-armada/pkg/common/logger"
)

const waitFor = 5 * time.Second

// mockJobRepository implements domain.JobRepository for testing.
type mockJobRepository struct{ mock.Mock }

func (m *mockJobRepository) CreateJob(ctx context.Context, job *domain.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *mockJobRepository) UpdateJob(ctx context.Context, job *domain.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *mockJobRepository) GetJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	args := m.Called(ctx, jobID)
	if job := args.Get(0); job != nil {
		return job.(*domain.Job), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockJobRepository) ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.Job, error) {
	args := m.Called(ctx, filter)
	if jobs := args.Get(0); jobs != nil {
		return jobs.([]*domain.Job), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockJobRepository) DeleteJob(ctx context.Context, jobID uuid.UUID) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

// flakyRepository wraps the memory store and fails updates once armed.
type flakyRepository struct {
	*memory.JobStore
	failUpdates atomic.Bool
}

func (r *flakyRepository) UpdateJob(ctx context.Context, job *domain.Job) error {
	if r.failUpdates.Load() {
		return errors.New("connection reset by peer")
	}
	return r.JobStore.UpdateJob(ctx, job)
}

// terminalGateRepository holds the first write of a terminal snapshot until
// the gate opens.
type terminalGateRepository struct {
	*memory.JobStore
	gate *gate
}

func (r *terminalGateRepository) UpdateJob(ctx context.Context, job *domain.Job) error {
	if job.IsTerminal() {
		r.gate.once.Do(func() { close(r.gate.entered) })
		<-r.gate.release
	}
	return r.JobStore.UpdateJob(ctx, job)
}

// recordingPublisher captures published event types in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.EventType
}

func (p *recordingPublisher) PublishDomainEvent(_ context.Context, evt events.DomainEvent, _ ...events.PublishOption) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt.EventType())
	return nil
}

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.EventType(nil), p.events...)
}

// pipeline is a set of scripted collaborators that records every call.
type pipeline struct {
	mu     sync.Mutex
	calls  []domain.Phase
	inputs map[domain.Phase]domain.PhaseInput
	funcs  map[domain.Phase]domain.CollaboratorFunc
}

func newPipeline() *pipeline {
	p := &pipeline{
		inputs: make(map[domain.Phase]domain.PhaseInput),
		funcs: map[domain.Phase]domain.CollaboratorFunc{
			domain.PhaseSubdomainEnum: returning(domain.Payload{domain.ResultSubdomains: []string{"a.example.com", "b.example.com"}}, nil),
			domain.PhaseHTTPProbe: func(_ context.Context, in domain.PhaseInput) (domain.Payload, error) {
				return domain.Payload{domain.ResultActiveHosts: in.Targets}, nil
			},
			domain.PhaseContentDiscovery: func(_ context.Context, in domain.PhaseInput) (domain.Payload, error) {
				interesting := make([]string, 0, len(in.Targets))
				for _, u := range in.Targets {
					interesting = append(interesting, u+"/admin")
				}
				return domain.Payload{domain.ResultInterestingURLs: interesting}, nil
			},
			domain.PhasePortScan: returning(domain.Payload{domain.ResultOpenPorts: []any{}}, nil),
			domain.PhaseVulnScan: returning(domain.Payload{"total_vulns": 0}, nil),
		},
	}
	return p
}

func returning(summary domain.Payload, err error) domain.CollaboratorFunc {
	return func(context.Context, domain.PhaseInput) (domain.Payload, error) { return summary, err }
}

func (p *pipeline) set(phase domain.Phase, fn domain.CollaboratorFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.funcs[phase] = fn
}

func (p *pipeline) collaborators() domain.Collaborators {
	out := make(domain.Collaborators)
	for _, phase := range domain.AllPhases() {
		out[phase] = domain.CollaboratorFunc(func(ctx context.Context, in domain.PhaseInput) (domain.Payload, error) {
			p.mu.Lock()
			p.calls = append(p.calls, phase)
			p.inputs[phase] = in
			fn := p.funcs[phase]
			p.mu.Unlock()
			return fn(ctx, in)
		})
	}
	return out
}

func (p *pipeline) called() []domain.Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Phase(nil), p.calls...)
}

func (p *pipeline) input(phase domain.Phase) (domain.PhaseInput, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	in, ok := p.inputs[phase]
	return in, ok
}

// gate blocks a collaborator until the test releases it.
type gate struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) collaborator(summary domain.Payload, err error) domain.CollaboratorFunc {
	return func(context.Context, domain.PhaseInput) (domain.Payload, error) {
		g.once.Do(func() { close(g.entered) })
		<-g.release
		return summary, err
	}
}

func (g *gate) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(waitFor):
		t.Fatal("collaborator was never invoked")
	}
}

func (g *gate) open() { close(g.release) }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PersistRetries = 2
	cfg.PersistInitialInterval = time.Millisecond
	cfg.PersistTimeout = time.Second
	return cfg
}

func newTestService(t *testing.T, repo domain.JobRepository, collabs domain.Collaborators, opts ...Option) *Service {
	t.Helper()
	return newTestServiceWithConfig(t, testConfig(), repo, collabs, opts...)
}

func newTestServiceWithConfig(
	t *testing.T,
	cfg Config,
	repo domain.JobRepository,
	collabs domain.Collaborators,
	opts ...Option,
) *Service {
	t.Helper()
	svc := NewService(repo, collabs, cfg, logger.Noop(), noop.NewTracerProvider().Tracer("test"), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc
}

func startScan(t *testing.T, svc *Service, workspace string) uuid.UUID {
	t.Helper()
	id, err := svc.StartScan(context.Background(), StartScanCommand{WorkspaceID: workspace, TargetDomain: "example.com"})
	require.NoError(t, err)
	return id
}

func waitForStatus(t *testing.T, svc *Service, id uuid.UUID, want domain.JobStatus) *domain.Job {
	t.Helper()
	var job *domain.Job
	require.Eventually(t, func() bool {
		j, err := svc.GetJob(context.Background(), id)
		if err != nil {
			return false
		}
		job = j
		return j.Status() == want
	}, waitFor, 5*time.Millisecond, "job never reached %s", want)
	return job
}

func waitForStored(t *testing.T, repo domain.JobRepository, id uuid.UUID, want domain.JobStatus) *domain.Job {
	t.Helper()
	var job *domain.Job
	require.Eventually(t, func() bool {
		j, err := repo.GetJob(context.Background(), id)
		if err != nil {
			return false
		}
		job = j
		return j.Status() == want
	}, waitFor, 5*time.Millisecond, "stored job never reached %s", want)
	return job
}
