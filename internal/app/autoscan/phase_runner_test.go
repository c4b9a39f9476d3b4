package autoscan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace/noop"

	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/pkg/common/logger"
)

func TestPhaseRunnerClassifiesResults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		collab  domain.Collaborator
		timeout time.Duration
		want    domain.OutcomeKind
	}{
		{
			name:   "success",
			collab: returning(domain.Payload{"ok": true}, nil),
			want:   domain.OutcomeSuccess,
		},
		{
			name:   "recoverable error",
			collab: returning(domain.Payload{"partial": 1}, errors.New("tool exited 2")),
			want:   domain.OutcomePartialFailure,
		},
		{
			name:   "fatal error",
			collab: returning(nil, domain.Fatal(errors.New("invalid target"))),
			want:   domain.OutcomeFatalFailure,
		},
		{
			name: "panic",
			collab: domain.CollaboratorFunc(func(context.Context, domain.PhaseInput) (domain.Payload, error) {
				panic("boom")
			}),
			want: domain.OutcomePartialFailure,
		},
		{
			name: "deadline",
			collab: domain.CollaboratorFunc(func(ctx context.Context, _ domain.PhaseInput) (domain.Payload, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}),
			timeout: 10 * time.Millisecond,
			want:    domain.OutcomePartialFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			runner := newPhaseRunner(
				domain.Collaborators{domain.PhasePortScan: tt.collab},
				tt.timeout,
				logger.Noop(),
				noop.NewTracerProvider().Tracer("test"),
			)
			out := runner.Run(context.Background(), domain.PhaseInput{JobID: uuid.New(), Phase: domain.PhasePortScan})
			assert.Equal(t, tt.want, out.Kind)
			assert.Equal(t, domain.PhasePortScan, out.Phase)
			if tt.want == domain.OutcomeSuccess {
				assert.NoError(t, out.Err)
			} else {
				assert.Error(t, out.Err)
			}
		})
	}
}

func TestPhaseRunnerMissingCollaborator(t *testing.T) {
	t.Parallel()

	runner := newPhaseRunner(domain.Collaborators{}, 0, logger.Noop(), noop.NewTracerProvider().Tracer("test"))
	out := runner.Run(context.Background(), domain.PhaseInput{Phase: domain.PhaseVulnScan})
	assert.Equal(t, domain.OutcomePartialFailure, out.Kind)
	assert.ErrorContains(t, out.Err, "no collaborator")
}
