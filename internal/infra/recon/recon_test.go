package recon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace/noop"

	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/pkg/common/logger"
)

func TestNewCollaboratorsCoversEveryPhase(t *testing.T) {
	t.Parallel()

	collabs := NewCollaborators(DefaultConfig(), logger.Noop(), noop.NewTracerProvider().Tracer("test"))
	for _, phase := range domain.AllPhases() {
		assert.NotNil(t, collabs[phase], "missing collaborator for %s", phase)
	}
	assert.Len(t, collabs, len(domain.AllPhases()))
}
