package serialization

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/internal/domain/events"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	t.Parallel()

	job, err := autoscan.NewJob("w1", "example.com", nil)
	require.NoError(t, err)
	require.NoError(t, job.Start())

	tests := []struct {
		name  string
		event interface {
			OccurredAt() time.Time
		}
		eventType events.EventType
	}{
		{
			name:      "lifecycle",
			event:     autoscan.NewJobLifecycleEvent(autoscan.EventTypeJobStarted, job),
			eventType: autoscan.EventTypeJobStarted,
		},
		{
			name:      "phase finished",
			event:     autoscan.NewPhaseFinishedEvent(job, autoscan.Success(autoscan.PhaseSubdomainEnum, nil), 2*time.Second),
			eventType: autoscan.EventTypePhaseFinished,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data, err := SerializeEventEnvelope(tt.eventType, tt.event.OccurredAt(), tt.event)
			require.NoError(t, err)

			typ, at, payload, err := UnmarshalUniversalEnvelope(data)
			require.NoError(t, err)
			assert.Equal(t, tt.eventType, typ)
			assert.True(t, tt.event.OccurredAt().Equal(at))

			decoded, err := DeserializePayload(typ, payload)
			require.NoError(t, err)
			assert.Equal(t, tt.event, decoded)
		})
	}
}

func TestSerializeRejectsWrongPayload(t *testing.T) {
	t.Parallel()

	_, err := SerializePayload(autoscan.EventTypeJobStarted, autoscan.PhaseFinishedEvent{JobID: uuid.New()})
	assert.Error(t, err)

	_, err = SerializePayload("unknown.event", struct{}{})
	assert.Error(t, err)

	_, _, _, err = UnmarshalUniversalEnvelope([]byte(`{"payload":{}}`))
	assert.Error(t, err)
}
