// Package serialization converts domain events to and from their wire format.
// Each event type registers a serializer and a deserializer; the bus wraps the
// serialized payload in a universal envelope carrying the event type so a
// consumer can pick the matching deserializer.
package serialization

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/internal/domain/events"
)

// SerializeFunc converts a domain object into a serialized byte slice.
type SerializeFunc func(payload any) ([]byte, error)

// DeserializeFunc converts a serialized byte slice back into a domain object.
type DeserializeFunc func(data []byte) (any, error)

var (
	mu                   sync.RWMutex
	serializerRegistry   = map[events.EventType]SerializeFunc{}
	deserializerRegistry = map[events.EventType]DeserializeFunc{}
)

// RegisterSerializeFunc registers a serialization function for a given event type.
func RegisterSerializeFunc(eventType events.EventType, fn SerializeFunc) {
	mu.Lock()
	defer mu.Unlock()
	serializerRegistry[eventType] = fn
}

// RegisterDeserializeFunc registers a deserialization function for a given event type.
func RegisterDeserializeFunc(eventType events.EventType, fn DeserializeFunc) {
	mu.Lock()
	defer mu.Unlock()
	deserializerRegistry[eventType] = fn
}

// SerializePayload converts a domain object into bytes using the registered
// serializer for its event type.
func SerializePayload(eventType events.EventType, payload any) ([]byte, error) {
	mu.RLock()
	fn, ok := serializerRegistry[eventType]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no serializer registered for eventType=%s", eventType)
	}
	return fn(payload)
}

// DeserializePayload converts bytes back into a domain object using the
// registered deserializer for its event type.
func DeserializePayload(eventType events.EventType, data []byte) (any, error) {
	mu.RLock()
	fn, ok := deserializerRegistry[eventType]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no deserializer registered for eventType=%s", eventType)
	}
	return fn(data)
}

// universalEnvelope is the message body written to the transport.
type universalEnvelope struct {
	Type       events.EventType `json:"type"`
	OccurredAt time.Time        `json:"occurred_at"`
	Payload    json.RawMessage  `json:"payload"`
}

// SerializeEventEnvelope serializes payload and wraps it with its event type.
func SerializeEventEnvelope(eventType events.EventType, occurredAt time.Time, payload any) ([]byte, error) {
	data, err := SerializePayload(eventType, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(universalEnvelope{Type: eventType, OccurredAt: occurredAt, Payload: data})
}

// UnmarshalUniversalEnvelope splits a message body into its event type,
// timestamp and still serialized payload.
func UnmarshalUniversalEnvelope(data []byte) (events.EventType, time.Time, []byte, error) {
	var env universalEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", time.Time{}, nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return "", time.Time{}, nil, fmt.Errorf("envelope has no event type")
	}
	return env.Type, env.OccurredAt, env.Payload, nil
}

func init() {
	RegisterEventSerializers()
}

// RegisterEventSerializers registers handlers for every autoscan event type.
func RegisterEventSerializers() {
	for _, t := range []events.EventType{
		autoscan.EventTypeJobStarted,
		autoscan.EventTypeJobPaused,
		autoscan.EventTypeJobResumed,
		autoscan.EventTypeJobCancelled,
		autoscan.EventTypeJobCompleted,
		autoscan.EventTypeJobFailed,
	} {
		RegisterSerializeFunc(t, serializeJSON[autoscan.JobLifecycleEvent])
		RegisterDeserializeFunc(t, deserializeJSON[autoscan.JobLifecycleEvent])
	}

	RegisterSerializeFunc(autoscan.EventTypePhaseFinished, serializeJSON[autoscan.PhaseFinishedEvent])
	RegisterDeserializeFunc(autoscan.EventTypePhaseFinished, deserializeJSON[autoscan.PhaseFinishedEvent])
}

func serializeJSON[T any](payload any) ([]byte, error) {
	switch v := payload.(type) {
	case T:
		return json.Marshal(v)
	case *T:
		if v == nil {
			return nil, fmt.Errorf("nil %T payload", v)
		}
		return json.Marshal(v)
	default:
		var zero T
		return nil, fmt.Errorf("payload is %T, want %T", payload, zero)
	}
}

func deserializeJSON[T any](data []byte) (any, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return v, nil
}
