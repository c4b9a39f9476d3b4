package events

// EventType names an event, e.g. "autoscan.job.completed".
type EventType string

// PublishOption adjusts how a single event is published.
type PublishOption func(*PublishParams)

// PublishParams holds the resolved publish options.
type PublishParams struct {
	Key     string // partition key; AutoScan uses the job id
	Headers map[string]string
}

// WithKey sets the partition key. Events sharing a key keep their order.
func WithKey(key string) PublishOption {
	return func(p *PublishParams) { p.Key = key }
}

// WithHeaders attaches metadata headers.
func WithHeaders(headers map[string]string) PublishOption {
	return func(p *PublishParams) { p.Headers = headers }
}

// ApplyOptions folds opts into a PublishParams value.
func ApplyOptions(opts []PublishOption) PublishParams {
	var p PublishParams
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Envelope builds the transport envelope for a domain event, applying any
// routing options.
func Envelope(evt DomainEvent, opts ...PublishOption) EventEnvelope {
	p := ApplyOptions(opts)
	return EventEnvelope{
		Type:      evt.EventType(),
		Key:       p.Key,
		Headers:   p.Headers,
		Timestamp: evt.OccurredAt(),
		Payload:   evt,
	}
}
