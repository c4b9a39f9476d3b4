package tracing

import (
	"context"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceContextSurvivesHeaders(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	produced := &sarama.ProducerMessage{Topic: "autoscan-events"}
	InjectTraceContext(ctx, produced)
	assert.NotEmpty(t, produced.Headers)

	consumed := &sarama.ConsumerMessage{Topic: "autoscan-events"}
	for i := range produced.Headers {
		consumed.Headers = append(consumed.Headers, &produced.Headers[i])
	}

	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), consumed))
	assert.Equal(t, traceID, got.TraceID())
	assert.Equal(t, spanID, got.SpanID())
}

func TestHeaderCarrierSetReplaces(t *testing.T) {
	t.Parallel()

	c := headerCarrier{{Key: []byte("traceparent"), Value: []byte("old")}}
	c.Set("traceparent", "new")
	c.Set("tracestate", "k=v")

	assert.Equal(t, "new", c.Get("traceparent"))
	assert.Equal(t, "k=v", c.Get("tracestate"))
	assert.Equal(t, "", c.Get("baggage"))
	assert.Equal(t, []string{"traceparent", "tracestate"}, c.Keys())
}
