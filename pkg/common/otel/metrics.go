package otel

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// NewResource creates a new OpenTelemetry resource with service name.
func NewResource(serviceName string, attrs ...attribute.KeyValue) *resource.Resource {
	attrs = append([]attribute.KeyValue{semconv.ServiceName(serviceName)}, attrs...)
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}
