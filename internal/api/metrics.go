package api

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const namespace = "autoscan_api"

// APIMetrics defines metrics operations needed by the AutoScan API.
type APIMetrics interface {
	IncRequestsTotal(ctx context.Context, method, path string, status int)
	ObserveRequestDuration(ctx context.Context, method, path string, duration time.Duration)
	IncStartRequestsTotal(ctx context.Context)
	IncStartRequestErrors(ctx context.Context, reason string)
}

type apiMetrics struct {
	requestsTotal      metric.Int64Counter
	requestDuration    metric.Float64Histogram
	startRequestsTotal metric.Int64Counter
	startRequestErrors metric.Int64Counter
}

// NewAPIMetrics registers the API instruments on mp.
func NewAPIMetrics(mp metric.MeterProvider) (*apiMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(apiMetrics)
	var err error

	if m.requestsTotal, err = meter.Int64Counter(
		"requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	); err != nil {
		return nil, err
	}

	if m.requestDuration, err = meter.Float64Histogram(
		"request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	); err != nil {
		return nil, err
	}

	if m.startRequestsTotal, err = meter.Int64Counter(
		"start_requests_total",
		metric.WithDescription("Total number of AutoScan start requests"),
	); err != nil {
		return nil, err
	}

	if m.startRequestErrors, err = meter.Int64Counter(
		"start_request_errors_total",
		metric.WithDescription("Total number of rejected AutoScan start requests"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *apiMetrics) IncRequestsTotal(ctx context.Context, method, path string, status int) {
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	))
}

func (m *apiMetrics) ObserveRequestDuration(ctx context.Context, method, path string, duration time.Duration) {
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
	))
}

func (m *apiMetrics) IncStartRequestsTotal(ctx context.Context) {
	m.startRequestsTotal.Add(ctx, 1)
}

func (m *apiMetrics) IncStartRequestErrors(ctx context.Context, reason string) {
	m.startRequestErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// NoopAPIMetrics discards every observation.
type NoopAPIMetrics struct{}

func (NoopAPIMetrics) IncRequestsTotal(context.Context, string, string, int)                 {}
func (NoopAPIMetrics) ObserveRequestDuration(context.Context, string, string, time.Duration) {}
func (NoopAPIMetrics) IncStartRequestsTotal(context.Context)                                 {}
func (NoopAPIMetrics) IncStartRequestErrors(context.Context, string)                         {}
