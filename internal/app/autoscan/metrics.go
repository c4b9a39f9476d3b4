package autoscan

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
)

// AutoScanMetrics records orchestration activity.
type AutoScanMetrics interface {
	IncJobsStarted(ctx context.Context)
	IncJobsFinished(ctx context.Context, status domain.JobStatus)
	ObservePhase(ctx context.Context, phase domain.Phase, outcome domain.OutcomeKind, d time.Duration)
	IncPersistRetries(ctx context.Context)
	IncPersistFailures(ctx context.Context)
	IncEventPublishErrors(ctx context.Context)
}

type autoScanMetrics struct {
	jobsStarted        metric.Int64Counter
	jobsFinished       metric.Int64Counter
	phaseDuration      metric.Float64Histogram
	persistRetries     metric.Int64Counter
	persistFailures    metric.Int64Counter
	eventPublishErrors metric.Int64Counter
}

const namespace = "autoscan"

// NewAutoScanMetrics creates the otel instruments used by the orchestrator.
func NewAutoScanMetrics(mp metric.MeterProvider) (*autoScanMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(autoScanMetrics)
	var err error

	if m.jobsStarted, err = meter.Int64Counter(
		"jobs_started_total",
		metric.WithDescription("Total number of autoscan jobs that began executing"),
	); err != nil {
		return nil, err
	}

	if m.jobsFinished, err = meter.Int64Counter(
		"jobs_finished_total",
		metric.WithDescription("Total number of autoscan jobs that reached a terminal status"),
	); err != nil {
		return nil, err
	}

	if m.phaseDuration, err = meter.Float64Histogram(
		"phase_duration_seconds",
		metric.WithDescription("Duration of collaborator phase calls"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 15, 30, 60, 300, 900, 1800, 3600),
	); err != nil {
		return nil, err
	}

	if m.persistRetries, err = meter.Int64Counter(
		"persist_retries_total",
		metric.WithDescription("Total number of retried job store writes"),
	); err != nil {
		return nil, err
	}

	if m.persistFailures, err = meter.Int64Counter(
		"persist_failures_total",
		metric.WithDescription("Total number of job store writes that exhausted their retries"),
	); err != nil {
		return nil, err
	}

	if m.eventPublishErrors, err = meter.Int64Counter(
		"event_publish_errors_total",
		metric.WithDescription("Total number of lifecycle events that could not be published"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *autoScanMetrics) IncJobsStarted(ctx context.Context) { m.jobsStarted.Add(ctx, 1) }

func (m *autoScanMetrics) IncJobsFinished(ctx context.Context, status domain.JobStatus) {
	m.jobsFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status.String())))
}

func (m *autoScanMetrics) ObservePhase(ctx context.Context, phase domain.Phase, outcome domain.OutcomeKind, d time.Duration) {
	m.phaseDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("phase", phase.String()),
		attribute.String("outcome", outcome.String()),
	))
}

func (m *autoScanMetrics) IncPersistRetries(ctx context.Context)     { m.persistRetries.Add(ctx, 1) }
func (m *autoScanMetrics) IncPersistFailures(ctx context.Context)    { m.persistFailures.Add(ctx, 1) }
func (m *autoScanMetrics) IncEventPublishErrors(ctx context.Context) { m.eventPublishErrors.Add(ctx, 1) }

// registryCollector exposes the registry's job counts per status as Prometheus
// gauges, sampled on every scrape.
type registryCollector struct {
	reg  *registry
	desc *prometheus.Desc
}

var _ prometheus.Collector = (*registryCollector)(nil)

func newRegistryCollector(reg *registry) *registryCollector {
	return &registryCollector{
		reg: reg,
		desc: prometheus.NewDesc(
			"autoscan_registry_jobs",
			"Number of autoscan jobs held in the registry by status.",
			[]string{"status"}, nil,
		),
	}
}

func (c *registryCollector) Describe(ch chan<- *prometheus.Desc) { ch <- c.desc }

func (c *registryCollector) Collect(ch chan<- prometheus.Metric) {
	counts := c.reg.countByStatus()
	for _, s := range []domain.JobStatus{
		domain.JobStatusPending,
		domain.JobStatusRunning,
		domain.JobStatusPaused,
		domain.JobStatusCompleted,
		domain.JobStatusFailed,
		domain.JobStatusCancelled,
	} {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(counts[s]), s.String())
	}
}

type noopMetrics struct{}

func (noopMetrics) IncJobsStarted(context.Context)                                                {}
func (noopMetrics) IncJobsFinished(context.Context, domain.JobStatus)                             {}
func (noopMetrics) ObservePhase(context.Context, domain.Phase, domain.OutcomeKind, time.Duration) {}
func (noopMetrics) IncPersistRetries(context.Context)                                             {}
func (noopMetrics) IncPersistFailures(context.Context)                                            {}
func (noopMetrics) IncEventPublishErrors(context.Context)                                         {}
