package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wmsyw/aiWriter-sub006"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Job lifecycle metrics
	JobsCreatedTotal    metric.Int64Counter
	JobsCancelledTotal  metric.Int64Counter
	JobsCompletedTotal  metric.Int64Counter
	JobsFailedTotal     metric.Int64Counter
	JobCreateDuration   metric.Float64Histogram

	// Stream metrics
	ActiveStreams      metric.Int64UpDownCounter
	StreamPollDuration metric.Float64Histogram
	StreamEventsTotal  metric.Int64Counter

	// Queue consumer metrics
	TasksClaimedTotal   metric.Int64Counter
	TasksCompletedTotal metric.Int64Counter
	TasksFailedTotal    metric.Int64Counter

	// Reconciler metrics
	ReconciledOrphansTotal metric.Int64Counter

	// Hook delivery metrics
	HookDeliveriesTotal      metric.Int64Counter
	HookDeliveryErrorsTotal  metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	// Job lifecycle metrics
	m.JobsCreatedTotal, _ = meter.Int64Counter(
		"aiwriter.jobs.created.total",
		metric.WithDescription("Total number of jobs accepted for processing"),
		metric.WithUnit("{job}"),
	)

	m.JobsCancelledTotal, _ = meter.Int64Counter(
		"aiwriter.jobs.cancelled.total",
		metric.WithDescription("Total number of jobs cancelled by users"),
		metric.WithUnit("{job}"),
	)

	m.JobsCompletedTotal, _ = meter.Int64Counter(
		"aiwriter.jobs.completed.total",
		metric.WithDescription("Total number of jobs completed successfully"),
		metric.WithUnit("{job}"),
	)

	m.JobsFailedTotal, _ = meter.Int64Counter(
		"aiwriter.jobs.failed.total",
		metric.WithDescription("Total number of jobs that finished in failure"),
		metric.WithUnit("{job}"),
	)

	m.JobCreateDuration, _ = meter.Float64Histogram(
		"aiwriter.jobs.create.duration",
		metric.WithDescription("Duration of job creation including enqueue"),
		metric.WithUnit("ms"),
	)

	// Stream metrics
	m.ActiveStreams, _ = meter.Int64UpDownCounter(
		"aiwriter.streams.active",
		metric.WithDescription("Number of active job status streams"),
		metric.WithUnit("{stream}"),
	)

	m.StreamPollDuration, _ = meter.Float64Histogram(
		"aiwriter.streams.poll.duration",
		metric.WithDescription("Duration of stream poll queries"),
		metric.WithUnit("ms"),
	)

	m.StreamEventsTotal, _ = meter.Int64Counter(
		"aiwriter.streams.events.total",
		metric.WithDescription("Total number of events written to streams"),
		metric.WithUnit("{event}"),
	)

	// Queue consumer metrics
	m.TasksClaimedTotal, _ = meter.Int64Counter(
		"aiwriter.tasks.claimed.total",
		metric.WithDescription("Total number of queue tasks claimed by workers"),
		metric.WithUnit("{task}"),
	)

	m.TasksCompletedTotal, _ = meter.Int64Counter(
		"aiwriter.tasks.completed.total",
		metric.WithDescription("Total number of queue tasks completed"),
		metric.WithUnit("{task}"),
	)

	m.TasksFailedTotal, _ = meter.Int64Counter(
		"aiwriter.tasks.failed.total",
		metric.WithDescription("Total number of queue tasks that failed"),
		metric.WithUnit("{task}"),
	)

	// Reconciler metrics
	m.ReconciledOrphansTotal, _ = meter.Int64Counter(
		"aiwriter.reconciler.orphans.total",
		metric.WithDescription("Total number of orphaned jobs marked failed by the reconciler"),
		metric.WithUnit("{job}"),
	)

	// Hook delivery metrics
	m.HookDeliveriesTotal, _ = meter.Int64Counter(
		"aiwriter.hooks.deliveries.total",
		metric.WithDescription("Total number of hook delivery attempts"),
		metric.WithUnit("{delivery}"),
	)

	m.HookDeliveryErrorsTotal, _ = meter.Int64Counter(
		"aiwriter.hooks.delivery_errors.total",
		metric.WithDescription("Total number of failed hook deliveries"),
		metric.WithUnit("{error}"),
	)

	return m
}
