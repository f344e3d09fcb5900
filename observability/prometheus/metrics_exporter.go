package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-coop-runner/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	segmentDurationSeconds *prom.HistogramVec
	completionsTotal       *prom.CounterVec
	taskPanicTotal         *prom.CounterVec
	pushRejectedTotal      *prom.CounterVec
	queueDepth             *prom.GaugeVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// segmentBuckets suit cooperative segments, which are expected to be short.
var segmentBuckets = []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1, .5, 1}

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "cooprunner"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = segmentBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "segment_duration_seconds",
		Help:      "Time a continuation ran between two suspension points.",
		Buckets:   buckets,
	}, []string{"scheduler"})
	completionsVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "completions_total",
		Help:      "Total number of continuations that terminated, by outcome.",
	}, []string{"scheduler", "outcome"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of task panics.",
	}, []string{"scheduler"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "push_rejected_total",
		Help:      "Total number of rejected pushes.",
	}, []string{"scheduler", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "ready_queue_depth",
		Help:      "Current ready-queue depth.",
	}, []string{"scheduler"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if completionsVec, err = registerCollector(reg, completionsVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		segmentDurationSeconds: durationVec,
		completionsTotal:       completionsVec,
		taskPanicTotal:         panicVec,
		pushRejectedTotal:      rejectedVec,
		queueDepth:             queueDepthVec,
	}, nil
}

// RecordSegmentDuration records how long one resumption ran.
func (m *MetricsExporter) RecordSegmentDuration(schedulerName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.segmentDurationSeconds.WithLabelValues(normalizeLabel(schedulerName, "unknown")).Observe(duration.Seconds())
}

// RecordCompletion counts terminated continuations by outcome.
func (m *MetricsExporter) RecordCompletion(schedulerName string, outcome core.Outcome) {
	if m == nil {
		return
	}
	m.completionsTotal.WithLabelValues(normalizeLabel(schedulerName, "unknown"), outcome.String()).Inc()
}

// RecordTaskPanic records task panic events.
func (m *MetricsExporter) RecordTaskPanic(schedulerName string, panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(normalizeLabel(schedulerName, "unknown")).Inc()
}

// RecordQueueDepth records ready-queue depth.
func (m *MetricsExporter) RecordQueueDepth(schedulerName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(schedulerName, "unknown")).Set(float64(depth))
}

// RecordPushRejected records rejected pushes.
func (m *MetricsExporter) RecordPushRejected(schedulerName string, reason string) {
	if m == nil {
		return
	}
	m.pushRejectedTotal.WithLabelValues(normalizeLabel(schedulerName, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
