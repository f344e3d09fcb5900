package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-coop-runner/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("cooprunner", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordSegmentDuration("sched-a", 250*time.Microsecond)
	exporter.RecordCompletion("sched-a", core.OutcomeCanceled)
	exporter.RecordTaskPanic("sched-a", "panic")
	exporter.RecordQueueDepth("sched-a", 7)
	exporter.RecordPushRejected("sched-a", "shutting down")

	panicTotal := testutil.ToFloat64(exporter.taskPanicTotal.WithLabelValues("sched-a"))
	if panicTotal != 1 {
		t.Fatalf("panic total = %v, want 1", panicTotal)
	}

	queueDepth := testutil.ToFloat64(exporter.queueDepth.WithLabelValues("sched-a"))
	if queueDepth != 7 {
		t.Fatalf("queue depth = %v, want 7", queueDepth)
	}

	rejected := testutil.ToFloat64(exporter.pushRejectedTotal.WithLabelValues("sched-a", "shutting down"))
	if rejected != 1 {
		t.Fatalf("rejected total = %v, want 1", rejected)
	}

	canceled := testutil.ToFloat64(exporter.completionsTotal.WithLabelValues("sched-a", "canceled"))
	if canceled != 1 {
		t.Fatalf("canceled completions = %v, want 1", canceled)
	}

	histCount, err := histogramSampleCount(exporter.segmentDurationSeconds.WithLabelValues("sched-a"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("duration sample count = %d, want 1", histCount)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("cooprunner", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("cooprunner", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordTaskPanic("sched-a", nil)
	second.RecordTaskPanic("sched-a", nil)

	got := testutil.ToFloat64(first.taskPanicTotal.WithLabelValues("sched-a"))
	if got != 2 {
		t.Fatalf("shared panic counter = %v, want 2", got)
	}
}

// TestMetricsExporter_WiredIntoScheduler verifies the scheduler drives the exporter
// Main test items:
// 1. Each resumption observes one segment duration
// 2. Completions are counted by outcome
func TestMetricsExporter_WiredIntoScheduler(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("cooprunner", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	cfg := core.DefaultSchedulerConfig()
	cfg.Name = "wired"
	cfg.Logger = core.NewNoOpLogger()
	cfg.Metrics = exporter
	s := core.NewSchedulerWithConfig(cfg)

	task := core.NewTask("yield-twice", func(ctx context.Context) (int, error) {
		_ = core.Yield(ctx)
		_ = core.Yield(ctx)
		return 1, nil
	})
	if _, err := core.RunTask(context.Background(), s, task); err != nil {
		t.Fatalf("RunTask failed: %v", err)
	}

	histCount, err := histogramSampleCount(exporter.segmentDurationSeconds.WithLabelValues("wired"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 3 {
		t.Fatalf("segment sample count = %d, want 3", histCount)
	}
	if got := testutil.ToFloat64(exporter.completionsTotal.WithLabelValues("wired", "succeeded")); got != 1 {
		t.Fatalf("succeeded completions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.queueDepth.WithLabelValues("wired")); got != 0 {
		t.Fatalf("queue depth = %v, want 0", got)
	}
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}
