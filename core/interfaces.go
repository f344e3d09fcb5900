package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task body panics while it is being resumed.
// The panic is recovered into the task result as a *PanicError; the handler
// only observes it.
//
// Implementations should be thread-safe as they may be called concurrently
// from every goroutine that drains the scheduler.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context of the panicked continuation
	// - schedulerName: The name of the scheduler that resumed it
	// - taskName: The name of the continuation
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, schedulerName string, taskName string, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs panics through a Logger.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs the panic at error level.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, schedulerName string, taskName string, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("task panicked",
		F("scheduler", schedulerName),
		F("task", taskName),
		F("panic", fmt.Sprint(panicInfo)),
		F("stack", string(stackTrace)),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting scheduler metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods are called from drain loops and from pushing goroutines; they
// should be non-blocking and fast.
type Metrics interface {
	// RecordSegmentDuration records how long one resumption ran before the
	// continuation suspended or terminated.
	RecordSegmentDuration(schedulerName string, duration time.Duration)

	// RecordCompletion records a continuation reaching its terminal state.
	RecordCompletion(schedulerName string, outcome Outcome)

	// RecordQueueDepth records the current ready-queue size.
	RecordQueueDepth(schedulerName string, depth int)

	// RecordPushRejected records a push that did not enqueue.
	RecordPushRejected(schedulerName string, reason string)

	// RecordTaskPanic records that a task panicked during a resumption.
	RecordTaskPanic(schedulerName string, panicInfo any)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordSegmentDuration(schedulerName string, duration time.Duration) {}
func (m *NilMetrics) RecordCompletion(schedulerName string, outcome Outcome)             {}
func (m *NilMetrics) RecordQueueDepth(schedulerName string, depth int)                   {}
func (m *NilMetrics) RecordPushRejected(schedulerName string, reason string)             {}
func (m *NilMetrics) RecordTaskPanic(schedulerName string, panicInfo any)                {}

// =============================================================================
// RejectedPushHandler: Interface for handling rejected pushes
// =============================================================================

// RejectedPushHandler is called when Push does not enqueue a continuation,
// either because the scheduler is shut down or because the continuation is
// already linked.
type RejectedPushHandler interface {
	HandleRejectedPush(schedulerName string, taskName string, reason string)
}

// DefaultRejectedPushHandler logs rejected pushes at debug level.
type DefaultRejectedPushHandler struct {
	Logger Logger
}

func (h *DefaultRejectedPushHandler) HandleRejectedPush(schedulerName string, taskName string, reason string) {
	if h.Logger == nil {
		return
	}
	h.Logger.Debug("push rejected", F("scheduler", schedulerName), F("task", taskName), F("reason", reason))
}

// =============================================================================
// SchedulerConfig: Configuration for Scheduler
// =============================================================================

// SchedulerConfig holds configuration options for Scheduler.
// All handlers are optional; if not provided, default implementations will be used.
type SchedulerConfig struct {
	// Name labels logs, metrics and stats. Defaults to "scheduler".
	Name string

	// Logger defaults to NewDefaultLogger().
	Logger Logger

	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics defaults to NilMetrics.
	Metrics Metrics

	// RejectedPushHandler defaults to DefaultRejectedPushHandler.
	RejectedPushHandler RejectedPushHandler

	// RetryCeiling bounds lock-free retries in the ready-queue; exceeding it
	// is treated as an invariant violation. Zero means unbounded.
	RetryCeiling int

	// HistoryCapacity is the number of completion records kept.
	HistoryCapacity int
}

// DefaultSchedulerConfig returns a config with default handlers.
func DefaultSchedulerConfig() *SchedulerConfig {
	logger := NewDefaultLogger()
	return &SchedulerConfig{
		Name:                "scheduler",
		Logger:              logger,
		PanicHandler:        &DefaultPanicHandler{Logger: logger},
		Metrics:             &NilMetrics{},
		RejectedPushHandler: &DefaultRejectedPushHandler{Logger: logger},
		HistoryCapacity:     defaultHistoryCapacity,
	}
}
