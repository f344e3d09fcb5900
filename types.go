package cooprunner

import (
	"context"
	"time"

	"github.com/Swind/go-coop-runner/core"
)

// Re-export commonly used types from core package for convenience.
// This allows users to import only the cooprunner package for most use cases.

// Scheduler owns a ready-queue and drains it
type Scheduler = core.Scheduler

// SchedulerConfig configures handlers, metrics and list diagnostics
type SchedulerConfig = core.SchedulerConfig

// Continuation is the type-erased suspendable computation
type Continuation = core.Continuation

// Task is a continuation producing a T
type Task[T any] = core.Task[T]

// Optional holds a result that may be absent (Any's losers)
type Optional[T any] = core.Optional[T]

// Pair holds the results of All2 and Any2
type Pair[A, B any] = core.Pair[A, B]

// CancellationToken is a one-shot trigger that cancels attached continuations
type CancellationToken = core.CancellationToken

// Outcome classifies how a continuation terminated
type Outcome = core.Outcome

// Outcome constants
const (
	OutcomeSucceeded = core.OutcomeSucceeded
	OutcomeFailed    = core.OutcomeFailed
	OutcomeCanceled  = core.OutcomeCanceled
	OutcomePanicked  = core.OutcomePanicked
)

// Errors returned by suspension points and the scheduler
var (
	ErrCanceled          = core.ErrCanceled
	ErrNotInContinuation = core.ErrNotInContinuation
	ErrSchedulerClosed   = core.ErrSchedulerClosed
	ErrTimeout           = core.ErrTimeout
	ErrCallbackInUse     = core.ErrCallbackInUse
)

// Constructors
var (
	NewScheduler           = core.NewScheduler
	NewSchedulerWithConfig = core.NewSchedulerWithConfig
	DefaultSchedulerConfig = core.DefaultSchedulerConfig
	NewCancellationToken   = core.NewCancellationToken
	Current                = core.Current
)

// NewTask creates a task running fn as a continuation.
func NewTask[T any](name string, fn func(ctx context.Context) (T, error)) *Task[T] {
	return core.NewTask(name, fn)
}

// Ready returns an already terminated task holding v.
func Ready[T any](v T) *Task[T] { return core.Ready(v) }

// RunTask drives t to completion on the calling goroutine.
func RunTask[T any](ctx context.Context, s *Scheduler, t *Task[T]) (T, error) {
	return core.RunTask(ctx, s, t)
}

// Yield reschedules the current continuation behind everything already queued.
func Yield(ctx context.Context) error { return core.Yield(ctx) }

// Delay suspends the current continuation for d.
func Delay(ctx context.Context, d time.Duration) error { return core.Delay(ctx, d) }

// Suspend parks the current continuation until wake is called.
func Suspend(ctx context.Context, register func(wake func())) error {
	return core.Suspend(ctx, register)
}

// Await suspends the current continuation until t terminates.
func Await[T any](ctx context.Context, t *Task[T]) (T, error) { return core.Await(ctx, t) }

// All waits for every task; results keep input order.
func All[T any](tasks ...*Task[T]) *Task[[]T] { return core.All(tasks...) }

// Any waits for the first task and cancels the rest.
func Any[T any](tasks ...*Task[T]) *Task[[]Optional[T]] { return core.Any(tasks...) }

// Timeout fails with ErrTimeout if task does not finish within d.
func Timeout[T any](task *Task[T], d time.Duration) *Task[T] { return core.Timeout(task, d) }
