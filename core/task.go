package core

import "context"

// Task is the caller-visible handle of a continuation producing a T.
type Task[T any] struct {
	*Continuation
	value T
}

// NewTask creates a suspended task. fn starts running the first time the
// task is resumed: when it is pushed to a scheduler, awaited, or passed to a
// combinator. ctx carries the continuation, so fn may call Yield, Await,
// Suspend and Delay with it.
//
// Once started, fn runs on its own goroutine until it returns. A task parked
// on a wake that will never come keeps that goroutine alive; cancel tasks
// you abandon.
func NewTask[T any](name string, fn func(ctx context.Context) (T, error)) *Task[T] {
	t := &Task[T]{}
	t.Continuation = newContinuation(name, func(ctx context.Context) error {
		v, err := fn(ctx)
		t.value = v
		return err
	})
	return t
}

// Ready returns a task that has already terminated with v.
func Ready[T any](v T) *Task[T] {
	return &Task[T]{Continuation: newTerminated("ready", nil), value: v}
}

// Failed returns a task that has already terminated with err.
func Failed[T any](err error) *Task[T] {
	return &Task[T]{Continuation: newTerminated("failed", err)}
}

// Result returns the task's value and error. Before the task terminates it
// returns ErrNotReady.
func (t *Task[T]) Result() (T, error) {
	if !t.IsReady() {
		var zero T
		return zero, ErrNotReady
	}
	return t.value, t.err
}

// Optional holds a value that may be absent.
type Optional[T any] struct {
	value T
	ok    bool
}

// Some returns a present Optional.
func Some[T any](v T) Optional[T] { return Optional[T]{value: v, ok: true} }

// None returns an absent Optional.
func None[T any]() Optional[T] { return Optional[T]{} }

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) { return o.value, o.ok }

// IsSet reports whether the value is present.
func (o Optional[T]) IsSet() bool { return o.ok }

// Pair is a two-element heterogeneous tuple.
type Pair[A, B any] struct {
	First  A
	Second B
}
