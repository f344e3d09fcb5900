package core

import (
	"errors"
	"fmt"
)

// List errors. All three are expected outcomes under concurrency and are
// handled locally by callers.
var (
	// ErrElementAlreadyInserted is returned when linking an element that is
	// already linked (or mid-insertion) in some list.
	ErrElementAlreadyInserted = errors.New("element already inserted")

	// ErrElementAlreadyRemoved is returned when unlinking an element that is
	// not currently linked, or that another remover has already claimed.
	ErrElementAlreadyRemoved = errors.New("element already removed")

	// ErrNotFound is returned when a multi-container element is currently
	// linked into a different list instance.
	ErrNotFound = errors.New("element linked into another list")

	// ErrListCorrupted is reported by SanityCheck.
	ErrListCorrupted = errors.New("list corrupted")
)

// Scheduler and task errors.
var (
	ErrCanceled          = errors.New("continuation canceled")
	ErrNotReady          = errors.New("continuation has not terminated")
	ErrNotInContinuation = errors.New("not called from inside a continuation")
	ErrSchedulerClosed   = errors.New("scheduler is shut down")
	ErrNoScheduler       = errors.New("continuation is not bound to a scheduler")
	ErrTimeout           = errors.New("timed out")

	// ErrCallbackInUse is returned by All and Any when a task already has a
	// terminal callback, or is passed more than once.
	ErrCallbackInUse = errors.New("terminal callback already installed")
)

// InvariantViolation is the panic value raised when a lock-free protocol
// observes a state its correctness argument rules out. It is a logic defect,
// never an environmental condition, and is not meant to be recovered outside
// of tests.
type InvariantViolation struct {
	Op     string
	Detail string
}

func (v *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violated in %s: %s", v.Op, v.Detail)
}

// abortf raises an InvariantViolation.
func abortf(op, format string, args ...any) {
	panic(&InvariantViolation{Op: op, Detail: fmt.Sprintf(format, args...)})
}

// PanicError wraps a value recovered from a panicking task body.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}
