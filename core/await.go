package core

import (
	"context"
	"sync/atomic"
	"time"
)

// Yield re-enqueues the calling continuation and suspends it, letting every
// other ready continuation run first.
func Yield(ctx context.Context) error {
	c, err := current(ctx)
	if err != nil {
		return err
	}
	c.suspend(func(s *Scheduler, c *Continuation) *Continuation {
		s.resumeLater(c)
		return nil
	})
	return nil
}

// Await suspends the calling continuation until t terminates and returns
// t's result. A task nobody has started yet runs right away on the same
// drain loop. If the caller is cancelled while waiting, a task it started
// itself is cancelled too.
func Await[T any](ctx context.Context, t *Task[T]) (T, error) {
	c, err := current(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.await(t.Continuation)
	return t.Result()
}

// Suspend parks the calling continuation and hands register a wake function.
// Calling wake, from any goroutine, re-enqueues the continuation; only the
// first call has an effect. register runs after the continuation is fully
// suspended, so wake may be called synchronously.
//
// A parked continuation is released only by wake or Cancel. Whoever drops
// the wake function must cancel the task instead.
func Suspend(ctx context.Context, register func(wake func())) error {
	c, err := current(ctx)
	if err != nil {
		return err
	}
	c.suspend(func(s *Scheduler, c *Continuation) *Continuation {
		var woken atomic.Bool
		register(func() {
			if woken.CompareAndSwap(false, true) {
				s.resumeLater(c)
			}
		})
		return nil
	})
	return nil
}

// Delay suspends the calling continuation for at least d. A non-positive d
// behaves like Yield.
func Delay(ctx context.Context, d time.Duration) error {
	c, err := current(ctx)
	if err != nil {
		return err
	}
	if d <= 0 {
		return Yield(ctx)
	}

	// The suspension may still be registering the timer when a concurrent
	// Cancel discards the coroutine.
	var (
		dm      atomic.Pointer[DelayManager]
		pending atomic.Pointer[DelayedWake]
		fired   bool
	)
	defer func() {
		if !fired {
			if m := dm.Load(); m != nil {
				m.Remove(pending.Load())
			}
		}
	}()

	c.suspend(func(s *Scheduler, c *Continuation) *Continuation {
		m := s.delays()
		if m == nil {
			// Shut down: resumeLater cancels c.
			s.resumeLater(c)
			return nil
		}
		dm.Store(m)
		w := m.Add(d, func() { s.resumeLater(c) })
		if w == nil {
			// Stopped after delays returned it.
			s.resumeLater(c)
			return nil
		}
		pending.Store(w)
		return nil
	})
	fired = true
	return nil
}

// Timeout returns a task that yields task's result, or ErrTimeout if task
// has not terminated after d. On timeout task is cancelled.
func Timeout[T any](task *Task[T], d time.Duration) *Task[T] {
	return NewTask(task.Name()+"/timeout", func(ctx context.Context) (T, error) {
		var zero T
		timer := NewTask("timer", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, Delay(ctx, d)
		})

		r, err := Await(ctx, Any2(task, timer))
		if v, ok := r.First.Get(); ok {
			return v, nil
		}
		if err != nil {
			return zero, err
		}
		return zero, ErrTimeout
	})
}
