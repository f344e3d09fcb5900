package core

import (
	"context"
	"fmt"
	"sync/atomic"
)

// All returns a task that starts every task, waits for all of them and
// yields their values in input order. Its error is the first non-nil error
// in input order.
//
// All owns the terminal callback of every pending task. A pending task that
// already has one, or appears twice, makes All fail with ErrCallbackInUse
// without starting anything.
func All[T any](tasks ...*Task[T]) *Task[[]T] {
	return NewTask("all", func(ctx context.Context) ([]T, error) {
		if _, err := gather(ctx, continuations(tasks), false); err != nil {
			return nil, err
		}
		out := make([]T, len(tasks))
		var firstErr error
		for i, t := range tasks {
			v, err := t.Result()
			out[i] = v
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return out, firstErr
	})
}

// Any returns a task that starts every task and completes as soon as one of
// them terminates; the others are cancelled. A task that succeeded yields
// Some(value), every other position yields None. The error is the error of
// the task that terminated first. Pending tasks are subject to the same
// terminal callback rule as All.
func Any[T any](tasks ...*Task[T]) *Task[[]Optional[T]] {
	return NewTask("any", func(ctx context.Context) ([]Optional[T], error) {
		winner, err := gather(ctx, continuations(tasks), true)
		if err != nil {
			return nil, err
		}
		out := make([]Optional[T], len(tasks))
		for i, t := range tasks {
			out[i] = optionalOf(t)
		}
		if winner < 0 {
			return out, nil
		}
		return out, tasks[winner].err
	})
}

// All2 is All for two tasks of different types.
func All2[A, B any](a *Task[A], b *Task[B]) *Task[Pair[A, B]] {
	return NewTask("all", func(ctx context.Context) (Pair[A, B], error) {
		if _, err := gather(ctx, []*Continuation{a.Continuation, b.Continuation}, false); err != nil {
			return Pair[A, B]{}, err
		}
		va, errA := a.Result()
		vb, errB := b.Result()
		if errA == nil {
			errA = errB
		}
		return Pair[A, B]{First: va, Second: vb}, errA
	})
}

// Any2 is Any for two tasks of different types.
func Any2[A, B any](a *Task[A], b *Task[B]) *Task[Pair[Optional[A], Optional[B]]] {
	return NewTask("any", func(ctx context.Context) (Pair[Optional[A], Optional[B]], error) {
		cs := []*Continuation{a.Continuation, b.Continuation}
		winner, err := gather(ctx, cs, true)
		if err != nil {
			return Pair[Optional[A], Optional[B]]{}, err
		}
		r := Pair[Optional[A], Optional[B]]{First: optionalOf(a), Second: optionalOf(b)}
		if winner < 0 {
			return r, nil
		}
		return r, cs[winner].err
	})
}

// claimable checks that gather can install a terminal callback on every
// pending child.
func claimable(children []*Continuation) error {
	for i, child := range children {
		if child.IsReady() {
			continue
		}
		if fn := child.onTerminate.Load(); fn != nil && fn != terminatedCallback {
			return fmt.Errorf("%w: %q", ErrCallbackInUse, child.name)
		}
		for _, other := range children[:i] {
			if other == child {
				return fmt.Errorf("%w: %q passed twice", ErrCallbackInUse, child.name)
			}
		}
	}
	return nil
}

func continuations[T any](tasks []*Task[T]) []*Continuation {
	cs := make([]*Continuation, len(tasks))
	for i, t := range tasks {
		cs[i] = t.Continuation
	}
	return cs
}

func optionalOf[T any](t *Task[T]) Optional[T] {
	if v, err := t.Result(); err == nil {
		return Some(v)
	}
	return None[T]()
}

// gather launches children and suspends the calling continuation until they
// have all terminated. Completion is counted: every child's terminal
// callback decrements one shared counter, and only the decrement that
// reaches zero resumes the caller. The counter starts one higher than the
// number of children so that no child can resume the caller before every
// callback is installed.
//
// With firstWins, the first child to terminate triggers a token that
// cancels its siblings. The token is detached before the caller is resumed.
// gather returns the index of that first child, or -1.
func gather(ctx context.Context, children []*Continuation, firstWins bool) (int, error) {
	self, err := current(ctx)
	if err != nil {
		return -1, err
	}
	if len(children) == 0 {
		return -1, nil
	}
	if err := claimable(children); err != nil {
		return -1, err
	}

	var tok *CancellationToken
	if firstWins {
		tok = NewCancellationToken()
		if pt := self.Token(); pt != nil {
			_ = tok.AttachTo(pt)
		}
		for _, child := range children {
			if !child.SetCancellationToken(tok) {
				tok.OnTrigger(child.Cancel)
			}
		}
	} else if pt := self.Token(); pt != nil {
		for _, child := range children {
			child.SetCancellationToken(pt)
		}
	}

	var remaining atomic.Int64
	remaining.Store(int64(len(children)) + 1)
	var winner atomic.Int64
	winner.Store(-1)

	resumed := false
	defer func() {
		if resumed {
			return
		}
		// The caller is being discarded; its children go with it.
		for _, child := range children {
			child.Cancel()
		}
		if tok != nil {
			tok.Detach()
		}
	}()

	self.suspend(func(s *Scheduler, parent *Continuation) *Continuation {
		arrive := func() bool {
			if remaining.Add(-1) != 0 {
				return false
			}
			if tok != nil {
				tok.Detach()
			}
			return true
		}
		for i, child := range children {
			child.OnTerminate(func() {
				if winner.CompareAndSwap(-1, int64(i)) && tok != nil {
					tok.Trigger()
				}
				if arrive() {
					s.resumeLater(parent)
				}
			})
		}
		for _, child := range children {
			s.launch(child)
		}
		if arrive() {
			return parent
		}
		return nil
	})
	resumed = true
	return int(winner.Load()), nil
}
