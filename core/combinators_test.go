package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// blocked returns a task that parks until it is cancelled.
func blocked[T any](name string) *Task[T] {
	return NewTask(name, func(ctx context.Context) (T, error) {
		var zero T
		return zero, Suspend(ctx, func(wake func()) {})
	})
}

// TestAll_ReadyTasks verifies All over already terminated tasks
// Given: two ready tasks
// When: All runs
// Then: it resolves without suspending, results in input order
func TestAll_ReadyTasks(t *testing.T) {
	s := newTestScheduler("all-ready")

	v, err := runTask(t, s, All(Ready("A"), Ready("B")))
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"A", "B"}, v); diff != "" {
		t.Errorf("All result mismatch (-want +got):\n%s", diff)
	}
	require.True(t, s.queue.Empty())
}

func TestAll_PreservesInputOrder(t *testing.T) {
	s := newTestScheduler("all-order")

	mk := func(v, yields int) *Task[int] {
		return NewTask("child", func(ctx context.Context) (int, error) {
			for range yields {
				_ = Yield(ctx)
			}
			return v, nil
		})
	}

	v, err := runTask(t, s, All(mk(1, 3), mk(2, 0), mk(3, 1)))
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, v)
}

func TestAll_FirstErrorInInputOrder(t *testing.T) {
	s := newTestScheduler("all-error")
	errFirst := errors.New("first")
	errSecond := errors.New("second")

	late := NewTask("late", func(ctx context.Context) (int, error) {
		_ = Yield(ctx)
		_ = Yield(ctx)
		return 0, errFirst
	})
	early := NewTask("early", func(ctx context.Context) (int, error) { return 0, errSecond })

	_, err := runTask(t, s, All(late, Ready(1), early))
	require.ErrorIs(t, err, errFirst)
}

func TestAll2_HeterogeneousPair(t *testing.T) {
	s := newTestScheduler("all2")

	a := NewTask("a", func(ctx context.Context) (int, error) {
		_ = Yield(ctx)
		return 42, nil
	})
	b := NewTask("b", func(ctx context.Context) (string, error) { return "x", nil })

	v, err := runTask(t, s, All2(a, b))
	require.NoError(t, err)
	require.Equal(t, Pair[int, string]{First: 42, Second: "x"}, v)
}

func TestAll_Empty(t *testing.T) {
	s := newTestScheduler("all-empty")
	v, err := runTask(t, s, All[int]())
	require.NoError(t, err)
	require.Empty(t, v)
}

// TestAny_FirstWinsAndCancelsLoser verifies Any
// Main test items:
// 1. The first task to finish yields Some(result)
// 2. The loser yields None
// 3. The loser's terminal callback fires exactly once, as a cancellation
func TestAny_FirstWinsAndCancelsLoser(t *testing.T) {
	s := newTestScheduler("any")

	var bStopped atomic.Int32
	a := NewTask("a", func(ctx context.Context) (string, error) {
		_ = Yield(ctx)
		return "A", nil
	})
	b := NewTask("b", func(ctx context.Context) (string, error) {
		defer bStopped.Add(1)
		return "", Suspend(ctx, func(wake func()) {})
	})

	v, err := runTask(t, s, Any(a, b))
	require.NoError(t, err)
	require.Len(t, v, 2)

	got, ok := v[0].Get()
	require.True(t, ok)
	require.Equal(t, "A", got)
	require.False(t, v[1].IsSet())

	require.True(t, b.IsReady())
	require.Equal(t, OutcomeCanceled, b.Outcome())
	require.Equal(t, int32(1), bStopped.Load())
	require.True(t, s.queue.Empty())
}

func TestAny2_TerminalCallbackOnce(t *testing.T) {
	s := newTestScheduler("any2")

	var stopped atomic.Int32
	a := NewTask("a", func(ctx context.Context) (int, error) {
		// Let b start and park first.
		_ = Yield(ctx)
		return 1, nil
	})
	b := NewTask("b", func(ctx context.Context) (string, error) {
		defer stopped.Add(1)
		return "", Suspend(ctx, func(wake func()) {})
	})

	v, err := runTask(t, s, Any2(a, b))
	require.NoError(t, err)

	first, ok := v.First.Get()
	require.True(t, ok)
	require.Equal(t, 1, first)
	require.False(t, v.Second.IsSet())

	_, err = b.Result()
	require.ErrorIs(t, err, ErrCanceled)
	require.Equal(t, int32(1), stopped.Load())

	// b's slot was consumed by Any2 and fired already.
	var late atomic.Int32
	b.OnTerminate(func() { late.Add(1) })
	require.Equal(t, int32(1), late.Load())
	require.Equal(t, uint64(1), s.Stats().Canceled)
}

func TestAny_WinnerErrorPropagates(t *testing.T) {
	s := newTestScheduler("any-error")
	boom := errors.New("boom")

	failing := NewTask("failing", func(ctx context.Context) (int, error) { return 0, boom })
	slow := blocked[int]("slow")

	v, err := runTask(t, s, Any(failing, slow))
	require.ErrorIs(t, err, boom)
	require.False(t, v[0].IsSet())
	require.False(t, v[1].IsSet())
	require.True(t, slow.IsReady())
}

// TestCombinators_RejectOccupiedCallback verifies the terminal callback slot is checked
// Main test items:
// 1. A task passed twice makes All fail without starting it
// 2. A task with its own terminal callback makes Any fail without starting it
// 3. Ready tasks may be repeated
func TestCombinators_RejectOccupiedCallback(t *testing.T) {
	s := newTestScheduler("occupied")

	var ran atomic.Int32
	twice := NewTask("twice", func(ctx context.Context) (int, error) {
		ran.Add(1)
		return 1, nil
	})
	_, err := runTask(t, s, All(twice, twice))
	require.ErrorIs(t, err, ErrCallbackInUse)
	require.False(t, twice.IsReady())

	var own atomic.Int32
	hooked := NewTask("hooked", func(ctx context.Context) (int, error) {
		ran.Add(1)
		return 2, nil
	})
	hooked.OnTerminate(func() { own.Add(1) })
	_, err = runTask(t, s, Any(hooked, blocked[int]("other")))
	require.ErrorIs(t, err, ErrCallbackInUse)
	require.False(t, hooked.IsReady())
	require.Zero(t, ran.Load())

	// The rejected tasks are still usable on their own.
	v, err := runTask(t, s, hooked)
	require.NoError(t, err)
	require.Equal(t, 2, v)
	require.Equal(t, int32(1), own.Load())

	r := Ready(3)
	vs, err := runTask(t, s, All(r, r))
	require.NoError(t, err)
	require.Equal(t, []int{3, 3}, vs)
}

// TestCombinators_CancelParentCancelsChildren verifies cancellation reaches nested children
// Given: a root awaiting All(Any(blocked, blocked), blocked)
// When: the root is cancelled while everything is parked
// Then: every task terminates as cancelled
func TestCombinators_CancelParentCancelsChildren(t *testing.T) {
	s := newTestScheduler("nested-cancel")

	leaves := []*Task[int]{blocked[int]("l0"), blocked[int]("l1"), blocked[int]("l2")}
	inner := NewTask("inner", func(ctx context.Context) (int, error) {
		r, err := Await(ctx, Any(leaves[0], leaves[1]))
		if err != nil {
			return 0, err
		}
		v, _ := r[0].Get()
		return v, nil
	})
	all := All(inner, leaves[2])
	root := NewTask("root", func(ctx context.Context) ([]int, error) {
		return Await(ctx, all)
	})

	require.NoError(t, s.Push(root.Continuation))
	s.Run()
	require.False(t, root.IsReady())

	root.Cancel()
	s.Run()

	for _, c := range []*Continuation{root.Continuation, all.Continuation, inner.Continuation,
		leaves[0].Continuation, leaves[1].Continuation, leaves[2].Continuation} {
		require.True(t, c.IsReady(), c.Name())
		require.Equal(t, OutcomeCanceled, c.Outcome(), c.Name())
	}
	require.True(t, s.queue.Empty())
}

func TestCombinators_TokenCancelsChildren(t *testing.T) {
	s := newTestScheduler("token")
	tok := NewCancellationToken()

	leaves := []*Task[int]{blocked[int]("l0"), blocked[int]("l1")}
	parent := All(leaves...)
	require.True(t, parent.SetCancellationToken(tok))

	require.NoError(t, s.Push(parent.Continuation))
	s.Run()
	require.False(t, parent.IsReady())

	require.True(t, tok.Trigger())
	s.Run()

	require.True(t, parent.IsReady())
	for _, l := range leaves {
		require.Equal(t, OutcomeCanceled, l.Outcome())
	}
}

// TestAny_ConcurrentCompletions finishes every child from its own goroutine
func TestAny_ConcurrentCompletions(t *testing.T) {
	for range 50 {
		s := newTestScheduler("any-race")

		const n = 8
		tasks := make([]*Task[int], n)
		start := make(chan struct{})
		for i := range n {
			tasks[i] = NewTask("racer", func(ctx context.Context) (int, error) {
				err := Suspend(ctx, func(wake func()) {
					go func() {
						<-start
						wake()
					}()
				})
				return i, err
			})
		}

		anyTask := Any(tasks...)
		s.launch(anyTask.Continuation)
		s.Run()
		close(start)

		v, err := runTask(t, s, anyTask)
		require.NoError(t, err)

		set := 0
		for _, o := range v {
			if o.IsSet() {
				set++
			}
		}
		require.GreaterOrEqual(t, set, 1)
		for _, task := range tasks {
			require.True(t, task.IsReady())
		}
		require.Eventually(t, func() bool {
			s.Run()
			return s.queue.Empty()
		}, time.Second, time.Millisecond)
	}
}

func TestTimeout(t *testing.T) {
	s := newTestScheduler("timeout")
	defer s.Shutdown()

	fast := NewTask("fast", func(ctx context.Context) (int, error) { return 9, nil })
	v, err := runTask(t, s, Timeout(fast, time.Second))
	require.NoError(t, err)
	require.Equal(t, 9, v)

	slow := blocked[int]("slow")
	_, err = runTask(t, s, Timeout(slow, 20*time.Millisecond))
	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, OutcomeCanceled, slow.Outcome())
}
