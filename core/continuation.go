package core

import (
	"context"
	"errors"
	"iter"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// ContinuationID identifies a continuation for logs and completion records.
type ContinuationID uint64

var continuationIDs atomic.Uint64

type continuationKeyType struct{}

var continuationKey continuationKeyType

// Continuation states. Every resumption, including the one that discards a
// cancelled continuation, must first move the state to running with acquire.
const (
	stateCreated int32 = iota
	stateSuspended
	stateRunning
	stateDone
)

// suspension runs on the drain loop once the coroutine has actually
// suspended. It returns the continuation the loop transfers to next, or nil
// to go back to the ready-queue.
type suspension func(s *Scheduler, c *Continuation) *Continuation

// unwind is raised inside a discarded coroutine so that its deferred
// functions run.
type unwind struct{}

var (
	callerTerminated   = &Continuation{name: "terminated"}
	terminatedCallback = new(func())
)

// Continuation is the suspendable state of one task: the ready-queue hook,
// who to resume on completion, the terminal callback, the result and an
// optional cancellation token.
type Continuation struct {
	hook Element[*Continuation]

	id   ContinuationID
	name string

	state    atomic.Int32
	launched atomic.Bool
	canceled atomic.Bool

	caller        atomic.Pointer[Continuation]
	onTerminate   atomic.Pointer[func()]
	token         atomic.Pointer[CancellationToken]
	tokenCallback atomic.Pointer[CancellationCallback]
	sched         atomic.Pointer[Scheduler]

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Owned by whoever holds the running state.
	body    func(ctx context.Context) error
	next    func() (suspension, bool)
	stop    func()
	yield   func(suspension) bool
	err     error
	outcome Outcome
	resumes int
	started time.Time
}

func newContinuation(name string, body func(ctx context.Context) error) *Continuation {
	c := &Continuation{
		id:   ContinuationID(continuationIDs.Add(1)),
		name: name,
		body: body,
		done: make(chan struct{}),
	}
	c.hook.InitMultiContainer(c)
	ctx, cancel := context.WithCancel(context.Background())
	c.ctx = context.WithValue(ctx, continuationKey, c)
	c.cancel = cancel
	return c
}

// newTerminated builds a continuation that is already done with err.
func newTerminated(name string, err error) *Continuation {
	c := newContinuation(name, nil)
	c.err = err
	c.outcome = outcomeOf(err)
	c.launched.Store(true)
	c.caller.Store(callerTerminated)
	c.onTerminate.Store(terminatedCallback)
	c.state.Store(stateDone)
	c.cancel()
	close(c.done)
	return c
}

// Current returns the continuation whose body is running with ctx, or nil.
func Current(ctx context.Context) *Continuation {
	c, _ := ctx.Value(continuationKey).(*Continuation)
	return c
}

func current(ctx context.Context) (*Continuation, error) {
	if c := Current(ctx); c != nil {
		return c, nil
	}
	return nil, ErrNotInContinuation
}

func (c *Continuation) ID() ContinuationID { return c.id }
func (c *Continuation) Name() string       { return c.name }

// Done is closed once the continuation has terminated.
func (c *Continuation) Done() <-chan struct{} { return c.done }

// IsReady reports whether the continuation has terminated.
func (c *Continuation) IsReady() bool { return c.state.Load() == stateDone }

// Err returns the terminal error, or ErrNotReady.
func (c *Continuation) Err() error {
	if !c.IsReady() {
		return ErrNotReady
	}
	return c.err
}

// Outcome returns how the continuation terminated. It is only meaningful
// once IsReady reports true.
func (c *Continuation) Outcome() Outcome { return c.outcome }

// Scheduler returns the scheduler that last resumed or accepted c.
func (c *Continuation) Scheduler() *Scheduler { return c.sched.Load() }

// Token returns the cancellation token, or nil.
func (c *Continuation) Token() *CancellationToken { return c.token.Load() }

// SetCancellationToken links c to tok: triggering tok cancels c. A
// continuation holds at most one token; false is returned if one is already
// set.
func (c *Continuation) SetCancellationToken(tok *CancellationToken) bool {
	if tok == nil || !c.token.CompareAndSwap(nil, tok) {
		return false
	}
	cb := tok.OnTrigger(c.Cancel)
	c.tokenCallback.Store(cb)
	if c.IsReady() {
		c.releaseToken()
	}
	return true
}

func (c *Continuation) releaseToken() {
	if cb := c.tokenCallback.Swap(nil); cb != nil {
		c.token.Load().RemoveCallback(cb)
	}
}

// OnTerminate installs the terminal callback. It runs exactly once, on
// whichever goroutine terminates c, before c's caller is resumed. Installing
// it on a terminated continuation runs it immediately. A continuation has a
// single slot; installing a second callback is an invariant violation. All
// and Any install one on every task they are given, so a task passed to them
// must not carry its own.
func (c *Continuation) OnTerminate(fn func()) {
	if c.onTerminate.CompareAndSwap(nil, &fn) {
		return
	}
	if c.onTerminate.Load() == terminatedCallback {
		fn()
		return
	}
	abortf("OnTerminate", "continuation %q already has a terminal callback", c.name)
}

// Attach pushes c into its scheduler's ready-queue.
func (c *Continuation) Attach() error {
	s := c.sched.Load()
	if s == nil {
		return ErrNoScheduler
	}
	return s.Push(c)
}

// Detach unlinks c from whichever ready-queue holds it. Detaching an
// unlinked continuation is a no-op.
func (c *Continuation) Detach() error {
	for {
		l := c.hook.owner.Load()
		if l == nil {
			return nil
		}
		err := l.Pop(&c.hook)
		switch {
		case err == nil, errors.Is(err, ErrElementAlreadyRemoved):
			return nil
		case errors.Is(err, ErrNotFound):
			// Moved to another queue between the owner load and the pop.
			continue
		default:
			return err
		}
	}
}

// Cancel stops c from ever being resumed again. A suspended continuation is
// detached and its coroutine discarded: deferred functions in the body run,
// which cancels the children it awaits exclusively. A running continuation
// is discarded at its next suspension point. Cancelling a terminated
// continuation does nothing.
func (c *Continuation) Cancel() {
	if c.IsReady() {
		return
	}
	c.canceled.Store(true)
	_ = c.Detach()
	if !c.acquire() {
		return
	}
	s := c.sched.Load()
	if caller := c.abandon(s); caller != nil {
		caller.sched.Load().resumeLater(caller)
	}
}

func (c *Continuation) cancelRequested() bool {
	if c.canceled.Load() {
		return true
	}
	tok := c.token.Load()
	return tok != nil && tok.Triggered()
}

func (c *Continuation) acquire() bool {
	for {
		st := c.state.Load()
		if st != stateCreated && st != stateSuspended {
			return false
		}
		if c.state.CompareAndSwap(st, stateRunning) {
			return true
		}
	}
}

// resume runs the body until its next suspension point. finished reports
// that the body returned.
func (c *Continuation) resume() (sus suspension, finished bool) {
	if c.next == nil {
		c.next, c.stop = iter.Pull(c.run)
		c.started = time.Now()
	}
	c.resumes++
	sus, ok := c.next()
	return sus, !ok
}

func (c *Continuation) run(yield func(suspension) bool) {
	c.yield = yield
	defer func() {
		switch r := recover().(type) {
		case nil:
		case unwind:
			c.err = ErrCanceled
		case *InvariantViolation:
			panic(r)
		default:
			c.err = &PanicError{Value: r, Stack: debug.Stack()}
		}
		c.outcome = outcomeOf(c.err)
	}()
	c.err = c.body(c.ctx)
}

// suspend hands sus to the drain loop and blocks the body until the
// continuation is resumed.
func (c *Continuation) suspend(sus suspension) {
	if !c.yield(sus) {
		panic(unwind{})
	}
}

// abandon discards a continuation the caller has acquired and terminates it
// as cancelled.
func (c *Continuation) abandon(s *Scheduler) *Continuation {
	c.canceled.Store(true)
	if c.stop != nil {
		c.stop()
	}
	c.err = ErrCanceled
	c.outcome = OutcomeCanceled
	return c.terminate(s)
}

// terminate is the terminal step. It returns the caller to resume next.
func (c *Continuation) terminate(s *Scheduler) *Continuation {
	c.cancel()
	c.state.Store(stateDone)
	close(c.done)
	c.releaseToken()

	if fn := c.onTerminate.Swap(terminatedCallback); fn != nil && fn != terminatedCallback {
		(*fn)()
	}

	if s != nil {
		s.recordCompletion(c)
	}

	caller := c.caller.Swap(callerTerminated)
	if caller == callerTerminated {
		abortf("terminate", "continuation %q terminated twice", c.name)
	}
	return caller
}

// await suspends c until child terminates. A child that was never launched
// is started on the current drain loop by direct transfer.
func (c *Continuation) await(child *Continuation) {
	if child == c {
		abortf("Await", "continuation %q awaits itself", c.name)
	}
	if child.IsReady() {
		return
	}

	resumed := false
	defer func() {
		if resumed {
			return
		}
		// c is being discarded: cancel the child if c owned it.
		if child.caller.CompareAndSwap(c, nil) || !child.launched.Load() {
			child.Cancel()
		}
	}()

	c.suspend(func(s *Scheduler, parent *Continuation) *Continuation {
		if !child.caller.CompareAndSwap(nil, parent) {
			if child.caller.Load() != callerTerminated {
				abortf("Await", "continuation %q is awaited twice", child.name)
			}
			return parent
		}
		if child.launched.CompareAndSwap(false, true) {
			child.sched.Store(s)
			return child
		}
		return nil
	})
	resumed = true
}

func outcomeOf(err error) Outcome {
	var pe *PanicError
	switch {
	case err == nil:
		return OutcomeSucceeded
	case errors.As(err, &pe):
		return OutcomePanicked
	case errors.Is(err, ErrCanceled):
		return OutcomeCanceled
	default:
		return OutcomeFailed
	}
}
