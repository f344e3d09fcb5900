package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler owns one ready-queue and drains it. Push is safe from any
// goroutine, including from inside a resumed continuation. Run may be called
// by one goroutine or by several at once (see DrainPool); each popped
// continuation is resumed by exactly one of them.
type Scheduler struct {
	name  string
	queue *NonOwningList[*Continuation]

	signal chan struct{}

	delayMu      sync.Mutex
	delayManager *DelayManager

	logger              Logger
	panicHandler        PanicHandler
	metrics             Metrics
	rejectedPushHandler RejectedPushHandler

	history *completionHistory

	draining    atomic.Int32
	maxDraining atomic.Int32
	pushed      atomic.Uint64
	resumed     atomic.Uint64
	completed   atomic.Uint64
	canceled    atomic.Uint64
	panicked    atomic.Uint64

	abortRequested atomic.Bool
	closed         atomic.Bool
}

// NewScheduler creates a scheduler with default handlers.
func NewScheduler(name string) *Scheduler {
	cfg := DefaultSchedulerConfig()
	cfg.Name = name
	return NewSchedulerWithConfig(cfg)
}

// NewSchedulerWithConfig creates a scheduler; nil handlers fall back to
// the defaults.
func NewSchedulerWithConfig(config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}

	var opts []ListOption
	if config.RetryCeiling > 0 {
		opts = append(opts, WithRetryCeiling(config.RetryCeiling))
	}

	s := &Scheduler{
		name:                config.Name,
		queue:               NewList[*Continuation](opts...),
		signal:              make(chan struct{}, 1),
		logger:              config.Logger,
		panicHandler:        config.PanicHandler,
		metrics:             config.Metrics,
		rejectedPushHandler: config.RejectedPushHandler,
		history:             newCompletionHistory(config.HistoryCapacity),
	}

	if s.name == "" {
		s.name = "scheduler"
	}
	if s.logger == nil {
		s.logger = NewDefaultLogger()
	}
	if s.panicHandler == nil {
		s.panicHandler = &DefaultPanicHandler{Logger: s.logger}
	}
	if s.metrics == nil {
		s.metrics = &NilMetrics{}
	}
	if s.rejectedPushHandler == nil {
		s.rejectedPushHandler = &DefaultRejectedPushHandler{Logger: s.logger}
	}
	return s
}

func (s *Scheduler) Name() string { return s.name }

// Push enqueues c at the front of the ready-queue and wakes one waiter.
// Pushing a terminated continuation does nothing.
func (s *Scheduler) Push(c *Continuation) error {
	if c.IsReady() {
		return nil
	}
	if s.closed.Load() {
		s.reject(c, "shutting down")
		return ErrSchedulerClosed
	}

	c.sched.Store(s)
	c.launched.Store(true)
	if err := s.queue.PushFront(&c.hook); err != nil {
		s.reject(c, "already queued")
		return err
	}
	s.pushed.Add(1)
	s.metrics.RecordQueueDepth(s.name, s.queue.Size())
	s.notify()
	return nil
}

// launch pushes c unless it has already been started by someone else.
func (s *Scheduler) launch(c *Continuation) {
	if c.launched.CompareAndSwap(false, true) {
		s.resumeLater(c)
	}
}

// resumeLater re-enqueues a suspended continuation. A closed scheduler
// cancels it instead, so nothing waits on a queue that is never drained.
func (s *Scheduler) resumeLater(c *Continuation) {
	if s == nil {
		abortf("resumeLater", "continuation %q has no scheduler", c.name)
	}
	if err := s.Push(c); err != nil {
		if errors.Is(err, ErrSchedulerClosed) {
			c.Cancel()
			return
		}
		abortf("resumeLater", "continuation %q: %v", c.name, err)
	}
}

func (s *Scheduler) reject(c *Continuation, reason string) {
	s.rejectedPushHandler.HandleRejectedPush(s.name, c.name, reason)
	s.metrics.RecordPushRejected(s.name, reason)
}

func (s *Scheduler) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
		// A wakeup is already pending.
	}
}

// Wakeup receives a value after pushes. It is a hint: waiters must re-check
// the queue.
func (s *Scheduler) Wakeup() <-chan struct{} { return s.signal }

// Run drains the ready-queue, resuming the oldest continuation each time,
// until the queue is observed empty or RequestAbort was called.
func (s *Scheduler) Run() {
	n := s.draining.Add(1)
	for {
		m := s.maxDraining.Load()
		if n <= m || s.maxDraining.CompareAndSwap(m, n) {
			break
		}
	}
	defer s.draining.Add(-1)

	for !s.abortRequested.CompareAndSwap(true, false) {
		e, ok := s.queue.PopBack()
		if !ok {
			return
		}
		s.metrics.RecordQueueDepth(s.name, s.queue.Size())
		s.dispatch(e.Value())
	}
}

// dispatch resumes c and keeps transferring control to whatever each step
// hands back: a terminated continuation's caller, or the continuation a
// suspension chose to run next.
func (s *Scheduler) dispatch(c *Continuation) {
	for c != nil {
		if !c.acquire() {
			// Stale entry: terminated, or already resumed elsewhere.
			return
		}
		c.sched.Store(s)

		if c.cancelRequested() {
			c = c.abandon(s)
			continue
		}

		s.resumed.Add(1)
		start := time.Now()
		sus, finished := c.resume()
		s.metrics.RecordSegmentDuration(s.name, time.Since(start))

		if finished {
			c = c.terminate(s)
			continue
		}

		c.state.Store(stateSuspended)
		if c.cancelRequested() && c.acquire() {
			c = c.abandon(s)
			continue
		}
		c = sus(s, c)
	}
}

func (s *Scheduler) recordCompletion(c *Continuation) {
	s.completed.Add(1)
	switch c.outcome {
	case OutcomeCanceled:
		s.canceled.Add(1)
	case OutcomePanicked:
		s.panicked.Add(1)
		var pe *PanicError
		if errors.As(c.err, &pe) {
			s.panicHandler.HandlePanic(c.ctx, s.name, c.name, pe.Value, pe.Stack)
			s.metrics.RecordTaskPanic(s.name, pe.Value)
		}
	}
	s.metrics.RecordCompletion(s.name, c.outcome)

	now := time.Now()
	started := c.started
	if started.IsZero() {
		started = now
	}
	s.history.Add(CompletionRecord{
		ID:         c.id,
		Name:       c.name,
		Scheduler:  s.name,
		Outcome:    c.outcome,
		Resumes:    c.resumes,
		StartedAt:  started,
		FinishedAt: now,
		Duration:   now.Sub(started),
	})
}

// RunTask pushes t, drains the scheduler and returns t's result. When t is
// waiting on something outside the scheduler (a timer, another goroutine),
// RunTask blocks until it is woken and drains again, or until ctx is done.
func RunTask[T any](ctx context.Context, s *Scheduler, t *Task[T]) (T, error) {
	var zero T
	s.launch(t.Continuation)

	for {
		s.Run()
		if t.IsReady() {
			return t.Result()
		}
		select {
		case <-t.Done():
		case <-s.Wakeup():
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// RequestAbort makes one drain loop return after its current resumption.
// Queued continuations stay queued.
func (s *Scheduler) RequestAbort() {
	s.abortRequested.Store(true)
}

// Shutdown rejects further pushes, stops the timer source and cancels
// every queued continuation. Continuations parked on a pending timer are
// cancelled too.
func (s *Scheduler) Shutdown() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	var dropped []*DelayedWake
	s.delayMu.Lock()
	if s.delayManager != nil {
		dropped = s.delayManager.Stop()
	}
	s.delayMu.Unlock()

	// Each wake resumes onto the closed scheduler, which cancels it.
	for _, w := range dropped {
		w.fire()
	}

	n := len(dropped)
	for {
		e, ok := s.queue.PopBack()
		if !ok {
			break
		}
		e.Value().Cancel()
		n++
	}
	s.logger.Debug("scheduler shut down", F("scheduler", s.name), F("canceled", n))
	s.notify()
}

// IsClosed reports whether Shutdown has been called.
func (s *Scheduler) IsClosed() bool { return s.closed.Load() }

// delays returns the timer source, creating it on first use. It returns nil
// once the scheduler is shut down.
func (s *Scheduler) delays() *DelayManager {
	s.delayMu.Lock()
	defer s.delayMu.Unlock()
	if s.closed.Load() {
		return nil
	}
	if s.delayManager == nil {
		s.delayManager = NewDelayManager()
	}
	return s.delayManager
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() SchedulerStats {
	status := StatusIdle
	switch {
	case s.closed.Load():
		status = StatusClosed
	case s.abortRequested.Load():
		status = StatusAbortRequested
	case s.draining.Load() > 0:
		status = StatusDraining
	}

	delayed := 0
	s.delayMu.Lock()
	if s.delayManager != nil {
		delayed = s.delayManager.Len()
	}
	s.delayMu.Unlock()

	return SchedulerStats{
		Name:        s.name,
		Status:      status,
		Queued:      s.queue.Size(),
		Draining:    int(s.draining.Load()),
		MaxDraining: int(s.maxDraining.Load()),
		Pushed:      s.pushed.Load(),
		Resumed:     s.resumed.Load(),
		Completed:   s.completed.Load(),
		Canceled:    s.canceled.Load(),
		Panicked:    s.panicked.Load(),
		Delayed:     delayed,
	}
}

// RecentCompletions returns up to limit completion records, newest first.
func (s *Scheduler) RecentCompletions(limit int) []CompletionRecord {
	return s.history.Recent(limit)
}

// LastCompletion returns the most recent completion record.
func (s *Scheduler) LastCompletion() (CompletionRecord, bool) {
	return s.history.Last()
}

// SanityCheck verifies the ready-queue structure. Only call it while no
// goroutine is pushing or draining.
func (s *Scheduler) SanityCheck() (int, error) {
	return s.queue.SanityCheck(func(c *Continuation) bool { return c != nil && !c.IsReady() })
}
