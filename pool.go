package cooprunner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Swind/go-coop-runner/core"
	"golang.org/x/sync/errgroup"
)

// DrainPool runs a fixed set of goroutines that all drain one Scheduler.
// Each worker sleeps on the scheduler wakeup and runs the drain loop when
// woken, so pushes from any goroutine are picked up without a caller
// driving Run.
type DrainPool struct {
	id        string
	workers   int
	scheduler *core.Scheduler
	logger    core.Logger

	group     *errgroup.Group
	cancel    context.CancelFunc
	running   bool
	runningMu sync.RWMutex

	active atomic.Int32
}

// NewDrainPool creates a pool of workers draining s. A nil s gets a fresh
// scheduler named after the pool.
func NewDrainPool(id string, workers int, s *core.Scheduler) *DrainPool {
	if workers <= 0 {
		workers = 1
	}
	if s == nil {
		s = core.NewScheduler(id)
	}
	return &DrainPool{
		id:        id,
		workers:   workers,
		scheduler: s,
		logger:    core.NewNoOpLogger(),
	}
}

// SetLogger sets the logger used for worker lifecycle events.
func (p *DrainPool) SetLogger(logger core.Logger) {
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	p.logger = logger
}

// Start launches all workers. Calling Start on a running pool is a no-op.
func (p *DrainPool) Start(ctx context.Context) {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()

	if p.running {
		return
	}

	var workerCtx context.Context
	workerCtx, p.cancel = context.WithCancel(ctx)
	p.group, workerCtx = errgroup.WithContext(workerCtx)
	p.running = true

	for i := 0; i < p.workers; i++ {
		p.group.Go(func() error {
			return p.workerLoop(workerCtx, i)
		})
	}
	p.logger.Debug("drain pool started", core.F("pool", p.id), core.F("workers", p.workers))
}

// Stop cancels the workers and waits for them. A worker in the middle of a
// drain finishes the resumption it is running first. Queued continuations
// stay queued; shut the scheduler down to cancel them.
func (p *DrainPool) Stop() {
	p.runningMu.Lock()
	if !p.running {
		p.runningMu.Unlock()
		return
	}
	cancel, group := p.cancel, p.group
	p.runningMu.Unlock()

	cancel()
	_ = group.Wait()

	p.runningMu.Lock()
	p.running = false
	p.runningMu.Unlock()
	p.logger.Debug("drain pool stopped", core.F("pool", p.id))
}

// StopGraceful waits until the ready-queue is empty and no worker is
// draining, then stops the pool. On timeout the pool is stopped anyway and
// an error wrapping core.ErrTimeout is returned.
func (p *DrainPool) StopGraceful(timeout time.Duration) error {
	if !p.IsRunning() {
		return nil
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for !p.idle() {
		if time.Now().After(deadline) {
			p.Stop()
			return fmt.Errorf("drain pool %s: %w", p.id, core.ErrTimeout)
		}
		<-ticker.C
	}

	p.Stop()
	return nil
}

func (p *DrainPool) idle() bool {
	return p.scheduler.Stats().Queued == 0 && p.active.Load() == 0
}

// workerLoop drains once on start, in case work was queued before the pool
// started, then once per wakeup.
func (p *DrainPool) workerLoop(ctx context.Context, id int) error {
	for {
		p.active.Add(1)
		p.scheduler.Run()
		p.active.Add(-1)

		select {
		case <-ctx.Done():
			p.logger.Debug("drain worker exiting", core.F("pool", p.id), core.F("worker", id))
			return nil
		case <-p.scheduler.Wakeup():
		}
	}
}

// Submit pushes c onto the pool's scheduler.
func (p *DrainPool) Submit(c *core.Continuation) error {
	return p.scheduler.Push(c)
}

// Scheduler returns the scheduler the pool drains.
func (p *DrainPool) Scheduler() *core.Scheduler {
	return p.scheduler
}

// ID returns the ID of the pool.
func (p *DrainPool) ID() string {
	return p.id
}

// IsRunning returns whether the pool is running.
func (p *DrainPool) IsRunning() bool {
	p.runningMu.RLock()
	defer p.runningMu.RUnlock()
	return p.running
}

// WorkerCount returns the number of workers.
func (p *DrainPool) WorkerCount() int {
	return p.workers
}

// ActiveWorkers returns how many workers are inside the drain loop.
func (p *DrainPool) ActiveWorkers() int {
	return int(p.active.Load())
}

// Stats returns a snapshot for the metrics poller.
func (p *DrainPool) Stats() core.PoolStats {
	return core.PoolStats{
		ID:      p.id,
		Workers: p.workers,
		Active:  p.ActiveWorkers(),
		Running: p.IsRunning(),
	}
}

// Wait blocks until t terminates or ctx is done. It does not drive any
// scheduler; use it for tasks submitted to a running DrainPool.
func Wait[T any](ctx context.Context, t *core.Task[T]) (T, error) {
	select {
	case <-t.Done():
		return t.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
