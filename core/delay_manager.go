package core

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// DelayedWake is a callback scheduled for the future.
type DelayedWake struct {
	RunAt time.Time
	fire  func()
	index int // for heap interface
}

// delayedWakeHeap implements heap.Interface
type delayedWakeHeap []*DelayedWake

func (h delayedWakeHeap) Len() int           { return len(h) }
func (h delayedWakeHeap) Less(i, j int) bool { return h[i].RunAt.Before(h[j].RunAt) }
func (h delayedWakeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *delayedWakeHeap) Push(x any) {
	n := len(*h)
	item := x.(*DelayedWake)
	item.index = n
	*h = append(*h, item)
}

func (h *delayedWakeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

func (h *delayedWakeHeap) Peek() *DelayedWake {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

// DelayManager fires callbacks at their due time from a single timer
// goroutine. It is the clock behind Delay and Timeout.
type DelayManager struct {
	pq      delayedWakeHeap
	mu      sync.Mutex
	wakeup  chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
}

func NewDelayManager() *DelayManager {
	ctx, cancel := context.WithCancel(context.Background())
	dm := &DelayManager{
		pq:     make(delayedWakeHeap, 0),
		wakeup: make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	heap.Init(&dm.pq)
	go dm.loop()
	return dm
}

// Add schedules fire to run after delay. It returns nil if the manager has
// been stopped.
func (dm *DelayManager) Add(delay time.Duration, fire func()) *DelayedWake {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.stopped {
		return nil
	}

	item := &DelayedWake{
		RunAt: time.Now().Add(delay),
		fire:  fire,
	}
	heap.Push(&dm.pq, item)

	if item.index == 0 {
		select {
		case dm.wakeup <- struct{}{}:
		default:
		}
	}
	return item
}

// Remove unschedules w. It reports false if w already fired or was removed.
func (dm *DelayManager) Remove(w *DelayedWake) bool {
	if w == nil {
		return false
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if w.index < 0 || w.index >= len(dm.pq) || dm.pq[w.index] != w {
		return false
	}
	heap.Remove(&dm.pq, w.index)
	return true
}

func (dm *DelayManager) loop() {
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		// Calculate next run time
		nextRun := dm.calculateNextRun()
		if nextRun == 0 {
			// Nothing due: wait for an Add
			nextRun = 1000 * time.Hour
		}

		timer.Reset(nextRun)

		select {
		case <-dm.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			dm.fireExpired()
		case <-dm.wakeup:
			// New earliest item, need to recalculate
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

// calculateNextRun determines how long to wait until the next item.
// Returns 0 if the heap is empty or an item is already due.
func (dm *DelayManager) calculateNextRun() time.Duration {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	item := dm.pq.Peek()
	if item == nil {
		return 0
	}

	now := time.Now()
	if item.RunAt.Before(now) {
		// Already due; fire on the next tick.
		return time.Nanosecond
	}
	return item.RunAt.Sub(now)
}

// fireExpired pops every due item and fires it outside the lock.
func (dm *DelayManager) fireExpired() {
	dm.mu.Lock()

	now := time.Now()
	var expired []*DelayedWake

	for dm.pq.Len() > 0 {
		item := dm.pq.Peek()
		if item.RunAt.After(now) {
			break
		}
		heap.Pop(&dm.pq)
		expired = append(expired, item)
	}

	dm.mu.Unlock()

	for _, item := range expired {
		item.fire()
	}
}

// Stop ends the timer goroutine and returns the items that never fired.
// The caller decides whether to fire them; Remove reports false for each.
func (dm *DelayManager) Stop() []*DelayedWake {
	dm.cancel()

	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.stopped = true
	dropped := []*DelayedWake(dm.pq)
	for _, item := range dropped {
		item.index = -1
	}
	dm.pq = make(delayedWakeHeap, 0)
	heap.Init(&dm.pq)
	return dropped
}

// Len returns the number of pending items.
func (dm *DelayManager) Len() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.pq)
}
