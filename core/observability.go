package core

import "time"

// Outcome is how a continuation reached its terminal state.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeFailed
	OutcomeCanceled
	OutcomePanicked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeCanceled:
		return "canceled"
	case OutcomePanicked:
		return "panicked"
	default:
		return "unknown"
	}
}

// CompletionRecord captures a continuation that reached its terminal state.
type CompletionRecord struct {
	ID         ContinuationID
	Name       string
	Scheduler  string
	Outcome    Outcome
	Resumes    int
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
}

// SchedulerStatus is the drain state of a scheduler.
type SchedulerStatus int

const (
	StatusIdle SchedulerStatus = iota
	StatusDraining
	StatusAbortRequested
	StatusClosed
)

func (s SchedulerStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusDraining:
		return "draining"
	case StatusAbortRequested:
		return "abort_requested"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SchedulerStats represents runtime observability state for a scheduler.
type SchedulerStats struct {
	Name        string
	Status      SchedulerStatus
	Queued      int
	Draining    int
	MaxDraining int
	Pushed      uint64
	Resumed     uint64
	Completed   uint64
	Canceled    uint64
	Panicked    uint64
	Delayed     int
}

// PoolStats represents runtime observability state for a drain pool.
type PoolStats struct {
	ID      string
	Workers int
	Active  int
	Running bool
}
