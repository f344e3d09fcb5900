// Package cooprunner provides a cooperative, single-consumer coroutine
// runtime for Go built around a lock-free ready-queue.
//
// Suspendable computations (continuations) are pushed onto a Scheduler's
// ready-queue from any goroutine and resumed by whoever drains it. A
// continuation runs until it suspends (Yield, Await, Delay, Suspend) or
// terminates; on termination control transfers straight back to the
// continuation that awaited it.
//
// # Quick Start
//
// Drive a task to completion on the calling goroutine:
//
//	s := cooprunner.NewScheduler("main")
//	task := cooprunner.NewTask("hello", func(ctx context.Context) (string, error) {
//		if err := cooprunner.Yield(ctx); err != nil {
//			return "", err
//		}
//		return "hello", nil
//	})
//	v, err := cooprunner.RunTask(context.Background(), s, task)
//
// # Key Concepts
//
// Scheduler: owns one ready-queue. Push is safe from any goroutine; Run drains
// the queue, resuming the oldest continuation each time.
//
// Task: a continuation producing a typed result. Await inside another task
// transfers control to it and resumes the awaiting task when it finishes.
//
// All / Any: combinators that run several tasks and resume the parent once
// all of them finish, or once the first one does (cancelling the rest).
//
// CancellationToken: a tree of one-shot triggers. Attaching a token to a
// continuation cancels it when the token fires.
//
// DrainPool: a set of goroutines that drain one Scheduler whenever work
// arrives.
//
// # Cancellation
//
// Cancelling a suspended continuation unwinds its body: deferred functions
// run and the suspension point returns ErrCanceled. A continuation that is
// awaiting a child cancels the child first.
//
// # Example
//
//	pool := cooprunner.NewDrainPool("workers", 4, nil)
//	pool.Start(ctx)
//	defer pool.Stop()
//
//	fast := cooprunner.NewTask("fast", fetchFast)
//	slow := cooprunner.NewTask("slow", fetchSlow)
//	first := cooprunner.Any(fast, slow)
//	_ = pool.Submit(first.Continuation)
//	results, err := cooprunner.Wait(ctx, first)
package cooprunner
