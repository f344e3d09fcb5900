package main

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	cooprunner "github.com/Swind/go-coop-runner"
	"github.com/Swind/go-coop-runner/core"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func stressCommand() *cli.Command {
	return &cli.Command{
		Name:  "stress",
		Usage: "push tasks from concurrent producers into a pool-drained scheduler",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "producers", Aliases: []string{"p"}, Value: 8, Usage: "number of producer goroutines"},
			&cli.IntFlag{Name: "tasks", Aliases: []string{"n"}, Value: 10000, Usage: "tasks pushed by each producer"},
			&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "drain workers (default from config)"},
			&cli.IntFlag{Name: "yields", Value: 2, Usage: "times each task yields before finishing"},
			&cli.DurationFlag{Name: "timeout", Value: time.Minute, Usage: "give up after this long"},
		},
		Action: stressAction,
	}
}

type stressOptions struct {
	Producers int
	Tasks     int
	Workers   int
	Yields    int
}

func stressAction(c *cli.Context) error {
	r, err := newRuntime(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer r.Close()

	opts := stressOptions{
		Producers: c.Int("producers"),
		Tasks:     c.Int("tasks"),
		Workers:   r.cfg.Workers,
		Yields:    c.Int("yields"),
	}
	if c.IsSet("workers") {
		opts.Workers = c.Int("workers")
	}
	if opts.Producers <= 0 || opts.Tasks <= 0 || opts.Workers <= 0 || opts.Yields < 0 {
		return cli.Exit("producers, tasks and workers must be positive", 1)
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	s := core.NewSchedulerWithConfig(r.schedulerConfig("stress"))
	defer s.Shutdown()
	pool := cooprunner.NewDrainPool("stress-pool", opts.Workers, s)
	pool.SetLogger(r.logger)

	r.poller.AddScheduler(s.Name(), s)
	r.poller.AddPool(pool.ID(), pool)
	r.poller.Start(ctx)

	pool.Start(ctx)
	defer pool.Stop()

	if err := runStress(ctx, c.App.Writer, pool, opts); err != nil {
		return cli.Exit(fmt.Sprintf("stress failed: %v", err), 1)
	}
	return nil
}

// runStress pushes Producers*Tasks yielding tasks, waits for all of them and
// reports the scheduler counters.
func runStress(ctx context.Context, w io.Writer, pool *cooprunner.DrainPool, opts stressOptions) error {
	var finished atomic.Int64
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for p := range opts.Producers {
		g.Go(func() error {
			tasks := make([]*core.Task[int], 0, opts.Tasks)
			for i := range opts.Tasks {
				task := core.NewTask(fmt.Sprintf("p%d-%d", p, i), func(ctx context.Context) (int, error) {
					for range opts.Yields {
						if err := core.Yield(ctx); err != nil {
							return 0, err
						}
					}
					finished.Add(1)
					return i, nil
				})
				if err := pool.Submit(task.Continuation); err != nil {
					return err
				}
				tasks = append(tasks, task)
			}
			for _, task := range tasks {
				if _, err := cooprunner.Wait(gctx, task); err != nil {
					return fmt.Errorf("task %s: %w", task.Name(), err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	stats := pool.Scheduler().Stats()
	total := int64(opts.Producers * opts.Tasks)
	if got := finished.Load(); got != total {
		return fmt.Errorf("finished %d of %d tasks", got, total)
	}

	fmt.Fprintf(w, "tasks=%d workers=%d elapsed=%s rate=%.0f/s\n",
		total, opts.Workers, elapsed.Round(time.Millisecond), float64(total)/elapsed.Seconds())
	fmt.Fprintf(w, "pushed=%d resumed=%d completed=%d max_draining=%d queued=%d\n",
		stats.Pushed, stats.Resumed, stats.Completed, stats.MaxDraining, stats.Queued)
	return nil
}
