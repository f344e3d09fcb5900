package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Swind/go-coop-runner/core"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func demoCommand() *cli.Command {
	return &cli.Command{
		Name:   "demo",
		Usage:  "run the reference list and scheduler scenarios",
		Action: demoAction,
	}
}

func demoAction(c *cli.Context) error {
	r, err := newRuntime(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer r.Close()

	s := core.NewSchedulerWithConfig(r.schedulerConfig("demo"))
	defer s.Shutdown()
	r.poller.AddScheduler(s.Name(), s)
	r.poller.Start(c.Context)

	if err := runDemo(c.Context, c.App.Writer, s); err != nil {
		return cli.Exit(fmt.Sprintf("demo failed: %v", err), 1)
	}
	return nil
}

// runDemo replays the scenarios in order and writes one line per scenario.
func runDemo(ctx context.Context, w io.Writer, s *core.Scheduler) error {
	steps := []struct {
		name string
		run  func(context.Context, *core.Scheduler) (string, error)
	}{
		{"A sequential push", demoSequentialPush},
		{"B concurrent push", demoConcurrentPush},
		{"C all of ready tasks", demoAllReady},
		{"D any, first wins", demoAnyFirstWins},
		{"E yield three times", demoYield},
	}
	for _, step := range steps {
		line, err := step.run(ctx, s)
		if err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
		fmt.Fprintf(w, "%-22s %s\n", step.name+":", line)
	}
	return nil
}

func demoSequentialPush(context.Context, *core.Scheduler) (string, error) {
	list := core.NewList[string]()
	var elems [3]core.Element[string]
	for i, v := range []string{"X", "Y", "Z"} {
		if err := list.PushFront(elems[i].Init(v)); err != nil {
			return "", err
		}
	}

	size, front, back := list.Size(), list.Front().Value(), list.Back().Value()
	order := make([]string, 0, size)
	for {
		e, ok := list.PopBack()
		if !ok {
			break
		}
		order = append([]string{e.Value()}, order...)
	}
	return fmt.Sprintf("size=%d front=%s back=%s order=%s", size, front, back, strings.Join(order, ",")), nil
}

func demoConcurrentPush(context.Context, *core.Scheduler) (string, error) {
	list := core.NewList[int]()
	var elems [2]core.Element[int]

	var g errgroup.Group
	for i := range elems {
		g.Go(func() error {
			return list.PushFront(elems[i].Init(i))
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	n, err := list.SanityCheck(nil)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("size=%d walked=%d", list.Size(), n), nil
}

func demoAllReady(ctx context.Context, s *core.Scheduler) (string, error) {
	v, err := core.RunTask(ctx, s, core.All(core.Ready("A"), core.Ready("B")))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("result=%v queued=%d", v, s.Stats().Queued), nil
}

func demoAnyFirstWins(ctx context.Context, s *core.Scheduler) (string, error) {
	a := core.NewTask("a", func(ctx context.Context) (string, error) {
		if err := core.Yield(ctx); err != nil {
			return "", err
		}
		return "A", nil
	})
	b := core.NewTask("b", func(ctx context.Context) (string, error) {
		return "", core.Suspend(ctx, func(wake func()) {})
	})

	v, err := core.RunTask(ctx, s, core.Any(a, b))
	if err != nil {
		return "", err
	}
	first, _ := v[0].Get()
	return fmt.Sprintf("a=%q b.set=%v b.outcome=%s", first, v[1].IsSet(), b.Outcome()), nil
}

func demoYield(ctx context.Context, s *core.Scheduler) (string, error) {
	task := core.NewTask("yield-3", func(ctx context.Context) (int, error) {
		for range 3 {
			if err := core.Yield(ctx); err != nil {
				return 0, err
			}
		}
		return 7, nil
	})
	v, err := core.RunTask(ctx, s, task)
	if err != nil {
		return "", err
	}
	rec, _ := s.LastCompletion()
	return fmt.Sprintf("result=%d resumes=%d queued=%d", v, rec.Resumes, s.Stats().Queued), nil
}
