package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	cooprunner "github.com/Swind/go-coop-runner"
	"github.com/Swind/go-coop-runner/core"
	"github.com/urfave/cli/v2"
)

func quietScheduler(name string) *core.Scheduler {
	cfg := core.DefaultSchedulerConfig()
	cfg.Name = name
	cfg.Logger = core.NewNoOpLogger()
	return core.NewSchedulerWithConfig(cfg)
}

func TestRunDemo(t *testing.T) {
	var out bytes.Buffer
	if err := runDemo(context.Background(), &out, quietScheduler("demo")); err != nil {
		t.Fatalf("runDemo: %v", err)
	}

	want := []string{
		"size=3 front=Z back=X order=Z,Y,X",
		"size=2 walked=2",
		"result=[A B] queued=0",
		`a="A" b.set=false b.outcome=canceled`,
		"result=7 resumes=4 queued=0",
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(want), out.String())
	}
	for i, w := range want {
		if !strings.HasSuffix(lines[i], w) {
			t.Errorf("line %d = %q, want suffix %q", i, lines[i], w)
		}
	}
}

func TestRunStress(t *testing.T) {
	pool := cooprunner.NewDrainPool("stress-test", 3, quietScheduler("stress"))
	pool.Start(context.Background())
	defer pool.Stop()

	var out bytes.Buffer
	err := runStress(context.Background(), &out, pool, stressOptions{Producers: 4, Tasks: 250, Workers: 3, Yields: 2})
	if err != nil {
		t.Fatalf("runStress: %v", err)
	}
	if !strings.Contains(out.String(), "tasks=1000 workers=3") {
		t.Fatalf("unexpected report:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "pushed=") || !strings.Contains(out.String(), "queued=0") {
		t.Fatalf("unexpected counters:\n%s", out.String())
	}
}

func TestAppDemoCommand(t *testing.T) {
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out

	if err := app.Run([]string{"coopctl", "--log-level", "error", "demo"}); err != nil {
		t.Fatalf("app run: %v", err)
	}
	if !strings.Contains(out.String(), "E yield three times:") {
		t.Fatalf("missing scenario E:\n%s", out.String())
	}
}

func TestAppRejectsBadLogLevel(t *testing.T) {
	app := newApp()
	app.ExitErrHandler = func(*cli.Context, error) {}
	if err := app.Run([]string{"coopctl", "--log-level", "loud", "demo"}); err == nil {
		t.Fatal("expected error for bad log level")
	}
}
