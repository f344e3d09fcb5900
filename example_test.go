package cooprunner_test

import (
	"context"
	"fmt"

	cooprunner "github.com/Swind/go-coop-runner"
)

// ExampleRunTask demonstrates the basic usage with only one import.
func ExampleRunTask() {
	s := cooprunner.NewScheduler("example")

	task := cooprunner.NewTask("count", func(ctx context.Context) (int, error) {
		sum := 0
		for i := 1; i <= 3; i++ {
			fmt.Println("step", i)
			sum += i
			if err := cooprunner.Yield(ctx); err != nil {
				return 0, err
			}
		}
		return sum, nil
	})

	v, err := cooprunner.RunTask(context.Background(), s, task)
	fmt.Println(v, err)

	// Output:
	// step 1
	// step 2
	// step 3
	// 6 <nil>
}

// ExampleAwait demonstrates a parent suspending on a child task.
func ExampleAwait() {
	s := cooprunner.NewScheduler("example")

	child := cooprunner.NewTask("child", func(ctx context.Context) (string, error) {
		fmt.Println("child runs")
		return "done", nil
	})
	parent := cooprunner.NewTask("parent", func(ctx context.Context) (string, error) {
		fmt.Println("parent awaits")
		v, err := cooprunner.Await(ctx, child)
		fmt.Println("parent resumed")
		return "child " + v, err
	})

	v, _ := cooprunner.RunTask(context.Background(), s, parent)
	fmt.Println(v)

	// Output:
	// parent awaits
	// child runs
	// parent resumed
	// child done
}

// ExampleAny demonstrates first-wins selection between two tasks.
func ExampleAny() {
	s := cooprunner.NewScheduler("example")

	fast := cooprunner.NewTask("fast", func(ctx context.Context) (string, error) {
		return "fast", nil
	})
	slow := cooprunner.NewTask("slow", func(ctx context.Context) (string, error) {
		defer fmt.Println("slow canceled")
		return "", cooprunner.Suspend(ctx, func(wake func()) {})
	})

	results, _ := cooprunner.RunTask(context.Background(), s, cooprunner.Any(slow, fast))
	for _, r := range results {
		v, ok := r.Get()
		fmt.Printf("%q %v\n", v, ok)
	}

	// Output:
	// slow canceled
	// "" false
	// "fast" true
}
