// Package pool runs task closures under a bounded concurrency cap.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrSkipped marks tasks never dispatched because fail-fast tripped first.
var ErrSkipped = errors.New("task skipped after earlier failure")

// Task is one schedulable unit of work. ID identifies the task in logs and
// results (a file path, directory path, or unit name).
type Task[T any] struct {
	ID  string
	Run func(ctx context.Context) (T, error)
}

// Result is the outcome of one task, placed at the task's original
// submission index regardless of completion order.
type Result[T any] struct {
	Index int
	ID    string
	Value T
	Err   error
}

// OK reports whether the task completed without error.
func (r Result[T]) OK() bool { return r.Err == nil }

// Options configures a pool run.
type Options struct {
	// Concurrency caps the number of tasks in flight. Values below 1 are
	// treated as 1.
	Concurrency int

	// FailFast stops claiming new tasks after the first failure. Tasks
	// already running are never cancelled.
	FailFast bool
}

// Run executes all tasks and returns one result per task, ordered by
// submission index. onComplete, when non-nil, is invoked serially as each
// task finishes. In fail-fast mode unclaimed tasks are reported with
// ErrSkipped.
func Run[T any](ctx context.Context, tasks []Task[T], opts Options, onComplete func(Result[T])) []Result[T] {
	n := len(tasks)
	results := make([]Result[T], n)
	if n == 0 {
		return results
	}

	workers := opts.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	var (
		mu      sync.Mutex
		cursor  int
		stopped bool
		claimed = make([]bool, n)
	)

	// claim hands out the next unclaimed index, or -1 when the run is
	// exhausted or fail-fast has tripped.
	claim := func() int {
		mu.Lock()
		defer mu.Unlock()
		if stopped || cursor >= n {
			return -1
		}
		i := cursor
		cursor++
		claimed[i] = true
		return i
	}

	var cbMu sync.Mutex
	report := func(res Result[T]) {
		results[res.Index] = res

		if res.Err != nil && opts.FailFast {
			mu.Lock()
			stopped = true
			mu.Unlock()
		}

		if onComplete != nil {
			cbMu.Lock()
			onComplete(res)
			cbMu.Unlock()
		}
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := claim()
				if i < 0 {
					return
				}
				t := tasks[i]
				value, err := safeRun(ctx, t)
				report(Result[T]{Index: i, ID: t.ID, Value: value, Err: err})
			}
		}()
	}
	wg.Wait()

	// Record skipped tasks so the result slice always has length n.
	for i := range results {
		if !claimed[i] {
			results[i] = Result[T]{Index: i, ID: tasks[i].ID, Err: ErrSkipped}
		}
	}

	return results
}

// safeRun executes a task, converting a panic into an error so one bad task
// cannot take down the whole run.
func safeRun[T any](ctx context.Context, t Task[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.ID, r)
		}
	}()
	return t.Run(ctx)
}
