// Package runner executes independent work items under a concurrency cap.
package runner

import (
	"context"
	"fmt"
	"sync"
)

// Task is one unit of work. Label identifies the item in logs and outcomes
// (a file path, a product URL); Fn does the work and reports its own error.
type Task[R any] struct {
	Label string
	Fn    func(ctx context.Context) (R, error)
}

// Outcome is the per-task result. Exactly one Outcome is returned for each
// submitted Task, at the task's submission index. A non-nil Err marks the
// task as failed; failure of one task never affects its siblings.
type Outcome[R any] struct {
	Index int
	Label string
	Value R
	Err   error
}

// Failed reports whether the task ended in an error.
func (o Outcome[R]) Failed() bool {
	return o.Err != nil
}

// Run executes tasks with at most limit in flight at once and blocks until
// every admitted task has finished. Outcomes are indexed by submission
// order; completion order carries no meaning. If ctx is canceled, tasks not
// yet started are recorded as canceled outcomes and in-flight tasks drain.
func Run[R any](ctx context.Context, limit int, tasks []Task[R]) ([]Outcome[R], error) {
	if limit < 1 {
		return nil, fmt.Errorf("concurrency limit must be >= 1, got %d", limit)
	}

	outcomes := make([]Outcome[R], len(tasks))
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i, task := range tasks {
		select {
		case <-ctx.Done():
			outcomes[i] = Outcome[R]{
				Index: i,
				Label: task.Label,
				Err:   fmt.Errorf("task not started: %w", ctx.Err()),
			}
			continue
		case sem <- struct{}{}:
		}

		// A slot can free up after cancellation; never start new work then.
		if err := ctx.Err(); err != nil {
			<-sem
			outcomes[i] = Outcome[R]{
				Index: i,
				Label: task.Label,
				Err:   fmt.Errorf("task not started: %w", err),
			}
			continue
		}

		wg.Add(1)
		go func(idx int, t Task[R]) {
			defer wg.Done()
			defer func() { <-sem }()

			value, err := t.Fn(ctx)
			outcomes[idx] = Outcome[R]{
				Index: idx,
				Label: t.Label,
				Value: value,
				Err:   err,
			}
		}(i, task)
	}

	wg.Wait()
	return outcomes, nil
}

// Successes filters outcomes down to the successful values.
func Successes[R any](outcomes []Outcome[R]) []R {
	values := make([]R, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.Failed() {
			values = append(values, o.Value)
		}
	}
	return values
}

// CountFailed returns the number of failed outcomes.
func CountFailed[R any](outcomes []Outcome[R]) int {
	n := 0
	for _, o := range outcomes {
		if o.Failed() {
			n++
		}
	}
	return n
}
