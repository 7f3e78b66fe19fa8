// Package barrier joins a fixed set of concurrent tasks: every task runs
// under its own timeout, every outcome is observed before Gather returns,
// and the caller learns whether at least N of the M tasks succeeded.
package barrier

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// Config controls a Gather call.
type Config struct {
	// Need is the number of successful tasks that satisfies the barrier.
	// Zero means all of them.
	Need int
	// Timeout bounds each task individually. Zero means no per-task bound.
	Timeout time.Duration
}

// Task is one unit of work joined by the barrier.
type Task[T any] func(ctx context.Context) (T, error)

// Outcome is the result of one task, in the position it was passed.
type Outcome[T any] struct {
	Value    T
	Err      error
	Elapsed  time.Duration
	TimedOut bool
}

// OK reports whether the task succeeded.
func (o Outcome[T]) OK() bool { return o.Err == nil }

// Result is the joined outcome of every task.
type Result[T any] struct {
	Outcomes  []Outcome[T]
	Succeeded int
	Met       bool
}

// Gather runs every task concurrently and waits for all of them. A task that
// exceeds the timeout is recorded as failed with TimedOut set; a task error
// never cancels its siblings. The returned error is non-nil only when the
// parent context ends before the barrier completes.
func Gather[T any](ctx context.Context, cfg Config, tasks ...Task[T]) (Result[T], error) {
	need := cfg.Need
	if need <= 0 || need > len(tasks) {
		need = len(tasks)
	}

	res := Result[T]{Outcomes: make([]Outcome[T], len(tasks))}

	var g errgroup.Group
	for i, task := range tasks {
		g.Go(func() error {
			res.Outcomes[i] = run(ctx, cfg.Timeout, task)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range res.Outcomes {
		if o.OK() {
			res.Succeeded++
		}
	}
	res.Met = res.Succeeded >= need

	if err := ctx.Err(); err != nil {
		return res, eris.Wrap(err, "barrier: gather")
	}
	return res, nil
}

func run[T any](ctx context.Context, timeout time.Duration, task Task[T]) Outcome[T] {
	tctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type done struct {
		v   T
		err error
	}
	ch := make(chan done, 1)
	start := time.Now()
	go func() {
		v, err := task(tctx)
		ch <- done{v: v, err: err}
	}()

	// A task that ignores its context still cannot hold the barrier past
	// the deadline; its late result is dropped.
	var out Outcome[T]
	select {
	case d := <-ch:
		out = Outcome[T]{Value: d.v, Err: d.err}
	case <-tctx.Done():
		out = Outcome[T]{Err: tctx.Err()}
	}
	out.Elapsed = time.Since(start)

	if out.Err != nil && ctx.Err() == nil && tctx.Err() == context.DeadlineExceeded {
		out.TimedOut = true
		out.Err = eris.Wrapf(out.Err, "barrier: task timed out after %s", timeout)
	}
	return out
}
