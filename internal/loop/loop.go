// Package loop provides a cancellable repeating task, the server-side
// equivalent of a per-frame render callback that reschedules itself.
package loop

import (
	"context"
	"sync"
	"time"
)

// Task runs a function at a fixed interval until stopped.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Start runs fn every interval on a new goroutine until the returned Task is
// stopped or ctx is cancelled. Ticks that fall behind are dropped rather than
// queued, so a slow fn never accumulates a backlog of iterations.
func Start(ctx context.Context, interval time.Duration, fn func(context.Context)) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Stop may have raced with the tick
				if ctx.Err() != nil {
					return
				}
				fn(ctx)
			}
		}
	}()

	return t
}

// Stop cancels the task and waits for an in-flight iteration to return.
// No iteration starts after Stop returns. Stop is idempotent and must not be
// called from inside fn.
func (t *Task) Stop() {
	t.once.Do(t.cancel)
	<-t.done
}

// Done is closed once the task has fully stopped.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Interval converts a rate in hertz to a tick interval.
func Interval(hz float64) time.Duration {
	if hz <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / hz)
}
