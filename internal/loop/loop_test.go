package loop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStart_RunsUntilStopped(t *testing.T) {
	var runs atomic.Int64
	task := Start(context.Background(), time.Millisecond, func(context.Context) {
		runs.Add(1)
	})

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)

	task.Stop()
	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no iteration may run after Stop returns")
}

func TestStop_Idempotent(t *testing.T) {
	task := Start(context.Background(), time.Millisecond, func(context.Context) {})
	task.Stop()
	task.Stop()

	select {
	case <-task.Done():
	default:
		t.Fatal("expected Done to be closed")
	}
}

func TestStop_WaitsForInFlightIteration(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool
	task := Start(context.Background(), time.Millisecond, func(context.Context) {
		select {
		case <-started:
			return
		default:
		}
		close(started)
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	})

	<-started
	task.Stop()
	assert.True(t, finished.Load())
}

func TestStart_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	task := Start(ctx, time.Millisecond, func(context.Context) {})
	cancel()

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not stop after parent cancellation")
	}
}

func TestInterval(t *testing.T) {
	assert.Equal(t, time.Second/60, Interval(60))
	assert.Equal(t, time.Second/30, Interval(30))
	assert.Equal(t, time.Second, Interval(0))
}
