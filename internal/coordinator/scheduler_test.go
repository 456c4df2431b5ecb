package coordinator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestAfterRunsOnceDelayElapses(t *testing.T) {
	s := NewScheduler(context.Background())
	fired := make(chan struct{})

	s.After(time.Millisecond, "test", func(context.Context) { close(fired) })

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("task never fired")
	}
	s.Wait()
}

func TestCancelledRootSkipsPendingTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(ctx)

	var fired atomic.Bool
	s.After(time.Hour, "test", func(context.Context) { fired.Store(true) })

	cancel()
	s.Wait()
	if fired.Load() {
		t.Fatal("task fired after root cancellation")
	}
}

func TestPanickingTaskIsContained(t *testing.T) {
	s := NewScheduler(context.Background())
	s.After(time.Millisecond, "test", func(context.Context) { panic("task failure") })
	// Wait returning proves the panic did not escape the task goroutine.
	s.Wait()
}

func TestWaitBlocksUntilTasksFinish(t *testing.T) {
	s := NewScheduler(context.Background())
	var done atomic.Bool
	s.After(10*time.Millisecond, "test", func(context.Context) {
		time.Sleep(10 * time.Millisecond)
		done.Store(true)
	})
	s.Wait()
	if !done.Load() {
		t.Fatal("Wait returned before the task finished")
	}
}
