// Scheduler is the lightweight delayed-task runner behind challenge timeouts
// and deferred message cleanup. Each task is an independent sleep-then-run
// goroutine parameterized by (delay, handler); there is no central timer
// wheel and no cancellation registry. A task scheduled for a request that
// resolves early simply fires anyway and no-ops behind the same
// check-and-set guard every terminal transition uses, which makes handlers
// idempotent by construction.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Scheduler runs handlers after a delay. Tasks never outlive the root
// context; Wait blocks until every started task has returned.
type Scheduler struct {
	root context.Context
	wg   sync.WaitGroup
}

// NewScheduler constructs a Scheduler whose tasks are bounded by ctx.
func NewScheduler(ctx context.Context) *Scheduler {
	return &Scheduler{root: ctx}
}

// After runs fn once the delay elapses. The handler receives the root
// context and must tolerate firing after the work it was scheduled for has
// already resolved. Panics inside handlers are contained and logged; a
// failure in a background task never propagates to any request flow.
func (s *Scheduler) After(delay time.Duration, name string, fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("task", name).Msg("delayed task panicked")
			}
		}()

		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
			fn(s.root)
		case <-s.root.Done():
		}
	}()
}

// Wait blocks until all started tasks have finished. Call after cancelling
// the root context during shutdown.
func (s *Scheduler) Wait() { s.wg.Wait() }
