// Package app wires inbound platform events onto the coordinator and the
// moderation pipeline. One dispatcher goroutine drains the source; each
// event is handled on its own goroutine so a slow classifier call or a
// stalled platform API never blocks the stream. Ordering across events is
// not needed: every handler re-reads durable state and terminal transitions
// are guarded by check-and-set.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/osokin/go-group-warden/internal/coordinator"
	"github.com/osokin/go-group-warden/internal/gateway"
	"github.com/osokin/go-group-warden/internal/moderation"
	"github.com/osokin/go-group-warden/internal/settings"
)

// handlerTimeout bounds a single event's processing, classifier and
// platform calls included.
const handlerTimeout = 30 * time.Second

var eventsHandled = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "warden_events_total",
		Help: "Inbound platform events by type and result.",
	},
	[]string{"type", "result"},
)

func init() { prometheus.MustRegister(eventsHandled) }

// Dispatcher routes typed events to their handlers.
type Dispatcher struct {
	Coordinator *coordinator.Coordinator
	Pipeline    *moderation.Pipeline
	Settings    *settings.Handler

	wg sync.WaitGroup
}

// Run drains src until its channel closes or ctx is cancelled, then waits
// for in-flight handlers to finish.
func (d *Dispatcher) Run(ctx context.Context, src gateway.Source) {
	defer d.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-src.Events():
			if !ok {
				return
			}
			d.dispatch(ctx, ev)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ev gateway.Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msgf("event handler panicked: %T", ev)
			}
		}()

		hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
		defer cancel()

		var name string
		var err error
		switch e := ev.(type) {
		case gateway.JoinRequest:
			name, err = "join_request", d.Coordinator.HandleJoinRequest(hctx, e)
		case gateway.AnswerSubmitted:
			name, err = "answer_submitted", d.Coordinator.HandleAnswer(hctx, e)
		case gateway.TextAnswer:
			name, err = "text_answer", d.Coordinator.HandleTextAnswer(hctx, e)
		case gateway.ImageMessage:
			name, err = "image_message", d.Pipeline.HandleImage(hctx, e)
		case gateway.MembershipChange:
			name, err = "membership_change", d.Pipeline.HandleMembershipChange(hctx, e)
		case gateway.Command:
			name, err = "command", d.Settings.HandleCommand(hctx, e)
		default:
			log.Warn().Msgf("unroutable event type %T dropped", ev)
			eventsHandled.WithLabelValues("unknown", "dropped").Inc()
			return
		}

		result := "ok"
		if err != nil {
			result = "error"
			log.Error().Err(err).Str("event", name).Msg("event handling failed")
		}
		eventsHandled.WithLabelValues(name, result).Inc()
	}()
}
