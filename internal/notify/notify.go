// Package notify delivers structured audit events to the configured sink:
// either the process log alone, or additionally a designated admin channel
// on the chat platform. Emitting is always best-effort; a sink failure never
// disturbs the flow that produced the event.
package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/osokin/go-group-warden/internal/gateway"
)

// Event kinds emitted by the coordinator and the moderation pipeline.
const (
	KindChallengeSent    = "challenge_sent"
	KindChallengeSolved  = "challenge_solved"
	KindChallengeFailed  = "challenge_failed"
	KindChallengeExpired = "challenge_expired"
	KindMemberApproved   = "member_approved"
	KindMemberRejected   = "member_rejected"
	KindPhotoRemoved     = "photo_removed"
	KindMemberMuted      = "member_muted"
	KindReconcile        = "reconcile_warning"
)

// Sink receives structured audit events.
type Sink interface {
	Emit(ctx context.Context, kind string, payload map[string]any)
}

// LogSink writes events to the process log only.
type LogSink struct{}

// Emit logs the event at info level with its payload as fields.
func (LogSink) Emit(_ context.Context, kind string, payload map[string]any) {
	ev := log.Info().Str("event", kind)
	addFields(ev, payload)
	ev.Msg("audit")
}

// ChannelSink mirrors every event to an admin log channel on the platform in
// addition to the process log.
type ChannelSink struct {
	Client    gateway.Client
	ChannelID int64
}

// Emit logs the event and posts a rendered line to the admin channel. Send
// failures are logged and swallowed.
func (s *ChannelSink) Emit(ctx context.Context, kind string, payload map[string]any) {
	LogSink{}.Emit(ctx, kind, payload)

	if s.Client == nil || s.ChannelID == 0 {
		return
	}
	_, err := s.Client.SendMessage(ctx, gateway.Target{GroupID: s.ChannelID}, renderLine(kind, payload), gateway.SendOptions{})
	if err != nil {
		log.Warn().Err(err).Str("event", kind).Msg("audit channel delivery failed")
	}
}

// renderLine formats an event as one log-channel line with stable field
// ordering.
func renderLine(kind string, payload map[string]any) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("[" + kind + "]")
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, payload[k])
	}
	return b.String()
}

func addFields(ev *zerolog.Event, payload map[string]any) {
	for k, v := range payload {
		switch t := v.(type) {
		case string:
			ev.Str(k, t)
		case int64:
			ev.Int64(k, t)
		case int:
			ev.Int(k, t)
		default:
			ev.Interface(k, v)
		}
	}
}
