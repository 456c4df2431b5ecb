package telegram

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"github.com/osokin/go-group-warden/internal/gateway"
)

// Source reads the bot's update stream through telebot's long poller and
// converts raw updates into typed gateway events. It is the single reader of
// the stream; the poller advances its offset past every received update, so
// a crash re-delivers at most one poll window.
type Source struct {
	client *Client
	poller tele.Poller
	events chan gateway.Event
}

// NewSource constructs a Source reading through the given client.
func NewSource(client *Client, pollTimeout time.Duration) *Source {
	return &Source{
		client: client,
		poller: &tele.LongPoller{
			Timeout:        pollTimeout,
			AllowedUpdates: allowedUpdates,
		},
		events: make(chan gateway.Event, 64),
	}
}

// Events yields converted updates. The channel closes when Run returns.
func (s *Source) Events() <-chan gateway.Event { return s.events }

// userDisplay renders the user's human-readable name.
func userDisplay(u *tele.User) string {
	if u == nil {
		return "member"
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return "member"
}

// Run polls until ctx is cancelled, closing the event channel on return. The
// poller keeps its own retry loop on transient API failures.
func (s *Source) Run(ctx context.Context) {
	defer close(s.events)

	updates := make(chan tele.Update, cap(s.events))
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		s.poller.Poll(s.client.bot, updates, stop)
		close(done)
	}()
	defer func() {
		close(stop)
		// Drain so a poller blocked on delivery can observe the stop.
		for {
			select {
			case <-updates:
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case u := <-updates:
			if ev := s.convert(u); ev != nil {
				select {
				case s.events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// convert maps one update onto a gateway event, or nil for updates the
// service does not act on.
func (s *Source) convert(u tele.Update) gateway.Event {
	switch {
	case u.ChatJoinRequest != nil:
		r := u.ChatJoinRequest
		return gateway.JoinRequest{
			GroupID:     r.Chat.ID,
			UserID:      r.Sender.ID,
			Username:    r.Sender.Username,
			UserDisplay: userDisplay(r.Sender),
		}

	case u.Callback != nil:
		q := u.Callback
		// Acknowledge so the client stops its spinner; failures are harmless.
		if err := s.client.bot.Respond(q, &tele.CallbackResponse{}); err != nil {
			log.Debug().Err(err).Msg("callback ack failed")
		}
		return gateway.AnswerSubmitted{Token: q.Data, UserID: q.Sender.ID}

	case u.ChatMember != nil:
		m := u.ChatMember
		return gateway.MembershipChange{
			GroupID:   m.Chat.ID,
			UserID:    m.NewChatMember.User.ID,
			Username:  m.NewChatMember.User.Username,
			OldStatus: gateway.MemberStatus(m.OldChatMember.Role),
			NewStatus: gateway.MemberStatus(m.NewChatMember.Role),
		}

	case u.Message != nil:
		msg := u.Message
		if msg.Sender == nil || msg.Chat == nil {
			return nil
		}
		private := msg.Chat.Type == tele.ChatPrivate
		if msg.Photo != nil && !private {
			// telebot keeps only the largest photo size.
			return gateway.ImageMessage{
				GroupID:  msg.Chat.ID,
				UserID:   msg.Sender.ID,
				Ref:      encodeRef(msg.Chat.ID, int64(msg.ID)),
				Caption:  msg.Caption,
				ImageRef: msg.Photo.FileID,
				Display:  userDisplay(msg.Sender),
			}
		}
		if private && msg.Text != "" {
			return gateway.TextAnswer{UserID: msg.Sender.ID, Text: msg.Text}
		}
		if !private && strings.HasPrefix(msg.Text, "/") {
			fields := strings.Fields(msg.Text)
			// Strip the bot-name suffix Telegram appends in groups.
			name := strings.TrimPrefix(fields[0], "/")
			if i := strings.IndexByte(name, '@'); i >= 0 {
				name = name[:i]
			}
			return gateway.Command{
				GroupID: msg.Chat.ID,
				UserID:  msg.Sender.ID,
				Ref:     encodeRef(msg.Chat.ID, int64(msg.ID)),
				Name:    strings.ToLower(name),
				Args:    fields[1:],
			}
		}
	}
	return nil
}
