package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/osokin/go-group-warden/internal/gateway"
)

func TestUserDisplay(t *testing.T) {
	cases := []struct {
		u    *tele.User
		want string
	}{
		{&tele.User{FirstName: "Alice", LastName: "Smith"}, "Alice Smith"},
		{&tele.User{FirstName: "Alice"}, "Alice"},
		{&tele.User{Username: "alice"}, "@alice"},
		{&tele.User{}, "member"},
		{nil, "member"},
	}
	for _, c := range cases {
		if got := userDisplay(c.u); got != c.want {
			t.Errorf("userDisplay(%+v) = %q, want %q", c.u, got, c.want)
		}
	}
}

// rawUpdate builds an update from its JSON form, the shape tests care about.
func rawUpdate(t *testing.T, js string) tele.Update {
	t.Helper()
	var u tele.Update
	if err := json.Unmarshal([]byte(js), &u); err != nil {
		t.Fatalf("bad update fixture: %v", err)
	}
	return u
}

// ackServer answers answerCallbackQuery so callback conversion can ack.
func ackServer(t *testing.T) *Client {
	mux := http.NewServeMux()
	mux.HandleFunc("/bot"+testToken+"/answerCallbackQuery", func(w http.ResponseWriter, r *http.Request) {
		ok(w, true)
	})
	return newTestClient(t, mux)
}

func TestConvertJoinRequest(t *testing.T) {
	s := NewSource(ackServer(t), time.Second)
	ev := s.convert(rawUpdate(t, `{
		"update_id": 1,
		"chat_join_request": {
			"chat": {"id": -100},
			"from": {"id": 7, "username": "alice", "first_name": "Alice"}
		}
	}`))

	jr, isJoin := ev.(gateway.JoinRequest)
	if !isJoin {
		t.Fatalf("event = %T", ev)
	}
	if jr.GroupID != -100 || jr.UserID != 7 || jr.Username != "alice" || jr.UserDisplay != "Alice" {
		t.Fatalf("event = %+v", jr)
	}
}

func TestConvertCallbackAcksAndYieldsAnswer(t *testing.T) {
	s := NewSource(ackServer(t), time.Second)
	ev := s.convert(rawUpdate(t, `{
		"update_id": 2,
		"callback_query": {"id": "cb1", "from": {"id": 7}, "data": "tok-a"}
	}`))

	ans, isAnswer := ev.(gateway.AnswerSubmitted)
	if !isAnswer {
		t.Fatalf("event = %T", ev)
	}
	if ans.Token != "tok-a" || ans.UserID != 7 {
		t.Fatalf("event = %+v", ans)
	}
}

func TestConvertMembershipChange(t *testing.T) {
	s := NewSource(ackServer(t), time.Second)
	ev := s.convert(rawUpdate(t, `{
		"update_id": 3,
		"chat_member": {
			"chat": {"id": -100},
			"old_chat_member": {"status": "left", "user": {"id": 9, "username": "bob"}},
			"new_chat_member": {"status": "member", "user": {"id": 9, "username": "bob"}}
		}
	}`))

	mc, isChange := ev.(gateway.MembershipChange)
	if !isChange {
		t.Fatalf("event = %T", ev)
	}
	if mc.GroupID != -100 || mc.UserID != 9 ||
		mc.OldStatus != gateway.MemberLeft || mc.NewStatus != gateway.MemberMember {
		t.Fatalf("event = %+v", mc)
	}
}

func TestConvertGroupPhotoPicksLargestSize(t *testing.T) {
	s := NewSource(ackServer(t), time.Second)
	ev := s.convert(rawUpdate(t, `{
		"update_id": 4,
		"message": {
			"message_id": 55,
			"from": {"id": 9, "first_name": "Bob"},
			"chat": {"id": -100, "type": "supergroup"},
			"caption": "look",
			"photo": [
				{"file_id": "small", "width": 90, "height": 90},
				{"file_id": "medium", "width": 320, "height": 320},
				{"file_id": "large", "width": 800, "height": 800}
			]
		}
	}`))

	im, isImage := ev.(gateway.ImageMessage)
	if !isImage {
		t.Fatalf("event = %T", ev)
	}
	if im.ImageRef != "large" || im.Caption != "look" || im.Ref != "-100:55" || im.Display != "Bob" {
		t.Fatalf("event = %+v", im)
	}
}

func TestConvertPrivateTextIsTypedAnswer(t *testing.T) {
	s := NewSource(ackServer(t), time.Second)
	ev := s.convert(rawUpdate(t, `{
		"update_id": 5,
		"message": {
			"message_id": 1,
			"from": {"id": 7},
			"chat": {"id": 7, "type": "private"},
			"text": "A7K2Q"
		}
	}`))

	ta, isText := ev.(gateway.TextAnswer)
	if !isText {
		t.Fatalf("event = %T", ev)
	}
	if ta.UserID != 7 || ta.Text != "A7K2Q" {
		t.Fatalf("event = %+v", ta)
	}
}

func TestConvertGroupCommandStripsBotSuffix(t *testing.T) {
	s := NewSource(ackServer(t), time.Second)
	ev := s.convert(rawUpdate(t, `{
		"update_id": 6,
		"message": {
			"message_id": 2,
			"from": {"id": 1},
			"chat": {"id": -100, "type": "supergroup"},
			"text": "/Challenge@warden_bot on"
		}
	}`))

	cmd, isCmd := ev.(gateway.Command)
	if !isCmd {
		t.Fatalf("event = %T", ev)
	}
	if cmd.Name != "challenge" || len(cmd.Args) != 1 || cmd.Args[0] != "on" {
		t.Fatalf("event = %+v", cmd)
	}
	if cmd.GroupID != -100 || cmd.UserID != 1 {
		t.Fatalf("event = %+v", cmd)
	}
}

func TestConvertIgnoresPlainGroupChatter(t *testing.T) {
	s := NewSource(ackServer(t), time.Second)
	ev := s.convert(rawUpdate(t, `{
		"update_id": 7,
		"message": {
			"message_id": 3,
			"from": {"id": 1},
			"chat": {"id": -100, "type": "supergroup"},
			"text": "good morning everyone"
		}
	}`))
	if ev != nil {
		t.Fatalf("event = %#v, want nil", ev)
	}
}

func TestRunDeliversAndAdvancesOffset(t *testing.T) {
	var polls int32
	var secondOffset atomic.Value

	mux := http.NewServeMux()
	mux.HandleFunc("/bot"+testToken+"/getUpdates", func(w http.ResponseWriter, r *http.Request) {
		var p map[string]string
		_ = json.NewDecoder(r.Body).Decode(&p)
		switch atomic.AddInt32(&polls, 1) {
		case 1:
			ok(w, []map[string]any{{
				"update_id": 41,
				"chat_join_request": map[string]any{
					"chat": map[string]any{"id": -100},
					"from": map[string]any{"id": 7},
				},
			}})
		default:
			secondOffset.Store(p["offset"])
			ok(w, []map[string]any{})
		}
	})
	client := newTestClient(t, mux)

	s := NewSource(client, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case ev := <-s.Events():
		if _, isJoin := ev.(gateway.JoinRequest); !isJoin {
			t.Errorf("event = %T", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event delivered")
	}

	// Give the second poll a moment to happen, then stop.
	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&polls) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("source did not stop")
	}

	if got, _ := secondOffset.Load().(string); got != "42" {
		t.Fatalf("second poll offset = %q, want \"42\"", got)
	}

	// The channel closes when Run returns.
	if _, open := <-s.Events(); open {
		t.Fatal("events channel left open")
	}
}
