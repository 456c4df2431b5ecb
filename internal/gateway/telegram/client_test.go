package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/osokin/go-group-warden/internal/config"
	"github.com/osokin/go-group-warden/internal/gateway"
)

const testToken = "42:TEST"

// ok writes a successful Bot API envelope around result.
func ok(w http.ResponseWriter, result any) {
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

// apiFail writes a Bot API error envelope.
func apiFail(w http.ResponseWriter, code int, desc string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok": false, "error_code": code, "description": desc,
	})
}

func message(chatID, messageID int64) map[string]any {
	return map[string]any{"message_id": messageID, "chat": map[string]any{"id": chatID}}
}

// params decodes a request body. telebot serializes most calls as a JSON
// object of strings; rights payloads mix in booleans, hence the any values.
func params(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var p map[string]any
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		t.Errorf("decode params: %v", err)
	}
	return p
}

// inlineKeyboard mirrors the wire shape of an inline keyboard for decoding
// the reply_markup parameter, which rides inside params as a JSON string.
type inlineKeyboard struct {
	InlineKeyboard [][]struct {
		Text         string `json:"text"`
		CallbackData string `json:"callback_data"`
	} `json:"inline_keyboard"`
}

// newTestClient serves the Bot API from mux and returns a client bound to
// it. Construction hits getMe, so the handler is registered here.
func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	mux.HandleFunc("/bot"+testToken+"/getMe", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]any{"id": 42, "is_bot": true, "first_name": "Warden", "username": "warden_bot"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c, err := New(config.PlatformConfig{
		Token:       testToken,
		APIBase:     srv.URL,
		PollTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestSendMessageRendersKeyboard(t *testing.T) {
	var got map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/bot"+testToken+"/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		got = params(t, r)
		ok(w, message(-100, 55))
	})
	c := newTestClient(t, mux)

	ref, err := c.SendMessage(context.Background(), gateway.Target{GroupID: -100}, "solve this", gateway.SendOptions{
		Options: []gateway.Option{{Label: "10", Token: "tok-a"}, {Label: "11", Token: "tok-b"}},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if ref != "-100:55" {
		t.Fatalf("ref = %q", ref)
	}
	if got["chat_id"] != "-100" || got["text"] != "solve this" {
		t.Fatalf("params = %+v", got)
	}
	var kb inlineKeyboard
	markup, _ := got["reply_markup"].(string)
	if err := json.Unmarshal([]byte(markup), &kb); err != nil {
		t.Fatalf("decode reply_markup %q: %v", markup, err)
	}
	if len(kb.InlineKeyboard) != 1 || len(kb.InlineKeyboard[0]) != 2 {
		t.Fatalf("keyboard = %+v", kb)
	}
	if b := kb.InlineKeyboard[0][1]; b.Text != "11" || b.CallbackData != "tok-b" {
		t.Fatalf("button = %+v", b)
	}
}

func TestSendMessageToUserGoesPrivate(t *testing.T) {
	var chatID string
	mux := http.NewServeMux()
	mux.HandleFunc("/bot"+testToken+"/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		p := params(t, r)
		chatID, _ = p["chat_id"].(string)
		ok(w, message(7, 1))
	})
	c := newTestClient(t, mux)

	if _, err := c.SendMessage(context.Background(), gateway.Target{GroupID: -100, UserID: 7}, "hi", gateway.SendOptions{}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if chatID != "7" {
		t.Fatalf("chat_id = %q, want the user's private conversation", chatID)
	}
}

func TestSendMessageWithImageUploadsPhoto(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/bot"+testToken+"/sendPhoto", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if r.FormValue("chat_id") != "7" || r.FormValue("caption") != "type this" {
			t.Errorf("fields = %v", r.MultipartForm.Value)
		}
		file, _, err := r.FormFile("photo")
		if err != nil {
			t.Errorf("photo part: %v", err)
		} else {
			file.Close()
		}
		ok(w, map[string]any{
			"message_id": 9,
			"chat":       map[string]any{"id": 7},
			"photo":      []map[string]any{{"file_id": "f-1", "width": 100, "height": 100}},
		})
	})
	c := newTestClient(t, mux)

	ref, err := c.SendMessage(context.Background(), gateway.Target{UserID: 7}, "type this", gateway.SendOptions{
		Image: []byte{0x89, 'P', 'N', 'G'},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if ref != "7:9" {
		t.Fatalf("ref = %q", ref)
	}
}

func TestEditMessageDecodesRef(t *testing.T) {
	var got map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/bot"+testToken+"/editMessageText", func(w http.ResponseWriter, r *http.Request) {
		got = params(t, r)
		ok(w, true)
	})
	c := newTestClient(t, mux)

	if err := c.EditMessage(context.Background(), "-100:55", "new text", gateway.SendOptions{}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if got["chat_id"] != "-100" || got["message_id"] != "55" || got["text"] != "new text" {
		t.Fatalf("params = %+v", got)
	}
}

func TestDeleteMessageMapsNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/bot"+testToken+"/deleteMessage", func(w http.ResponseWriter, r *http.Request) {
		apiFail(w, 400, "Bad Request: message to delete not found")
	})
	c := newTestClient(t, mux)

	err := c.DeleteMessage(context.Background(), "-100:55")
	if !errors.Is(err, gateway.ErrMessageNotFound) {
		t.Fatalf("err = %v, want ErrMessageNotFound", err)
	}
}

func TestForbiddenIsMapped(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/bot"+testToken+"/restrictChatMember", func(w http.ResponseWriter, r *http.Request) {
		apiFail(w, 403, "Forbidden: bot is not an administrator")
	})
	c := newTestClient(t, mux)

	err := c.RestrictMember(context.Background(), -100, 7, gateway.Permissions{}, time.Time{})
	if !errors.Is(err, gateway.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestChatNotFoundIsMapped(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/bot"+testToken+"/getChat", func(w http.ResponseWriter, r *http.Request) {
		apiFail(w, 400, "Bad Request: chat not found")
	})
	c := newTestClient(t, mux)

	_, err := c.GetChatInfo(context.Background(), -100)
	if !errors.Is(err, gateway.ErrChatNotFound) {
		t.Fatalf("err = %v, want ErrChatNotFound", err)
	}
}

func TestUnknownAPIFailureKeepsDescription(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/bot"+testToken+"/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		apiFail(w, 429, "Too Many Requests: retry after 30")
	})
	c := newTestClient(t, mux)

	_, err := c.SendMessage(context.Background(), gateway.Target{GroupID: -100}, "x", gateway.SendOptions{})
	if err == nil || !strings.Contains(err.Error(), "retry after 30") {
		t.Fatalf("err = %v", err)
	}
}

func TestRestrictMemberUntilDate(t *testing.T) {
	var got map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/bot"+testToken+"/restrictChatMember", func(w http.ResponseWriter, r *http.Request) {
		got = params(t, r)
		ok(w, true)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	until := time.Now().Add(time.Hour).UTC()
	if err := c.RestrictMember(ctx, -100, 7, gateway.Permissions{}, until); err != nil {
		t.Fatalf("restrict: %v", err)
	}
	if fmt.Sprint(got["until_date"]) != strconv.FormatInt(until.Unix(), 10) {
		t.Fatalf("timed restriction until_date = %v, want %d", got["until_date"], until.Unix())
	}

	if err := c.RestrictMember(ctx, -100, 7, gateway.Permissions{}, time.Time{}); err != nil {
		t.Fatalf("restrict forever: %v", err)
	}
	// The Bot API reads until_date 0 as a permanent restriction.
	if fmt.Sprint(got["until_date"]) != "0" {
		t.Fatalf("unbounded restriction until_date = %v, want 0", got["until_date"])
	}
}

func TestGetChatInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/bot"+testToken+"/getChat", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]any{
			"id": -100, "title": "Gophers", "username": "gophers", "invite_link": "https://t.me/+abc",
		})
	})
	c := newTestClient(t, mux)

	info, err := c.GetChatInfo(context.Background(), -100)
	if err != nil {
		t.Fatalf("getChat: %v", err)
	}
	want := gateway.ChatInfo{Title: "Gophers", PublicHandle: "gophers", InviteLink: "https://t.me/+abc"}
	if info != want {
		t.Fatalf("info = %+v", info)
	}
}

func TestGetChatMember(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/bot"+testToken+"/getChatMember", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]any{
			"status": "administrator",
			"user":   map[string]any{"id": 7},
		})
	})
	c := newTestClient(t, mux)

	info, err := c.GetChatMember(context.Background(), -100, 7)
	if err != nil {
		t.Fatalf("getChatMember: %v", err)
	}
	if info.Status != gateway.MemberAdministrator {
		t.Fatalf("status = %q", info.Status)
	}
}

func TestFetchImage(t *testing.T) {
	payload := []byte("raw image bytes")
	mux := http.NewServeMux()
	mux.HandleFunc("/bot"+testToken+"/getFile", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]any{"file_id": "f-1", "file_path": "photos/file_1.jpg"})
	})
	mux.HandleFunc("/file/bot"+testToken+"/photos/file_1.jpg", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	})
	c := newTestClient(t, mux)

	got, err := c.FetchImage(context.Background(), "f-1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("bytes = %q", got)
	}
}

func TestDecodeRefMalformed(t *testing.T) {
	for _, ref := range []gateway.MessageRef{"", "55", "abc:def", ":55", "-100:"} {
		if _, _, err := decodeRef(ref); err == nil {
			t.Errorf("decodeRef(%q) accepted", ref)
		}
	}
	chatID, messageID, err := decodeRef("-100:55")
	if err != nil || chatID != -100 || messageID != 55 {
		t.Fatalf("decodeRef = %d, %d, %v", chatID, messageID, err)
	}
}
