// Package telegram implements the gateway against the Telegram Bot API,
// built on telebot: the outbound Client, the long-polling event Source, and
// image fetching. The package translates between telebot's types and the
// platform-neutral gateway types the core consumes.
package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/osokin/go-group-warden/internal/config"
	"github.com/osokin/go-group-warden/internal/gateway"
)

// maxFileBytes bounds image downloads at the Bot API file ceiling.
const maxFileBytes = 20 << 20

// allowedUpdates is the update set long polling subscribes to. chat_member
// updates are delivery-opt-in; listing them here is what turns them on.
var allowedUpdates = []string{"message", "callback_query", "chat_join_request", "chat_member"}

// Client talks to the Telegram Bot API through a telebot Bot.
type Client struct {
	bot *tele.Bot
}

// New constructs a Client for the configured bot token. Construction
// verifies the token against the API; the URL is overridable for tests and
// self-hosted Bot API servers.
func New(cfg config.PlatformConfig) (*Client, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token: cfg.Token,
		URL:   strings.TrimRight(cfg.APIBase, "/"),
	})
	if err != nil {
		return nil, fmt.Errorf("connect bot: %w", err)
	}
	return &Client{bot: bot}, nil
}

// mapError folds well-known Bot API failures onto the gateway sentinels so
// callers can branch without parsing description strings. telebot surfaces
// recognized failures as *tele.Error and everything else as a formatted
// error, so classification checks the code when present and the text always.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var code int
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		code = apiErr.Code
	}
	msg := strings.ToLower(err.Error())
	switch {
	case code == 403 || strings.Contains(msg, "forbidden:"):
		return fmt.Errorf("%w: %v", gateway.ErrForbidden, err)
	case strings.Contains(msg, "message to delete not found"),
		strings.Contains(msg, "message to edit not found"),
		strings.Contains(msg, "message can't be deleted"):
		return fmt.Errorf("%w: %v", gateway.ErrMessageNotFound, err)
	case strings.Contains(msg, "chat not found"):
		return fmt.Errorf("%w: %v", gateway.ErrChatNotFound, err)
	}
	return err
}

// keyboardFor renders gateway options as a single-row inline keyboard.
func keyboardFor(opts []gateway.Option) *tele.ReplyMarkup {
	if len(opts) == 0 {
		return nil
	}
	row := make([]tele.InlineButton, len(opts))
	for i, o := range opts {
		row[i] = tele.InlineButton{Text: o.Label, Data: o.Token}
	}
	return &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{row}}
}

// chatIDFor picks the destination chat: the private conversation when a user
// target is set, the group otherwise.
func chatIDFor(to gateway.Target) int64 {
	if to.UserID != 0 {
		return to.UserID
	}
	return to.GroupID
}

// encodeRef packs chat and message IDs into a MessageRef.
func encodeRef(chatID, messageID int64) gateway.MessageRef {
	return gateway.MessageRef(strconv.FormatInt(chatID, 10) + ":" + strconv.FormatInt(messageID, 10))
}

// decodeRef unpacks a MessageRef produced by encodeRef.
func decodeRef(ref gateway.MessageRef) (chatID, messageID int64, err error) {
	s := string(ref)
	i := strings.IndexByte(s, ':')
	if i < 0 {
		return 0, 0, fmt.Errorf("malformed message ref %q", s)
	}
	if chatID, err = strconv.ParseInt(s[:i], 10, 64); err != nil {
		return 0, 0, fmt.Errorf("malformed message ref %q", s)
	}
	if messageID, err = strconv.ParseInt(s[i+1:], 10, 64); err != nil {
		return 0, 0, fmt.Errorf("malformed message ref %q", s)
	}
	return chatID, messageID, nil
}

// storedMessage turns a MessageRef back into something telebot can edit or
// delete.
func storedMessage(ref gateway.MessageRef) (tele.StoredMessage, error) {
	chatID, messageID, err := decodeRef(ref)
	if err != nil {
		return tele.StoredMessage{}, err
	}
	return tele.StoredMessage{ChatID: chatID, MessageID: strconv.FormatInt(messageID, 10)}, nil
}

// SendMessage delivers text, an optional inline keyboard, and an optional
// photo to the target.
func (c *Client) SendMessage(_ context.Context, to gateway.Target, text string, opts gateway.SendOptions) (gateway.MessageRef, error) {
	var what any = text
	if opts.Image != nil {
		what = &tele.Photo{File: tele.FromReader(bytes.NewReader(opts.Image)), Caption: text}
	}

	var sendOpts []any
	if kb := keyboardFor(opts.Options); kb != nil {
		sendOpts = append(sendOpts, kb)
	}
	msg, err := c.bot.Send(tele.ChatID(chatIDFor(to)), what, sendOpts...)
	if err != nil {
		return "", mapError(err)
	}
	return encodeRef(msg.Chat.ID, int64(msg.ID)), nil
}

// EditMessage replaces a message's text and keyboard.
func (c *Client) EditMessage(_ context.Context, ref gateway.MessageRef, text string, opts gateway.SendOptions) error {
	msg, err := storedMessage(ref)
	if err != nil {
		return err
	}
	var sendOpts []any
	if kb := keyboardFor(opts.Options); kb != nil {
		sendOpts = append(sendOpts, kb)
	}
	_, err = c.bot.Edit(msg, text, sendOpts...)
	return mapError(err)
}

// DeleteMessage removes a message; an already-deleted message reports
// gateway.ErrMessageNotFound.
func (c *Client) DeleteMessage(_ context.Context, ref gateway.MessageRef) error {
	msg, err := storedMessage(ref)
	if err != nil {
		return err
	}
	return mapError(c.bot.Delete(msg))
}

// ApproveJoinRequest accepts a pending membership request.
func (c *Client) ApproveJoinRequest(_ context.Context, groupID, userID int64) error {
	return mapError(c.bot.ApproveJoinRequest(tele.ChatID(groupID), &tele.User{ID: userID}))
}

// RestrictMember limits a member's permissions until the given time; a zero
// until applies the restriction indefinitely (the API reads until_date 0 as
// forever).
func (c *Client) RestrictMember(_ context.Context, groupID, userID int64, perms gateway.Permissions, until time.Time) error {
	member := &tele.ChatMember{
		User: &tele.User{ID: userID},
		Rights: tele.Rights{
			CanSendMessages: perms.CanSendMessages,
			CanSendMedia:    perms.CanSendMedia,
			CanAddPreviews:  perms.CanAddPreviews,
			CanInviteUsers:  perms.CanInviteUsers,
		},
	}
	if !until.IsZero() {
		member.RestrictedUntil = until.Unix()
	}
	return mapError(c.bot.Restrict(&tele.Chat{ID: groupID}, member))
}

// GetChatInfo fetches group display metadata.
func (c *Client) GetChatInfo(_ context.Context, groupID int64) (gateway.ChatInfo, error) {
	chat, err := c.bot.ChatByID(groupID)
	if err != nil {
		return gateway.ChatInfo{}, mapError(err)
	}
	return gateway.ChatInfo{
		Title:        chat.Title,
		PublicHandle: chat.Username,
		InviteLink:   chat.InviteLink,
	}, nil
}

// GetChatMember fetches a user's standing in a group.
func (c *Client) GetChatMember(_ context.Context, groupID, userID int64) (gateway.MemberInfo, error) {
	member, err := c.bot.ChatMemberOf(tele.ChatID(groupID), &tele.User{ID: userID})
	if err != nil {
		return gateway.MemberInfo{}, mapError(err)
	}
	return gateway.MemberInfo{Status: gateway.MemberStatus(member.Role)}, nil
}

// FetchImage resolves a file handle to raw bytes.
func (c *Client) FetchImage(_ context.Context, imageRef string) ([]byte, error) {
	rc, err := c.bot.File(&tele.File{FileID: imageRef})
	if err != nil {
		return nil, mapError(err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxFileBytes))
	if err != nil {
		return nil, fmt.Errorf("download file %s: %w", imageRef, err)
	}
	return data, nil
}
