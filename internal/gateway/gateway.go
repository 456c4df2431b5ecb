// Package gateway defines the capability interface through which the core
// talks to the chat platform, and the typed inbound events the platform
// delivers. The wire protocol itself lives outside this module; everything
// here is implementation-neutral so tests can substitute doubles.
package gateway

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors implementations should map platform failures onto so the
// core can distinguish benign conditions from real faults.
var (
	// ErrMessageNotFound is returned by DeleteMessage / EditMessage when the
	// target message no longer exists. Best-effort cleanup swallows it.
	ErrMessageNotFound = errors.New("gateway: message not found")

	// ErrChatNotFound is returned when the referenced chat is gone or the bot
	// was removed from it.
	ErrChatNotFound = errors.New("gateway: chat not found")

	// ErrForbidden is returned when the bot lacks the permission required by
	// the call (e.g. restricting a member without admin rights).
	ErrForbidden = errors.New("gateway: insufficient permissions")
)

// MessageRef is an opaque handle to a message previously sent or observed.
// The empty string means "no message".
type MessageRef string

// Target addresses an outbound message: either a group or a user's direct
// conversation with the bot (UserID set, GroupID zero).
type Target struct {
	GroupID int64
	UserID  int64
}

// SendOptions carries optional rendering hints for an outbound message.
type SendOptions struct {
	// Options are interactive choices displayed with the message. Each label
	// is paired with an opaque correlation token echoed back verbatim in an
	// AnswerSubmitted event. The token must never encode the answer itself.
	Options []Option

	// Image, when non-nil, attaches an image (PNG bytes) and Text becomes the
	// caption.
	Image []byte
}

// Option is a single interactive choice.
type Option struct {
	Label string
	Token string
}

// ChatInfo describes a group well enough to render user-facing references.
type ChatInfo struct {
	Title        string
	PublicHandle string // empty for private groups
	InviteLink   string // may be empty when the bot cannot mint one
}

// MemberInfo is the platform's view of a user's standing in a group.
type MemberInfo struct {
	Status MemberStatus
}

// MemberStatus enumerates membership states the core cares about.
type MemberStatus string

const (
	MemberCreator       MemberStatus = "creator"
	MemberAdministrator MemberStatus = "administrator"
	MemberMember        MemberStatus = "member"
	MemberRestricted    MemberStatus = "restricted"
	MemberLeft          MemberStatus = "left"
	MemberKicked        MemberStatus = "kicked"
)

// Admin reports whether the status carries administrative rights.
func (s MemberStatus) Admin() bool {
	return s == MemberCreator || s == MemberAdministrator
}

// Permissions is the subset of member permissions the core manipulates.
// A false field revokes the capability.
type Permissions struct {
	CanSendMessages bool
	CanSendMedia    bool
	CanAddPreviews  bool
	CanInviteUsers  bool
}

// Client is the outbound capability surface of the chat platform. Every call
// may fail transiently; callers decide per call whether a failure aborts the
// surrounding flow or degrades gracefully.
type Client interface {
	// SendMessage delivers text (and options/image) to the target and returns
	// a reference usable for later edit/delete.
	SendMessage(ctx context.Context, to Target, text string, opts SendOptions) (MessageRef, error)

	// EditMessage replaces the text and options of a previously sent message.
	EditMessage(ctx context.Context, ref MessageRef, text string, opts SendOptions) error

	// DeleteMessage removes a message. Deleting an already-deleted message
	// returns ErrMessageNotFound.
	DeleteMessage(ctx context.Context, ref MessageRef) error

	// ApproveJoinRequest accepts a pending membership request.
	ApproveJoinRequest(ctx context.Context, groupID, userID int64) error

	// RestrictMember limits what a member may do until the given time.
	// A zero until means the restriction does not expire.
	RestrictMember(ctx context.Context, groupID, userID int64, perms Permissions, until time.Time) error

	// GetChatInfo fetches display metadata for a group.
	GetChatInfo(ctx context.Context, groupID int64) (ChatInfo, error)

	// GetChatMember fetches a user's membership standing in a group.
	GetChatMember(ctx context.Context, groupID, userID int64) (MemberInfo, error)
}

// Event is a typed inbound platform event. Exactly one dispatcher routes
// events onto the coordinator and the moderation pipeline; the concrete
// variants below are matched exhaustively there.
type Event interface{ event() }

// JoinRequest reports that a user asked to enter a group that requires
// approval.
type JoinRequest struct {
	GroupID     int64
	UserID      int64
	Username    string
	UserDisplay string
}

// AnswerSubmitted reports that a user pressed an interactive option. Token is
// the opaque correlation token attached to the option when it was rendered.
type AnswerSubmitted struct {
	Token  string
	UserID int64
}

// Command reports a slash command issued inside a group, typically by an
// administrator adjusting policy.
type Command struct {
	GroupID int64
	UserID  int64
	Ref     MessageRef
	Name    string // without the leading slash
	Args    []string
}

// TextAnswer reports free text typed by a user in a private conversation
// with the bot, used to answer visual challenges that have no interactive
// options.
type TextAnswer struct {
	UserID int64
	Text   string
}

// ImageMessage reports an inbound image posted to a group.
type ImageMessage struct {
	GroupID  int64
	UserID   int64
	Ref      MessageRef
	Caption  string
	ImageRef string // platform file handle, resolved to bytes by FetchImage
	Display  string // sender display name for notices
}

// MembershipChange reports a member status transition observed in a group.
type MembershipChange struct {
	GroupID   int64
	UserID    int64
	Username  string
	OldStatus MemberStatus
	NewStatus MemberStatus
}

func (JoinRequest) event()      {}
func (AnswerSubmitted) event()  {}
func (Command) event()          {}
func (TextAnswer) event()       {}
func (ImageMessage) event()     {}
func (MembershipChange) event() {}

// Source yields inbound events until its channel is closed. Implementations
// own reconnection and ordering concerns.
type Source interface {
	Events() <-chan Event
}

// ImageFetcher resolves a platform file handle to raw image bytes for the
// moderation pipeline. Kept separate from Client because only the pipeline
// needs it.
type ImageFetcher interface {
	FetchImage(ctx context.Context, imageRef string) ([]byte, error)
}
