// Package domain defines the persistence models for groups, membership
// requests, per-group policies, and restriction audit records. These types
// are mapped with GORM and form the core data layer of the bot.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// RequestStatus enumerates the lifecycle states of a MembershipRequest.
// Approved, Rejected, and Expired are terminal and absorbing: once a request
// reaches one of them it never transitions again; a later join request for
// the same (group, user) pair starts a fresh row.
type RequestStatus string

const (
	// StatusPending marks a request that arrived but has no challenge yet.
	StatusPending RequestStatus = "pending"
	// StatusChallengeIssued marks a request with a live, unanswered challenge.
	StatusChallengeIssued RequestStatus = "challenge_issued"
	// StatusApproved marks a request whose challenge was solved and whose
	// membership was approved on the platform.
	StatusApproved RequestStatus = "approved"
	// StatusRejected marks a request that exhausted its attempt budget.
	StatusRejected RequestStatus = "rejected"
	// StatusExpired marks a request whose challenge timed out unanswered.
	StatusExpired RequestStatus = "expired"
)

// Terminal reports whether the status is absorbing.
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Group is a conversation the bot has been added to. Rows are created lazily
// the first time a group is referenced, so no provisioning step is required.
type Group struct {
	ID            int64          `json:"id"             gorm:"primaryKey;autoIncrement:false"`
	Title         string         `json:"title"          gorm:"type:varchar(255);not null"`
	CreatorUserID int64          `json:"creator_user_id" gorm:"index"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for Group.
func (Group) TableName() string { return "groups" }

// GroupUser records a user seen in (or requesting to join) a group. It is
// bookkeeping only; membership authority stays with the platform.
type GroupUser struct {
	ID           uint      `json:"id"            gorm:"primaryKey;autoIncrement"`
	GroupID      int64     `json:"group_id"      gorm:"not null;uniqueIndex:ux_group_user,priority:1"`
	UserID       int64     `json:"user_id"       gorm:"not null;uniqueIndex:ux_group_user,priority:2"`
	Username     string    `json:"username"      gorm:"type:varchar(255)"`
	DisplayName  string    `json:"display_name"  gorm:"type:varchar(255)"`
	JoinedAt     time.Time `json:"joined_at"`
	LastActivity time.Time `json:"last_activity"`
}

// TableName returns the database table name for GroupUser.
func (GroupUser) TableName() string { return "group_users" }

// GroupAdmin is a memoized authorization fact: the user holds administrative
// rights over the group. Rows are written lazily after a live platform lookup
// confirms the status, so repeated settings mutations avoid a gateway call.
type GroupAdmin struct {
	ID        uint      `json:"id"       gorm:"primaryKey;autoIncrement"`
	GroupID   int64     `json:"group_id" gorm:"not null;uniqueIndex:ux_group_admin,priority:1"`
	UserID    int64     `json:"user_id"  gorm:"not null;uniqueIndex:ux_group_admin,priority:2"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for GroupAdmin.
func (GroupAdmin) TableName() string { return "group_admins" }

// GroupPolicy is the authoritative per-group configuration. The durable row
// is the source of truth; a denormalized copy lives in the ephemeral cache
// and is refreshed on every write and repaired on cache miss.
//
// A missing row means "all features disabled": policies are created lazily
// with zero values on first reference.
type GroupPolicy struct {
	GroupID int64 `json:"group_id" gorm:"primaryKey;autoIncrement:false"`

	// Join-request challenge.
	ChallengeEnabled bool `json:"challenge_enabled"`
	ChallengeInPM    bool `json:"challenge_in_pm"` // deliver the puzzle via direct message

	// Mute manually admitted newcomers.
	MuteNewMembers bool          `json:"mute_new_members"`
	MuteDuration   time.Duration `json:"mute_duration"`

	// Image moderation.
	PhotoFilterEnabled     bool `json:"photo_filter_enabled"`
	PhotoFilterMuteMinutes int  `json:"photo_filter_mute_minutes"` // 0 = permanent
	AdminsBypassFilter     bool `json:"admins_bypass_photo_filter"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for GroupPolicy.
func (GroupPolicy) TableName() string { return "group_policies" }

// MembershipRequest is one pending or resolved request to join a group.
// At most one active (non-terminal) row exists per (group, user) pair; old
// rows are superseded when a new join request arrives after a terminal state.
//
// The challenge columns are owned exclusively by the request: they are
// overwritten when a fresh puzzle is re-issued after a wrong answer and become
// inert once the status is terminal.
type MembershipRequest struct {
	ID          string        `json:"id"       gorm:"type:char(36);primaryKey"`
	GroupID     int64         `json:"group_id" gorm:"not null;index:idx_req_pair,priority:1"`
	UserID      int64         `json:"user_id"  gorm:"not null;index:idx_req_pair,priority:2"`
	UserDisplay string        `json:"user_display" gorm:"type:varchar(255)"`
	Status      RequestStatus `json:"status"   gorm:"type:varchar(24);not null;index"`
	RequestedAt time.Time     `json:"requested_at"`

	// Challenge state. Answer is the literal expected answer and never leaves
	// the server; displayed options are correlated through opaque tokens.
	ChallengeKind   string    `json:"challenge_kind"   gorm:"type:varchar(16)"`
	ChallengePrompt string    `json:"challenge_prompt" gorm:"type:varchar(255)"`
	Answer          string    `json:"-"                gorm:"type:varchar(64)"`
	AttemptCount    int       `json:"attempt_count"`
	MaxAttempts     int       `json:"max_attempts"`
	IssuedAt        time.Time `json:"issued_at"`
	ExpiresAt       time.Time `json:"expires_at"`

	// Message refs for cleanup: the rendered challenge and any "time expired"
	// notice still on screen for this pair.
	ChallengeMsgRef string `json:"-" gorm:"type:varchar(128)"`
	TimeoutMsgRef   string `json:"-" gorm:"type:varchar(128)"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for MembershipRequest.
func (MembershipRequest) TableName() string { return "membership_requests" }

// AttemptsLeft returns the remaining attempt budget, never negative.
func (r *MembershipRequest) AttemptsLeft() int {
	left := r.MaxAttempts - r.AttemptCount
	if left < 0 {
		return 0
	}
	return left
}

// RestrictionRecord is an append-only audit entry of an applied mute. Rows
// are never mutated; a zero ExpiresAt means the restriction is unbounded.
type RestrictionRecord struct {
	ID        uint      `json:"id"        gorm:"primaryKey;autoIncrement"`
	GroupID   int64     `json:"group_id"  gorm:"not null;index"`
	UserID    int64     `json:"user_id"   gorm:"not null;index"`
	Type      string    `json:"type"      gorm:"type:varchar(32);not null"`
	Reason    string    `json:"reason"    gorm:"type:text"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for RestrictionRecord.
func (RestrictionRecord) TableName() string { return "restriction_records" }
