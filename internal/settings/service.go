// Package settings exposes the typed mutation operations administrators use
// to configure a group's policies. Every operation is gated by the admin
// authorizer and flows through the write-through policy repository, so the
// durable store and the cache stay consistent without callers thinking about
// either.
package settings

import (
	"context"
	"errors"
	"time"

	"github.com/osokin/go-group-warden/internal/domain"
	"github.com/osokin/go-group-warden/internal/policy"
)

// ErrNotAdmin is returned when the acting user lacks administrative rights
// over the group. It is a denial, not a system failure, and is surfaced to
// the user as such.
var ErrNotAdmin = errors.New("settings: user is not a group administrator")

// Authorizer is the subset of the admin package the service needs.
type Authorizer interface {
	IsAdmin(ctx context.Context, groupID, userID int64) bool
}

// Service applies policy mutations on behalf of administrators.
type Service struct {
	Policies *policy.Repository
	Auth     Authorizer
}

// NewService constructs a Service.
func NewService(p *policy.Repository, a Authorizer) *Service {
	return &Service{Policies: p, Auth: a}
}

// Get returns the group's current policy; read access is not gated.
func (s *Service) Get(ctx context.Context, groupID int64) (*domain.GroupPolicy, error) {
	return s.Policies.Get(ctx, groupID)
}

// SetChallengeEnabled toggles the join-request challenge.
func (s *Service) SetChallengeEnabled(ctx context.Context, actorID, groupID int64, on bool) (*domain.GroupPolicy, error) {
	return s.update(ctx, actorID, groupID, map[string]any{"challenge_enabled": on})
}

// SetChallengeInPM selects direct-message vs. in-group challenge delivery.
func (s *Service) SetChallengeInPM(ctx context.Context, actorID, groupID int64, inPM bool) (*domain.GroupPolicy, error) {
	return s.update(ctx, actorID, groupID, map[string]any{"challenge_in_pm": inPM})
}

// SetMuteNewMembers toggles auto-muting of manually admitted newcomers.
func (s *Service) SetMuteNewMembers(ctx context.Context, actorID, groupID int64, on bool) (*domain.GroupPolicy, error) {
	return s.update(ctx, actorID, groupID, map[string]any{"mute_new_members": on})
}

// SetMuteDuration sets how long manually admitted newcomers stay muted.
func (s *Service) SetMuteDuration(ctx context.Context, actorID, groupID int64, d time.Duration) (*domain.GroupPolicy, error) {
	if d < 0 {
		return nil, errors.New("settings: mute duration must not be negative")
	}
	return s.update(ctx, actorID, groupID, map[string]any{"mute_duration": d})
}

// SetPhotoFilterEnabled toggles image moderation.
func (s *Service) SetPhotoFilterEnabled(ctx context.Context, actorID, groupID int64, on bool) (*domain.GroupPolicy, error) {
	return s.update(ctx, actorID, groupID, map[string]any{"photo_filter_enabled": on})
}

// SetPhotoFilterMuteMinutes sets the mute length for photo violations;
// zero means the restriction does not expire.
func (s *Service) SetPhotoFilterMuteMinutes(ctx context.Context, actorID, groupID int64, minutes int) (*domain.GroupPolicy, error) {
	if minutes < 0 {
		return nil, errors.New("settings: mute minutes must not be negative")
	}
	return s.update(ctx, actorID, groupID, map[string]any{"photo_filter_mute_minutes": minutes})
}

// SetAdminsBypassFilter controls whether administrators skip the photo
// filter entirely.
func (s *Service) SetAdminsBypassFilter(ctx context.Context, actorID, groupID int64, bypass bool) (*domain.GroupPolicy, error) {
	return s.update(ctx, actorID, groupID, map[string]any{"admins_bypass_filter": bypass})
}

func (s *Service) update(ctx context.Context, actorID, groupID int64, fields map[string]any) (*domain.GroupPolicy, error) {
	if !s.Auth.IsAdmin(ctx, groupID, actorID) {
		return nil, ErrNotAdmin
	}
	return s.Policies.Upsert(ctx, groupID, fields)
}
