package moderation

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/osokin/go-group-warden/internal/domain"
	"github.com/osokin/go-group-warden/internal/gateway"
	"github.com/osokin/go-group-warden/internal/notify"
	"github.com/osokin/go-group-warden/internal/repo"
)

// HandleMembershipChange applies the entry mute: when a group has
// mute_new_members set, anyone who transitions from outside the group to a
// plain member starts muted. A zero mute duration means the mute does not
// expire and an admin lifts it by hand.
func (p *Pipeline) HandleMembershipChange(ctx context.Context, ev gateway.MembershipChange) error {
	if !entered(ev.OldStatus, ev.NewStatus) {
		return nil
	}

	if err := repo.UpsertGroupUser(ctx, p.DB, ev.GroupID, ev.UserID, ev.Username, ""); err != nil {
		log.Warn().Err(err).Int64("user_id", ev.UserID).Msg("member bookkeeping failed")
	}

	pol, err := p.Policies.Get(ctx, ev.GroupID)
	if err != nil {
		return err
	}
	if !pol.MuteNewMembers {
		return nil
	}

	var until time.Time
	if pol.MuteDuration > 0 {
		until = time.Now().UTC().Add(pol.MuteDuration)
	}
	if err := p.Client.RestrictMember(ctx, ev.GroupID, ev.UserID, gateway.Permissions{}, until); err != nil {
		log.Error().Err(err).Int64("group_id", ev.GroupID).Int64("user_id", ev.UserID).
			Msg("muting new member failed")
		return err
	}

	if err := repo.AppendRestriction(ctx, p.DB, &domain.RestrictionRecord{
		GroupID:   ev.GroupID,
		UserID:    ev.UserID,
		Type:      "new_member_mute",
		Reason:    "entry mute per group policy",
		ExpiresAt: until,
	}); err != nil {
		log.Error().Err(err).Int64("user_id", ev.UserID).Msg("recording restriction failed")
	}

	p.Sink.Emit(ctx, notify.KindMemberMuted, map[string]any{
		"group_id": ev.GroupID, "user_id": ev.UserID, "reason": "new_member",
	})
	return nil
}

// entered reports a transition from outside the group into plain membership.
// Promotions (member to admin) and restriction changes are not entries.
func entered(old, now gateway.MemberStatus) bool {
	wasOut := old == gateway.MemberLeft || old == gateway.MemberKicked || old == ""
	return wasOut && now == gateway.MemberMember
}
