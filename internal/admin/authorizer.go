// Package admin answers "may this user change this group's settings?". An
// admin fact comes from one of three places, checked cheapest-first: the
// recorded group creator, a memoized GroupAdmin row, or a live platform
// lookup whose positive result is memoized for next time.
package admin

import (
	"context"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/osokin/go-group-warden/internal/gateway"
	"github.com/osokin/go-group-warden/internal/repo"
)

// Authorizer gates every settings-mutation operation.
type Authorizer struct {
	DB     *gorm.DB
	Client gateway.Client
}

// NewAuthorizer constructs an Authorizer.
func NewAuthorizer(db *gorm.DB, client gateway.Client) *Authorizer {
	return &Authorizer{DB: db, Client: client}
}

// IsAdmin reports whether the user holds administrative rights over the
// group. A platform lookup failure is treated as "not an admin": the check
// degrades to denial, never to a system error.
func (a *Authorizer) IsAdmin(ctx context.Context, groupID, userID int64) bool {
	recorded, err := repo.IsRecordedAdmin(ctx, a.DB, groupID, userID)
	if err != nil {
		log.Error().Err(err).Int64("group_id", groupID).Int64("user_id", userID).
			Msg("admin record lookup failed")
	} else if recorded {
		return true
	}

	member, err := a.Client.GetChatMember(ctx, groupID, userID)
	if err != nil {
		log.Warn().Err(err).Int64("group_id", groupID).Int64("user_id", userID).
			Msg("live admin lookup failed, denying")
		return false
	}
	if !member.Status.Admin() {
		return false
	}

	if err := repo.MemoizeAdmin(ctx, a.DB, groupID, userID); err != nil {
		log.Warn().Err(err).Int64("group_id", groupID).Int64("user_id", userID).
			Msg("admin memoization failed")
	}
	return true
}
