// Group, member, and admin bookkeeping.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/osokin/go-group-warden/internal/domain"
)

// EnsureGroup creates the group row if it does not exist and refreshes the
// title when it does. Lazy creation keeps join handling free of a
// provisioning step.
func EnsureGroup(ctx context.Context, db *gorm.DB, groupID int64, title string, creatorID int64) error {
	var g domain.Group
	err := db.WithContext(ctx).Where("id = ?", groupID).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		g = domain.Group{ID: groupID, Title: title, CreatorUserID: creatorID}
		return db.WithContext(ctx).Create(&g).Error
	}
	if err != nil {
		return err
	}
	if title != "" && title != g.Title {
		return db.WithContext(ctx).Model(&g).Update("title", title).Error
	}
	return nil
}

// UpsertGroupUser records (or refreshes) a user seen in a group.
func UpsertGroupUser(ctx context.Context, db *gorm.DB, groupID, userID int64, username, display string) error {
	now := time.Now().UTC()
	var u domain.GroupUser
	err := db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		u = domain.GroupUser{
			GroupID:      groupID,
			UserID:       userID,
			Username:     username,
			DisplayName:  display,
			JoinedAt:     now,
			LastActivity: now,
		}
		return db.WithContext(ctx).Create(&u).Error
	}
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Model(&u).Updates(map[string]any{
		"username":      username,
		"display_name":  display,
		"last_activity": now,
	}).Error
}

// IsRecordedAdmin reports whether an admin fact is already memoized for the
// pair, checking the group creator first.
func IsRecordedAdmin(ctx context.Context, db *gorm.DB, groupID, userID int64) (bool, error) {
	var g domain.Group
	err := db.WithContext(ctx).Where("id = ?", groupID).First(&g).Error
	if err == nil && g.CreatorUserID == userID {
		return true, nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	var n int64
	err = db.WithContext(ctx).Model(&domain.GroupAdmin{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&n).Error
	return n > 0, err
}

// MemoizeAdmin records an admin fact learned from a live platform lookup.
// Duplicate inserts are tolerated.
func MemoizeAdmin(ctx context.Context, db *gorm.DB, groupID, userID int64) error {
	var n int64
	if err := db.WithContext(ctx).Model(&domain.GroupAdmin{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&domain.GroupAdmin{GroupID: groupID, UserID: userID}).Error
}
