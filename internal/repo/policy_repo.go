// Group policy persistence.
//
// GroupPolicy rows are the authoritative copy of per-group configuration.
// Creation is lazy: GetPolicy materializes a defaults row (every feature
// disabled) on first reference so no provisioning step is required.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/osokin/go-group-warden/internal/domain"
)

// GetPolicy fetches the policy for a group, creating a disabled-defaults row
// when none exists yet.
func GetPolicy(ctx context.Context, db *gorm.DB, groupID int64) (*domain.GroupPolicy, error) {
	var p domain.GroupPolicy
	err := db.WithContext(ctx).Where("group_id = ?", groupID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		p = domain.GroupPolicy{GroupID: groupID, CreatedAt: time.Now().UTC()}
		if cerr := db.WithContext(ctx).Create(&p).Error; cerr != nil {
			return nil, cerr
		}
		return &p, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertPolicy applies a partial field update, creating the row first when
// missing. Field names are GORM column names.
func UpsertPolicy(ctx context.Context, db *gorm.DB, groupID int64, fields map[string]any) (*domain.GroupPolicy, error) {
	if _, err := GetPolicy(ctx, db, groupID); err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		err := db.WithContext(ctx).Model(&domain.GroupPolicy{}).
			Where("group_id = ?", groupID).
			Updates(fields).Error
		if err != nil {
			return nil, err
		}
	}
	var p domain.GroupPolicy
	if err := db.WithContext(ctx).Where("group_id = ?", groupID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}
