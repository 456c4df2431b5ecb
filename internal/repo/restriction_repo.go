// Restriction audit log.
//
// RestrictionRecord rows are append-only: written once when a mute is
// applied, never mutated, read only for audit/history. The durable store's
// write atomicity is the only synchronization they need.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/osokin/go-group-warden/internal/domain"
)

// AppendRestriction writes one audit row for an applied mute.
func AppendRestriction(ctx context.Context, db *gorm.DB, rec *domain.RestrictionRecord) error {
	return db.WithContext(ctx).Create(rec).Error
}

// ListRestrictions returns the audit history for a group, newest first.
func ListRestrictions(ctx context.Context, db *gorm.DB, groupID int64, limit int) ([]domain.RestrictionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []domain.RestrictionRecord
	err := db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}
