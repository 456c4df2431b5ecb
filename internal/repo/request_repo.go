// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for membership
// requests, including the check-and-set status transition the coordinator
// relies on for terminal-state exclusivity.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a request is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound).
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/osokin/go-group-warden/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist. It aliases
// gorm.ErrRecordNotFound for consistency across the service layer.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateRequest inserts a fresh MembershipRequest in Pending state for the
// pair. The request ID is a randomly generated UUID.
func CreateRequest(ctx context.Context, db *gorm.DB, groupID, userID int64, display string) (*domain.MembershipRequest, error) {
	r := &domain.MembershipRequest{
		ID:          uuid.NewString(),
		GroupID:     groupID,
		UserID:      userID,
		UserDisplay: display,
		Status:      domain.StatusPending,
		RequestedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// ActiveRequest fetches the single non-terminal request for the pair, or
// ErrNotFound when every prior request already resolved.
func ActiveRequest(ctx context.Context, db *gorm.DB, groupID, userID int64) (*domain.MembershipRequest, error) {
	var r domain.MembershipRequest
	err := db.WithContext(ctx).
		Where("group_id = ? AND user_id = ? AND status IN ?", groupID, userID,
			[]domain.RequestStatus{domain.StatusPending, domain.StatusChallengeIssued}).
		Order("created_at DESC").
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// LatestRequest fetches the newest request for the pair regardless of
// status, or ErrNotFound when the user never applied. Used to clean up
// leftover timeout notices when a user applies again.
func LatestRequest(ctx context.Context, db *gorm.DB, groupID, userID int64) (*domain.MembershipRequest, error) {
	var r domain.MembershipRequest
	err := db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Order("created_at DESC").
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRequest fetches a request by ID.
func GetRequest(ctx context.Context, db *gorm.DB, id string) (*domain.MembershipRequest, error) {
	var r domain.MembershipRequest
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// SupersedeActive marks every non-terminal request for the pair Expired.
// Used when a fresh join request arrives so that at most one active row
// exists per pair. Returns the number of rows superseded.
func SupersedeActive(ctx context.Context, db *gorm.DB, groupID, userID int64) (int64, error) {
	res := db.WithContext(ctx).Model(&domain.MembershipRequest{}).
		Where("group_id = ? AND user_id = ? AND status IN ?", groupID, userID,
			[]domain.RequestStatus{domain.StatusPending, domain.StatusChallengeIssued}).
		Update("status", domain.StatusExpired)
	return res.RowsAffected, res.Error
}

// TransitionRequest performs the atomic check-and-set that guards terminal
// transitions: the status moves from "from" to "to" only if it is still
// "from". The boolean reports whether this caller won the transition; a false
// result with a nil error means another path (answer vs. timeout) got there
// first and the caller must treat its own side effects as a no-op.
func TransitionRequest(ctx context.Context, db *gorm.DB, id string, from, to domain.RequestStatus) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.MembershipRequest{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SaveChallenge writes challenge state onto the request and moves it to
// ChallengeIssued, but only while the row still holds the expected status.
// Re-issuing after a wrong answer overwrites the previous puzzle in place
// with from = ChallengeIssued; the condition keeps the write from
// reanimating a row the timeout task has already driven terminal. The
// boolean mirrors TransitionRequest: false means another path resolved the
// request first and the new puzzle must be abandoned.
func SaveChallenge(ctx context.Context, db *gorm.DB, id string, from domain.RequestStatus, fields map[string]any) (bool, error) {
	fields["status"] = domain.StatusChallengeIssued
	res := db.WithContext(ctx).Model(&domain.MembershipRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateRequestFields applies a partial update to a request row.
func UpdateRequestFields(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	return db.WithContext(ctx).Model(&domain.MembershipRequest{}).
		Where("id = ?", id).
		Updates(fields).Error
}
