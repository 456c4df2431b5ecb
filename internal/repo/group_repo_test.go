package repo

import (
	"context"
	"testing"
	"time"

	"github.com/osokin/go-group-warden/internal/domain"
)

func TestEnsureGroupCreatesAndRefreshesTitle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := EnsureGroup(ctx, db, 100, "Gophers", 7); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	var g domain.Group
	if err := db.Where("id = ?", int64(100)).First(&g).Error; err != nil {
		t.Fatalf("read: %v", err)
	}
	if g.Title != "Gophers" || g.CreatorUserID != 7 {
		t.Fatalf("group = %+v", g)
	}

	if err := EnsureGroup(ctx, db, 100, "Gophers v2", 0); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	db.Where("id = ?", int64(100)).First(&g)
	if g.Title != "Gophers v2" {
		t.Fatalf("title not refreshed: %q", g.Title)
	}
	if g.CreatorUserID != 7 {
		t.Fatalf("creator overwritten: %d", g.CreatorUserID)
	}
}

func TestUpsertGroupUserRefreshesActivity(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := UpsertGroupUser(ctx, db, 100, 7, "alice", "Alice"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	var u domain.GroupUser
	db.Where("group_id = ? AND user_id = ?", int64(100), int64(7)).First(&u)
	joined := u.JoinedAt

	time.Sleep(5 * time.Millisecond)
	if err := UpsertGroupUser(ctx, db, 100, 7, "alice2", "Alice B"); err != nil {
		t.Fatalf("update: %v", err)
	}
	db.Where("group_id = ? AND user_id = ?", int64(100), int64(7)).First(&u)
	if u.Username != "alice2" || u.DisplayName != "Alice B" {
		t.Fatalf("fields not refreshed: %+v", u)
	}
	if !u.JoinedAt.Equal(joined) {
		t.Fatalf("joined_at changed: %v vs %v", u.JoinedAt, joined)
	}
	if !u.LastActivity.After(joined) {
		t.Fatalf("last_activity not advanced: %v", u.LastActivity)
	}
}

func TestAdminMemoization(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := EnsureGroup(ctx, db, 100, "Gophers", 7); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	// The creator is always an admin, no memo row needed.
	ok, err := IsRecordedAdmin(ctx, db, 100, 7)
	if err != nil || !ok {
		t.Fatalf("creator: ok=%v err=%v", ok, err)
	}

	ok, _ = IsRecordedAdmin(ctx, db, 100, 8)
	if ok {
		t.Fatal("unknown user recorded as admin")
	}

	if err := MemoizeAdmin(ctx, db, 100, 8); err != nil {
		t.Fatalf("memoize: %v", err)
	}
	// A duplicate memoization is a no-op.
	if err := MemoizeAdmin(ctx, db, 100, 8); err != nil {
		t.Fatalf("repeat memoize: %v", err)
	}

	ok, _ = IsRecordedAdmin(ctx, db, 100, 8)
	if !ok {
		t.Fatal("memoized admin not recorded")
	}

	var n int64
	db.Model(&domain.GroupAdmin{}).Where("group_id = ? AND user_id = ?", int64(100), int64(8)).Count(&n)
	if n != 1 {
		t.Fatalf("memo rows = %d, want 1", n)
	}
}

func TestRestrictionsListNewestFirst(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := AppendRestriction(ctx, db, &domain.RestrictionRecord{
			GroupID:   100,
			UserID:    int64(i),
			Type:      "photo_filter",
			Reason:    "test",
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	recs, err := ListRestrictions(ctx, db, 100, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2", len(recs))
	}
	if recs[0].UserID != 2 || recs[1].UserID != 1 {
		t.Fatalf("not newest first: %d, %d", recs[0].UserID, recs[1].UserID)
	}
}
