package repo

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/osokin/go-group-warden/internal/domain"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestCreateAndActiveRequest(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	r, err := CreateRequest(ctx, db, 100, 7, "Alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.ID == "" || r.Status != domain.StatusPending {
		t.Fatalf("unexpected request %+v", r)
	}

	got, err := ActiveRequest(ctx, db, 100, 7)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if got.ID != r.ID {
		t.Fatalf("active = %s, want %s", got.ID, r.ID)
	}

	if _, err := ActiveRequest(ctx, db, 100, 8); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown pair: err = %v, want ErrNotFound", err)
	}
}

func TestSupersedeActiveExpiresOpenRequests(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	first, _ := CreateRequest(ctx, db, 100, 7, "Alice")
	n, err := SupersedeActive(ctx, db, 100, 7)
	if err != nil || n != 1 {
		t.Fatalf("supersede: n=%d err=%v", n, err)
	}

	got, err := GetRequest(ctx, db, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusExpired {
		t.Fatalf("status = %s, want expired", got.Status)
	}
	if _, err := ActiveRequest(ctx, db, 100, 7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no active request, err = %v", err)
	}
}

func TestTransitionRequestIsWonExactlyOnce(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	r, _ := CreateRequest(ctx, db, 100, 7, "Alice")
	if saved, err := SaveChallenge(ctx, db, r.ID, domain.StatusPending, map[string]any{"answer": "10"}); err != nil || !saved {
		t.Fatalf("save challenge: saved=%v err=%v", saved, err)
	}

	won, err := TransitionRequest(ctx, db, r.ID, domain.StatusChallengeIssued, domain.StatusApproved)
	if err != nil || !won {
		t.Fatalf("first transition: won=%v err=%v", won, err)
	}

	// The competing path must observe the request as already resolved.
	won, err = TransitionRequest(ctx, db, r.ID, domain.StatusChallengeIssued, domain.StatusExpired)
	if err != nil {
		t.Fatalf("second transition: %v", err)
	}
	if won {
		t.Fatal("terminal transition won twice")
	}

	got, _ := GetRequest(ctx, db, r.ID)
	if got.Status != domain.StatusApproved {
		t.Fatalf("status = %s, want approved", got.Status)
	}
}

func TestSaveChallengeMovesToChallengeIssued(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	r, _ := CreateRequest(ctx, db, 100, 7, "Alice")
	now := time.Now().UTC().Truncate(time.Second)
	saved, err := SaveChallenge(ctx, db, r.ID, domain.StatusPending, map[string]any{
		"challenge_kind":   "arithmetic",
		"challenge_prompt": "7 + 3 = ?",
		"answer":           "10",
		"attempt_count":    0,
		"max_attempts":     3,
		"issued_at":        now,
		"expires_at":       now.Add(70 * time.Second),
	})
	if err != nil || !saved {
		t.Fatalf("save: saved=%v err=%v", saved, err)
	}

	got, _ := GetRequest(ctx, db, r.ID)
	if got.Status != domain.StatusChallengeIssued {
		t.Fatalf("status = %s", got.Status)
	}
	if got.Answer != "10" || got.ChallengePrompt != "7 + 3 = ?" || got.MaxAttempts != 3 {
		t.Fatalf("challenge fields not persisted: %+v", got)
	}
	if got.AttemptsLeft() != 3 {
		t.Fatalf("attempts left = %d", got.AttemptsLeft())
	}
}

func TestSaveChallengeCannotReanimateTerminalRow(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	r, _ := CreateRequest(ctx, db, 100, 7, "Alice")
	if saved, err := SaveChallenge(ctx, db, r.ID, domain.StatusPending, map[string]any{"answer": "10"}); err != nil || !saved {
		t.Fatalf("initial save: saved=%v err=%v", saved, err)
	}

	// The timeout task wins its check-and-set first.
	won, err := TransitionRequest(ctx, db, r.ID, domain.StatusChallengeIssued, domain.StatusExpired)
	if err != nil || !won {
		t.Fatalf("expire: won=%v err=%v", won, err)
	}

	// A re-issue writing against the stale ChallengeIssued snapshot must lose.
	saved, err := SaveChallenge(ctx, db, r.ID, domain.StatusChallengeIssued, map[string]any{
		"answer": "12", "attempt_count": 1,
	})
	if err != nil {
		t.Fatalf("reissue save: %v", err)
	}
	if saved {
		t.Fatal("save against a terminal row reported as won")
	}

	got, _ := GetRequest(ctx, db, r.ID)
	if got.Status != domain.StatusExpired {
		t.Fatalf("status = %s, want expired", got.Status)
	}
	if got.Answer != "10" || got.AttemptCount != 0 {
		t.Fatalf("terminal row mutated: %+v", got)
	}
}

func TestLatestRequestSeesTerminalRows(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	r1, _ := CreateRequest(ctx, db, 100, 7, "Alice")
	if _, err := SupersedeActive(ctx, db, 100, 7); err != nil {
		t.Fatalf("supersede: %v", err)
	}
	if err := UpdateRequestFields(ctx, db, r1.ID, map[string]any{"timeout_msg_ref": "100:55"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := LatestRequest(ctx, db, 100, 7)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.ID != r1.ID || got.TimeoutMsgRef != "100:55" {
		t.Fatalf("latest = %+v", got)
	}

	if _, err := LatestRequest(ctx, db, 999, 7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown pair: err = %v", err)
	}
}
