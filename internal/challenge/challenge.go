// Package challenge implements the puzzle engine used to screen join
// requests: generation of arithmetic and visual (distorted-image) puzzles,
// and verification of submitted answers against the server-held literal
// answer.
//
// Both puzzle kinds live behind one Engine with a tagged Kind instead of
// parallel code paths. The literal answer stays inside the Challenge value
// (and whatever record the caller persists); displayed options carry opaque
// correlation tokens only, so a client can never recover the answer from
// what it is shown.
package challenge

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind tags the puzzle variant.
type Kind string

const (
	// KindArithmetic is a plain-text "a op b = ?" puzzle answered by pressing
	// one of four displayed options.
	KindArithmetic Kind = "arithmetic"
	// KindVisual is a distorted PNG (digits, letters, or a small expression)
	// answered by typing the text.
	KindVisual Kind = "visual"
)

// Result is the outcome of verifying one submitted answer.
type Result int

const (
	// Correct: the submission matches the answer and the challenge is live.
	Correct Result = iota
	// Incorrect: the submission does not match; the caller decides whether
	// attempts remain.
	Incorrect
	// Expired: the challenge's deadline has passed. Always wins over a
	// matching submission.
	Expired
	// Exhausted: the attempt budget is spent; the caller must apply a
	// cool-down instead of verifying further submissions.
	Exhausted
)

// Option is one displayed interactive choice: a label plus the opaque token
// that correlates a press back to this challenge.
type Option struct {
	Label string
	Token string
}

// Challenge is a single outstanding puzzle. Owned exclusively by one
// membership request; re-issuing after a wrong answer replaces it wholesale.
type Challenge struct {
	Kind      Kind
	Prompt    string // user-facing text ("7 + 3 = ?"); empty for visual
	Answer    string // literal answer, server-side only
	Options   []Option
	Image     []byte // PNG bytes, visual only
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Engine generates and verifies challenges. Randomness comes from the
// math/rand/v2 package-level source, so one Engine is safe to share across
// the per-event goroutines that issue challenges concurrently. The zero
// value is not usable; construct with NewEngine.
type Engine struct {
	MaxAttempts int
}

// NewEngine returns an Engine with the given attempt budget.
func NewEngine(maxAttempts int) *Engine {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	return &Engine{MaxAttempts: maxAttempts}
}

// Issue generates a fresh puzzle of the given kind expiring after ttl.
func (e *Engine) Issue(kind Kind, ttl time.Duration) (*Challenge, error) {
	now := time.Now().UTC()
	var ch *Challenge
	var err error
	switch kind {
	case KindVisual:
		ch, err = e.newVisual()
	default:
		ch = e.newArithmetic()
	}
	if err != nil {
		return nil, err
	}
	ch.IssuedAt = now
	ch.ExpiresAt = now.Add(ttl)
	return ch, nil
}

// Verify checks a submitted answer. Expiry always wins: at or after
// ExpiresAt the result is Expired regardless of the comparison. attempts is
// the number of incorrect submissions already consumed; once it reaches the
// budget the engine refuses further verification with Exhausted.
func (e *Engine) Verify(ch *Challenge, attempts int, submitted string, now time.Time) Result {
	if !now.Before(ch.ExpiresAt) {
		return Expired
	}
	if attempts >= e.MaxAttempts {
		return Exhausted
	}
	if answersEqual(ch.Answer, submitted) {
		return Correct
	}
	return Incorrect
}

// answersEqual compares a submission against the stored answer: trimmed and
// case-insensitive, matching how the visual puzzle is typed by hand.
func answersEqual(answer, submitted string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(submitted))
}

// newToken mints the opaque correlation token attached to a displayed
// option. It carries no information about the answer.
func newToken() string { return uuid.NewString() }
