// Package coordinator owns the join-request verification state machine.
//
// A membership request moves Pending -> ChallengeIssued -> exactly one of
// Approved, Rejected, or Expired. The durable row in SQLite is the source of
// truth; Redis carries only the correlation state (token -> challenge,
// pair -> challenge) that makes option presses and typed answers routable.
// Losing the cache loses in-flight challenges, never decided outcomes.
//
// Terminal exclusivity between the answer path and the timeout task rests on
// repo.TransitionRequest: both race toward the same check-and-set, the loser
// abandons its side effects. Timeout tasks are plain sleep-then-run
// goroutines and fire unconditionally; the guard makes them idempotent.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/osokin/go-group-warden/internal/cache"
	"github.com/osokin/go-group-warden/internal/challenge"
	"github.com/osokin/go-group-warden/internal/config"
	"github.com/osokin/go-group-warden/internal/domain"
	"github.com/osokin/go-group-warden/internal/gateway"
	"github.com/osokin/go-group-warden/internal/notify"
	"github.com/osokin/go-group-warden/internal/policy"
	"github.com/osokin/go-group-warden/internal/ratelimit"
	"github.com/osokin/go-group-warden/internal/repo"
)

// correlationGrace keeps cache correlation entries alive slightly past the
// challenge deadline so a press racing the timeout resolves through the
// normal expired path instead of vanishing.
const correlationGrace = 30 * time.Second

// challengeState is the cached pair -> challenge correlation record.
type challengeState struct {
	RequestID string   `json:"request_id"`
	GroupID   int64    `json:"group_id"`
	UserID    int64    `json:"user_id"`
	Tokens    []string `json:"tokens,omitempty"`
}

// tokenState is the cached token -> challenge correlation record. Label is
// the option text the user pressed; the expected answer is never cached.
type tokenState struct {
	RequestID string `json:"request_id"`
	GroupID   int64  `json:"group_id"`
	UserID    int64  `json:"user_id"`
	Label     string `json:"label"`
}

// Coordinator drives challenge issuance and resolution for join requests.
type Coordinator struct {
	DB       *gorm.DB
	Cache    cache.Store
	Policies *policy.Repository
	Engine   *challenge.Engine
	Client   gateway.Client
	Limiter  *ratelimit.Limiter
	Sink     notify.Sink
	Timers   *Scheduler
	Cfg      config.ChallengeConfig
}

// HandleJoinRequest processes an incoming membership request: record the
// group and user, supersede any stale challenge for the pair, and issue a
// fresh puzzle unless verification is disabled or the user is cooling down.
func (c *Coordinator) HandleJoinRequest(ctx context.Context, ev gateway.JoinRequest) error {
	pol, err := c.Policies.Get(ctx, ev.GroupID)
	if err != nil {
		return fmt.Errorf("load policy for group %d: %w", ev.GroupID, err)
	}

	c.recordParticipants(ctx, ev)

	if !pol.ChallengeEnabled {
		log.Debug().Int64("group_id", ev.GroupID).Int64("user_id", ev.UserID).
			Msg("challenge disabled, join request left to admins")
		return nil
	}

	if limited, err := c.Limiter.Limited(ctx, ev.UserID); err != nil {
		log.Warn().Err(err).Int64("user_id", ev.UserID).Msg("rate limit check failed, allowing")
	} else if limited {
		remaining, _ := c.Limiter.Remaining(ctx, ev.UserID)
		c.sendBestEffort(ctx, gateway.Target{UserID: ev.UserID},
			fmt.Sprintf("Please wait %d seconds before requesting to join again.", int(remaining.Seconds())+1))
		return nil
	}

	c.cleanupPrior(ctx, ev.GroupID, ev.UserID)

	req, err := repo.CreateRequest(ctx, c.DB, ev.GroupID, ev.UserID, ev.UserDisplay)
	if err != nil {
		return fmt.Errorf("create membership request: %w", err)
	}
	return c.issue(ctx, pol, req, ev.UserDisplay)
}

// HandleAnswer resolves an interactive option press. The token is looked up
// in the cache; a miss means the challenge is gone (expired or superseded)
// and the press is answered with a gentle retry hint. A press by anyone
// other than the challenged user is ignored without consuming an attempt.
func (c *Coordinator) HandleAnswer(ctx context.Context, ev gateway.AnswerSubmitted) error {
	var ts tokenState
	if err := c.loadJSON(ctx, cache.TokenKey(ev.Token), &ts); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			c.sendBestEffort(ctx, gateway.Target{UserID: ev.UserID},
				"This challenge is no longer active. Please send a new join request.")
			return nil
		}
		return fmt.Errorf("resolve answer token: %w", err)
	}
	if ts.UserID != ev.UserID {
		log.Debug().Int64("user_id", ev.UserID).Int64("owner_id", ts.UserID).
			Msg("option pressed by a different user, ignored")
		return nil
	}
	return c.resolve(ctx, ts.RequestID, ts.Label)
}

// HandleTextAnswer resolves a typed answer from a private conversation. The
// sender is correlated to their live challenge by user ID; text from users
// with no outstanding challenge is ignored.
func (c *Coordinator) HandleTextAnswer(ctx context.Context, ev gateway.TextAnswer) error {
	var st challengeState
	if err := c.loadJSON(ctx, cache.UserChallengeKey(ev.UserID), &st); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil
		}
		return fmt.Errorf("resolve typed answer: %w", err)
	}
	return c.resolve(ctx, st.RequestID, ev.Text)
}

// resolve verifies one submission against the durable challenge state and
// drives the request to the matching outcome.
func (c *Coordinator) resolve(ctx context.Context, requestID, submitted string) error {
	req, err := repo.GetRequest(ctx, c.DB, requestID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load request %s: %w", requestID, err)
	}
	if req.Status != domain.StatusChallengeIssued {
		return nil
	}

	ch := &challenge.Challenge{
		Kind:      challenge.Kind(req.ChallengeKind),
		Prompt:    req.ChallengePrompt,
		Answer:    req.Answer,
		IssuedAt:  req.IssuedAt,
		ExpiresAt: req.ExpiresAt,
	}

	switch c.Engine.Verify(ch, req.AttemptCount, submitted, time.Now().UTC()) {
	case challenge.Correct:
		return c.approve(ctx, req)
	case challenge.Incorrect:
		if req.AttemptsLeft() > 1 {
			return c.reissue(ctx, req)
		}
		return c.reject(ctx, req)
	case challenge.Expired, challenge.Exhausted:
		return c.expireAnswered(ctx, req)
	}
	return nil
}

// approve admits the user. The terminal transition is claimed first so the
// pending timeout task becomes a no-op; if the platform then refuses the
// admission the claim is rolled back and the user is told to retry.
func (c *Coordinator) approve(ctx context.Context, req *domain.MembershipRequest) error {
	won, err := repo.TransitionRequest(ctx, c.DB, req.ID, domain.StatusChallengeIssued, domain.StatusApproved)
	if err != nil {
		return fmt.Errorf("transition request %s to approved: %w", req.ID, err)
	}
	if !won {
		answerRaces.Inc()
		return nil
	}

	if err := c.Client.ApproveJoinRequest(ctx, req.GroupID, req.UserID); err != nil {
		log.Error().Err(err).Str("request_id", req.ID).Int64("group_id", req.GroupID).
			Int64("user_id", req.UserID).Msg("platform refused join approval after correct answer")
		if rbErr := repo.UpdateRequestFields(ctx, c.DB, req.ID,
			map[string]any{"status": domain.StatusChallengeIssued}); rbErr != nil {
			log.Error().Err(rbErr).Str("request_id", req.ID).Msg("rollback of approval claim failed")
		}
		c.Sink.Emit(ctx, notify.KindReconcile, map[string]any{
			"request_id": req.ID, "group_id": req.GroupID, "user_id": req.UserID,
			"reason": "approve_failed",
		})
		c.sendBestEffort(ctx, c.answerSurface(req),
			"Correct! But admission could not be completed right now. Please try answering again in a moment.")
		return nil
	}

	challengeOutcomes.WithLabelValues("approved").Inc()
	c.cleanupChallengeMessage(ctx, req)
	c.clearCorrelation(ctx, req.GroupID, req.UserID)
	c.Sink.Emit(ctx, notify.KindChallengeSolved, map[string]any{
		"request_id": req.ID, "group_id": req.GroupID, "user_id": req.UserID,
		"attempts": req.AttemptCount + 1,
	})
	c.Sink.Emit(ctx, notify.KindMemberApproved, map[string]any{
		"group_id": req.GroupID, "user_id": req.UserID, "display": req.UserDisplay,
	})
	return nil
}

// reissue consumes an attempt and replaces the puzzle in place with fresh
// operands. The original deadline and its pending timeout task stand; only
// the content changes.
func (c *Coordinator) reissue(ctx context.Context, req *domain.MembershipRequest) error {
	remaining := time.Until(req.ExpiresAt)
	if remaining <= 0 {
		return c.expireAnswered(ctx, req)
	}

	ch, err := c.Engine.Issue(challenge.Kind(req.ChallengeKind), remaining)
	if err != nil {
		return fmt.Errorf("reissue challenge for request %s: %w", req.ID, err)
	}
	ch.IssuedAt, ch.ExpiresAt = req.IssuedAt, req.ExpiresAt

	attempts := req.AttemptCount + 1
	saved, err := repo.SaveChallenge(ctx, c.DB, req.ID, domain.StatusChallengeIssued, map[string]any{
		"challenge_prompt": ch.Prompt,
		"answer":           ch.Answer,
		"attempt_count":    attempts,
	})
	if err != nil {
		return fmt.Errorf("save reissued challenge: %w", err)
	}
	if !saved {
		// The timeout task claimed the row between verification and this
		// write; the terminal state stands.
		answerRaces.Inc()
		return nil
	}
	req.AttemptCount = attempts

	text := fmt.Sprintf("Wrong answer. %d attempt(s) left.\n\n%s",
		req.MaxAttempts-attempts, c.renderPrompt(ch))

	if ch.Kind == challenge.KindVisual || ch.Image != nil {
		// Images cannot be swapped by an edit; replace the message.
		ref, err := c.Client.SendMessage(ctx, c.answerSurface(req), text, gateway.SendOptions{Image: ch.Image})
		if err != nil {
			return fmt.Errorf("send reissued visual challenge: %w", err)
		}
		c.cleanupChallengeMessage(ctx, req)
		if err := repo.UpdateRequestFields(ctx, c.DB, req.ID,
			map[string]any{"challenge_msg_ref": string(ref)}); err != nil {
			log.Warn().Err(err).Str("request_id", req.ID).Msg("saving reissued message ref failed")
		}
		req.ChallengeMsgRef = string(ref)
	} else if err := c.Client.EditMessage(ctx, gateway.MessageRef(req.ChallengeMsgRef), text,
		gateway.SendOptions{Options: toGatewayOptions(ch.Options)}); err != nil {
		log.Warn().Err(err).Str("request_id", req.ID).Msg("editing challenge message failed")
	}

	c.storeCorrelation(ctx, req, ch, remaining+correlationGrace)
	return nil
}

// reject ends the request after the attempt budget is spent and starts the
// re-application cool-down.
func (c *Coordinator) reject(ctx context.Context, req *domain.MembershipRequest) error {
	won, err := repo.TransitionRequest(ctx, c.DB, req.ID, domain.StatusChallengeIssued, domain.StatusRejected)
	if err != nil {
		return fmt.Errorf("transition request %s to rejected: %w", req.ID, err)
	}
	if !won {
		answerRaces.Inc()
		return nil
	}
	if err := repo.UpdateRequestFields(ctx, c.DB, req.ID,
		map[string]any{"attempt_count": req.AttemptCount + 1}); err != nil {
		log.Warn().Err(err).Str("request_id", req.ID).Msg("recording final attempt failed")
	}

	challengeOutcomes.WithLabelValues("rejected").Inc()
	if err := c.Limiter.Limit(ctx, req.UserID, c.Cfg.Cooldown); err != nil {
		log.Warn().Err(err).Int64("user_id", req.UserID).Msg("starting cooldown failed")
	}
	c.cleanupChallengeMessage(ctx, req)
	c.clearCorrelation(ctx, req.GroupID, req.UserID)
	c.sendBestEffort(ctx, c.answerSurface(req),
		fmt.Sprintf("Verification failed. You can send a new join request in %d seconds.",
			int(c.Cfg.Cooldown.Seconds())))
	c.Sink.Emit(ctx, notify.KindChallengeFailed, map[string]any{
		"request_id": req.ID, "group_id": req.GroupID, "user_id": req.UserID,
	})
	c.Sink.Emit(ctx, notify.KindMemberRejected, map[string]any{
		"group_id": req.GroupID, "user_id": req.UserID, "display": req.UserDisplay,
	})
	return nil
}

// expireAnswered ends a request whose answer arrived past the deadline. No
// attempt is consumed, but the same cool-down as a failed verification
// applies before the user may re-apply.
func (c *Coordinator) expireAnswered(ctx context.Context, req *domain.MembershipRequest) error {
	won, err := repo.TransitionRequest(ctx, c.DB, req.ID, domain.StatusChallengeIssued, domain.StatusExpired)
	if err != nil {
		return fmt.Errorf("transition request %s to expired: %w", req.ID, err)
	}
	if !won {
		answerRaces.Inc()
		return nil
	}

	challengeOutcomes.WithLabelValues("expired").Inc()
	if err := c.Limiter.Limit(ctx, req.UserID, c.Cfg.Cooldown); err != nil {
		log.Warn().Err(err).Int64("user_id", req.UserID).Msg("starting cooldown failed")
	}
	c.cleanupChallengeMessage(ctx, req)
	c.clearCorrelation(ctx, req.GroupID, req.UserID)
	c.sendBestEffort(ctx, c.answerSurface(req),
		"Time is up for this challenge. Please send a new join request to try again.")
	c.Sink.Emit(ctx, notify.KindChallengeExpired, map[string]any{
		"request_id": req.ID, "group_id": req.GroupID, "user_id": req.UserID,
	})
	return nil
}

// expireTimedOut is the deadline task scheduled at issuance. It fires
// unconditionally; the check-and-set makes it a no-op when the request
// already resolved. The posted notice's reference is kept on the row so a
// later re-application can clean it up.
func (c *Coordinator) expireTimedOut(ctx context.Context, requestID string) {
	req, err := repo.GetRequest(ctx, c.DB, requestID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			log.Error().Err(err).Str("request_id", requestID).Msg("timeout task load failed")
		}
		return
	}
	if req.Status != domain.StatusChallengeIssued {
		return
	}

	won, err := repo.TransitionRequest(ctx, c.DB, requestID, domain.StatusChallengeIssued, domain.StatusExpired)
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("timeout transition failed")
		return
	}
	if !won {
		return
	}

	challengeOutcomes.WithLabelValues("expired").Inc()
	c.cleanupChallengeMessage(ctx, req)
	c.clearCorrelation(ctx, req.GroupID, req.UserID)

	ref, err := c.Client.SendMessage(ctx, c.answerSurface(req),
		"Time is up. Please send a new join request to try again.", gateway.SendOptions{})
	if err != nil {
		log.Warn().Err(err).Str("request_id", requestID).Msg("sending timeout notice failed")
	} else if err := repo.UpdateRequestFields(ctx, c.DB, requestID,
		map[string]any{"timeout_msg_ref": string(ref)}); err != nil {
		log.Warn().Err(err).Str("request_id", requestID).Msg("saving timeout notice ref failed")
	}

	c.Sink.Emit(ctx, notify.KindChallengeExpired, map[string]any{
		"request_id": requestID, "group_id": req.GroupID, "user_id": req.UserID,
	})
}

// issue generates a puzzle, persists it onto the request, delivers it, and
// arms the deadline task. The variant and deadline follow the group policy:
// the in-group flow uses interactive arithmetic, the private flow a typed
// visual puzzle with a longer window. When the private message cannot be
// delivered the flow degrades to an in-group arithmetic challenge.
func (c *Coordinator) issue(ctx context.Context, pol *domain.GroupPolicy, req *domain.MembershipRequest, display string) error {
	kind, ttl := challenge.KindArithmetic, c.Cfg.MessageTTL
	target := gateway.Target{GroupID: req.GroupID}
	if pol.ChallengeInPM {
		kind, ttl = challenge.KindVisual, c.Cfg.PMTTL
		target = gateway.Target{UserID: req.UserID}
	}

	ch, err := c.Engine.Issue(kind, ttl)
	if err != nil {
		return fmt.Errorf("generate challenge: %w", err)
	}

	text := c.greeting(ctx, req, display, ch)
	ref, err := c.Client.SendMessage(ctx, target, text, sendOptionsFor(ch))
	if err != nil && pol.ChallengeInPM {
		// The user likely never opened a private conversation. Fall back to
		// the in-group interactive flow.
		log.Warn().Err(err).Int64("user_id", req.UserID).Msg("private challenge undeliverable, falling back to group")
		kind, ttl = challenge.KindArithmetic, c.Cfg.MessageTTL
		target = gateway.Target{GroupID: req.GroupID}
		if ch, err = c.Engine.Issue(kind, ttl); err != nil {
			return fmt.Errorf("generate fallback challenge: %w", err)
		}
		text = c.greeting(ctx, req, display, ch)
		ref, err = c.Client.SendMessage(ctx, target, text, sendOptionsFor(ch))
	}
	if err != nil {
		return fmt.Errorf("deliver challenge: %w", err)
	}

	saved, err := repo.SaveChallenge(ctx, c.DB, req.ID, domain.StatusPending, map[string]any{
		"challenge_kind":    string(ch.Kind),
		"challenge_prompt":  ch.Prompt,
		"answer":            ch.Answer,
		"attempt_count":     0,
		"max_attempts":      c.Engine.MaxAttempts,
		"issued_at":         ch.IssuedAt,
		"expires_at":        ch.ExpiresAt,
		"challenge_msg_ref": string(ref),
	})
	if err != nil {
		return fmt.Errorf("persist challenge: %w", err)
	}
	if !saved {
		// A racing join request superseded this row while the puzzle was in
		// flight; drop the message just sent. The newer request owns the flow.
		c.deleteMessage(ctx, ref)
		return nil
	}
	req.Status = domain.StatusChallengeIssued
	req.ChallengeKind = string(ch.Kind)
	req.ChallengeMsgRef = string(ref)
	req.MaxAttempts = c.Engine.MaxAttempts
	req.IssuedAt, req.ExpiresAt = ch.IssuedAt, ch.ExpiresAt

	c.storeCorrelation(ctx, req, ch, ttl+correlationGrace)
	c.Timers.After(ttl, "challenge-timeout", func(ctx context.Context) {
		c.expireTimedOut(ctx, req.ID)
	})

	challengesIssued.WithLabelValues(string(ch.Kind)).Inc()
	c.Sink.Emit(ctx, notify.KindChallengeSent, map[string]any{
		"request_id": req.ID, "group_id": req.GroupID, "user_id": req.UserID,
		"kind": string(ch.Kind),
	})
	return nil
}

// cleanupPrior removes every artifact of earlier requests for the pair: the
// stale challenge message and cached correlation of a still-open request,
// and the timeout notice a previous expiry may have left behind.
func (c *Coordinator) cleanupPrior(ctx context.Context, groupID, userID int64) {
	if prior, err := repo.ActiveRequest(ctx, c.DB, groupID, userID); err == nil {
		c.cleanupChallengeMessage(ctx, prior)
		if _, err := repo.SupersedeActive(ctx, c.DB, groupID, userID); err != nil {
			log.Warn().Err(err).Int64("group_id", groupID).Int64("user_id", userID).
				Msg("superseding active request failed")
		}
	} else if !errors.Is(err, repo.ErrNotFound) {
		log.Warn().Err(err).Int64("group_id", groupID).Int64("user_id", userID).
			Msg("active request lookup failed")
	}

	if last, err := repo.LatestRequest(ctx, c.DB, groupID, userID); err == nil && last.TimeoutMsgRef != "" {
		c.deleteMessage(ctx, gateway.MessageRef(last.TimeoutMsgRef))
		if err := repo.UpdateRequestFields(ctx, c.DB, last.ID,
			map[string]any{"timeout_msg_ref": ""}); err != nil {
			log.Warn().Err(err).Str("request_id", last.ID).Msg("clearing timeout notice ref failed")
		}
	}

	c.clearCorrelation(ctx, groupID, userID)
}

// storeCorrelation writes the pair and token lookup records. Cache failures
// are logged, not fatal: a lost correlation only forces the user to
// re-request once the challenge times out.
func (c *Coordinator) storeCorrelation(ctx context.Context, req *domain.MembershipRequest, ch *challenge.Challenge, ttl time.Duration) {
	st := challengeState{RequestID: req.ID, GroupID: req.GroupID, UserID: req.UserID}
	for _, opt := range ch.Options {
		st.Tokens = append(st.Tokens, opt.Token)
		c.storeJSON(ctx, cache.TokenKey(opt.Token), tokenState{
			RequestID: req.ID, GroupID: req.GroupID, UserID: req.UserID, Label: opt.Label,
		}, ttl)
	}

	// Remove tokens of the puzzle this one replaces, if any.
	var old challengeState
	if err := c.loadJSON(ctx, cache.ChallengeKey(req.GroupID, req.UserID), &old); err == nil {
		for _, tok := range old.Tokens {
			if err := c.Cache.Delete(ctx, cache.TokenKey(tok)); err != nil {
				log.Warn().Err(err).Msg("deleting stale token failed")
			}
		}
	}

	c.storeJSON(ctx, cache.ChallengeKey(req.GroupID, req.UserID), st, ttl)
	if ch.Kind == challenge.KindVisual {
		c.storeJSON(ctx, cache.UserChallengeKey(req.UserID), st, ttl)
	}
}

// clearCorrelation drops every cached lookup record for the pair.
func (c *Coordinator) clearCorrelation(ctx context.Context, groupID, userID int64) {
	var st challengeState
	if err := c.loadJSON(ctx, cache.ChallengeKey(groupID, userID), &st); err == nil {
		for _, tok := range st.Tokens {
			if err := c.Cache.Delete(ctx, cache.TokenKey(tok)); err != nil {
				log.Warn().Err(err).Msg("deleting token correlation failed")
			}
		}
	}
	for _, key := range []string{cache.ChallengeKey(groupID, userID), cache.UserChallengeKey(userID)} {
		if err := c.Cache.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("deleting correlation failed")
		}
	}
}

// recordParticipants keeps the Group and GroupUser bookkeeping current.
// Failures here never block verification.
func (c *Coordinator) recordParticipants(ctx context.Context, ev gateway.JoinRequest) {
	title := ""
	if info, err := c.Client.GetChatInfo(ctx, ev.GroupID); err == nil {
		title = info.Title
	}
	if err := repo.EnsureGroup(ctx, c.DB, ev.GroupID, title, 0); err != nil {
		log.Warn().Err(err).Int64("group_id", ev.GroupID).Msg("group bookkeeping failed")
	}
	if err := repo.UpsertGroupUser(ctx, c.DB, ev.GroupID, ev.UserID, ev.Username, ev.UserDisplay); err != nil {
		log.Warn().Err(err).Int64("user_id", ev.UserID).Msg("user bookkeeping failed")
	}
}

// greeting renders the challenge message shown to the applicant.
func (c *Coordinator) greeting(ctx context.Context, req *domain.MembershipRequest, display string, ch *challenge.Challenge) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s! To join %s, please verify you are human.\n\n",
		orFallback(display, "there"), c.groupRef(ctx, req.GroupID))
	switch ch.Kind {
	case challenge.KindVisual:
		fmt.Fprintf(&b, "Type the text shown in the image. You have %d attempts and %s.",
			c.Engine.MaxAttempts, humanDuration(time.Until(ch.ExpiresAt)))
	default:
		fmt.Fprintf(&b, "Solve: %s\nPick the correct option below. You have %d attempts and %s.",
			ch.Prompt, c.Engine.MaxAttempts, humanDuration(time.Until(ch.ExpiresAt)))
	}
	return b.String()
}

// renderPrompt is the short prompt used when replacing a puzzle in place.
func (c *Coordinator) renderPrompt(ch *challenge.Challenge) string {
	if ch.Kind == challenge.KindVisual {
		return "Type the text shown in the new image."
	}
	return fmt.Sprintf("Solve: %s", ch.Prompt)
}

// groupRef renders a user-facing reference to the group: invite link, then
// public handle, then plain title. Platform lookup failures degrade to "the
// group".
func (c *Coordinator) groupRef(ctx context.Context, groupID int64) string {
	info, err := c.Client.GetChatInfo(ctx, groupID)
	if err != nil {
		log.Debug().Err(err).Int64("group_id", groupID).Msg("chat info lookup failed")
		return "the group"
	}
	switch {
	case info.InviteLink != "":
		return info.InviteLink
	case info.PublicHandle != "":
		return "@" + info.PublicHandle
	case info.Title != "":
		return info.Title
	}
	return "the group"
}

// answerSurface is where resolution notices for a request go: the private
// conversation for the typed flow, the group otherwise.
func (c *Coordinator) answerSurface(req *domain.MembershipRequest) gateway.Target {
	if challenge.Kind(req.ChallengeKind) == challenge.KindVisual {
		return gateway.Target{UserID: req.UserID}
	}
	return gateway.Target{GroupID: req.GroupID}
}

// cleanupChallengeMessage deletes the challenge message, treating an
// already-gone message as success.
func (c *Coordinator) cleanupChallengeMessage(ctx context.Context, req *domain.MembershipRequest) {
	if req.ChallengeMsgRef == "" {
		return
	}
	c.deleteMessage(ctx, gateway.MessageRef(req.ChallengeMsgRef))
}

func (c *Coordinator) deleteMessage(ctx context.Context, ref gateway.MessageRef) {
	if err := c.Client.DeleteMessage(ctx, ref); err != nil && !errors.Is(err, gateway.ErrMessageNotFound) {
		log.Warn().Err(err).Str("ref", string(ref)).Msg("deleting message failed")
	}
}

func (c *Coordinator) sendBestEffort(ctx context.Context, to gateway.Target, text string) {
	if _, err := c.Client.SendMessage(ctx, to, text, gateway.SendOptions{}); err != nil {
		log.Debug().Err(err).Msg("best-effort message undeliverable")
	}
}

func (c *Coordinator) storeJSON(ctx context.Context, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("marshal correlation failed")
		return
	}
	if err := c.Cache.Set(ctx, key, string(raw), ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("store correlation failed")
	}
}

func (c *Coordinator) loadJSON(ctx context.Context, key string, v any) error {
	raw, err := c.Cache.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		// Corrupt entry: drop it and report a miss.
		if delErr := c.Cache.Delete(ctx, key); delErr != nil {
			log.Warn().Err(delErr).Str("key", key).Msg("dropping corrupt correlation failed")
		}
		return cache.ErrMiss
	}
	return nil
}

func sendOptionsFor(ch *challenge.Challenge) gateway.SendOptions {
	return gateway.SendOptions{Options: toGatewayOptions(ch.Options), Image: ch.Image}
}

func toGatewayOptions(opts []challenge.Option) []gateway.Option {
	if len(opts) == 0 {
		return nil
	}
	out := make([]gateway.Option, len(opts))
	for i, o := range opts {
		out[i] = gateway.Option{Label: o.Label, Token: o.Token}
	}
	return out
}

func orFallback(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func humanDuration(d time.Duration) string {
	if d >= time.Minute {
		return fmt.Sprintf("%d minutes", int(d.Round(time.Minute).Minutes()))
	}
	return fmt.Sprintf("%d seconds", int(d.Seconds()))
}
