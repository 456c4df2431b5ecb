// Package moderation filters inbound photos and applies group entry mutes.
//
// The photo pipeline is detection first, enforcement second. Detection runs
// the cheap checks before the expensive ones: caption denylist, then image
// classification, then optional OCR over text embedded in the image.
// Enforcement is a best-effort sequence of independent steps (remove, mute,
// record, notice); a failed step is logged with its own message and never
// blocks the remaining steps.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/osokin/go-group-warden/internal/domain"
	"github.com/osokin/go-group-warden/internal/gateway"
	"github.com/osokin/go-group-warden/internal/notify"
	"github.com/osokin/go-group-warden/internal/policy"
	"github.com/osokin/go-group-warden/internal/repo"
	"github.com/osokin/go-group-warden/internal/vision"
)

var photosFlagged = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "warden_photos_flagged_total",
		Help: "Photos removed by the moderation pipeline, by detection source.",
	},
	[]string{"source"},
)

func init() { prometheus.MustRegister(photosFlagged) }

// Authorizer answers whether a user administers a group.
type Authorizer interface {
	IsAdmin(ctx context.Context, groupID, userID int64) bool
}

// Delayer schedules a handler to run once after a delay.
type Delayer interface {
	After(d time.Duration, name string, fn func(ctx context.Context))
}

// Pipeline inspects photos posted to groups and enforces the group's photo
// policy.
type Pipeline struct {
	DB         *gorm.DB
	Policies   *policy.Repository
	Client     gateway.Client
	Fetcher    gateway.ImageFetcher
	Classifier vision.Classifier
	Auth       Authorizer
	Sink       notify.Sink
	Timers     Delayer
	Denylist   *Denylist

	// Threshold is the minimum classifier confidence for a tag to count.
	Threshold float64
	// OCR enables text extraction as a detection sub-check.
	OCR bool
	// NoticeTTL is how long the in-group removal notice stays up.
	NoticeTTL time.Duration
}

// verdict is one positive detection result.
type verdict struct {
	source string // "caption", "tag", or "ocr"
	term   string
}

// HandleImage runs the full detect-then-enforce flow for one posted photo.
func (p *Pipeline) HandleImage(ctx context.Context, ev gateway.ImageMessage) error {
	pol, err := p.Policies.Get(ctx, ev.GroupID)
	if err != nil {
		return fmt.Errorf("load policy for group %d: %w", ev.GroupID, err)
	}
	if !pol.PhotoFilterEnabled {
		return nil
	}
	if pol.AdminsBypassFilter && p.Auth.IsAdmin(ctx, ev.GroupID, ev.UserID) {
		return nil
	}

	v, err := p.detect(ctx, ev)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}

	log.Info().Int64("group_id", ev.GroupID).Int64("user_id", ev.UserID).
		Str("source", v.source).Str("term", v.term).Msg("photo flagged")
	photosFlagged.WithLabelValues(v.source).Inc()
	p.enforce(ctx, pol, ev, v)
	return nil
}

// detect returns the first positive verdict, or nil when the photo is clean.
// Caption matching needs no network call and runs first; classification and
// OCR share one image download.
func (p *Pipeline) detect(ctx context.Context, ev gateway.ImageMessage) (*verdict, error) {
	if term := p.Denylist.Match(ev.Caption); term != "" {
		return &verdict{source: "caption", term: term}, nil
	}

	image, err := p.Fetcher.FetchImage(ctx, ev.ImageRef)
	if err != nil {
		return nil, fmt.Errorf("fetch image %s: %w", ev.ImageRef, err)
	}

	tags, err := p.Classifier.ClassifyImage(ctx, image)
	if err != nil {
		// Classifier outages degrade to caption-and-OCR-only moderation.
		log.Error().Err(err).Int64("group_id", ev.GroupID).Msg("image classification failed")
	} else {
		for _, t := range tags {
			if t.Confidence < p.Threshold {
				continue
			}
			if term := MatchTag(t.Name); term != "" {
				return &verdict{source: "tag", term: term}, nil
			}
		}
	}

	if p.OCR {
		text, err := p.Classifier.ExtractText(ctx, image)
		if err != nil {
			log.Error().Err(err).Int64("group_id", ev.GroupID).Msg("image text extraction failed")
		} else if term := p.Denylist.Match(text); term != "" {
			return &verdict{source: "ocr", term: term}, nil
		}
	}
	return nil, nil
}

// enforce removes the photo, mutes the sender per policy, records the
// restriction, and posts a short-lived notice. Every step reports its own
// failure and the rest proceed regardless.
func (p *Pipeline) enforce(ctx context.Context, pol *domain.GroupPolicy, ev gateway.ImageMessage, v *verdict) {
	if err := p.Client.DeleteMessage(ctx, ev.Ref); err != nil && !errors.Is(err, gateway.ErrMessageNotFound) {
		log.Error().Err(err).Str("ref", string(ev.Ref)).Msg("removing flagged photo failed")
	}

	var until time.Time
	if pol.PhotoFilterMuteMinutes > 0 {
		until = time.Now().UTC().Add(time.Duration(pol.PhotoFilterMuteMinutes) * time.Minute)
	}
	if err := p.Client.RestrictMember(ctx, ev.GroupID, ev.UserID, gateway.Permissions{}, until); err != nil {
		log.Error().Err(err).Int64("group_id", ev.GroupID).Int64("user_id", ev.UserID).
			Msg("muting sender of flagged photo failed")
	}

	if err := repo.AppendRestriction(ctx, p.DB, &domain.RestrictionRecord{
		GroupID:   ev.GroupID,
		UserID:    ev.UserID,
		Type:      "photo_filter",
		Reason:    fmt.Sprintf("%s match: %s", v.source, v.term),
		ExpiresAt: until,
	}); err != nil {
		log.Error().Err(err).Int64("user_id", ev.UserID).Msg("recording restriction failed")
	}

	p.postNotice(ctx, pol, ev)

	p.Sink.Emit(ctx, notify.KindPhotoRemoved, map[string]any{
		"group_id": ev.GroupID, "user_id": ev.UserID, "source": v.source, "term": v.term,
	})
	p.Sink.Emit(ctx, notify.KindMemberMuted, map[string]any{
		"group_id": ev.GroupID, "user_id": ev.UserID, "minutes": pol.PhotoFilterMuteMinutes,
	})
}

// postNotice puts a short explanation in the group and schedules its own
// removal so the channel does not fill with moderation chatter.
func (p *Pipeline) postNotice(ctx context.Context, pol *domain.GroupPolicy, ev gateway.ImageMessage) {
	who := ev.Display
	if who == "" {
		who = "a member"
	}
	text := fmt.Sprintf("Removed a photo from %s and muted them permanently.", who)
	if pol.PhotoFilterMuteMinutes > 0 {
		text = fmt.Sprintf("Removed a photo from %s and muted them for %d minutes.",
			who, pol.PhotoFilterMuteMinutes)
	}

	ref, err := p.Client.SendMessage(ctx, gateway.Target{GroupID: ev.GroupID}, text, gateway.SendOptions{})
	if err != nil {
		log.Warn().Err(err).Int64("group_id", ev.GroupID).Msg("posting removal notice failed")
		return
	}
	p.Timers.After(p.NoticeTTL, "notice-cleanup", func(ctx context.Context) {
		if err := p.Client.DeleteMessage(ctx, ref); err != nil && !errors.Is(err, gateway.ErrMessageNotFound) {
			log.Warn().Err(err).Str("ref", string(ref)).Msg("removing notice failed")
		}
	})
}
