// Slash-command front end for policy administration. Commands arrive from
// group chats; unknown command names are ignored silently since other bots
// in the same group receive the identical stream.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/osokin/go-group-warden/internal/domain"
	"github.com/osokin/go-group-warden/internal/gateway"
)

// Handler routes admin commands onto the settings service.
type Handler struct {
	Service *Service
	Client  gateway.Client
}

// NewHandler constructs a Handler.
func NewHandler(s *Service, c gateway.Client) *Handler {
	return &Handler{Service: s, Client: c}
}

// HandleCommand executes one slash command and replies in the group.
func (h *Handler) HandleCommand(ctx context.Context, ev gateway.Command) error {
	reply, err := h.execute(ctx, ev)
	if errors.Is(err, ErrNotAdmin) {
		reply = "Only group administrators can change these settings."
		err = nil
	}
	if err != nil {
		return err
	}
	if reply == "" {
		return nil
	}
	if _, err := h.Client.SendMessage(ctx, gateway.Target{GroupID: ev.GroupID}, reply, gateway.SendOptions{}); err != nil {
		log.Warn().Err(err).Int64("group_id", ev.GroupID).Str("command", ev.Name).
			Msg("command reply undeliverable")
	}
	return nil
}

// execute returns the reply text; empty means no response at all.
func (h *Handler) execute(ctx context.Context, ev gateway.Command) (string, error) {
	switch ev.Name {
	case "warden":
		pol, err := h.Service.Get(ctx, ev.GroupID)
		if err != nil {
			return "", err
		}
		return renderPolicy(pol), nil

	case "challenge":
		return h.toggle(ctx, ev, "Join challenge", h.Service.SetChallengeEnabled)
	case "challenge_pm":
		return h.toggle(ctx, ev, "Private-message challenge delivery", h.Service.SetChallengeInPM)
	case "mute_new":
		return h.toggle(ctx, ev, "Muting of new members", h.Service.SetMuteNewMembers)
	case "photofilter":
		return h.toggle(ctx, ev, "Photo filter", h.Service.SetPhotoFilterEnabled)
	case "photofilter_bypass":
		return h.toggle(ctx, ev, "Admin bypass for the photo filter", h.Service.SetAdminsBypassFilter)

	case "mute_duration":
		if len(ev.Args) != 1 {
			return "Usage: /mute_duration <duration, e.g. 24h, or 0 for no expiry>", nil
		}
		d, err := parseMuteDuration(ev.Args[0])
		if err != nil {
			return "Usage: /mute_duration <duration, e.g. 24h, or 0 for no expiry>", nil
		}
		if _, err := h.Service.SetMuteDuration(ctx, ev.UserID, ev.GroupID, d); err != nil {
			return "", err
		}
		if d == 0 {
			return "New members stay muted until an admin unmutes them.", nil
		}
		return fmt.Sprintf("New members stay muted for %s.", d), nil

	case "photofilter_mute":
		if len(ev.Args) != 1 {
			return "Usage: /photofilter_mute <minutes, 0 for no expiry>", nil
		}
		minutes, err := strconv.Atoi(ev.Args[0])
		if err != nil || minutes < 0 {
			return "Usage: /photofilter_mute <minutes, 0 for no expiry>", nil
		}
		if _, err := h.Service.SetPhotoFilterMuteMinutes(ctx, ev.UserID, ev.GroupID, minutes); err != nil {
			return "", err
		}
		if minutes == 0 {
			return "Photo violations now mute until an admin unmutes.", nil
		}
		return fmt.Sprintf("Photo violations now mute for %d minutes.", minutes), nil
	}
	return "", nil
}

// setterFn is the shared shape of the boolean policy setters.
type setterFn func(ctx context.Context, actorID, groupID int64, on bool) (*domain.GroupPolicy, error)

func (h *Handler) toggle(ctx context.Context, ev gateway.Command, label string, set setterFn) (string, error) {
	on, ok := parseOnOff(ev.Args)
	if !ok {
		return fmt.Sprintf("Usage: /%s on|off", ev.Name), nil
	}
	if _, err := set(ctx, ev.UserID, ev.GroupID, on); err != nil {
		return "", err
	}
	state := "disabled"
	if on {
		state = "enabled"
	}
	return fmt.Sprintf("%s %s.", label, state), nil
}

func parseOnOff(args []string) (bool, bool) {
	if len(args) != 1 {
		return false, false
	}
	switch strings.ToLower(args[0]) {
	case "on", "true", "yes", "1":
		return true, true
	case "off", "false", "no", "0":
		return false, true
	}
	return false, false
}

// parseMuteDuration accepts a Go duration string or a bare "0".
func parseMuteDuration(s string) (time.Duration, error) {
	if s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errors.New("negative duration")
	}
	return d, nil
}

func renderPolicy(p *domain.GroupPolicy) string {
	onOff := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Join challenge: %s (PM delivery: %s)\n", onOff(p.ChallengeEnabled), onOff(p.ChallengeInPM))
	fmt.Fprintf(&b, "Mute new members: %s", onOff(p.MuteNewMembers))
	if p.MuteNewMembers {
		if p.MuteDuration == 0 {
			b.WriteString(" (no expiry)")
		} else {
			fmt.Fprintf(&b, " (%s)", p.MuteDuration)
		}
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Photo filter: %s", onOff(p.PhotoFilterEnabled))
	if p.PhotoFilterEnabled {
		if p.PhotoFilterMuteMinutes == 0 {
			b.WriteString(" (mute: no expiry")
		} else {
			fmt.Fprintf(&b, " (mute: %d min", p.PhotoFilterMuteMinutes)
		}
		fmt.Fprintf(&b, ", admin bypass: %s)", onOff(p.AdminsBypassFilter))
	}
	return b.String()
}
