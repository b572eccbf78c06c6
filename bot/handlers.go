package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/onnwee/hundy-bot/apperr"
	"github.com/onnwee/hundy-bot/config"
	"github.com/onnwee/hundy-bot/gateway"
	"github.com/onnwee/hundy-bot/moderation"
	"github.com/onnwee/hundy-bot/telemetry"
	"github.com/onnwee/hundy-bot/ticket"
	"github.com/onnwee/hundy-bot/verify"
	"github.com/onnwee/hundy-bot/voice"
	"github.com/onnwee/hundy-bot/xp"
	"github.com/onnwee/hundy-bot/youtubeapi"
)

// Platform is the chat surface the handlers use directly, beyond what the
// domain components take.
type Platform interface {
	Send(ctx context.Context, channelID string, msg gateway.Message) (string, error)
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	RecentMessages(ctx context.Context, channelID string, limit int) ([]gateway.Posted, error)
	BulkDelete(ctx context.Context, channelID string, limit int) (int, error)
	RoleByName(ctx context.Context, guildID, name string) (string, error)
	MemberHasRole(ctx context.Context, guildID, userID, roleID string) (bool, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
}

// Videos reports the channel's newest upload.
type Videos interface {
	LatestVideo(ctx context.Context) (youtubeapi.Video, error)
	ChannelURL() string
}

// Handlers holds the components every handler works with.
type Handlers struct {
	Moderator *moderation.Moderator
	Ledger    *xp.Ledger
	Voice     *voice.Manager
	Tickets   *ticket.Registry
	// Verifier is nil when Twitch credentials are missing.
	Verifier *verify.Verifier
	// Videos is nil when YouTube is not configured.
	Videos   Videos
	Platform Platform
	Config   *config.Config
}

const (
	defaultClearAmount = 10
	maxClearAmount     = 100
	xpFooter           = "2Hundy XP System"
)

// Routes registers every handler on a new Router.
func (h *Handlers) Routes() *Router {
	r := NewRouter()
	r.On(KindMessage, "", h.onMessage)

	r.On(KindCommand, "rank", h.rank)
	r.On(KindCommand, "leaderboard", h.leaderboard)
	r.On(KindCommand, "clear", h.clear)
	r.On(KindCommand, "verify", h.verify)
	r.On(KindCommand, "rsocial", h.refreshSocials)
	r.On(KindCommand, "guidelines", h.guidelines)

	r.On(KindButton, ticket.OpenButtonID, h.openTicket)
	r.On(KindButton, ticket.CloseButtonID, h.closeTicket)
	r.On(KindButton, voice.CreateButtonID, h.createVoice)
	r.OnPrefix(KindButton, voice.ButtonPrefix, h.voiceControl)

	r.OnPrefix(KindModal, voice.RenameModalPrefix, h.renameVoice)
	r.OnPrefix(KindModal, voice.InviteModalPrefix, h.inviteVoice)

	r.On(KindReactionAdd, "", h.reactionAdded)
	r.On(KindReactionRemove, "", h.reactionRemoved)
	return r
}

// onMessage runs moderation and, for allowed messages, awards xp.
func (h *Handlers) onMessage(ctx context.Context, ev Event) error {
	if ev.GuildID == "" {
		return nil
	}
	out := h.Moderator.Handle(ctx, moderation.Message{
		ID:            ev.MessageID,
		GuildID:       ev.GuildID,
		ChannelID:     ev.ChannelID,
		AuthorID:      ev.UserID,
		Content:       ev.Content,
		HasAttachment: ev.HasAttachment,
		Timestamp:     ev.Timestamp,
	})
	if out.Verdict != moderation.Allow {
		return nil
	}
	_, err := h.Ledger.Award(ctx, xp.Activity{GuildID: ev.GuildID, ChannelID: ev.ChannelID, UserID: ev.UserID})
	return err
}

func (h *Handlers) rank(ctx context.Context, ev Event) error {
	rec, err := h.Ledger.Rank(ctx, ev.UserID)
	if err != nil {
		return err
	}
	return ev.replyText(ctx, xp.RankText(ev.UserID, rec))
}

func (h *Handlers) leaderboard(ctx context.Context, ev Event) error {
	entries, err := h.Ledger.Leaderboard(ctx, xp.LeaderboardSize)
	if err != nil {
		return err
	}
	return ev.reply(ctx, gateway.Message{Embed: xp.LeaderboardEmbed(entries, xpFooter)}, false)
}

func requireManageMessages(ev Event, op, action string) error {
	if ev.Perms.ManageMessages {
		return nil
	}
	return apperr.Newf(apperr.KindPermissionDenied, op, "You don't have permission to %s.", action)
}

// clear bulk-deletes recent messages in the current channel.
func (h *Handlers) clear(ctx context.Context, ev Event) error {
	if err := requireManageMessages(ev, "clear", "clear messages"); err != nil {
		return err
	}
	amount := defaultClearAmount
	if raw := ev.Option("amount"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return apperr.New(apperr.KindValidation, "clear", "Amount must be a positive number.")
		}
		amount = min(n, maxClearAmount)
	}
	n, err := h.Platform.BulkDelete(ctx, ev.ChannelID, amount)
	if err != nil {
		return apperr.Failed("clear", "Failed to delete messages.", err)
	}
	return ev.replyText(ctx, fmt.Sprintf("✅ Deleted %d messages.", n))
}

func (h *Handlers) verify(ctx context.Context, ev Event) error {
	if h.Verifier == nil {
		return apperr.New(apperr.KindExternalAPI, "verify", "Twitch verification is not configured.")
	}
	res, err := h.Verifier.Verify(ctx, ev.GuildID, ev.UserID)
	if err != nil {
		return err
	}
	return ev.replyText(ctx, res.Message())
}

// refreshSocials posts the socials links and the latest video in the
// current channel.
func (h *Handlers) refreshSocials(ctx context.Context, ev Event) error {
	if err := requireManageMessages(ev, "rsocial", "refresh socials"); err != nil {
		return err
	}
	if _, err := h.Platform.Send(ctx, ev.ChannelID, gateway.Text(h.socialsText(ctx, true))); err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("socials post failed", slog.String("channel", ev.ChannelID), slog.Any("err", err))
	}
	return ev.replyText(ctx, "✅ Socials message posted.")
}

func (h *Handlers) guidelines(ctx context.Context, ev Event) error {
	if err := requireManageMessages(ev, "guidelines", "post guidelines"); err != nil {
		return err
	}
	if err := h.PostGuidelines(ctx); err != nil {
		return apperr.Failed("guidelines", "Failed to post guidelines.", err)
	}
	return ev.replyText(ctx, "✅ Guidelines posted.")
}

func (h *Handlers) openTicket(ctx context.Context, ev Event) error {
	id, err := h.Tickets.Open(ctx, ev.GuildID, ev.UserID, ev.Username)
	if err != nil {
		return err
	}
	return ev.replyText(ctx, "✅ Ticket created: "+gateway.ChannelMention(id))
}

// closeTicket closes the ticket of the channel the button sits in. The
// registry posts the closing notice itself.
func (h *Handlers) closeTicket(ctx context.Context, ev Event) error {
	if err := h.Tickets.Close(ctx, ev.ChannelID); err != nil {
		return err
	}
	if ev.Responder == nil {
		return nil
	}
	return ev.Responder.Ack(ctx)
}

func actor(ev Event) voice.Actor {
	return voice.Actor{UserID: ev.UserID, Username: ev.Username, CanManageChannels: ev.Perms.ManageChannels}
}

func (h *Handlers) createVoice(ctx context.Context, ev Event) error {
	s, err := h.Voice.Create(ctx, ev.GuildID, actor(ev))
	if err != nil {
		return err
	}
	return ev.replyText(ctx, voice.CreatedReply(s))
}

// voiceControl handles the controller buttons vc_<action>_<owner>.
func (h *Handlers) voiceControl(ctx context.Context, ev Event) error {
	action, owner, ok := voice.ParseButtonID(ev.Key)
	if !ok {
		return apperr.New(apperr.KindValidation, "voice.button", "Invalid VC button")
	}
	a := actor(ev)
	switch action {
	case voice.ActionLock:
		if err := h.Voice.Lock(ctx, ev.GuildID, a, owner); err != nil {
			return err
		}
		return ev.replyText(ctx, "🔒 Channel locked!")
	case voice.ActionUnlock:
		if err := h.Voice.Unlock(ctx, ev.GuildID, a, owner); err != nil {
			return err
		}
		return ev.replyText(ctx, "🔓 Channel unlocked!")
	case voice.ActionRename, voice.ActionInvite:
		if err := h.Voice.Authorize(ctx, a, owner); err != nil {
			return err
		}
		if ev.Responder == nil {
			return nil
		}
		modal := voice.RenameModal(owner)
		if action == voice.ActionInvite {
			modal = voice.InviteModal(owner)
		}
		return ev.Responder.ShowModal(ctx, modal)
	case voice.ActionDelete:
		if err := h.Voice.Delete(ctx, a, owner); err != nil {
			return err
		}
		return ev.replyText(ctx, voice.DeletedReply)
	default:
		return apperr.New(apperr.KindValidation, "voice.button", "Invalid VC button")
	}
}

func (h *Handlers) renameVoice(ctx context.Context, ev Event) error {
	owner := strings.TrimPrefix(ev.Key, voice.RenameModalPrefix)
	res, err := h.Voice.Rename(ctx, actor(ev), owner, ev.Option(voice.RenameInputID))
	if err != nil {
		return err
	}
	return ev.replyText(ctx, res.Reply())
}

func (h *Handlers) inviteVoice(ctx context.Context, ev Event) error {
	owner := strings.TrimPrefix(ev.Key, voice.InviteModalPrefix)
	inv, err := h.Voice.Invite(ctx, ev.GuildID, actor(ev), owner, ev.Option(voice.InviteInputID))
	if err != nil {
		return err
	}
	return ev.replyText(ctx, inv.Reply())
}
