package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/onnwee/hundy-bot/gateway"
	"github.com/onnwee/hundy-bot/telemetry"
	"github.com/onnwee/hundy-bot/ticket"
)

const (
	rolesTitle      = "Choose Your Roles!"
	rolesScanLimit  = 20
	hubScanLimit    = 50
	guidelinesEmoji = "✅"
	defaultImageURL = "https://yt3.googleusercontent.com/BCsEyurnU4RQJXRzpQAe109tL_u9uUP0cHmQIqahxMr-JT65iI-AbB2WSzsidHuaztQIKuEsuA=s160-c-k-c0x00ffffff-no-rj"
)

var roleEmojis = []string{"🎮", "📢", "⭐"}

// roleFor maps a roles menu reaction onto the configured role id.
func (h *Handlers) roleFor(emoji string) string {
	switch emoji {
	case "🎮":
		return h.Config.Roles.GamesID
	case "📢":
		return h.Config.Roles.VideoID
	case "⭐":
		return h.Config.Roles.NotifyID
	}
	return ""
}

// PostStartup posts the fixed menus and rebuilds voice controllers. Each
// step is independent; failures are logged.
func (h *Handlers) PostStartup(ctx context.Context) {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "startup"))
	ch := h.Config.Channels

	if ch.Socials != "" {
		if _, err := h.Platform.Send(ctx, ch.Socials, gateway.Text(h.socialsText(ctx, false))); err != nil {
			log.Error("failed posting socials", slog.Any("err", err))
		}
	}
	if ch.TicketMenu != "" {
		if _, err := h.Platform.Send(ctx, ch.TicketMenu, ticket.Menu()); err != nil {
			log.Error("failed posting ticket menu", slog.Any("err", err))
		} else {
			log.Info("ticket menu posted")
		}
	}
	if ch.RolesMenu != "" {
		if err := h.postRolesMenu(ctx); err != nil {
			log.Error("failed posting roles menu", slog.Any("err", err))
		}
	}
	if ch.VoiceMenu != "" {
		if _, err := h.postOnce(ctx, ch.VoiceMenu, hubScanLimit, h.Voice.Hub()); err != nil {
			log.Error("failed posting voice hub", slog.Any("err", err))
		}
	} else {
		log.Warn("VOICE_MENU_CHANNEL_ID not set, voice hub disabled")
	}

	n, err := h.Voice.Recover(ctx, h.Config.Discord.GuildID)
	if err != nil {
		log.Error("restore voice controllers failed", slog.Any("err", err))
	} else if n > 0 {
		log.Info("voice controllers restored", slog.Int("count", n))
	}
}

// postOnce sends msg unless one of the bot's last limit messages in the
// channel already carries the same embed title. The returned id is empty
// when nothing was posted.
func (h *Handlers) postOnce(ctx context.Context, channelID string, limit int, msg gateway.Message) (string, error) {
	if msg.Embed != nil {
		recent, err := h.Platform.RecentMessages(ctx, channelID, limit)
		if err != nil {
			slog.Debug("history scan failed, posting anyway", slog.String("channel", channelID), slog.Any("err", err))
		}
		for _, p := range recent {
			if p.Own && p.EmbedTitle == msg.Embed.Title {
				return "", nil
			}
		}
	}
	return h.Platform.Send(ctx, channelID, msg)
}

func (h *Handlers) rolesMenu() gateway.Message {
	return gateway.Message{Embed: &gateway.Embed{
		Title:       rolesTitle,
		Description: "React to get or remove roles:\n\n:video_game: - Games Area\n:mega: - Video Drop Pings\n⭐ - Notified Pings",
		Color:       0x3498db,
		Footer:      h.Config.CommunityName + " Roles",
	}}
}

func (h *Handlers) postRolesMenu(ctx context.Context) error {
	channelID := h.Config.Channels.RolesMenu
	id, err := h.postOnce(ctx, channelID, rolesScanLimit, h.rolesMenu())
	if err != nil || id == "" {
		return err
	}
	for _, emoji := range roleEmojis {
		if err := h.Platform.AddReaction(ctx, channelID, id, emoji); err != nil {
			return fmt.Errorf("react %s: %w", emoji, err)
		}
	}
	return nil
}

func (h *Handlers) guidelinesEmbed() *gateway.Embed {
	image := h.Config.GuidelinesImage
	if image == "" {
		image = defaultImageURL
	}
	return &gateway.Embed{
		Title:    "Guidelines @ " + h.Config.CommunityName,
		Color:    0x9b59b6,
		ImageURL: image,
		Footer:   h.Config.CommunityName,
		Fields: []gateway.EmbedField{
			{Name: "1 | Discord Terms of Service", Value: "We as a community follow the Discord Terms of Service & Community Guidelines, failure to do so yourself will result in moderation such as a potential removal from the server."},
			{Name: "2 | Discrimination", Value: "Discrimination of any kind will not be tolerated, we are strictly against any forms of racism, sexism or prejudice behaviour towards any individual."},
			{Name: "3 | Under 13", Value: "Any individuals under the age of 13 will be removed from the server as per Discord Terms of Service."},
			{Name: "4 | Spamming & Mass Mentioning", Value: "Any spamming or mass mentioning of other users or moderation & administration will result in a timeout 1 hour, if continued you will be kicked from the server."},
			{Name: "5 | NSFW & Obscene Content", Value: "Content that depicts gore, sexual & explicit content will result in a permanent ban from the community, we'll also enforce any sexually motivated messages."},
			{Name: "6 | Support", Value: "Support can be contacted via our tickets system, however, only contact support if it is absolutely vital or if you are trying to report a member of the server for a violation of our guidelines and a member of staff hadn't been in chat at the time."},
			{Name: "🛡️ Moderator's Discretion", Value: "Moderator's have authorisation to moderate users on their ultimate say on a per case basis, however if you believe you were unfairly moderated, contact the Head of Moderation or an Administrator."},
		},
	}
}

// PostGuidelines posts the guidelines embed to the guidelines channel and
// adds the acceptance reaction.
func (h *Handlers) PostGuidelines(ctx context.Context) error {
	channelID := h.Config.Channels.Guidelines
	if channelID == "" {
		return fmt.Errorf("GUIDELINES_CHANNEL_ID not set")
	}
	id, err := h.Platform.Send(ctx, channelID, gateway.Message{Embed: h.guidelinesEmbed()})
	if err != nil {
		return err
	}
	return h.Platform.AddReaction(ctx, channelID, id, guidelinesEmoji)
}

// socialsText lists the community links, optionally with the newest video.
func (h *Handlers) socialsText(ctx context.Context, withVideo bool) string {
	var lines []string
	if login := h.Config.Twitch.Channel; login != "" {
		lines = append(lines, "🔗 **Twitch:** https://twitch.tv/"+login)
	}
	if h.Videos != nil {
		lines = append(lines, "🔗 **YouTube:** "+h.Videos.ChannelURL())
	}
	text := strings.Join(lines, "\n")
	if !withVideo || h.Videos == nil {
		return text
	}
	v, err := h.Videos.LatestVideo(ctx)
	if err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("latest video lookup failed", slog.Any("err", err))
		return text
	}
	video := fmt.Sprintf("▶️ **Latest YouTube Video:** [%s](%s)", v.Title, v.URL)
	if text == "" {
		return video
	}
	return text + "\n\n" + video
}

// reactionAdded grants roles from the roles menu and the guidelines
// acceptance reaction.
func (h *Handlers) reactionAdded(ctx context.Context, ev Event) error {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "reactions"), slog.String("user", ev.UserID))
	switch {
	case ev.ChannelID != "" && ev.ChannelID == h.Config.Channels.RolesMenu:
		return h.setRole(ctx, ev, h.roleFor(ev.Emoji), true)
	case ev.ChannelID != "" && ev.ChannelID == h.Config.Channels.Guidelines && ev.Emoji == guidelinesEmoji:
		name := h.Config.Roles.GuidelinesName
		roleID, err := h.Platform.RoleByName(ctx, ev.GuildID, name)
		if err != nil {
			return err
		}
		if roleID == "" {
			log.Error("guidelines role not found", slog.String("role", name))
			return nil
		}
		return h.setRole(ctx, ev, roleID, true)
	}
	return nil
}

func (h *Handlers) reactionRemoved(ctx context.Context, ev Event) error {
	if ev.ChannelID == "" || ev.ChannelID != h.Config.Channels.RolesMenu {
		return nil
	}
	return h.setRole(ctx, ev, h.roleFor(ev.Emoji), false)
}

// setRole adds or removes roleID when the member's current state differs.
func (h *Handlers) setRole(ctx context.Context, ev Event, roleID string, want bool) error {
	if roleID == "" {
		return nil
	}
	has, err := h.Platform.MemberHasRole(ctx, ev.GuildID, ev.UserID, roleID)
	if err != nil {
		return err
	}
	switch {
	case want && !has:
		return h.Platform.AddRole(ctx, ev.GuildID, ev.UserID, roleID)
	case !want && has:
		return h.Platform.RemoveRole(ctx, ev.GuildID, ev.UserID, roleID)
	}
	return nil
}
