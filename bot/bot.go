// Package bot connects the community components to a Discord session: it
// converts gateway events into Events, routes them to Handlers and answers
// interactions.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/hundy-bot/gateway"
)

const (
	intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessageReactions

	eventTimeout = 30 * time.Second
)

// Bot owns the session and dispatches its events.
type Bot struct {
	session *discordgo.Session
	gw      *Gateway
	appID   string
	guildID string

	connected atomic.Bool
	startup   sync.Once
}

// New creates a session for token. Nothing connects until Run.
func New(token, appID, guildID string) (*Bot, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = intents
	// Every event handler runs in its own goroutine, so events may be handled
	// concurrently and out of order. Shared state is guarded by the store's
	// per-document locks and the filter's mutex.
	s.SyncEvents = false
	return &Bot{session: s, gw: NewGateway(s), appID: appID, guildID: guildID}, nil
}

// Gateway is the platform adapter the components are built on.
func (b *Bot) Gateway() *Gateway { return b.gw }

// Connected reports whether the gateway connection is up.
func (b *Bot) Connected() bool { return b.connected.Load() }

// Run connects, registers commands and serves events until ctx is done.
// The first Ready posts the startup menus and starts presence, which may be
// nil.
func (b *Bot) Run(ctx context.Context, h *Handlers, presence *Presence) error {
	router := h.Routes()
	dispatch := func(ev Event) {
		ectx, cancel := context.WithTimeout(ctx, eventTimeout)
		defer cancel()
		router.Dispatch(ectx, ev)
	}

	b.session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Connect) { b.connected.Store(true) })
	b.session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) { b.connected.Store(false) })
	b.session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) { b.connected.Store(true) })
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.connected.Store(true)
		slog.Info("discord ready", slog.String("user", r.User.Username))
		b.startup.Do(func() { go b.onFirstReady(ctx, h, presence) })
	})
	b.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if ev, ok := messageEvent(m, b.selfID()); ok {
			dispatch(ev)
		}
	})
	b.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		ev, ok := interactionEvent(i.Interaction)
		if !ok {
			return
		}
		ev.Responder = &interactionResponder{s: s, i: i.Interaction}
		dispatch(ev)
	})
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
		if ev, ok := reactionEvent(KindReactionAdd, r.MessageReaction, r.Member, b.selfID()); ok {
			dispatch(ev)
		}
	})
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.MessageReactionRemove) {
		if ev, ok := reactionEvent(KindReactionRemove, r.MessageReaction, nil, b.selfID()); ok {
			dispatch(ev)
		}
	})

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	<-ctx.Done()
	b.connected.Store(false)
	if err := b.session.Close(); err != nil {
		slog.Warn("discord close failed", slog.Any("err", err))
	}
	return nil
}

func (b *Bot) selfID() string { return b.gw.botID() }

func (b *Bot) onFirstReady(ctx context.Context, h *Handlers, presence *Presence) {
	if _, err := b.session.ApplicationCommandBulkOverwrite(b.appID, b.guildID, Commands(), discordgo.WithContext(ctx)); err != nil {
		slog.Error("register commands failed", slog.Any("err", err))
	} else {
		slog.Info("slash commands registered")
	}
	h.PostStartup(ctx)
	if presence != nil {
		presence.Run(ctx)
	}
}

// messageEvent converts a guild message. Bot authors are skipped.
func messageEvent(m *discordgo.MessageCreate, selfID string) (Event, bool) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == selfID {
		return Event{}, false
	}
	return Event{
		Kind:          KindMessage,
		GuildID:       m.GuildID,
		ChannelID:     m.ChannelID,
		MessageID:     m.ID,
		UserID:        m.Author.ID,
		Username:      m.Author.Username,
		Content:       m.Content,
		HasAttachment: len(m.Attachments) > 0,
		Timestamp:     m.Timestamp,
	}, true
}

// reactionEvent converts a reaction. The bot's own reactions are skipped.
func reactionEvent(kind Kind, r *discordgo.MessageReaction, member *discordgo.Member, selfID string) (Event, bool) {
	if r == nil || r.UserID == selfID {
		return Event{}, false
	}
	if member != nil && member.User != nil && member.User.Bot {
		return Event{}, false
	}
	return Event{
		Kind:      kind,
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     r.Emoji.Name,
	}, true
}

func permsOf(p int64) Perms {
	if p&discordgo.PermissionAdministrator != 0 {
		return Perms{ManageChannels: true, ManageMessages: true}
	}
	return Perms{
		ManageChannels: p&discordgo.PermissionManageChannels != 0,
		ManageMessages: p&discordgo.PermissionManageMessages != 0,
	}
}

// interactionEvent converts commands, component presses and modal submits.
func interactionEvent(i *discordgo.Interaction) (Event, bool) {
	ev := Event{GuildID: i.GuildID, ChannelID: i.ChannelID, Options: map[string]string{}}
	switch {
	case i.Member != nil && i.Member.User != nil:
		ev.UserID, ev.Username = i.Member.User.ID, i.Member.User.Username
		ev.Perms = permsOf(i.Member.Permissions)
	case i.User != nil:
		ev.UserID, ev.Username = i.User.ID, i.User.Username
	default:
		return Event{}, false
	}
	if i.Message != nil {
		ev.MessageID = i.Message.ID
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		ev.Kind, ev.Key = KindCommand, data.Name
		for _, opt := range data.Options {
			switch opt.Type {
			case discordgo.ApplicationCommandOptionInteger:
				ev.Options[opt.Name] = strconv.FormatInt(opt.IntValue(), 10)
			default:
				ev.Options[opt.Name] = fmt.Sprint(opt.Value)
			}
		}
	case discordgo.InteractionMessageComponent:
		ev.Kind, ev.Key = KindButton, i.MessageComponentData().CustomID
	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		ev.Kind, ev.Key = KindModal, data.CustomID
		ev.Options = modalValues(data.Components)
	default:
		return Event{}, false
	}
	return ev, true
}

// interactionResponder answers one interaction. The first answer is the
// interaction response; later replies become followups.
type interactionResponder struct {
	s       *discordgo.Session
	i       *discordgo.Interaction
	replied atomic.Bool
}

func (r *interactionResponder) Reply(ctx context.Context, msg gateway.Message, private bool) error {
	send := toMessageSend(msg)
	var flags discordgo.MessageFlags
	if private {
		flags = discordgo.MessageFlagsEphemeral
	}
	if r.replied.Swap(true) {
		_, err := r.s.FollowupMessageCreate(r.i, true, &discordgo.WebhookParams{
			Content:    send.Content,
			Embeds:     send.Embeds,
			Components: send.Components,
			Flags:      flags,
		}, discordgo.WithContext(ctx))
		return err
	}
	return r.s.InteractionRespond(r.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    send.Content,
			Embeds:     send.Embeds,
			Components: send.Components,
			Flags:      flags,
		},
	}, discordgo.WithContext(ctx))
}

func (r *interactionResponder) ShowModal(ctx context.Context, modal gateway.Modal) error {
	r.replied.Store(true)
	return r.s.InteractionRespond(r.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: toModal(modal),
	}, discordgo.WithContext(ctx))
}

func (r *interactionResponder) Ack(ctx context.Context) error {
	if r.replied.Swap(true) {
		return nil
	}
	return r.s.InteractionRespond(r.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}, discordgo.WithContext(ctx))
}

func (r *interactionResponder) Replied() bool { return r.replied.Load() }
