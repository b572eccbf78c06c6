package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/hundy-bot/config"
	"github.com/onnwee/hundy-bot/gateway"
	"github.com/onnwee/hundy-bot/moderation"
	"github.com/onnwee/hundy-bot/store"
	"github.com/onnwee/hundy-bot/testutil"
	"github.com/onnwee/hundy-bot/ticket"
	"github.com/onnwee/hundy-bot/voice"
	"github.com/onnwee/hundy-bot/xp"
	"github.com/onnwee/hundy-bot/youtubeapi"
)

const (
	guild  = "guild"
	member = "222222222222222222"
)

type fixture struct {
	h      *Handlers
	router *Router
	gw     *testutil.FakeGateway
	store  *store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gw := testutil.NewFakeGateway()
	s := store.New(store.NewMemoryBackend())
	filter := moderation.NewFilter([]string{"badword"}, time.Second)
	tickets := ticket.NewRegistry(s, gw, ticket.Options{
		StaffRoleIDs: []string{"staff"},
		AfterFunc:    func(time.Duration, func()) {},
	})
	ledger := xp.NewLedger(s, gw, tickets)
	h := &Handlers{
		Moderator: moderation.NewModerator(filter, gw),
		Ledger:    ledger,
		Voice:     voice.NewManager(s, gw, ledger, filter, voice.Options{HubChannelID: "hub"}),
		Tickets:   tickets,
		Platform:  gw,
		Config: &config.Config{
			CommunityName: "2Hundy Gang",
			Discord:       config.DiscordConfig{GuildID: guild},
			Channels: config.ChannelConfig{
				TicketMenu: "tickets",
				VoiceMenu:  "hub",
				Socials:    "socials",
				Guidelines: "rules",
				RolesMenu:  "roles",
			},
			Roles: config.RoleConfig{
				GamesID:        "games",
				VideoID:        "video",
				NotifyID:       "notify",
				GuidelinesName: "Not a Waste Man",
			},
			Twitch: config.TwitchConfig{Channel: "j2hundred"},
		},
	}
	return &fixture{h: h, router: h.Routes(), gw: gw, store: s}
}

func (f *fixture) dispatch(ev Event) *fakeResponder {
	resp := &fakeResponder{}
	if ev.Kind != KindMessage && ev.Kind != KindReactionAdd && ev.Kind != KindReactionRemove {
		ev.Responder = resp
	}
	if ev.GuildID == "" {
		ev.GuildID = guild
	}
	if ev.UserID == "" {
		ev.UserID = member
		ev.Username = "bob"
	}
	f.router.Dispatch(context.Background(), ev)
	return resp
}

func (f *fixture) setLevel(t *testing.T, userID string, level int) {
	t.Helper()
	_, err := store.Update(context.Background(), f.store, store.DocXP, func(doc *xp.Document) error {
		if *doc == nil {
			*doc = xp.Document{}
		}
		(*doc)[userID] = xp.Record{XP: xp.Threshold(level - 1), Level: level}
		return nil
	})
	require.NoError(t, err)
}

func TestMessageAwardsXP(t *testing.T) {
	f := newFixture(t)
	f.dispatch(Event{Kind: KindMessage, ChannelID: "general", MessageID: "m1", Content: "hello", Timestamp: time.Now()})

	rec, err := f.h.Ledger.Rank(context.Background(), member)
	require.NoError(t, err)
	assert.InDelta(t, xp.Increment, rec.XP, 1e-9)
}

func TestBlockedMessageEarnsNothing(t *testing.T) {
	f := newFixture(t)
	f.dispatch(Event{Kind: KindMessage, ChannelID: "general", MessageID: "m1", Content: "see https://spam.example", Timestamp: time.Now()})

	rec, err := f.h.Ledger.Rank(context.Background(), member)
	require.NoError(t, err)
	assert.Zero(t, rec.XP)
	assert.Contains(t, f.gw.DeletedMessages, "m1")
}

func TestDirectMessagesIgnored(t *testing.T) {
	f := newFixture(t)
	err := f.h.onMessage(context.Background(), Event{Kind: KindMessage, UserID: member, Content: "hi"})
	require.NoError(t, err)
	rec, err := f.h.Ledger.Rank(context.Background(), member)
	require.NoError(t, err)
	assert.Zero(t, rec.XP)
}

func TestRankAndLeaderboard(t *testing.T) {
	f := newFixture(t)
	f.setLevel(t, member, 2)

	resp := f.dispatch(Event{Kind: KindCommand, Key: "rank"})
	got := resp.last(t)
	assert.True(t, got.Private)
	assert.Contains(t, got.Message.Content, "Level: **2**")

	resp = f.dispatch(Event{Kind: KindCommand, Key: "leaderboard"})
	got = resp.last(t)
	assert.False(t, got.Private)
	require.NotNil(t, got.Message.Embed)
	assert.Equal(t, xpFooter, got.Message.Embed.Footer)
	assert.Contains(t, got.Message.Embed.Description, "<@"+member+">")
}

func TestClear(t *testing.T) {
	tests := []struct {
		name    string
		perms   Perms
		amount  string
		fail    bool
		want    string
		deleted int
	}{
		{"no permission", Perms{}, "", false, "❌ You don't have permission to clear messages.", 0},
		{"default amount", Perms{ManageMessages: true}, "", false, "✅ Deleted 3 messages.", 3},
		{"explicit amount", Perms{ManageMessages: true}, "2", false, "✅ Deleted 2 messages.", 2},
		{"invalid amount", Perms{ManageMessages: true}, "0", false, "❌ Amount must be a positive number.", 0},
		{"delete fails", Perms{ManageMessages: true}, "", true, "❌ Failed to delete messages.", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			for i := 0; i < 3; i++ {
				_, err := f.gw.Send(context.Background(), "general", gateway.Text("x"))
				require.NoError(t, err)
			}
			if tt.fail {
				f.gw.Errors["BulkDelete"] = errors.New("too old")
			}
			opts := map[string]string{}
			if tt.amount != "" {
				opts["amount"] = tt.amount
			}
			resp := f.dispatch(Event{Kind: KindCommand, Key: "clear", ChannelID: "general", Perms: tt.perms, Options: opts})
			assert.Equal(t, tt.want, resp.last(t).Message.Content)
			assert.Equal(t, tt.deleted, f.gw.BulkDeleted)
		})
	}
}

func TestVerifyWithoutTwitch(t *testing.T) {
	f := newFixture(t)
	resp := f.dispatch(Event{Kind: KindCommand, Key: "verify"})
	assert.Equal(t, "❌ Twitch verification is not configured.", resp.last(t).Message.Content)
}

type fakeVideos struct {
	video youtubeapi.Video
	err   error
}

func (v fakeVideos) LatestVideo(context.Context) (youtubeapi.Video, error) { return v.video, v.err }
func (v fakeVideos) ChannelURL() string                                    { return "https://www.youtube.com/channel/UC1" }

func TestRefreshSocials(t *testing.T) {
	f := newFixture(t)
	f.h.Videos = fakeVideos{video: youtubeapi.Video{Title: "New Vid", URL: "https://youtu.be/abc"}}

	resp := f.dispatch(Event{Kind: KindCommand, Key: "rsocial", ChannelID: "general"})
	assert.Equal(t, "❌ You don't have permission to refresh socials.", resp.last(t).Message.Content)

	resp = f.dispatch(Event{Kind: KindCommand, Key: "rsocial", ChannelID: "general", Perms: Perms{ManageMessages: true}})
	assert.Equal(t, "✅ Socials message posted.", resp.last(t).Message.Content)
	sent := f.gw.SentTo("general")
	require.Len(t, sent, 1)
	assert.Equal(t, "🔗 **Twitch:** https://twitch.tv/j2hundred\n🔗 **YouTube:** https://www.youtube.com/channel/UC1\n\n▶️ **Latest YouTube Video:** [New Vid](https://youtu.be/abc)", sent[0].Content)
}

func TestSocialsTextVideoFailure(t *testing.T) {
	f := newFixture(t)
	f.h.Videos = fakeVideos{err: errors.New("quota")}
	assert.Equal(t, "🔗 **Twitch:** https://twitch.tv/j2hundred\n🔗 **YouTube:** https://www.youtube.com/channel/UC1",
		f.h.socialsText(context.Background(), true))
}

func TestGuidelinesCommand(t *testing.T) {
	f := newFixture(t)
	resp := f.dispatch(Event{Kind: KindCommand, Key: "guidelines", Perms: Perms{ManageMessages: true}})
	assert.Equal(t, "✅ Guidelines posted.", resp.last(t).Message.Content)

	sent := f.gw.SentTo("rules")
	require.Len(t, sent, 1)
	assert.Equal(t, "Guidelines @ 2Hundy Gang", sent[0].Embed.Title)
	assert.Len(t, sent[0].Embed.Fields, 7)
	assert.Equal(t, defaultImageURL, sent[0].Embed.ImageURL)
	assert.Equal(t, []string{guidelinesEmoji}, f.gw.Reactions)
}

func TestTickets(t *testing.T) {
	f := newFixture(t)
	resp := f.dispatch(Event{Kind: KindButton, Key: ticket.OpenButtonID})
	content := resp.last(t).Message.Content
	require.True(t, strings.HasPrefix(content, "✅ Ticket created: <#"))
	channelID := strings.TrimSuffix(strings.TrimPrefix(content, "✅ Ticket created: <#"), ">")

	resp = f.dispatch(Event{Kind: KindButton, Key: ticket.OpenButtonID})
	assert.Equal(t, "❌ You already have an open ticket.", resp.last(t).Message.Content)

	resp = f.dispatch(Event{Kind: KindButton, Key: ticket.CloseButtonID, ChannelID: channelID})
	assert.Equal(t, 1, resp.acks)
	assert.Empty(t, resp.replies)

	resp = f.dispatch(Event{Kind: KindButton, Key: ticket.CloseButtonID, ChannelID: channelID})
	assert.Equal(t, "❌ Ticket not found.", resp.last(t).Message.Content)
}

func TestVoiceFlow(t *testing.T) {
	f := newFixture(t)

	resp := f.dispatch(Event{Kind: KindButton, Key: voice.CreateButtonID})
	assert.Contains(t, resp.last(t).Message.Content, "Level 1")

	f.setLevel(t, member, 1)
	resp = f.dispatch(Event{Kind: KindButton, Key: voice.CreateButtonID})
	assert.True(t, strings.HasPrefix(resp.last(t).Message.Content, "✅ Your voice channel has been created"))

	resp = f.dispatch(Event{Kind: KindButton, Key: voice.ButtonID(voice.ActionLock, member)})
	assert.Equal(t, "🔒 Channel locked!", resp.last(t).Message.Content)
	resp = f.dispatch(Event{Kind: KindButton, Key: voice.ButtonID(voice.ActionUnlock, member)})
	assert.Equal(t, "🔓 Channel unlocked!", resp.last(t).Message.Content)

	resp = f.dispatch(Event{Kind: KindButton, Key: voice.ButtonID(voice.ActionRename, member)})
	require.Len(t, resp.modals, 1)
	assert.Equal(t, voice.RenameModalPrefix+member, resp.modals[0].CustomID)

	resp = f.dispatch(Event{Kind: KindModal, Key: voice.RenameModalPrefix + member, Options: map[string]string{voice.RenameInputID: "Chill Zone"}})
	assert.Equal(t, "✏️ Channel renamed to **Chill Zone**", resp.last(t).Message.Content)

	stranger := f.dispatch(Event{Kind: KindButton, Key: voice.ButtonID(voice.ActionInvite, member), UserID: "333", Username: "eve"})
	assert.Empty(t, stranger.modals)
	assert.NotEmpty(t, stranger.replies)

	resp = f.dispatch(Event{Kind: KindButton, Key: voice.ButtonID(voice.ActionDelete, member)})
	assert.Equal(t, voice.DeletedReply, resp.last(t).Message.Content)
}

func TestInvalidVoiceButton(t *testing.T) {
	f := newFixture(t)
	resp := f.dispatch(Event{Kind: KindButton, Key: "vc_explode_" + member})
	assert.Equal(t, "❌ Invalid VC button", resp.last(t).Message.Content)
}

func TestRoleReactions(t *testing.T) {
	f := newFixture(t)
	f.dispatch(Event{Kind: KindReactionAdd, ChannelID: "roles", Emoji: "🎮"})
	assert.True(t, f.gw.MemberRoles[member]["games"])

	f.dispatch(Event{Kind: KindReactionAdd, ChannelID: "elsewhere", Emoji: "📢"})
	assert.False(t, f.gw.MemberRoles[member]["video"])

	f.dispatch(Event{Kind: KindReactionRemove, ChannelID: "roles", Emoji: "🎮"})
	assert.False(t, f.gw.MemberRoles[member]["games"])
	assert.Equal(t, []string{"games"}, f.gw.RemovedRoles)

	f.dispatch(Event{Kind: KindReactionRemove, ChannelID: "roles", Emoji: "🎮"})
	assert.Len(t, f.gw.RemovedRoles, 1, "no removal when the role is already gone")
}

func TestGuidelinesReaction(t *testing.T) {
	f := newFixture(t)
	f.dispatch(Event{Kind: KindReactionAdd, ChannelID: "rules", Emoji: guidelinesEmoji})
	assert.Empty(t, f.gw.MemberRoles[member], "missing role is ignored")

	f.gw.Roles["Not a Waste Man"] = "accepted"
	f.dispatch(Event{Kind: KindReactionAdd, ChannelID: "rules", Emoji: "👍"})
	assert.False(t, f.gw.MemberRoles[member]["accepted"])
	f.dispatch(Event{Kind: KindReactionAdd, ChannelID: "rules", Emoji: guidelinesEmoji})
	assert.True(t, f.gw.MemberRoles[member]["accepted"])
}

func TestPostStartupDedupes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.h.PostStartup(ctx)
	f.h.PostStartup(ctx)

	assert.Len(t, f.gw.SentTo("tickets"), 2, "ticket menu is posted every start")
	assert.Len(t, f.gw.SentTo("roles"), 1)
	assert.Len(t, f.gw.SentTo("hub"), 1)
	assert.Equal(t, roleEmojis, f.gw.Reactions)
	require.Len(t, f.gw.SentTo("socials"), 2)
	assert.Equal(t, "🔗 **Twitch:** https://twitch.tv/j2hundred", f.gw.SentTo("socials")[0].Content)
}
