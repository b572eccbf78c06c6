package bot

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/hundy-bot/gateway"
)

func TestCanModerate(t *testing.T) {
	roles := []*discordgo.Role{
		{ID: "guild", Position: 0},
		{ID: "bot", Position: 5, Permissions: discordgo.PermissionModerateMembers},
		{ID: "weakbot", Position: 1, Permissions: discordgo.PermissionModerateMembers},
		{ID: "plainbot", Position: 9},
		{ID: "mod", Position: 3},
		{ID: "senior", Position: 7},
		{ID: "admin", Position: 2, Permissions: discordgo.PermissionAdministrator},
	}
	tests := []struct {
		name     string
		botRoles []string
		target   string
		roles    []string
		want     bool
	}{
		{"member without roles", []string{"bot"}, "u1", nil, true},
		{"lower role", []string{"bot"}, "u1", []string{"mod"}, true},
		{"higher role", []string{"bot"}, "u1", []string{"senior"}, false},
		{"same position", []string{"weakbot"}, "u1", []string{"weakbot"}, false},
		{"owner", []string{"bot"}, "owner", nil, false},
		{"administrator", []string{"bot"}, "u1", []string{"admin"}, false},
		{"bot lacks permission", []string{"plainbot"}, "u1", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, canModerate("owner", roles, "guild", tt.botRoles, tt.target, tt.roles))
		})
	}
}

func TestChannelCreateData(t *testing.T) {
	voice := channelCreateData("guild", "bot", gateway.ChannelSpec{Name: "alice's VC", Kind: gateway.VoiceChannel, OwnerID: "alice"})
	assert.Equal(t, discordgo.ChannelTypeGuildVoice, voice.Type)
	require.Len(t, voice.PermissionOverwrites, 2)
	assert.Equal(t, "guild", voice.PermissionOverwrites[0].ID)
	assert.Equal(t, int64(discordgo.PermissionVoiceConnect), voice.PermissionOverwrites[0].Allow)
	assert.NotZero(t, voice.PermissionOverwrites[1].Allow&discordgo.PermissionManageChannels)

	private := channelCreateData("guild", "bot", gateway.ChannelSpec{
		Name: "ticket-bob", Private: true, OwnerID: "bob", MemberIDs: []string{"carol"}, StaffRoleIDs: []string{"staff"}, ParentID: "cat",
	})
	assert.Equal(t, discordgo.ChannelTypeGuildText, private.Type)
	assert.Equal(t, "cat", private.ParentID)
	ids := map[string]*discordgo.PermissionOverwrite{}
	for _, o := range private.PermissionOverwrites {
		ids[o.ID] = o
	}
	require.Len(t, ids, 5)
	assert.Equal(t, int64(discordgo.PermissionViewChannel), ids["guild"].Deny)
	assert.Equal(t, discordgo.PermissionOverwriteTypeRole, ids["staff"].Type)
	assert.Equal(t, discordgo.PermissionOverwriteTypeMember, ids["carol"].Type)
	assert.NotZero(t, ids["bob"].Allow&discordgo.PermissionSendMessages)

	public := channelCreateData("guild", "bot", gateway.ChannelSpec{Name: "general"})
	assert.Empty(t, public.PermissionOverwrites)
}

func TestToComponentsRows(t *testing.T) {
	var buttons []gateway.Button
	for i := 0; i < 7; i++ {
		buttons = append(buttons, gateway.Button{CustomID: string(rune('a' + i)), Label: "x", Style: gateway.Danger})
	}
	rows := toComponents(buttons)
	require.Len(t, rows, 2)
	first := rows[0].(discordgo.ActionsRow)
	assert.Len(t, first.Components, 5)
	assert.Equal(t, discordgo.DangerButton, first.Components[0].(discordgo.Button).Style)
	assert.Len(t, rows[1].(discordgo.ActionsRow).Components, 2)
	assert.Nil(t, toComponents(nil))
}

func TestMessageEvent(t *testing.T) {
	now := time.Now()
	m := &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "m", GuildID: "g", ChannelID: "c", Content: "hi", Timestamp: now,
		Author:      &discordgo.User{ID: "u", Username: "bob"},
		Attachments: []*discordgo.MessageAttachment{{ID: "a"}},
	}}
	ev, ok := messageEvent(m, "self")
	require.True(t, ok)
	assert.Equal(t, Event{
		Kind: KindMessage, GuildID: "g", ChannelID: "c", MessageID: "m", UserID: "u", Username: "bob",
		Content: "hi", HasAttachment: true, Timestamp: now,
	}, ev)

	m.Author.Bot = true
	_, ok = messageEvent(m, "self")
	assert.False(t, ok)
}

func TestReactionEventSkipsSelf(t *testing.T) {
	r := &discordgo.MessageReaction{UserID: "self", ChannelID: "roles", Emoji: discordgo.Emoji{Name: "🎮"}}
	_, ok := reactionEvent(KindReactionAdd, r, nil, "self")
	assert.False(t, ok)

	r.UserID = "u"
	ev, ok := reactionEvent(KindReactionAdd, r, nil, "self")
	require.True(t, ok)
	assert.Equal(t, "🎮", ev.Emoji)
	assert.Equal(t, "roles", ev.ChannelID)
}

func TestInteractionEvent(t *testing.T) {
	member := &discordgo.Member{
		User:        &discordgo.User{ID: "u", Username: "bob"},
		Permissions: discordgo.PermissionManageMessages,
	}

	cmd := &discordgo.Interaction{
		Type: discordgo.InteractionApplicationCommand, GuildID: "g", ChannelID: "c", Member: member,
		Data: discordgo.ApplicationCommandInteractionData{
			Name: "clear",
			Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Name: "amount", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(25)},
			},
		},
	}
	ev, ok := interactionEvent(cmd)
	require.True(t, ok)
	assert.Equal(t, KindCommand, ev.Kind)
	assert.Equal(t, "clear", ev.Key)
	assert.Equal(t, "25", ev.Option("amount"))
	assert.Equal(t, Perms{ManageMessages: true}, ev.Perms)

	modal := &discordgo.Interaction{
		Type: discordgo.InteractionModalSubmit, GuildID: "g", Member: member,
		Data: discordgo.ModalSubmitInteractionData{
			CustomID: "vc_rename_modal_u",
			Components: []discordgo.MessageComponent{
				&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					&discordgo.TextInput{CustomID: "new_name", Value: "  Chill  "},
				}},
			},
		},
	}
	ev, ok = interactionEvent(modal)
	require.True(t, ok)
	assert.Equal(t, KindModal, ev.Kind)
	assert.Equal(t, "Chill", ev.Option("new_name"))

	_, ok = interactionEvent(&discordgo.Interaction{Type: discordgo.InteractionPing})
	assert.False(t, ok)
}

func TestPermsOfAdministrator(t *testing.T) {
	assert.Equal(t, Perms{ManageChannels: true, ManageMessages: true}, permsOf(discordgo.PermissionAdministrator))
	assert.Equal(t, Perms{}, permsOf(0))
}
