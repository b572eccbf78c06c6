package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/hundy-bot/gateway"
)

// bulkDeleteMaxAge is the platform's limit for bulk deletion.
const bulkDeleteMaxAge = 14 * 24 * time.Hour

// Gateway implements the gateway interfaces of every component on
// top of a discordgo session.
type Gateway struct {
	s *discordgo.Session
}

// NewGateway wraps a session.
func NewGateway(s *discordgo.Session) *Gateway { return &Gateway{s: s} }

func (g *Gateway) botID() string {
	if g.s.State != nil && g.s.State.User != nil {
		return g.s.State.User.ID
	}
	return ""
}

func isNotFound(err error) bool {
	var rest *discordgo.RESTError
	return errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound
}

func (g *Gateway) Send(ctx context.Context, channelID string, msg gateway.Message) (string, error) {
	m, err := g.s.ChannelMessageSendComplex(channelID, toMessageSend(msg), discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("send to %s: %w", channelID, err)
	}
	return m.ID, nil
}

func (g *Gateway) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return g.s.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
}

func (g *Gateway) TimeoutMember(ctx context.Context, guildID, userID string, d time.Duration, reason string) error {
	until := time.Now().Add(d)
	return g.s.GuildMemberTimeout(guildID, userID, &until, discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
}

// Moderatable reports whether the bot may time out userID.
func (g *Gateway) Moderatable(ctx context.Context, guildID, userID string) (bool, error) {
	guild, err := g.guild(ctx, guildID)
	if err != nil {
		return false, err
	}
	target, err := g.s.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return false, err
	}
	self, err := g.s.GuildMember(guildID, g.botID(), discordgo.WithContext(ctx))
	if err != nil {
		return false, err
	}
	return canModerate(guild.OwnerID, guild.Roles, guildID, self.Roles, userID, target.Roles), nil
}

func (g *Gateway) guild(ctx context.Context, guildID string) (*discordgo.Guild, error) {
	if g.s.State != nil {
		if guild, err := g.s.State.Guild(guildID); err == nil && len(guild.Roles) > 0 {
			return guild, nil
		}
	}
	return g.s.Guild(guildID, discordgo.WithContext(ctx))
}

// canModerate: the bot needs ModerateMembers, the target must be neither
// the owner nor an administrator, and the bot's highest role must sit
// above the target's.
func canModerate(ownerID string, roles []*discordgo.Role, everyoneID string, botRoles []string, targetID string, targetRoles []string) bool {
	if targetID == ownerID {
		return false
	}
	byID := make(map[string]*discordgo.Role, len(roles))
	for _, r := range roles {
		byID[r.ID] = r
	}
	perms := func(ids []string) int64 {
		var p int64
		if r, ok := byID[everyoneID]; ok {
			p |= r.Permissions
		}
		for _, id := range ids {
			if r, ok := byID[id]; ok {
				p |= r.Permissions
			}
		}
		return p
	}
	top := func(ids []string) int {
		best := 0
		for _, id := range ids {
			if r, ok := byID[id]; ok && r.Position > best {
				best = r.Position
			}
		}
		return best
	}

	botPerms := perms(botRoles)
	if botPerms&(discordgo.PermissionModerateMembers|discordgo.PermissionAdministrator) == 0 {
		return false
	}
	if perms(targetRoles)&discordgo.PermissionAdministrator != 0 {
		return false
	}
	return top(botRoles) > top(targetRoles)
}

func (g *Gateway) RoleByName(ctx context.Context, guildID, name string) (string, error) {
	roles, err := g.s.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	for _, r := range roles {
		if r.Name == name {
			return r.ID, nil
		}
	}
	return "", nil
}

func (g *Gateway) CreateRole(ctx context.Context, guildID, name string, color int, reason string) (string, error) {
	r, err := g.s.GuildRoleCreate(guildID, &discordgo.RoleParams{Name: name, Color: &color},
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

func (g *Gateway) MemberHasRole(ctx context.Context, guildID, userID, roleID string) (bool, error) {
	m, err := g.s.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return false, err
	}
	for _, id := range m.Roles {
		if id == roleID {
			return true, nil
		}
	}
	return false, nil
}

func (g *Gateway) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return g.s.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx))
}

func (g *Gateway) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	return g.s.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx))
}

func (g *Gateway) CreateChannel(ctx context.Context, guildID string, spec gateway.ChannelSpec) (string, error) {
	ch, err := g.s.GuildChannelCreateComplex(guildID, channelCreateData(guildID, g.botID(), spec), discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return ch.ID, nil
}

// channelCreateData turns a ChannelSpec into permission overwrites. The everyone
// role shares the guild's id.
func channelCreateData(guildID, botID string, spec gateway.ChannelSpec) discordgo.GuildChannelCreateData {
	data := discordgo.GuildChannelCreateData{Name: spec.Name, ParentID: spec.ParentID, Type: discordgo.ChannelTypeGuildText}
	member := func(id string, allow int64) *discordgo.PermissionOverwrite {
		return &discordgo.PermissionOverwrite{ID: id, Type: discordgo.PermissionOverwriteTypeMember, Allow: allow}
	}
	if spec.Kind == gateway.VoiceChannel {
		data.Type = discordgo.ChannelTypeGuildVoice
		data.PermissionOverwrites = []*discordgo.PermissionOverwrite{
			{ID: guildID, Type: discordgo.PermissionOverwriteTypeRole, Allow: discordgo.PermissionVoiceConnect},
		}
		if spec.OwnerID != "" {
			data.PermissionOverwrites = append(data.PermissionOverwrites,
				member(spec.OwnerID, discordgo.PermissionManageChannels|discordgo.PermissionVoiceConnect))
		}
		return data
	}
	if !spec.Private {
		return data
	}
	const view = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages
	data.PermissionOverwrites = []*discordgo.PermissionOverwrite{
		{ID: guildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
	}
	if botID != "" {
		data.PermissionOverwrites = append(data.PermissionOverwrites, member(botID, view|discordgo.PermissionEmbedLinks))
	}
	if spec.OwnerID != "" {
		data.PermissionOverwrites = append(data.PermissionOverwrites, member(spec.OwnerID, view))
	}
	for _, id := range spec.MemberIDs {
		data.PermissionOverwrites = append(data.PermissionOverwrites, member(id, view))
	}
	for _, id := range spec.StaffRoleIDs {
		data.PermissionOverwrites = append(data.PermissionOverwrites,
			&discordgo.PermissionOverwrite{ID: id, Type: discordgo.PermissionOverwriteTypeRole, Allow: view})
	}
	return data
}

func (g *Gateway) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	if channelID == "" {
		return false, nil
	}
	if _, err := g.s.Channel(channelID, discordgo.WithContext(ctx)); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (g *Gateway) MessageExists(ctx context.Context, channelID, messageID string) (bool, error) {
	if channelID == "" || messageID == "" {
		return false, nil
	}
	if _, err := g.s.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (g *Gateway) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := g.s.ChannelDelete(channelID, discordgo.WithContext(ctx))
	if isNotFound(err) {
		return nil
	}
	return err
}

func (g *Gateway) RenameChannel(ctx context.Context, channelID, name string) error {
	_, err := g.s.ChannelEdit(channelID, &discordgo.ChannelEdit{Name: name}, discordgo.WithContext(ctx))
	return err
}

// SetConnect allows or denies Connect for a role or member overwrite.
func (g *Gateway) SetConnect(ctx context.Context, channelID, targetID string, role, allow bool) error {
	kind := discordgo.PermissionOverwriteTypeMember
	if role {
		kind = discordgo.PermissionOverwriteTypeRole
	}
	var allowBits, denyBits int64
	if allow {
		allowBits = discordgo.PermissionVoiceConnect
	} else {
		denyBits = discordgo.PermissionVoiceConnect
	}
	return g.s.ChannelPermissionSet(channelID, targetID, kind, allowBits, denyBits, discordgo.WithContext(ctx))
}

func (g *Gateway) MemberExists(ctx context.Context, guildID, userID string) (bool, error) {
	if _, err := g.s.GuildMember(guildID, userID, discordgo.WithContext(ctx)); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (g *Gateway) CreateInvite(ctx context.Context, channelID string, maxAge time.Duration, maxUses int) (string, error) {
	inv, err := g.s.ChannelInviteCreate(channelID, discordgo.Invite{
		MaxAge:  int(maxAge.Seconds()),
		MaxUses: maxUses,
		Unique:  true,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return "https://discord.gg/" + inv.Code, nil
}

func (g *Gateway) DirectMessage(ctx context.Context, userID, content string) error {
	ch, err := g.s.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return err
	}
	_, err = g.s.ChannelMessageSend(ch.ID, content, discordgo.WithContext(ctx))
	return err
}

func (g *Gateway) Username(ctx context.Context, userID string) (string, error) {
	u, err := g.s.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

func (g *Gateway) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return g.s.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx))
}

func (g *Gateway) RecentMessages(ctx context.Context, channelID string, limit int) ([]gateway.Posted, error) {
	msgs, err := g.s.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	self := g.botID()
	out := make([]gateway.Posted, 0, len(msgs))
	for _, m := range msgs {
		p := gateway.Posted{ID: m.ID, Own: m.Author != nil && m.Author.ID == self}
		if len(m.Embeds) > 0 {
			p.EmbedTitle = m.Embeds[0].Title
		}
		out = append(out, p)
	}
	return out, nil
}

// BulkDelete deletes up to limit recent messages younger than two weeks.
func (g *Gateway) BulkDelete(ctx context.Context, channelID string, limit int) (int, error) {
	msgs, err := g.s.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-bulkDeleteMaxAge)
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Timestamp.After(cutoff) {
			ids = append(ids, m.ID)
		}
	}
	switch len(ids) {
	case 0:
		return 0, nil
	case 1:
		err = g.s.ChannelMessageDelete(channelID, ids[0], discordgo.WithContext(ctx))
	default:
		err = g.s.ChannelMessagesBulkDelete(channelID, ids, discordgo.WithContext(ctx))
	}
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// SetStreaming and SetWatching implement StatusSetter.
func (g *Gateway) SetStreaming(name, url string) error {
	return g.s.UpdateStreamingStatus(0, name, url)
}

func (g *Gateway) SetWatching(name string) error {
	return g.s.UpdateWatchStatus(0, name)
}

var buttonStyles = map[gateway.ButtonStyle]discordgo.ButtonStyle{
	gateway.Primary:   discordgo.PrimaryButton,
	gateway.Secondary: discordgo.SecondaryButton,
	gateway.Success:   discordgo.SuccessButton,
	gateway.Danger:    discordgo.DangerButton,
}

func toEmbed(e *gateway.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		URL:         e.URL,
		Color:       e.Color,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if e.ImageURL != "" {
		out.Image = &discordgo.MessageEmbedImage{URL: e.ImageURL}
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value})
	}
	return out
}

// toComponents lays buttons out in rows of five.
func toComponents(buttons []gateway.Button) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	for start := 0; start < len(buttons); start += 5 {
		end := min(start+5, len(buttons))
		row := discordgo.ActionsRow{}
		for _, b := range buttons[start:end] {
			btn := discordgo.Button{CustomID: b.CustomID, Label: b.Label, Style: buttonStyles[b.Style]}
			if b.Emoji != "" {
				btn.Emoji = &discordgo.ComponentEmoji{Name: b.Emoji}
			}
			row.Components = append(row.Components, btn)
		}
		rows = append(rows, row)
	}
	return rows
}

func toMessageSend(msg gateway.Message) *discordgo.MessageSend {
	out := &discordgo.MessageSend{Content: msg.Content, Components: toComponents(msg.Buttons)}
	if msg.Embed != nil {
		out.Embeds = []*discordgo.MessageEmbed{toEmbed(msg.Embed)}
	}
	return out
}

func toModal(m gateway.Modal) *discordgo.InteractionResponseData {
	data := &discordgo.InteractionResponseData{CustomID: m.CustomID, Title: m.Title}
	for _, in := range m.Inputs {
		data.Components = append(data.Components, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{CustomID: in.CustomID, Label: in.Label, Style: discordgo.TextInputShort, Required: true, MaxLength: 100},
		}})
	}
	return data
}

// modalValues collects the submitted text inputs by custom id.
func modalValues(components []discordgo.MessageComponent) map[string]string {
	out := map[string]string{}
	for _, c := range components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if in, ok := inner.(*discordgo.TextInput); ok {
				out[in.CustomID] = strings.TrimSpace(in.Value)
			}
		}
	}
	return out
}
