// Package voice manages member-owned voice channels. Each session pairs a
// voice channel with a private control channel holding a button controller;
// the vcChannels document maps owner id to the three ids.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/onnwee/hundy-bot/apperr"
	"github.com/onnwee/hundy-bot/gateway"
	"github.com/onnwee/hundy-bot/store"
	"github.com/onnwee/hundy-bot/telemetry"
)

const (
	// MaxNameLength caps channel names.
	MaxNameLength = 90
	// InviteMaxAge and InviteMaxUses bound invites created by Invite.
	InviteMaxAge  = time.Hour
	InviteMaxUses = 1
	// DefaultMinLevel is the level needed to create a session.
	DefaultMinLevel = 1
)

// Session is one record of the vcChannels document.
type Session struct {
	VoiceChannelID   string `json:"voiceChannelId"`
	ControlChannelID string `json:"controlChannelId"`
	ControlMessageID string `json:"controlMessageId,omitempty"`
}

// Document is the vcChannels document keyed by owner id.
type Document map[string]Session

// Gateway is the chat platform surface sessions need.
type Gateway interface {
	CreateChannel(ctx context.Context, guildID string, spec gateway.ChannelSpec) (string, error)
	Send(ctx context.Context, channelID string, msg gateway.Message) (string, error)
	ChannelExists(ctx context.Context, channelID string) (bool, error)
	MessageExists(ctx context.Context, channelID, messageID string) (bool, error)
	DeleteChannel(ctx context.Context, channelID string) error
	RenameChannel(ctx context.Context, channelID, name string) error
	SetConnect(ctx context.Context, channelID, targetID string, role, allow bool) error
	MemberExists(ctx context.Context, guildID, userID string) (bool, error)
	CreateInvite(ctx context.Context, channelID string, maxAge time.Duration, maxUses int) (string, error)
	DirectMessage(ctx context.Context, userID, content string) error
	Username(ctx context.Context, userID string) (string, error)
}

// Levels reports a member's xp level.
type Levels interface {
	Level(ctx context.Context, userID string) (int, error)
}

// WordList reports whether text contains a banned word.
type WordList interface {
	ContainsBanned(text string) bool
}

// Actor is the member performing an action.
type Actor struct {
	UserID            string
	Username          string
	CanManageChannels bool
}

// Options configures a Manager.
type Options struct {
	// HubChannelID is never deleted with a session.
	HubChannelID string
	CategoryID   string
	MinLevel     int
	Footer       string
}

// Manager creates and controls voice sessions.
type Manager struct {
	store    *store.Store
	gw       Gateway
	levels   Levels
	words    WordList
	hub      string
	category string
	minLevel int
	footer   string
}

// NewManager returns a Manager.
func NewManager(s *store.Store, gw Gateway, levels Levels, words WordList, opts Options) *Manager {
	m := &Manager{
		store:    s,
		gw:       gw,
		levels:   levels,
		words:    words,
		hub:      opts.HubChannelID,
		category: opts.CategoryID,
		minLevel: opts.MinLevel,
		footer:   opts.Footer,
	}
	if m.minLevel <= 0 {
		m.minLevel = DefaultMinLevel
	}
	if m.footer == "" {
		m.footer = "2Hundy VC Manager"
	}
	return m
}

// Create opens a session for actor: a voice channel, a private control
// channel and the controller message. It fails when actor is below the
// minimum level or already owns a live voice channel.
//
// Channels are provisioned while the sessions document is locked, so two
// concurrent creates for one owner cannot both succeed. Other session
// updates wait for the gateway calls.
func (m *Manager) Create(ctx context.Context, guildID string, actor Actor) (Session, error) {
	level, err := m.levels.Level(ctx, actor.UserID)
	if err != nil {
		return Session{}, err
	}
	if level < m.minLevel {
		return Session{}, apperr.Newf(apperr.KindPermissionDenied, "voice.create",
			"%s You must be at least **Level %d** to create a custom voice channel.", apperr.Warning, m.minLevel)
	}

	name := truncate(actor.Username)
	var created Session
	_, err = store.Update(ctx, m.store, store.DocVoice, func(doc *Document) error {
		if *doc == nil {
			*doc = Document{}
		}
		if existing, ok := (*doc)[actor.UserID]; ok && existing.VoiceChannelID != "" && created.VoiceChannelID == "" {
			live, err := m.gw.ChannelExists(ctx, existing.VoiceChannelID)
			if err != nil {
				return apperr.External("voice.create", err)
			}
			if live {
				return apperr.Newf(apperr.KindAlreadyExists, "voice.create",
					"%s You already have a voice channel: %s", apperr.Warning, gateway.ChannelMention(existing.VoiceChannelID))
			}
		}
		if err := m.provision(ctx, guildID, actor, name, &created); err != nil {
			return err
		}
		(*doc)[actor.UserID] = created
		return nil
	})
	if err != nil {
		m.discard(ctx, created.VoiceChannelID, created.ControlChannelID)
		var ae *apperr.Error
		if errors.As(err, &ae) && ae.Msg != "" {
			return Session{}, err
		}
		return Session{}, apperr.Failed("voice.create", "Failed to create voice channel. Check bot permissions.", err)
	}
	telemetry.CountVoiceAction("create")
	m.refreshGauge(ctx)
	return created, nil
}

// provision creates whatever part of s is still missing so a retried update
// reuses channels made by an earlier attempt.
func (m *Manager) provision(ctx context.Context, guildID string, actor Actor, name string, s *Session) error {
	var err error
	if s.VoiceChannelID == "" {
		s.VoiceChannelID, err = m.gw.CreateChannel(ctx, guildID, gateway.ChannelSpec{
			Name:     name + "'s VC",
			Kind:     gateway.VoiceChannel,
			ParentID: m.category,
			OwnerID:  actor.UserID,
		})
		if err != nil {
			return apperr.External("voice.create", err)
		}
	}
	if s.ControlChannelID == "" {
		s.ControlChannelID, err = m.gw.CreateChannel(ctx, guildID, gateway.ChannelSpec{
			Name:     name + "-vc-controls",
			Kind:     gateway.TextChannel,
			ParentID: m.category,
			Private:  true,
			OwnerID:  actor.UserID,
		})
		if err != nil {
			return apperr.External("voice.create", err)
		}
	}
	if s.ControlMessageID == "" {
		s.ControlMessageID, err = m.gw.Send(ctx, s.ControlChannelID, m.Controller(actor.UserID, actor.Username, s.VoiceChannelID))
		if err != nil {
			return apperr.External("voice.create", err)
		}
	}
	return nil
}

// Lock denies everyone the connect permission on owner's voice channel.
func (m *Manager) Lock(ctx context.Context, guildID string, actor Actor, ownerID string) error {
	return m.setEveryoneConnect(ctx, guildID, actor, ownerID, false)
}

// Unlock restores everyone's connect permission.
func (m *Manager) Unlock(ctx context.Context, guildID string, actor Actor, ownerID string) error {
	return m.setEveryoneConnect(ctx, guildID, actor, ownerID, true)
}

func (m *Manager) setEveryoneConnect(ctx context.Context, guildID string, actor Actor, ownerID string, allow bool) error {
	op, action, failMsg := "voice.lock", "lock", "Failed to lock channel."
	if allow {
		op, action, failMsg = "voice.unlock", "unlock", "Failed to unlock channel."
	}
	s, err := m.liveSession(ctx, op, actor, ownerID)
	if err != nil {
		return err
	}
	// The @everyone role shares the guild's id.
	if err := m.gw.SetConnect(ctx, s.VoiceChannelID, guildID, true, allow); err != nil {
		return apperr.Failed(op, failMsg, err)
	}
	telemetry.CountVoiceAction(action)
	return nil
}

// RenameResult reports the name applied by Rename.
type RenameResult struct {
	Name string
	// Reset is set when the requested name held a banned word and the
	// default name was applied instead.
	Reset bool
}

// Rename renames owner's voice channel. Names are cut to MaxNameLength and a
// name containing a banned word resets the channel to "{username}'s VC".
func (m *Manager) Rename(ctx context.Context, actor Actor, ownerID, requested string) (RenameResult, error) {
	name := truncate(strings.TrimSpace(requested))
	if name == "" {
		return RenameResult{}, apperr.New(apperr.KindValidation, "voice.rename", "Provide a channel name.")
	}
	s, err := m.liveSession(ctx, "voice.rename", actor, ownerID)
	if err != nil {
		return RenameResult{}, err
	}
	res := RenameResult{Name: name}
	if m.words != nil && m.words.ContainsBanned(name) {
		res = RenameResult{Name: truncate(actor.Username) + "'s VC", Reset: true}
	}
	if err := m.gw.RenameChannel(ctx, s.VoiceChannelID, res.Name); err != nil {
		return RenameResult{}, apperr.Failed("voice.rename", "Failed to rename channel.", err)
	}
	telemetry.CountVoiceAction("rename")
	return res, nil
}

// Reply is the private confirmation for a rename.
func (r RenameResult) Reply() string {
	if r.Reset {
		return apperr.Warning + " That name contains a banned word. Reset to default instead."
	}
	return fmt.Sprintf("✏️ Channel renamed to **%s**", r.Name)
}

// Invitation reports the outcome of Invite.
type Invitation struct {
	OwnerID  string
	TargetID string
	URL      string
	DMSent   bool
}

// Invite grants the member named by raw (a mention or bare id) connect
// permission on owner's voice channel, creates a single-use invite and
// tries to DM it to them.
func (m *Manager) Invite(ctx context.Context, guildID string, actor Actor, ownerID, raw string) (Invitation, error) {
	const op = "voice.invite"
	s, err := m.session(ctx, op, actor, ownerID)
	if err != nil {
		return Invitation{}, err
	}
	target, ok := ParseTarget(raw)
	if !ok {
		return Invitation{}, apperr.New(apperr.KindValidation, op, "Provide a valid user ID or mention.")
	}
	if target == ownerID {
		return Invitation{}, apperr.New(apperr.KindValidation, op, apperr.Warning+" You are already the owner of this VC.")
	}
	if err := m.requireVoice(ctx, op, s); err != nil {
		return Invitation{}, err
	}

	present, err := m.gw.MemberExists(ctx, guildID, target)
	if err != nil {
		return Invitation{}, apperr.Failed(op, "Failed to add user to VC permissions.", err)
	}
	if !present {
		return Invitation{}, apperr.New(apperr.KindNotFound, op, "Failed to add user to VC permissions.")
	}
	if err := m.gw.SetConnect(ctx, s.VoiceChannelID, target, false, true); err != nil {
		return Invitation{}, apperr.Failed(op, "Failed to add user to VC permissions.", err)
	}
	url, err := m.gw.CreateInvite(ctx, s.VoiceChannelID, InviteMaxAge, InviteMaxUses)
	if err != nil {
		return Invitation{}, apperr.Failed(op, "Failed to create invite (permissions?).", err)
	}

	inv := Invitation{OwnerID: ownerID, TargetID: target, URL: url}
	dm := fmt.Sprintf("🤝 You have been invited to join a voice channel by %s: %s", gateway.Mention(ownerID), url)
	if err := m.gw.DirectMessage(ctx, target, dm); err != nil {
		slog.Debug("invite dm failed", slog.String("user", target), slog.Any("err", err))
	} else {
		inv.DMSent = true
	}
	telemetry.CountVoiceAction("invite")
	return inv, nil
}

// Reply is the private confirmation for an invite.
func (i Invitation) Reply() string {
	if i.DMSent {
		return fmt.Sprintf("✅ Invite created and DM sent to %s! (Expires in 1h / 1 use)\n🔓 You have also been granted access to the VC.", gateway.Mention(i.TargetID))
	}
	return fmt.Sprintf("✅ Invite created: %s\n🔓 You have also been granted access to the VC.\n%s Could not DM %s. Share the link manually.",
		i.URL, apperr.Warning, gateway.Mention(i.TargetID))
}

// Delete removes owner's voice and control channels, never the hub, and
// erases the record. Channel deletion is best-effort.
func (m *Manager) Delete(ctx context.Context, actor Actor, ownerID string) error {
	const op = "voice.delete"
	if err := authorize(op, actor, ownerID); err != nil {
		return err
	}
	var removed Session
	_, err := store.Update(ctx, m.store, store.DocVoice, func(doc *Document) error {
		s, ok := (*doc)[ownerID]
		if !ok {
			return apperr.New(apperr.KindNotFound, op, "VC record not found.")
		}
		removed = s
		delete(*doc, ownerID)
		return nil
	})
	if err != nil {
		return err
	}
	m.discard(ctx, removed.VoiceChannelID, removed.ControlChannelID)
	telemetry.CountVoiceAction("delete")
	m.refreshGauge(ctx)
	return nil
}

// DeletedReply is the private confirmation for a delete.
const DeletedReply = "🗑️ Your voice channel and controller have been deleted. You can create a new one anytime with the **Create VC** button."

// Recover recreates the control channel and controller of every session
// whose control channel or message is gone. Voice channel ids are kept.
// It returns the number of sessions repaired.
func (m *Manager) Recover(ctx context.Context, guildID string) (int, error) {
	doc, err := store.Read[Document](ctx, m.store, store.DocVoice)
	if err != nil {
		return 0, err
	}
	repaired := 0
	for ownerID, s := range doc {
		intact, err := m.controlIntact(ctx, s)
		if err != nil {
			slog.Warn("voice controller check failed", slog.String("owner", ownerID), slog.Any("err", err))
			continue
		}
		if intact {
			continue
		}
		if err := m.rebuildController(ctx, guildID, ownerID, s.VoiceChannelID); err != nil {
			slog.Error("voice controller recovery failed", slog.String("owner", ownerID), slog.Any("err", err))
			continue
		}
		repaired++
	}
	m.refreshGauge(ctx)
	return repaired, nil
}

func (m *Manager) controlIntact(ctx context.Context, s Session) (bool, error) {
	if s.ControlChannelID == "" || s.ControlMessageID == "" {
		return false, nil
	}
	ok, err := m.gw.ChannelExists(ctx, s.ControlChannelID)
	if err != nil || !ok {
		return false, err
	}
	return m.gw.MessageExists(ctx, s.ControlChannelID, s.ControlMessageID)
}

func (m *Manager) rebuildController(ctx context.Context, guildID, ownerID, voiceID string) error {
	username, err := m.gw.Username(ctx, ownerID)
	if err != nil || username == "" {
		username = ownerID
	}
	controlID, err := m.gw.CreateChannel(ctx, guildID, gateway.ChannelSpec{
		Name:     fmt.Sprintf("vc-%s-control", truncate(username)),
		Kind:     gateway.TextChannel,
		ParentID: m.category,
		Private:  true,
		OwnerID:  ownerID,
	})
	if err != nil {
		return err
	}
	msgID, err := m.gw.Send(ctx, controlID, m.Controller(ownerID, username, voiceID))
	if err != nil {
		m.discard(ctx, "", controlID)
		return err
	}
	_, err = store.Update(ctx, m.store, store.DocVoice, func(doc *Document) error {
		if *doc == nil {
			*doc = Document{}
		}
		s := (*doc)[ownerID]
		s.ControlChannelID, s.ControlMessageID = controlID, msgID
		(*doc)[ownerID] = s
		return nil
	})
	if err != nil {
		m.discard(ctx, "", controlID)
	}
	return err
}

// ActiveCount returns the number of recorded sessions.
func (m *Manager) ActiveCount(ctx context.Context) (int, error) {
	doc, err := store.Read[Document](ctx, m.store, store.DocVoice)
	return len(doc), err
}

// Lookup returns owner's session.
func (m *Manager) Lookup(ctx context.Context, ownerID string) (Session, bool, error) {
	doc, err := store.Read[Document](ctx, m.store, store.DocVoice)
	if err != nil {
		return Session{}, false, err
	}
	s, ok := doc[ownerID]
	return s, ok, nil
}

// Authorize checks that actor may manage owner's session and that the
// session exists. Used before prompting for rename or invite input.
func (m *Manager) Authorize(ctx context.Context, actor Actor, ownerID string) error {
	_, err := m.session(ctx, "voice.authorize", actor, ownerID)
	return err
}

func authorize(op string, actor Actor, ownerID string) error {
	if actor.UserID == ownerID || actor.CanManageChannels {
		return nil
	}
	return apperr.New(apperr.KindPermissionDenied, op, "You don’t own this VC or have permission to manage it.")
}

// session authorizes actor and loads owner's record.
func (m *Manager) session(ctx context.Context, op string, actor Actor, ownerID string) (Session, error) {
	if err := authorize(op, actor, ownerID); err != nil {
		return Session{}, err
	}
	s, ok, err := m.Lookup(ctx, ownerID)
	if err != nil {
		return Session{}, err
	}
	if !ok || s.VoiceChannelID == "" {
		return Session{}, apperr.New(apperr.KindNotFound, op, "VC record not found.")
	}
	return s, nil
}

// liveSession is session plus a check that the voice channel still exists.
func (m *Manager) liveSession(ctx context.Context, op string, actor Actor, ownerID string) (Session, error) {
	s, err := m.session(ctx, op, actor, ownerID)
	if err != nil {
		return Session{}, err
	}
	return s, m.requireVoice(ctx, op, s)
}

func (m *Manager) requireVoice(ctx context.Context, op string, s Session) error {
	ok, err := m.gw.ChannelExists(ctx, s.VoiceChannelID)
	if err != nil {
		return apperr.External(op, err)
	}
	if !ok {
		return apperr.New(apperr.KindNotFound, op, "Voice channel not found.")
	}
	return nil
}

func (m *Manager) discard(ctx context.Context, voiceID, controlID string) {
	for _, id := range []string{voiceID, controlID} {
		if id == "" || id == m.hub {
			continue
		}
		if err := m.gw.DeleteChannel(ctx, id); err != nil {
			slog.Warn("voice channel delete failed", slog.String("channel", id), slog.Any("err", err))
		}
	}
}

func (m *Manager) refreshGauge(ctx context.Context) {
	n, err := m.ActiveCount(ctx)
	if err != nil {
		return
	}
	telemetry.SetVoiceSessions(n)
}

var (
	mentionRe = regexp.MustCompile(`<@!?(\d{17,19})>`)
	idRe      = regexp.MustCompile(`\d{17,19}`)
)

// ParseTarget extracts a user id from a mention or a bare snowflake.
func ParseTarget(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if m := mentionRe.FindStringSubmatch(raw); m != nil {
		return m[1], true
	}
	if id := idRe.FindString(raw); id != "" {
		return id, true
	}
	return "", false
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) > MaxNameLength {
		return string(r[:MaxNameLength])
	}
	return s
}
