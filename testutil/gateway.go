package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/hundy-bot/gateway"
)

// SentMessage records a message posted through FakeGateway.
type SentMessage struct {
	ChannelID string
	ID        string
	Message   gateway.Message
}

// Timeout records a member timeout.
type Timeout struct {
	GuildID  string
	UserID   string
	Duration time.Duration
	Reason   string
}

// Overwrite records a connect permission change.
type Overwrite struct {
	ChannelID string
	TargetID  string
	Role      bool
	Allow     bool
}

// DM records a direct message.
type DM struct {
	UserID  string
	Content string
}

// FakeGateway is an in-memory chat platform recording every call. Set
// Errors[method] to make that method fail.
type FakeGateway struct {
	mu sync.Mutex

	Errors      map[string]error
	CanModerate bool
	// AbsentMembers lists user ids that MemberExists reports as missing.
	AbsentMembers map[string]bool

	Sent            []SentMessage
	DeletedMessages []string
	Timeouts        []Timeout
	Channels        map[string]gateway.ChannelSpec
	CreatedChannels []string
	DeletedChannels []string
	Renames         map[string]string
	Overwrites      []Overwrite
	Invites         []string
	DMs             []DM
	Roles           map[string]string
	CreatedRoles    []string
	MemberRoles     map[string]map[string]bool
	RemovedRoles    []string
	Usernames       map[string]string
	Reactions       []string
	BulkDeleted     int

	messages map[string]bool
	nextID   int
}

// NewFakeGateway returns an empty fake.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		Errors:        map[string]error{},
		AbsentMembers: map[string]bool{},
		Channels:      map[string]gateway.ChannelSpec{},
		Renames:       map[string]string{},
		Roles:         map[string]string{},
		MemberRoles:   map[string]map[string]bool{},
		Usernames:     map[string]string{},
		messages:      map[string]bool{},
	}
}

func (f *FakeGateway) fail(method string) error {
	return f.Errors[method]
}

func (f *FakeGateway) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

// AddChannel registers an existing channel.
func (f *FakeGateway) AddChannel(id string, spec gateway.ChannelSpec) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Channels[id] = spec
}

// RemoveChannel makes a channel disappear, as if deleted by hand.
func (f *FakeGateway) RemoveChannel(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Channels, id)
}

// RemoveMessage makes a message disappear.
func (f *FakeGateway) RemoveMessage(channelID, messageID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.messages, channelID+"/"+messageID)
}

// GrantRole gives userID roleID.
func (f *FakeGateway) GrantRole(userID, roleID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grant(userID, roleID)
}

func (f *FakeGateway) grant(userID, roleID string) {
	if f.MemberRoles[userID] == nil {
		f.MemberRoles[userID] = map[string]bool{}
	}
	f.MemberRoles[userID][roleID] = true
}

// SentTo returns messages posted to channelID.
func (f *FakeGateway) SentTo(channelID string) []gateway.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []gateway.Message
	for _, m := range f.Sent {
		if m.ChannelID == channelID {
			out = append(out, m.Message)
		}
	}
	return out
}

func (f *FakeGateway) Send(_ context.Context, channelID string, msg gateway.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("Send"); err != nil {
		return "", err
	}
	id := f.id("msg")
	f.Sent = append(f.Sent, SentMessage{ChannelID: channelID, ID: id, Message: msg})
	f.messages[channelID+"/"+id] = true
	return id, nil
}

func (f *FakeGateway) DeleteMessage(_ context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("DeleteMessage"); err != nil {
		return err
	}
	f.DeletedMessages = append(f.DeletedMessages, messageID)
	delete(f.messages, channelID+"/"+messageID)
	return nil
}

func (f *FakeGateway) Moderatable(context.Context, string, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("Moderatable"); err != nil {
		return false, err
	}
	return f.CanModerate, nil
}

func (f *FakeGateway) TimeoutMember(_ context.Context, guildID, userID string, d time.Duration, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("TimeoutMember"); err != nil {
		return err
	}
	f.Timeouts = append(f.Timeouts, Timeout{GuildID: guildID, UserID: userID, Duration: d, Reason: reason})
	return nil
}

func (f *FakeGateway) RoleByName(_ context.Context, _ string, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("RoleByName"); err != nil {
		return "", err
	}
	return f.Roles[name], nil
}

func (f *FakeGateway) CreateRole(_ context.Context, _ string, name string, _ int, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CreateRole"); err != nil {
		return "", err
	}
	id := f.id("role")
	f.Roles[name] = id
	f.CreatedRoles = append(f.CreatedRoles, name)
	return id, nil
}

func (f *FakeGateway) MemberHasRole(_ context.Context, _, userID, roleID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("MemberHasRole"); err != nil {
		return false, err
	}
	return f.MemberRoles[userID][roleID], nil
}

func (f *FakeGateway) AddRole(_ context.Context, _, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("AddRole"); err != nil {
		return err
	}
	f.grant(userID, roleID)
	return nil
}

func (f *FakeGateway) RemoveRole(_ context.Context, _, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("RemoveRole"); err != nil {
		return err
	}
	delete(f.MemberRoles[userID], roleID)
	f.RemovedRoles = append(f.RemovedRoles, roleID)
	return nil
}

func (f *FakeGateway) CreateChannel(_ context.Context, _ string, spec gateway.ChannelSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CreateChannel"); err != nil {
		return "", err
	}
	id := f.id("chan")
	f.Channels[id] = spec
	f.CreatedChannels = append(f.CreatedChannels, id)
	return id, nil
}

func (f *FakeGateway) ChannelExists(_ context.Context, channelID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("ChannelExists"); err != nil {
		return false, err
	}
	_, ok := f.Channels[channelID]
	return ok, nil
}

func (f *FakeGateway) MessageExists(_ context.Context, channelID, messageID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("MessageExists"); err != nil {
		return false, err
	}
	return f.messages[channelID+"/"+messageID], nil
}

func (f *FakeGateway) DeleteChannel(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("DeleteChannel"); err != nil {
		return err
	}
	delete(f.Channels, channelID)
	f.DeletedChannels = append(f.DeletedChannels, channelID)
	return nil
}

func (f *FakeGateway) RenameChannel(_ context.Context, channelID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("RenameChannel"); err != nil {
		return err
	}
	f.Renames[channelID] = name
	return nil
}

func (f *FakeGateway) SetConnect(_ context.Context, channelID, targetID string, role, allow bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("SetConnect"); err != nil {
		return err
	}
	f.Overwrites = append(f.Overwrites, Overwrite{ChannelID: channelID, TargetID: targetID, Role: role, Allow: allow})
	return nil
}

func (f *FakeGateway) MemberExists(_ context.Context, _, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("MemberExists"); err != nil {
		return false, err
	}
	return !f.AbsentMembers[userID], nil
}

func (f *FakeGateway) CreateInvite(_ context.Context, channelID string, _ time.Duration, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CreateInvite"); err != nil {
		return "", err
	}
	url := "https://discord.gg/" + f.id("inv")
	f.Invites = append(f.Invites, channelID)
	return url, nil
}

func (f *FakeGateway) DirectMessage(_ context.Context, userID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("DirectMessage"); err != nil {
		return err
	}
	f.DMs = append(f.DMs, DM{UserID: userID, Content: content})
	return nil
}

func (f *FakeGateway) Username(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("Username"); err != nil {
		return "", err
	}
	if name, ok := f.Usernames[userID]; ok {
		return name, nil
	}
	return "user" + userID, nil
}

func (f *FakeGateway) AddReaction(_ context.Context, _, _, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("AddReaction"); err != nil {
		return err
	}
	f.Reactions = append(f.Reactions, emoji)
	return nil
}

// RecentMessages returns the newest limit messages sent to channelID, newest
// first, all marked as the bot's own.
func (f *FakeGateway) RecentMessages(_ context.Context, channelID string, limit int) ([]gateway.Posted, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("RecentMessages"); err != nil {
		return nil, err
	}
	var out []gateway.Posted
	for i := len(f.Sent) - 1; i >= 0 && len(out) < limit; i-- {
		m := f.Sent[i]
		if m.ChannelID != channelID {
			continue
		}
		p := gateway.Posted{ID: m.ID, Own: true}
		if m.Message.Embed != nil {
			p.EmbedTitle = m.Message.Embed.Title
		}
		out = append(out, p)
	}
	return out, nil
}

// BulkDelete removes up to limit messages previously sent to channelID.
func (f *FakeGateway) BulkDelete(_ context.Context, channelID string, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("BulkDelete"); err != nil {
		return 0, err
	}
	n := 0
	for key := range f.messages {
		if n == limit {
			break
		}
		if strings.HasPrefix(key, channelID+"/") {
			delete(f.messages, key)
			n++
		}
	}
	f.BulkDeleted += n
	return n, nil
}
