package voice

import (
	"fmt"
	"strings"

	"github.com/onnwee/hundy-bot/gateway"
)

// Custom ids routed back from voice buttons and modals.
const (
	CreateButtonID     = "vc_create"
	ButtonPrefix       = "vc_"
	RenameModalPrefix  = "vc_rename_modal_"
	InviteModalPrefix  = "vc_invite_modal_"
	RenameInputID      = "vc_new_name"
	InviteInputID      = "vc_invite_user"
	HubTitle           = "🎛️ Voice Channel Manager"
	controllerColor    = 0x2ecc71
	controllerSuffix   = "'s VC Controller"
)

// Actions carried by controller buttons.
const (
	ActionLock   = "lock"
	ActionUnlock = "unlock"
	ActionRename = "rename"
	ActionInvite = "invite"
	ActionDelete = "delete"
)

// ButtonID is the custom id of a controller button.
func ButtonID(action, ownerID string) string { return ButtonPrefix + action + "_" + ownerID }

// ParseButtonID splits a controller button id into its action and owner.
func ParseButtonID(id string) (action, ownerID string, ok bool) {
	rest, found := strings.CutPrefix(id, ButtonPrefix)
	if !found {
		return "", "", false
	}
	action, ownerID, found = strings.Cut(rest, "_")
	if !found || action == "" || ownerID == "" || strings.Contains(ownerID, "_") {
		return "", "", false
	}
	return action, ownerID, true
}

// Controller is the button panel posted in a session's control channel.
func (m *Manager) Controller(ownerID, username, voiceChannelID string) gateway.Message {
	if username == "" {
		username = "User"
	}
	target := "❓ Unknown VC"
	if voiceChannelID != "" {
		target = gateway.ChannelMention(voiceChannelID)
	}
	return gateway.Message{
		Embed: &gateway.Embed{
			Title:       username + controllerSuffix,
			Description: fmt.Sprintf("Manage your voice channel: %s\n\nUse the buttons below to control your VC.", target),
			Color:       controllerColor,
			Footer:      m.footer,
		},
		Buttons: []gateway.Button{
			{CustomID: ButtonID(ActionLock, ownerID), Label: "🔒 Lock", Style: gateway.Danger},
			{CustomID: ButtonID(ActionUnlock, ownerID), Label: "🔓 Unlock", Style: gateway.Success},
			{CustomID: ButtonID(ActionRename, ownerID), Label: "✏️ Rename", Style: gateway.Primary},
			{CustomID: ButtonID(ActionInvite, ownerID), Label: "🤝 Invite", Style: gateway.Secondary},
			{CustomID: ButtonID(ActionDelete, ownerID), Label: "🗑️ Delete", Style: gateway.Secondary},
		},
	}
}

// Hub is the permanent message with the create button.
func (m *Manager) Hub() gateway.Message {
	return gateway.Message{
		Embed: &gateway.Embed{
			Title:       HubTitle,
			Description: fmt.Sprintf("Create and manage your own custom voice channel using the buttons below.\n\n⚠️ You must be at least **Level %d** to create a VC.", m.minLevel),
			Color:       controllerColor,
			Footer:      m.footer,
		},
		Buttons: []gateway.Button{{CustomID: CreateButtonID, Label: "➕ Create VC", Style: gateway.Success}},
	}
}

// CreatedReply is the private confirmation for Create.
func CreatedReply(s Session) string {
	return fmt.Sprintf("✅ Your voice channel has been created: %s\n🔗 Controller posted in %s",
		gateway.ChannelMention(s.VoiceChannelID), gateway.ChannelMention(s.ControlChannelID))
}

// RenameModal asks for a new channel name.
func RenameModal(ownerID string) gateway.Modal {
	return gateway.Modal{
		CustomID: RenameModalPrefix + ownerID,
		Title:    "Rename your VC",
		Inputs:   []gateway.TextInput{{CustomID: RenameInputID, Label: "New channel name"}},
	}
}

// InviteModal asks for the member to invite.
func InviteModal(ownerID string) gateway.Modal {
	return gateway.Modal{
		CustomID: InviteModalPrefix + ownerID,
		Title:    "Invite to your VC",
		Inputs:   []gateway.TextInput{{CustomID: InviteInputID, Label: "User ID or @mention"}},
	}
}
