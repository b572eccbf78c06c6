// Package gateway holds the chat-platform value types shared by the domain
// packages. Each domain package declares the narrow interface it needs; the
// bot package implements all of them on top of a Discord session.
package gateway

import "fmt"

// ChannelKind distinguishes text from voice channels.
type ChannelKind int

const (
	TextChannel ChannelKind = iota
	VoiceChannel
)

// ChannelSpec describes a channel to create.
//
// For voice channels everyone may connect and OwnerID additionally gets
// manage rights. For private text channels everyone is denied view and
// OwnerID, MemberIDs and StaffRoleIDs may view and send.
type ChannelSpec struct {
	Name         string
	Kind         ChannelKind
	ParentID     string
	Private      bool
	OwnerID      string
	MemberIDs    []string
	StaffRoleIDs []string
}

// ButtonStyle mirrors the platform's button colours.
type ButtonStyle int

const (
	Primary ButtonStyle = iota
	Secondary
	Success
	Danger
)

// Button is an interactive control whose CustomID routes back to the bot.
type Button struct {
	CustomID string
	Label    string
	Emoji    string
	Style    ButtonStyle
}

// EmbedField is a titled block inside an Embed.
type EmbedField struct {
	Name  string
	Value string
}

// Embed is a rich message card.
type Embed struct {
	Title       string
	Description string
	URL         string
	Color       int
	ImageURL    string
	Footer      string
	Fields      []EmbedField
}

// Message is an outgoing message. Buttons are laid out in rows of five.
type Message struct {
	Content string
	Embed   *Embed
	Buttons []Button
}

// Posted is a message already in a channel, as seen when scanning history.
type Posted struct {
	ID         string
	Own        bool
	EmbedTitle string
}

// TextInput is a single-line field in a Modal.
type TextInput struct {
	CustomID string
	Label    string
}

// Modal is a form shown in response to a button press.
type Modal struct {
	CustomID string
	Title    string
	Inputs   []TextInput
}

// Text is shorthand for a plain message.
func Text(content string) Message { return Message{Content: content} }

// Mention renders a user mention.
func Mention(userID string) string { return fmt.Sprintf("<@%s>", userID) }

// ChannelMention renders a channel mention.
func ChannelMention(channelID string) string { return fmt.Sprintf("<#%s>", channelID) }
