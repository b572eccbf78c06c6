package bot

import (
	"context"
	"time"

	"github.com/onnwee/hundy-bot/gateway"
)

// Kind is the type of a gateway event.
type Kind string

const (
	KindMessage        Kind = "message"
	KindCommand        Kind = "command"
	KindButton         Kind = "button"
	KindModal          Kind = "modal"
	KindReactionAdd    Kind = "reaction_add"
	KindReactionRemove Kind = "reaction_remove"
)

// Perms are the acting member's capabilities in the event's channel.
type Perms struct {
	ManageChannels bool
	ManageMessages bool
}

// Responder answers the interaction that produced an event.
type Responder interface {
	// Reply sends the interaction response; private replies are only shown
	// to the actor.
	Reply(ctx context.Context, msg gateway.Message, private bool) error
	// ShowModal answers with a form.
	ShowModal(ctx context.Context, modal gateway.Modal) error
	// Ack acknowledges without a visible reply.
	Ack(ctx context.Context) error
	// Replied reports whether any response was sent.
	Replied() bool
}

// Event is an immutable description of one gateway event. Key selects the
// handler: the command name or the component or modal custom id. Messages
// and reactions have an empty Key.
type Event struct {
	Kind      Kind
	Key       string
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	Username  string
	Perms     Perms

	Content       string
	HasAttachment bool
	Timestamp     time.Time
	Emoji         string

	// Options holds command options and modal inputs by name.
	Options map[string]string

	// Responder is nil for messages and reactions.
	Responder Responder
}

// Option returns a command option or modal input.
func (e Event) Option(name string) string { return e.Options[name] }

func (e Event) reply(ctx context.Context, msg gateway.Message, private bool) error {
	if e.Responder == nil {
		return nil
	}
	return e.Responder.Reply(ctx, msg, private)
}

func (e Event) replyText(ctx context.Context, content string) error {
	return e.reply(ctx, gateway.Text(content), true)
}
