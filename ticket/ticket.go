// Package ticket runs private support channels between a member and staff.
// The tickets document maps channel id to {userId, status, reason}; a member
// may hold at most one open ticket, and closing a ticket drops the record at
// once and deletes the channel after a short grace delay.
package ticket

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/hundy-bot/apperr"
	"github.com/onnwee/hundy-bot/gateway"
	"github.com/onnwee/hundy-bot/store"
	"github.com/onnwee/hundy-bot/telemetry"
)

// Status of a ticket.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// CloseButtonID is the custom id of the close button posted in every ticket channel.
const CloseButtonID = "close_ticket"

// OpenButtonID is the custom id of the ticket menu button.
const OpenButtonID = "open_ticket"

// DefaultCloseDelay is how long a closed ticket channel lingers.
const DefaultCloseDelay = 3 * time.Second

// Ticket is one record of the tickets document.
type Ticket struct {
	UserID string `json:"userId"`
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Document is the tickets document keyed by channel id.
type Document map[string]Ticket

// Gateway is the chat platform surface tickets need.
type Gateway interface {
	CreateChannel(ctx context.Context, guildID string, spec gateway.ChannelSpec) (string, error)
	Send(ctx context.Context, channelID string, msg gateway.Message) (string, error)
	DeleteChannel(ctx context.Context, channelID string) error
}

// Options configures a Registry.
type Options struct {
	StaffRoleIDs []string
	CategoryID   string
	CloseDelay   time.Duration
	// AfterFunc schedules deferred channel deletion; defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func())
}

// Registry opens and closes tickets.
type Registry struct {
	store     *store.Store
	gw        Gateway
	staff     []string
	category  string
	delay     time.Duration
	afterFunc func(time.Duration, func())
}

// NewRegistry returns a Registry.
func NewRegistry(s *store.Store, gw Gateway, opts Options) *Registry {
	r := &Registry{
		store:     s,
		gw:        gw,
		staff:     nonEmpty(opts.StaffRoleIDs),
		category:  opts.CategoryID,
		delay:     opts.CloseDelay,
		afterFunc: opts.AfterFunc,
	}
	if r.delay <= 0 {
		r.delay = DefaultCloseDelay
	}
	if r.afterFunc == nil {
		r.afterFunc = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	return r
}

func nonEmpty(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) != "" {
			out = append(out, id)
		}
	}
	return out
}

var errAlreadyOpen = apperr.New(apperr.KindAlreadyExists, "ticket.open", "You already have an open ticket.")

// Open creates a private channel for userID and records the ticket. It fails
// with KindAlreadyExists when the user already has an open ticket.
//
// The channel is created while the tickets document is locked, so the
// one-ticket check and the creation are atomic. Other ticket updates wait
// for the gateway call.
func (r *Registry) Open(ctx context.Context, guildID, userID, username string) (string, error) {
	var created string
	_, err := store.Update(ctx, r.store, store.DocTickets, func(doc *Document) error {
		if *doc == nil {
			*doc = Document{}
		}
		if hasOpen(*doc, userID) {
			return errAlreadyOpen
		}
		if created == "" {
			id, err := r.gw.CreateChannel(ctx, guildID, r.channelSpec("ticket-"+username, userID))
			if err != nil {
				return apperr.Failed("ticket.open", "Failed to create ticket. Check bot permissions.", err)
			}
			created = id
		}
		(*doc)[created] = Ticket{UserID: userID, Status: StatusOpen}
		return nil
	})
	if err != nil {
		if created != "" {
			r.discard(ctx, created)
		}
		return "", err
	}
	telemetry.CountTicket("open")
	r.refreshGauge(ctx)

	welcome := gateway.Message{
		Content: fmt.Sprintf("Hello %s, support will be with you shortly.", gateway.Mention(userID)),
		Buttons: []gateway.Button{CloseButton()},
	}
	if _, err := r.gw.Send(ctx, created, welcome); err != nil {
		slog.Warn("ticket welcome failed", slog.String("channel", created), slog.Any("err", err))
	}
	return created, nil
}

// Notify opens a staff-visible ticket about userID without the one-open-ticket
// check and posts content in it.
func (r *Registry) Notify(ctx context.Context, guildID, userID, channelName, reason, content string) (string, error) {
	id, err := r.gw.CreateChannel(ctx, guildID, r.channelSpec(channelName, userID))
	if err != nil {
		return "", apperr.External("ticket.notify", err)
	}
	if _, err := store.Update(ctx, r.store, store.DocTickets, func(doc *Document) error {
		if *doc == nil {
			*doc = Document{}
		}
		(*doc)[id] = Ticket{UserID: userID, Status: StatusOpen, Reason: reason}
		return nil
	}); err != nil {
		r.discard(ctx, id)
		return "", err
	}
	telemetry.CountTicket("notify")
	r.refreshGauge(ctx)
	if _, err := r.gw.Send(ctx, id, gateway.Message{Content: content, Buttons: []gateway.Button{CloseButton()}}); err != nil {
		slog.Warn("ticket notice failed", slog.String("channel", id), slog.Any("err", err))
	}
	return id, nil
}

// Close removes the ticket recorded for channelID and schedules the channel's
// deletion. It fails with KindNotFound for channels that are not tickets.
func (r *Registry) Close(ctx context.Context, channelID string) error {
	_, err := store.Update(ctx, r.store, store.DocTickets, func(doc *Document) error {
		if _, ok := (*doc)[channelID]; !ok {
			return apperr.New(apperr.KindNotFound, "ticket.close", "Ticket not found.")
		}
		delete(*doc, channelID)
		return nil
	})
	if err != nil {
		return err
	}
	telemetry.CountTicket("close")
	r.refreshGauge(ctx)

	notice := fmt.Sprintf("🔒 Ticket closed. Channel will be deleted in %s.", humanSeconds(r.delay))
	if _, err := r.gw.Send(ctx, channelID, gateway.Text(notice)); err != nil {
		slog.Warn("ticket close notice failed", slog.String("channel", channelID), slog.Any("err", err))
	}
	r.afterFunc(r.delay, func() {
		dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.gw.DeleteChannel(dctx, channelID); err != nil {
			slog.Warn("ticket channel delete failed", slog.String("channel", channelID), slog.Any("err", err))
		}
	})
	return nil
}

// OpenCount returns the number of open tickets.
func (r *Registry) OpenCount(ctx context.Context) (int, error) {
	doc, err := store.Read[Document](ctx, r.store, store.DocTickets)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range doc {
		if t.Status == StatusOpen {
			n++
		}
	}
	return n, nil
}

// Menu is the message posted to the ticket menu channel.
func Menu() gateway.Message {
	return gateway.Message{
		Embed: &gateway.Embed{
			Title:       "🎫 Ticketing System",
			Description: "Welcome! Click the button below to open a ticket.",
			Color:       0x2ecc71,
			Footer:      "Support without clutter",
		},
		Buttons: []gateway.Button{{CustomID: OpenButtonID, Label: "🎟️ Open Ticket", Style: gateway.Primary}},
	}
}

// CloseButton is the button that closes the ticket it is posted in.
func CloseButton() gateway.Button {
	return gateway.Button{CustomID: CloseButtonID, Label: "Close Ticket", Style: gateway.Danger}
}

func (r *Registry) channelSpec(name, userID string) gateway.ChannelSpec {
	return gateway.ChannelSpec{
		Name:         name,
		Kind:         gateway.TextChannel,
		ParentID:     r.category,
		Private:      true,
		OwnerID:      userID,
		StaffRoleIDs: r.staff,
	}
}

func (r *Registry) discard(ctx context.Context, channelID string) {
	if err := r.gw.DeleteChannel(ctx, channelID); err != nil {
		slog.Warn("orphan ticket channel delete failed", slog.String("channel", channelID), slog.Any("err", err))
	}
}

func (r *Registry) refreshGauge(ctx context.Context) {
	n, err := r.OpenCount(ctx)
	if err != nil {
		slog.Debug("open ticket count failed", slog.Any("err", err))
		return
	}
	telemetry.SetOpenTickets(n)
}

func hasOpen(doc Document, userID string) bool {
	for _, t := range doc {
		if t.UserID == userID && t.Status == StatusOpen {
			return true
		}
	}
	return false
}

func humanSeconds(d time.Duration) string {
	s := int(d.Round(time.Second) / time.Second)
	if s == 1 {
		return "1 second"
	}
	return fmt.Sprintf("%d seconds", s)
}
