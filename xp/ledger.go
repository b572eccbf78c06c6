// Package xp keeps the per-member experience ledger. Every allowed message
// earns a small increment; crossing (level+1)*200 xp raises the level by one,
// announces it and grants the matching "Level N" role, creating the role
// (and a staff notification ticket) the first time anyone reaches it.
package xp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/onnwee/hundy-bot/gateway"
	"github.com/onnwee/hundy-bot/store"
	"github.com/onnwee/hundy-bot/telemetry"
)

const (
	// Increment is the xp earned per allowed message.
	Increment = 0.05
	// LevelStep scales the threshold for leaving a level.
	LevelStep = 200
	// RoleColor is the colour of auto-created level roles.
	RoleColor = 0x3498db
	// LeaderboardSize is the number of entries shown by Leaderboard.
	LeaderboardSize = 10
)

// Record is one member's entry in the xp document.
type Record struct {
	XP    float64 `json:"xp"`
	Level int     `json:"level"`
}

// Document is the xp document keyed by member id.
type Document map[string]Record

// Threshold is the xp at which a member at level leaves it.
func Threshold(level int) float64 { return float64(level+1) * LevelStep }

// RoleName is the name of the role granted at level.
func RoleName(level int) string { return fmt.Sprintf("Level %d", level) }

// Gateway is the chat platform surface the ledger needs.
type Gateway interface {
	Send(ctx context.Context, channelID string, msg gateway.Message) (string, error)
	RoleByName(ctx context.Context, guildID, name string) (string, error)
	CreateRole(ctx context.Context, guildID, name string, color int, reason string) (string, error)
	MemberHasRole(ctx context.Context, guildID, userID, roleID string) (bool, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
}

// Notifier opens a staff-visible notification ticket.
type Notifier interface {
	Notify(ctx context.Context, guildID, userID, channelName, reason, content string) (string, error)
}

// Activity is an xp-earning event.
type Activity struct {
	GuildID   string
	ChannelID string
	UserID    string
	// Amount defaults to Increment when zero.
	Amount float64
}

// Result reports the member's record after an award.
type Result struct {
	Record  Record
	Leveled bool
}

// Entry is a leaderboard row.
type Entry struct {
	UserID string
	Record
}

// Ledger awards and reports experience.
type Ledger struct {
	store    *store.Store
	gw       Gateway
	notifier Notifier
}

// NewLedger returns a Ledger. notifier may be nil.
func NewLedger(s *store.Store, gw Gateway, notifier Notifier) *Ledger {
	return &Ledger{store: s, gw: gw, notifier: notifier}
}

// Award adds xp for a, advancing at most one level, and persists the record.
// Level-up side effects run after the write and never fail the award.
func (l *Ledger) Award(ctx context.Context, a Activity) (Result, error) {
	amount := a.Amount
	if amount == 0 {
		amount = Increment
	}
	var res Result
	_, err := store.Update(ctx, l.store, store.DocXP, func(doc *Document) error {
		if *doc == nil {
			*doc = Document{}
		}
		rec := (*doc)[a.UserID]
		rec.XP += amount
		leveled := false
		if rec.XP >= Threshold(rec.Level) {
			rec.Level++
			leveled = true
		}
		(*doc)[a.UserID] = rec
		res = Result{Record: rec, Leveled: leveled}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	telemetry.CountXPAward(res.Leveled)
	if res.Leveled {
		l.levelUp(ctx, a, res.Record.Level)
	}
	return res, nil
}

func (l *Ledger) levelUp(ctx context.Context, a Activity, level int) {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "xp"), slog.String("user", a.UserID), slog.Int("level", level))
	log.Info("level up")

	announce := fmt.Sprintf("🎉 Congrats %s, you reached **Level %d!**", gateway.Mention(a.UserID), level)
	if _, err := l.gw.Send(ctx, a.ChannelID, gateway.Text(announce)); err != nil {
		log.Warn("level-up announcement failed", slog.Any("err", err))
	}

	name := RoleName(level)
	roleID, err := l.gw.RoleByName(ctx, a.GuildID, name)
	if err != nil {
		log.Warn("role lookup failed", slog.Any("err", err))
		return
	}
	if roleID == "" {
		roleID, err = l.gw.CreateRole(ctx, a.GuildID, name, RoleColor, fmt.Sprintf("Auto-created for level %d", level))
		if err != nil {
			log.Warn("role create failed", slog.Any("err", err))
			return
		}
		l.notifyStaff(ctx, a, level, name)
	}

	has, err := l.gw.MemberHasRole(ctx, a.GuildID, a.UserID, roleID)
	if err != nil {
		log.Warn("member role check failed", slog.Any("err", err))
		return
	}
	if !has {
		if err := l.gw.AddRole(ctx, a.GuildID, a.UserID, roleID); err != nil {
			log.Warn("role grant failed", slog.Any("err", err))
		}
	}
}

func (l *Ledger) notifyStaff(ctx context.Context, a Activity, level int, roleName string) {
	if l.notifier == nil {
		return
	}
	content := fmt.Sprintf("A new role **%s** was auto-created and assigned to %s. Staff, please review.", roleName, gateway.Mention(a.UserID))
	channel := fmt.Sprintf("ticket-level%d", level)
	reason := fmt.Sprintf("Role %s auto-created", roleName)
	if _, err := l.notifier.Notify(ctx, a.GuildID, a.UserID, channel, reason, content); err != nil {
		slog.Warn("level role notification failed", slog.String("role", roleName), slog.Any("err", err))
	}
}

// Rank returns userID's record; members without one are at level 0 with no xp.
func (l *Ledger) Rank(ctx context.Context, userID string) (Record, error) {
	doc, err := store.Read[Document](ctx, l.store, store.DocXP)
	if err != nil {
		return Record{}, err
	}
	return doc[userID], nil
}

// Level returns userID's level.
func (l *Ledger) Level(ctx context.Context, userID string) (int, error) {
	rec, err := l.Rank(ctx, userID)
	return rec.Level, err
}

// Leaderboard returns up to n members ordered by xp, highest first.
func (l *Ledger) Leaderboard(ctx context.Context, n int) ([]Entry, error) {
	doc, err := store.Read[Document](ctx, l.store, store.DocXP)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(doc))
	for id, rec := range doc {
		entries = append(entries, Entry{UserID: id, Record: rec})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].XP != entries[j].XP {
			return entries[i].XP > entries[j].XP
		}
		return entries[i].UserID < entries[j].UserID
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

// RankText renders a member's rank reply.
func RankText(userID string, rec Record) string {
	return fmt.Sprintf("⭐ %s — Level: **%d**, XP: **%.2f**", gateway.Mention(userID), rec.Level, rec.XP)
}

// LeaderboardEmbed renders the leaderboard.
func LeaderboardEmbed(entries []Entry, footer string) *gateway.Embed {
	lines := make([]string, 0, len(entries))
	for i, e := range entries {
		lines = append(lines, fmt.Sprintf("**%d.** %s — Level: **%d** | XP: **%.2f**", i+1, gateway.Mention(e.UserID), e.Level, e.XP))
	}
	desc := strings.Join(lines, "\n")
	if desc == "" {
		desc = "No one has earned XP yet."
	}
	return &gateway.Embed{Title: "🏆 XP Leaderboard", Description: desc, Color: 0xffd700, Footer: footer}
}
