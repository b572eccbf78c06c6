package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/hundy-bot/gateway"
	"github.com/onnwee/hundy-bot/telemetry"
)

// Gateway is the chat platform surface the moderator needs.
type Gateway interface {
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	Moderatable(ctx context.Context, guildID, userID string) (bool, error)
	TimeoutMember(ctx context.Context, guildID, userID string, d time.Duration, reason string) error
	Send(ctx context.Context, channelID string, msg gateway.Message) (string, error)
}

// TimeoutFor returns the timeout for the count-th offense; zero means warn only.
func TimeoutFor(count int) time.Duration {
	switch {
	case count >= 3:
		return time.Hour
	case count == 2:
		return 5 * time.Minute
	default:
		return 0
	}
}

// Outcome reports what Handle did.
type Outcome struct {
	Verdict  Verdict
	Reason   Reason
	Count    int
	Deleted  bool
	TimedOut time.Duration
	Notice   string
}

// Moderator applies the sanction policy through a Gateway.
type Moderator struct {
	filter *Filter
	gw     Gateway
}

// NewModerator returns a Moderator.
func NewModerator(f *Filter, gw Gateway) *Moderator {
	return &Moderator{filter: f, gw: gw}
}

// Filter returns the underlying filter.
func (m *Moderator) Filter() *Filter { return m.filter }

// Handle classifies msg and, unless it is allowed, strikes the author,
// deletes the message, applies the timeout for the new count when the author
// can be moderated and posts a notice. Each side effect is attempted
// independently; failures are logged.
func (m *Moderator) Handle(ctx context.Context, msg Message) Outcome {
	verdict, reason := m.filter.Classify(msg)
	telemetry.CountMessage(verdict.String())
	out := Outcome{Verdict: verdict, Reason: reason}
	if verdict == Allow {
		return out
	}
	log := telemetry.LoggerWithCorr(ctx).With(
		slog.String("component", "moderation"),
		slog.String("user", msg.AuthorID),
		slog.String("verdict", verdict.String()),
		slog.String("reason", string(reason)),
	)

	out.Count = m.filter.Strike(msg.AuthorID)

	if err := m.gw.DeleteMessage(ctx, msg.ChannelID, msg.ID); err != nil {
		log.Warn("delete flagged message failed", slog.Any("err", err))
	} else {
		out.Deleted = true
		telemetry.CountSanction("delete")
	}

	timeout := TimeoutFor(out.Count)
	if timeout == 0 {
		out.Notice = firstWarning(verdict, msg.AuthorID)
		telemetry.CountSanction("warn")
	} else {
		ok, err := m.gw.Moderatable(ctx, msg.GuildID, msg.AuthorID)
		if err != nil {
			log.Warn("moderatable check failed", slog.Any("err", err))
		}
		switch {
		case !ok:
			out.Notice = cannotTimeout(verdict, msg.AuthorID)
			telemetry.CountSanction("warn")
		default:
			if err := m.gw.TimeoutMember(ctx, msg.GuildID, msg.AuthorID, timeout, timeoutReason(verdict, out.Count)); err != nil {
				log.Warn("timeout failed", slog.Any("err", err))
				out.Notice = fmt.Sprintf("⚠️ Error applying moderation to %s. Check bot permissions.", gateway.Mention(msg.AuthorID))
			} else {
				out.TimedOut = timeout
				out.Notice = timedOut(verdict, msg.AuthorID, timeout, out.Count)
				telemetry.CountSanction("timeout")
			}
		}
	}

	if _, err := m.gw.Send(ctx, msg.ChannelID, gateway.Text(out.Notice)); err != nil {
		log.Warn("moderation notice failed", slog.Any("err", err))
	}
	log.Info("message moderated", slog.Int("count", out.Count), slog.Duration("timeout", out.TimedOut))
	return out
}

func firstWarning(v Verdict, userID string) string {
	if v == Spam {
		return fmt.Sprintf("⚠️ %s, please slow down! Spam is not allowed.", gateway.Mention(userID))
	}
	return fmt.Sprintf("⚠️ %s, that’s not allowed here. Your message has been removed.", gateway.Mention(userID))
}

func cannotTimeout(v Verdict, userID string) string {
	what := "message"
	if v == Spam {
		what = "spam message"
	}
	return fmt.Sprintf("⚠️ %s, warning: bot cannot timeout you, but your %s was removed.", gateway.Mention(userID), what)
}

func timeoutReason(v Verdict, count int) string {
	nth := ordinal(count)
	if v == Spam {
		return fmt.Sprintf("Spam (%s offense)", nth)
	}
	return nth + " offense"
}

func timedOut(v Verdict, userID string, d time.Duration, count int) string {
	span := "5 minutes"
	if d >= time.Hour {
		span = "1 hour"
	}
	why := ordinal(count) + " offense"
	if v == Spam {
		why = "spam"
	}
	return fmt.Sprintf("⏱️ %s, you’ve been timed out for %s (%s).", gateway.Mention(userID), span, why)
}

func ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
