package bot

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/onnwee/hundy-bot/gateway"
	"github.com/onnwee/hundy-bot/twitchapi"
	"github.com/onnwee/hundy-bot/youtubeapi"
)

// Streams reports the broadcaster's live stream, nil when offline.
type Streams interface {
	GetStream(ctx context.Context, broadcasterID string) (*twitchapi.Stream, error)
}

// YouTubeLive reports the channel's live broadcast, nil when offline.
type YouTubeLive interface {
	LiveStream(ctx context.Context) (*youtubeapi.Video, error)
}

// StatusSetter changes the bot's visible activity.
type StatusSetter interface {
	SetStreaming(name, url string) error
	SetWatching(name string) error
}

// Presence mirrors the broadcaster's live state in the bot's activity and
// announces the start of a stream.
type Presence struct {
	Streams Streams
	// YouTube is optional; a YouTube broadcast is shown while Twitch is offline.
	YouTube       YouTubeLive
	Status        StatusSetter
	Platform      Platform
	BroadcasterID string
	// Login is the Twitch channel name shown in the activity.
	Login string
	// LiveChannelID receives the going-live post; empty disables it.
	LiveChannelID string
	Interval      time.Duration

	observed bool
	live     bool
}

func (p *Presence) channelURL() string { return "https://www.twitch.tv/" + p.Login }

// Tick checks the stream once and updates the activity. A transition from
// offline to live after the first observation is announced.
func (p *Presence) Tick(ctx context.Context) error {
	stream, err := p.Streams.GetStream(ctx, p.BroadcasterID)
	if err != nil {
		return fmt.Errorf("presence stream lookup: %w", err)
	}
	live := stream != nil
	switch yt := p.youTubeLive(ctx, live); {
	case live:
		err = p.Status.SetStreaming(p.Login+" on Twitch", p.channelURL())
	case yt != nil:
		err = p.Status.SetStreaming(p.Login+" on YouTube", yt.URL)
	default:
		err = p.Status.SetWatching(p.Login + " on YouTube")
	}
	if err != nil {
		return fmt.Errorf("presence update: %w", err)
	}

	wentLive := live && p.observed && !p.live
	p.observed, p.live = true, live
	if wentLive && p.LiveChannelID != "" {
		msg := fmt.Sprintf("🔴 **%s is LIVE on Twitch!**\nTitle: %s\nWatch: %s", p.Login, stream.Title, p.channelURL())
		if _, err := p.Platform.Send(ctx, p.LiveChannelID, gateway.Text(msg)); err != nil {
			return fmt.Errorf("live post: %w", err)
		}
	}
	return nil
}

func (p *Presence) youTubeLive(ctx context.Context, twitchLive bool) *youtubeapi.Video {
	if twitchLive || p.YouTube == nil {
		return nil
	}
	v, err := p.YouTube.LiveStream(ctx)
	if err != nil {
		slog.Debug("youtube live lookup failed", slog.String("component", "presence"), slog.Any("err", err))
		return nil
	}
	return v
}

// Run ticks immediately and then every Interval, with up to 10% jitter,
// until ctx is done.
func (p *Presence) Run(ctx context.Context) {
	interval := p.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	for {
		if err := p.Tick(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("presence update failed", slog.String("component", "presence"), slog.Any("err", err))
		}
		wait := interval + time.Duration(rand.Int63n(int64(interval)/10+1))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
