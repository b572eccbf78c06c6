// Package youtubeapi reads public channel data from the YouTube Data API:
// the latest upload for the socials post and the current live broadcast.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

// ErrNoVideo is returned when the channel has no uploads.
var ErrNoVideo = errors.New("no videos")

// Video is a published video.
type Video struct {
	ID        string
	Title     string
	URL       string
	Thumbnail string
}

// Service reads one channel with an API key.
type Service struct {
	channelID string
	yt        *yt.Service
}

// New returns a Service for channelID. Extra options override transport and
// endpoint in tests.
func New(ctx context.Context, apiKey, channelID string, opts ...option.ClientOption) (*Service, error) {
	if channelID == "" {
		return nil, errors.New("youtube channel id empty")
	}
	if apiKey != "" {
		opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	}
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &Service{channelID: channelID, yt: svc}, nil
}

// ChannelURL is the channel's public page.
func (s *Service) ChannelURL() string { return "https://www.youtube.com/channel/" + s.channelID }

// LatestVideo returns the newest item of the channel's uploads playlist.
func (s *Service) LatestVideo(ctx context.Context) (Video, error) {
	ch, err := s.yt.Channels.List([]string{"contentDetails"}).Id(s.channelID).Context(ctx).Do()
	if err != nil {
		return Video{}, fmt.Errorf("youtube channels: %w", err)
	}
	if len(ch.Items) == 0 || ch.Items[0].ContentDetails == nil || ch.Items[0].ContentDetails.RelatedPlaylists == nil {
		return Video{}, fmt.Errorf("channel %s: %w", s.channelID, ErrNoVideo)
	}
	uploads := ch.Items[0].ContentDetails.RelatedPlaylists.Uploads

	items, err := s.yt.PlaylistItems.List([]string{"snippet"}).PlaylistId(uploads).MaxResults(1).Context(ctx).Do()
	if err != nil {
		return Video{}, fmt.Errorf("youtube playlist items: %w", err)
	}
	if len(items.Items) == 0 || items.Items[0].Snippet == nil || items.Items[0].Snippet.ResourceId == nil {
		return Video{}, fmt.Errorf("playlist %s: %w", uploads, ErrNoVideo)
	}
	sn := items.Items[0].Snippet
	v := Video{
		ID:    sn.ResourceId.VideoId,
		Title: sn.Title,
		URL:   "https://www.youtube.com/watch?v=" + sn.ResourceId.VideoId,
	}
	if sn.Thumbnails != nil && sn.Thumbnails.Medium != nil {
		v.Thumbnail = sn.Thumbnails.Medium.Url
	}
	return v, nil
}

// LiveStream returns the channel's current live broadcast, or nil when offline.
func (s *Service) LiveStream(ctx context.Context) (*Video, error) {
	res, err := s.yt.Search.List([]string{"snippet"}).
		ChannelId(s.channelID).
		EventType("live").
		Type("video").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("youtube search: %w", err)
	}
	if len(res.Items) == 0 || res.Items[0].Id == nil {
		return nil, nil
	}
	it := res.Items[0]
	v := &Video{ID: it.Id.VideoId, URL: "https://www.youtube.com/watch?v=" + it.Id.VideoId}
	if it.Snippet != nil {
		v.Title = it.Snippet.Title
	}
	return v, nil
}
