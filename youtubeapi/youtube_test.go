package youtubeapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/api/option"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	svc, err := New(context.Background(), "", "UC123",
		option.WithEndpoint(server.URL+"/"),
		option.WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return svc
}

func TestNew_RequiresChannel(t *testing.T) {
	if _, err := New(context.Background(), "key", ""); err == nil {
		t.Fatal("New() with empty channel should fail")
	}
}

func TestLatestVideo(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/youtube/v3/channels":
			if r.URL.Query().Get("id") != "UC123" {
				t.Errorf("channel id = %q", r.URL.Query().Get("id"))
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"items": []map[string]interface{}{{
					"contentDetails": map[string]interface{}{
						"relatedPlaylists": map[string]string{"uploads": "UU123"},
					},
				}},
			})
		case "/youtube/v3/playlistItems":
			if r.URL.Query().Get("playlistId") != "UU123" || r.URL.Query().Get("maxResults") != "1" {
				t.Errorf("query = %s", r.URL.RawQuery)
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"items": []map[string]interface{}{{
					"snippet": map[string]interface{}{
						"title":      "Newest upload",
						"resourceId": map[string]string{"videoId": "abc"},
						"thumbnails": map[string]interface{}{"medium": map[string]string{"url": "https://i.ytimg.com/abc.jpg"}},
					},
				}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	v, err := svc.LatestVideo(context.Background())
	if err != nil {
		t.Fatalf("LatestVideo() error = %v", err)
	}
	if v.ID != "abc" || v.Title != "Newest upload" || v.URL != "https://www.youtube.com/watch?v=abc" {
		t.Errorf("LatestVideo() = %+v", v)
	}
	if v.Thumbnail != "https://i.ytimg.com/abc.jpg" {
		t.Errorf("Thumbnail = %q", v.Thumbnail)
	}
}

func TestLatestVideo_Empty(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"items": []interface{}{}})
	})
	if _, err := svc.LatestVideo(context.Background()); !errors.Is(err, ErrNoVideo) {
		t.Errorf("LatestVideo() error = %v, want ErrNoVideo", err)
	}
}

func TestLatestVideo_APIError(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"quota"}}`))
	})
	if _, err := svc.LatestVideo(context.Background()); err == nil {
		t.Error("LatestVideo() should fail on 403")
	}
}

func TestLiveStream(t *testing.T) {
	live := true
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("eventType") != "live" {
			t.Errorf("eventType = %q", r.URL.Query().Get("eventType"))
		}
		w.Header().Set("Content-Type", "application/json")
		items := []map[string]interface{}{}
		if live {
			items = append(items, map[string]interface{}{
				"id":      map[string]string{"videoId": "live1"},
				"snippet": map[string]string{"title": "Live now"},
			})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"items": items})
	})

	v, err := svc.LiveStream(context.Background())
	if err != nil || v == nil || v.Title != "Live now" {
		t.Fatalf("LiveStream() = %+v, %v", v, err)
	}

	live = false
	v, err = svc.LiveStream(context.Background())
	if err != nil || v != nil {
		t.Fatalf("LiveStream() offline = %+v, %v", v, err)
	}
}

func TestChannelURL(t *testing.T) {
	svc := newTestService(t, func(http.ResponseWriter, *http.Request) {})
	if got := svc.ChannelURL(); got != "https://www.youtube.com/channel/UC123" {
		t.Errorf("ChannelURL() = %q", got)
	}
}
