package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/onnwee/hundy-bot/config"
	"github.com/onnwee/hundy-bot/moderation"
	"github.com/onnwee/hundy-bot/store"
	"github.com/onnwee/hundy-bot/xp"
)

type pingFailBackend struct{ *store.MemoryBackend }

func (pingFailBackend) Ping(context.Context) error { return errors.New("down") }

type fakeBoard []xp.Entry

func (f fakeBoard) Leaderboard(_ context.Context, n int) ([]xp.Entry, error) {
	if len(f) > n {
		return f[:n], nil
	}
	return f, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(store.NewMemoryBackend())
	if err := s.Seed(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s
}

func serve(h http.Handler, method, path, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for _, m := range mutate {
		m(req)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthzOK(t *testing.T) {
	h := NewRouter(context.Background(), Deps{Store: newTestStore(t)})
	rr := serve(h, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Body.String(); got != "ok" {
		t.Fatalf("expected ok body, got %q", got)
	}
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("expected generated X-Correlation-ID")
	}
}

func TestCorrelationIDReused(t *testing.T) {
	h := NewRouter(context.Background(), Deps{Store: newTestStore(t)})
	rr := serve(h, http.MethodGet, "/healthz", "", func(r *http.Request) { r.Header.Set("X-Correlation-ID", "abc-123") })
	if got := rr.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Errorf("X-Correlation-ID = %q, want abc-123", got)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name     string
		store    *store.Store
		wantCode int
	}{
		{"store up", store.New(store.NewMemoryBackend()), http.StatusOK},
		{"store down", store.New(pingFailBackend{store.NewMemoryBackend()}), http.StatusServiceUnavailable},
		{"no store", nil, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRouter(context.Background(), Deps{Store: tt.store})
			rr := serve(h, http.MethodGet, "/readyz", "")
			if rr.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rr.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if tt.wantCode != http.StatusOK && body["failed_check"] != "store" {
				t.Errorf("failed_check = %q", body["failed_check"])
			}
		})
	}
}

func TestStatus(t *testing.T) {
	board := fakeBoard{
		{UserID: "u1", Record: xp.Record{XP: 450, Level: 2}},
		{UserID: "u2", Record: xp.Record{XP: 12.5, Level: 0}},
	}
	h := NewRouter(context.Background(), Deps{
		Store:         newTestStore(t),
		XP:            board,
		OpenTickets:   func(context.Context) (int, error) { return 3, nil },
		VoiceSessions: func(context.Context) (int, error) { return 2, nil },
		Connected:     func() bool { return true },
	})
	rr := serve(h, http.MethodGet, "/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var st Status
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Connected || st.OpenTickets != 3 || st.VoiceSessions != 2 {
		t.Errorf("status = %+v", st)
	}
	if len(st.Leaderboard) != 2 || st.Leaderboard[0].UserID != "u1" || st.Leaderboard[0].Level != 2 {
		t.Errorf("leaderboard = %+v", st.Leaderboard)
	}
}

func TestStatusStoreError(t *testing.T) {
	h := NewRouter(context.Background(), Deps{
		Store:       newTestStore(t),
		OpenTickets: func(context.Context) (int, error) { return 0, errors.New("boom") },
	})
	if rr := serve(h, http.MethodGet, "/status", ""); rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestStatusEmptyLeaderboardIsArray(t *testing.T) {
	h := NewRouter(context.Background(), Deps{Store: newTestStore(t)})
	rr := serve(h, http.MethodGet, "/status", "")
	if !strings.Contains(rr.Body.String(), `"leaderboard":[]`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestBannedWordsReadOnly(t *testing.T) {
	s := newTestStore(t)
	if err := s.Replace(context.Background(), store.DocBannedWords, []byte(`{"words": ["badword"]}`)); err != nil {
		t.Fatalf("replace: %v", err)
	}
	h := NewRouter(context.Background(), Deps{Store: s})

	rr := serve(h, http.MethodGet, "/admin/banned-words", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"badword"`) {
		t.Fatalf("get: %d %s", rr.Code, rr.Body.String())
	}

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodPut, "/admin/banned-words", http.StatusMethodNotAllowed},
		{http.MethodPost, "/admin/banned-words", http.StatusMethodNotAllowed},
		{http.MethodPost, "/admin/banned-words/reload", http.StatusNotFound},
	}
	for _, tt := range tests {
		if rr := serve(h, tt.method, tt.path, `{"words": []}`); rr.Code != tt.want {
			t.Errorf("%s %s: expected %d, got %d", tt.method, tt.path, tt.want, rr.Code)
		}
	}
	stored, err := moderation.LoadBannedWords(context.Background(), s)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(stored) != 1 || stored[0] != "badword" {
		t.Errorf("stored words changed: %v", stored)
	}
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	h := NewRouter(context.Background(), Deps{
		Store: newTestStore(t),
		Admin: config.AdminConfig{Token: "t0k", RateLimitPerIP: 10},
	})
	if rr := serve(h, http.MethodGet, "/admin/banned-words", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	rr := serve(h, http.MethodGet, "/admin/banned-words", "", func(r *http.Request) { r.Header.Set("X-Admin-Token", "t0k") })
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr := serve(h, http.MethodGet, "/status", ""); rr.Code != http.StatusOK {
		t.Fatalf("public route: expected 200, got %d", rr.Code)
	}
}

func TestAdminRoutesRateLimited(t *testing.T) {
	h := NewRouter(context.Background(), Deps{
		Store: newTestStore(t),
		Admin: config.AdminConfig{RateLimitPerIP: 1},
	})
	if rr := serve(h, http.MethodGet, "/admin/banned-words", ""); rr.Code != http.StatusOK {
		t.Fatalf("first: expected 200, got %d", rr.Code)
	}
	if rr := serve(h, http.MethodGet, "/admin/banned-words", ""); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second: expected 429, got %d", rr.Code)
	}
}

func TestGetDocument(t *testing.T) {
	s := newTestStore(t)
	if err := s.Replace(context.Background(), store.DocXP, []byte(`{"u1":{"xp":1,"level":0}}`)); err != nil {
		t.Fatalf("replace: %v", err)
	}
	h := NewRouter(context.Background(), Deps{Store: s})

	rr := serve(h, http.MethodGet, "/admin/documents/xp", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"u1"`) {
		t.Fatalf("xp: %d %s", rr.Code, rr.Body.String())
	}
	for _, name := range []string{store.DocVerified, "nope"} {
		if rr := serve(h, http.MethodGet, "/admin/documents/"+name, ""); rr.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", name, rr.Code)
		}
	}
}

func TestStartAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Start(ctx, "127.0.0.1:0", NewRouter(ctx, Deps{})) }()

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("server returned error: %v", err)
	}
}
