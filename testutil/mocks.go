package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
)

// MockTwitchServer serves canned Helix and OAuth responses. Paths without a
// handler answer 404. Requests records the hit count per path.
type MockTwitchServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	requests map[string]int
}

// NewMockTwitchServer starts a mock closed at test cleanup.
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		handlers: make(map[string]http.HandlerFunc),
		requests: make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requests[r.URL.Path]++
		handler, ok := m.handlers[r.URL.Path]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// HelixURL is the base URL to give a HelixClient.
func (m *MockTwitchServer) HelixURL() string { return m.URL + "/helix" }

// TokenURL is the token endpoint to give a TokenSource.
func (m *MockTwitchServer) TokenURL() string { return m.URL + "/oauth2/token" }

// Handle installs a handler for path.
func (m *MockTwitchServer) Handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = h
}

// Requests returns how often path was requested.
func (m *MockTwitchServer) Requests(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[path]
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data}) //nolint:errcheck // test mock response
}

// MockUserResponse answers /helix/users with one user.
func (m *MockTwitchServer) MockUserResponse(userID, login string) {
	m.Handle("/helix/users", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, []map[string]string{{"id": userID, "login": login, "display_name": login}})
	})
}

// MockSubscription answers /helix/subscriptions with one row when
// subscribed, else an empty list.
func (m *MockTwitchServer) MockSubscription(subscribed bool) {
	m.Handle("/helix/subscriptions", relationship(subscribed))
}

// MockFollower answers /helix/channels/followers like MockSubscription.
func (m *MockTwitchServer) MockFollower(following bool) {
	m.Handle("/helix/channels/followers", relationship(following))
}

func relationship(present bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows := []map[string]string{}
		if present {
			rows = append(rows, map[string]string{"user_id": r.URL.Query().Get("user_id")})
		}
		writeData(w, rows)
	}
}

// MockStreamsResponse answers /helix/streams with streams.
func (m *MockTwitchServer) MockStreamsResponse(streams []map[string]any) {
	m.Handle("/helix/streams", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, streams)
	})
}

// MockOAuthTokenResponse answers the client-credentials token endpoint.
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.Handle("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test mock response
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		})
	})
}
