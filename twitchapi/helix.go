// Package twitchapi contains minimal helpers for the Twitch Helix endpoints
// the bot needs: user lookup, subscription and follow checks for account
// verification, and stream status for presence.
package twitchapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

// DefaultBaseURL is the Helix API root.
const DefaultBaseURL = "https://api.twitch.tv/helix"

const helixMaxRetries = 3

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// StatusError is a non-2xx Helix response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("helix: status %d: %s", e.Code, e.Body)
}

// HTTPStatus exposes the response code to error classifiers.
func (e *StatusError) HTTPStatus() int { return e.Code }

// User is a Twitch account.
type User struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// Stream is a live broadcast.
type Stream struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	UserLogin   string    `json:"user_login"`
	UserName    string    `json:"user_name"`
	GameName    string    `json:"game_name"`
	Title       string    `json:"title"`
	ViewerCount int       `json:"viewer_count"`
	StartedAt   time.Time `json:"started_at"`
}

// HelixClient calls Helix with either a member's user token or the app token.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	BaseURL        string
	HTTPClient     *http.Client
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) endpoint(path string) string {
	base := hc.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimSuffix(base, "/") + path
}

// GetUserID resolves a login name to its user ID.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	var body struct {
		Data []User `json:"data"`
	}
	if err := hc.get(ctx, "", "/users", url.Values{"login": {login}}, &body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("user not found")
	}
	return body.Data[0].ID, nil
}

// GetUser looks a user up by id. userToken may be empty to use the app token.
func (hc *HelixClient) GetUser(ctx context.Context, userToken, id string) (User, error) {
	if id == "" {
		return User{}, fmt.Errorf("user id empty")
	}
	var body struct {
		Data []User `json:"data"`
	}
	if err := hc.get(ctx, userToken, "/users", url.Values{"id": {id}}, &body); err != nil {
		return User{}, err
	}
	if len(body.Data) == 0 {
		return User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return body.Data[0], nil
}

// IsSubscribed reports whether userID subscribes to broadcasterID.
func (hc *HelixClient) IsSubscribed(ctx context.Context, userToken, broadcasterID, userID string) (bool, error) {
	return hc.hasAny(ctx, userToken, "/subscriptions", url.Values{"broadcaster_id": {broadcasterID}, "user_id": {userID}})
}

// IsFollower reports whether userID follows broadcasterID.
func (hc *HelixClient) IsFollower(ctx context.Context, userToken, broadcasterID, userID string) (bool, error) {
	return hc.hasAny(ctx, userToken, "/channels/followers", url.Values{"broadcaster_id": {broadcasterID}, "user_id": {userID}})
}

// hasAny reports whether a listing returns at least one row. A 404 means
// no relationship.
func (hc *HelixClient) hasAny(ctx context.Context, userToken, path string, q url.Values) (bool, error) {
	var body struct {
		Data []json.RawMessage `json:"data"`
	}
	err := hc.get(ctx, userToken, path, q, &body)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(body.Data) > 0, nil
}

// GetStreams returns the live streams of login.
func (hc *HelixClient) GetStreams(ctx context.Context, login string) ([]Stream, error) {
	var body struct {
		Data []Stream `json:"data"`
	}
	if err := hc.get(ctx, "", "/streams", url.Values{"user_login": {login}}, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// GetStream returns broadcasterID's live stream, or nil when offline.
func (hc *HelixClient) GetStream(ctx context.Context, broadcasterID string) (*Stream, error) {
	var body struct {
		Data []Stream `json:"data"`
	}
	if err := hc.get(ctx, "", "/streams", url.Values{"user_id": {broadcasterID}}, &body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, nil
	}
	return &body.Data[0], nil
}

// get performs a GET with retries on 429 and 5xx. With the app token a 401
// refreshes the token once and earns one extra attempt.
func (hc *HelixClient) get(ctx context.Context, userToken, path string, q url.Values, out any) error {
	attempts := helixMaxRetries
	refreshed := false
	var lastErr error
	for i := 0; i < attempts; i++ {
		tok := userToken
		if tok == "" {
			if hc.AppTokenSource == nil {
				return errors.New("no twitch token available")
			}
			var err error
			if tok, err = hc.AppTokenSource.Get(ctx); err != nil {
				return err
			}
		}
		wait, err := hc.once(ctx, tok, path, q, out)
		if err == nil {
			return nil
		}
		lastErr = err
		var se *StatusError
		if !errors.As(err, &se) {
			if ctx.Err() != nil {
				return err
			}
		} else {
			switch {
			case se.Code == http.StatusUnauthorized && userToken == "" && !refreshed:
				refreshed = true
				hc.AppTokenSource.Invalidate()
				attempts++
				continue
			case se.Code == http.StatusTooManyRequests || se.Code >= 500:
			default:
				return err
			}
		}
		if i+1 < attempts {
			if wait < 0 {
				wait = time.Duration(i+1) * 100 * time.Millisecond
			}
			slog.Debug("helix retry", slog.String("path", path), slog.Int("attempt", i+1), slog.Any("err", err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return lastErr
}

// once performs one request. The returned duration is the server's
// Retry-After hint, or -1 when absent.
func (hc *HelixClient) once(ctx context.Context, token, path string, q url.Values, out any) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.endpoint(path), nil)
	if err != nil {
		return -1, err
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	(&oauth2.Token{AccessToken: token}).SetAuthHeader(req)

	resp, err := hc.http().Do(req)
	if err != nil {
		return -1, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return retryAfter(resp.Header), &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return -1, json.NewDecoder(resp.Body).Decode(out)
}

func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return -1
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return -1
	}
	return time.Duration(secs) * time.Second
}
