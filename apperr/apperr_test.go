package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
)

type statusErr int

func (s statusErr) Error() string   { return fmt.Sprintf("status %d", int(s)) }
func (s statusErr) HTTPStatus() int { return int(s) }

func restErr(code int) error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: code}}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("boom"), KindUnknown},
		{"rest 403", restErr(http.StatusForbidden), KindPermissionDenied},
		{"rest 404", restErr(http.StatusNotFound), KindNotFound},
		{"rest 400", restErr(http.StatusBadRequest), KindValidation},
		{"rest 500", restErr(http.StatusInternalServerError), KindExternalAPI},
		{"wrapped rest", fmt.Errorf("create channel: %w", restErr(http.StatusForbidden)), KindPermissionDenied},
		{"status 401", statusErr(http.StatusUnauthorized), KindPermissionDenied},
		{"status 429", statusErr(http.StatusTooManyRequests), KindExternalAPI},
		{"deadline", context.DeadlineExceeded, KindExternalAPI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKindOfPrefersExplicitKind(t *testing.T) {
	err := Wrap(KindAlreadyExists, "ticket.open", restErr(http.StatusNotFound))
	if got := KindOf(err); got != KindAlreadyExists {
		t.Fatalf("KindOf() = %v, want %v", got, KindAlreadyExists)
	}
	if !Is(fmt.Errorf("outer: %w", err), KindAlreadyExists) {
		t.Fatal("Is() should see through fmt wrapping")
	}
}

func TestExternalKeepsSpecificKind(t *testing.T) {
	if got := KindOf(External("voice.rename", restErr(http.StatusNotFound))); got != KindNotFound {
		t.Errorf("KindOf() = %v, want not_found", got)
	}
	if got := KindOf(External("youtube.latest", errors.New("eof"))); got != KindExternalAPI {
		t.Errorf("KindOf() = %v, want external_api", got)
	}
	if External("x", nil) != nil {
		t.Error("External(nil) should be nil")
	}
	err := Failed("voice.lock", "Failed to lock channel.", restErr(http.StatusForbidden))
	if KindOf(err) != KindPermissionDenied || UserMessage(err) != "❌ Failed to lock channel." {
		t.Errorf("Failed() = %v (%v)", err, KindOf(err))
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{"explicit message", New(KindAlreadyExists, "ticket.open", "You already have an open ticket."), "You already have an open ticket."},
		{"permission", restErr(http.StatusForbidden), "permission"},
		{"external", Wrap(KindExternalAPI, "twitch", errors.New("eof")), "external service"},
		{"unknown", errors.New("boom"), "Something went wrong."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UserMessage(tt.err)
			if !strings.HasPrefix(got, "❌") || !strings.Contains(got, tt.contains) {
				t.Errorf("UserMessage() = %q, want it to contain %q", got, tt.contains)
			}
		})
	}
}

func TestUserMessageWarning(t *testing.T) {
	msg := Warning + " You must be at least **Level 1** to create a custom voice channel."
	if got := UserMessage(New(KindPermissionDenied, "voice.create", msg)); got != msg {
		t.Errorf("UserMessage() = %q, want %q", got, msg)
	}
}

func TestErrorString(t *testing.T) {
	err := Wrap(KindNotFound, "voice.lock", errors.New("missing"))
	if got := err.Error(); got != "voice.lock: not_found: missing" {
		t.Errorf("Error() = %q", got)
	}
}
