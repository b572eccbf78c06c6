package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	for _, key := range []string{"PRESENCE_INTERVAL", "TICKET_CLOSE_DELAY", "SPAM_INTERVAL", "REDIS_DB", "RATE_LIMIT_WINDOW", "FOLLOWER_ROLE_NAME"} {
		t.Setenv(key, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Store.Backend != "file" {
		t.Errorf("Store.Backend = %q, want file", cfg.Store.Backend)
	}
	if cfg.Store.DataDir != "data" {
		t.Errorf("Store.DataDir = %q, want data", cfg.Store.DataDir)
	}
	if cfg.PresenceInterval != 5*time.Minute {
		t.Errorf("PresenceInterval = %v, want 5m", cfg.PresenceInterval)
	}
	if cfg.TicketCloseDelay != 3*time.Second {
		t.Errorf("TicketCloseDelay = %v, want 3s", cfg.TicketCloseDelay)
	}
	if cfg.Moderation.SpamInterval != time.Second {
		t.Errorf("SpamInterval = %v, want 1s", cfg.Moderation.SpamInterval)
	}
	if cfg.Roles.FollowerName != "KingJim" {
		t.Errorf("FollowerName = %q", cfg.Roles.FollowerName)
	}
	if cfg.Admin.RateLimitWindow != time.Minute || cfg.Store.RedisDB != 0 {
		t.Errorf("RateLimitWindow = %v, RedisDB = %d", cfg.Admin.RateLimitWindow, cfg.Store.RedisDB)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("DB_DSN", "")
	t.Setenv("OAUTH_BASE_URL", "https://link.example.com/")
	t.Setenv("ROLE_GAMES_ID", "111")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Store.Backend != "postgres" {
		t.Errorf("Store.Backend = %q, want postgres", cfg.Store.Backend)
	}
	if cfg.Store.DBDsn == "" {
		t.Error("expected default DSN for postgres backend")
	}
	if cfg.OAuthBaseURL != "https://link.example.com" {
		t.Errorf("OAuthBaseURL = %q, want trailing slash trimmed", cfg.OAuthBaseURL)
	}
	if cfg.Roles.GamesID != "111" {
		t.Errorf("Roles.GamesID = %q", cfg.Roles.GamesID)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "mongo")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestValidateDiscord(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "tok")
	t.Setenv("DISCORD_CLIENT_ID", "app")
	t.Setenv("GUILD_ID", "guild")
	cfg, _ := Load()
	if err := cfg.ValidateDiscord(); err != nil {
		t.Errorf("expected valid discord config, got %v", err)
	}
	t.Setenv("GUILD_ID", "")
	cfg, _ = Load()
	if err := cfg.ValidateDiscord(); err == nil {
		t.Error("expected error when GUILD_ID missing")
	}
}

func TestValidateTwitch(t *testing.T) {
	t.Setenv("TWITCH_CLIENT_ID", "id")
	t.Setenv("TWITCH_CLIENT_SECRET", "secret")
	t.Setenv("TWITCH_BROADCASTER_ID", "")
	cfg, _ := Load()
	if err := cfg.ValidateTwitch(); err == nil {
		t.Error("expected error when broadcaster id missing")
	}
	t.Setenv("TWITCH_BROADCASTER_ID", "42")
	cfg, _ = Load()
	if err := cfg.ValidateTwitch(); err != nil {
		t.Errorf("expected valid twitch config, got %v", err)
	}
}

func TestAdminAuthEnabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  AdminConfig
		want bool
	}{
		{"none", AdminConfig{}, false},
		{"token", AdminConfig{Token: "t"}, true},
		{"basic", AdminConfig{Username: "u", Password: "p"}, true},
		{"username only", AdminConfig{Username: "u"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.AuthEnabled(); got != tt.want {
				t.Errorf("AuthEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}
