package server

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/onnwee/hundy-bot/moderation"
	"github.com/onnwee/hundy-bot/store"
	"github.com/onnwee/hundy-bot/telemetry"
	"github.com/onnwee/hundy-bot/xp"
)

type handlers struct {
	deps Deps
}

// LeaderboardRow is one line of the status leaderboard.
type LeaderboardRow struct {
	UserID string  `json:"userId"`
	XP     float64 `json:"xp"`
	Level  int     `json:"level"`
}

// Status is the /status payload.
type Status struct {
	Connected     bool             `json:"connected"`
	OpenTickets   int              `json:"openTickets"`
	VoiceSessions int              `json:"voiceSessions"`
	Leaderboard   []LeaderboardRow `json:"leaderboard"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", slog.Any("err", err))
	}
}

func (h *handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// readyz reports ready once the store answers a ping.
func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if h.deps.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not-ready", "failed_check": "store"})
		return
	}
	if err := h.deps.Store.Ping(ctx); err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("readiness check failed", slog.String("check", "store"), slog.Any("err", err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not-ready", "failed_check": "store"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := telemetry.LoggerWithCorr(ctx)
	st := Status{Leaderboard: []LeaderboardRow{}}
	if h.deps.Connected != nil {
		st.Connected = h.deps.Connected()
	}
	if h.deps.OpenTickets != nil {
		n, err := h.deps.OpenTickets(ctx)
		if err != nil {
			log.Error("status: open tickets", slog.Any("err", err))
			http.Error(w, "store unavailable", http.StatusInternalServerError)
			return
		}
		st.OpenTickets = n
	}
	if h.deps.VoiceSessions != nil {
		n, err := h.deps.VoiceSessions(ctx)
		if err != nil {
			log.Error("status: voice sessions", slog.Any("err", err))
			http.Error(w, "store unavailable", http.StatusInternalServerError)
			return
		}
		st.VoiceSessions = n
	}
	if h.deps.XP != nil {
		entries, err := h.deps.XP.Leaderboard(ctx, xp.LeaderboardSize)
		if err != nil {
			log.Error("status: leaderboard", slog.Any("err", err))
			http.Error(w, "store unavailable", http.StatusInternalServerError)
			return
		}
		for _, e := range entries {
			st.Leaderboard = append(st.Leaderboard, LeaderboardRow{UserID: e.UserID, XP: e.XP, Level: e.Level})
		}
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handlers) getBannedWords(w http.ResponseWriter, r *http.Request) {
	words, err := moderation.LoadBannedWords(r.Context(), h.deps.Store)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("read banned words", slog.Any("err", err))
		http.Error(w, "store unavailable", http.StatusInternalServerError)
		return
	}
	if words == nil {
		words = []string{}
	}
	writeJSON(w, http.StatusOK, moderation.BannedWords{Words: words})
}

// getDocument dumps a raw store document. The linked accounts document holds
// tokens and is never served.
func (h *handlers) getDocument(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	known := slices.ContainsFunc(store.Documents, func(d struct{ Name, Initial string }) bool { return d.Name == name })
	if !known || name == store.DocVerified {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	data, err := h.deps.Store.Raw(r.Context(), name)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("read document", slog.String("doc", name), slog.Any("err", err))
		http.Error(w, "store unavailable", http.StatusInternalServerError)
		return
	}
	if len(data) == 0 {
		data = []byte("{}")
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
