// Package server exposes the ops HTTP API: health, readiness, metrics, a
// community status snapshot and read-only admin views of the stored
// documents. Every request gets a correlation id and a span.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/onnwee/hundy-bot/config"
	"github.com/onnwee/hundy-bot/store"
	"github.com/onnwee/hundy-bot/telemetry"
	"github.com/onnwee/hundy-bot/xp"
)

// Leaderboard lists the top members by xp.
type Leaderboard interface {
	Leaderboard(ctx context.Context, n int) ([]xp.Entry, error)
}

// Counter reports how many records of a kind are live.
type Counter func(ctx context.Context) (int, error)

// Deps are the components the handlers read from.
type Deps struct {
	Store         *store.Store
	XP            Leaderboard
	OpenTickets   Counter
	VoiceSessions Counter
	// Connected reports whether the chat gateway session is up. Nil means
	// the bot is not running in this process.
	Connected func() bool
	Admin     config.AdminConfig
}

// NewRouter returns the HTTP handler with all routes. ctx bounds the rate
// limiter's cleanup goroutine.
func NewRouter(ctx context.Context, deps Deps) http.Handler {
	h := &handlers{deps: deps}
	limiter := newIPRateLimiter(ctx, deps.Admin.RateLimitPerIP, deps.Admin.RateLimitWindow)
	if !deps.Admin.AuthEnabled() {
		slog.Warn("admin authentication not configured, admin endpoints are UNPROTECTED; set ADMIN_TOKEN or ADMIN_USERNAME+ADMIN_PASSWORD")
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(withCorrelation)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	r.Get("/status", h.status)

	r.Route("/admin", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return adminAuth(next, deps.Admin) })
		r.Use(func(next http.Handler) http.Handler { return rateLimitMiddleware(next, limiter) })
		r.Get("/banned-words", h.getBannedWords)
		r.Get("/documents/{name}", h.getDocument)
	})
	return r
}

// withCorrelation reuses or generates an X-Correlation-ID, opens a span and
// records the response status on it.
func withCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, r.Method+" "+r.URL.Path,
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.URL.Path),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", rec.statusCode))
		if rec.statusCode >= 400 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", rec.statusCode))
		}
	})
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
