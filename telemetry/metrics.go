// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesTotal       *prometheus.CounterVec
	SanctionsTotal      *prometheus.CounterVec
	XPAwardsTotal       prometheus.Counter
	LevelUpsTotal       prometheus.Counter
	VoiceActionsTotal   *prometheus.CounterVec
	TicketsTotal        *prometheus.CounterVec
	ExternalErrorsTotal *prometheus.CounterVec
	StoreConflictsTotal prometheus.Counter

	// Histograms (seconds)
	HandlerDuration *prometheus.HistogramVec

	// Gauges
	VoiceSessionsGauge prometheus.Gauge
	OpenTicketsGauge   prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bot_messages_total", Help: "Guild messages seen, by moderation verdict"}, []string{"verdict"})
		SanctionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bot_sanctions_total", Help: "Moderation side effects applied, by action"}, []string{"action"})
		XPAwardsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_xp_awards_total", Help: "Experience increments awarded"})
		LevelUpsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_level_ups_total", Help: "Level-up events"})
		VoiceActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bot_voice_actions_total", Help: "Voice session operations, by action"}, []string{"action"})
		TicketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bot_tickets_total", Help: "Ticket operations, by op"}, []string{"op"})
		ExternalErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bot_external_api_errors_total", Help: "Handler failures, by error kind"}, []string{"kind"})
		StoreConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_store_conflicts_total", Help: "Optimistic store writes retried after a version conflict"})
		HandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "bot_handler_duration_seconds", Help: "Event handler duration seconds", Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10}}, []string{"handler"})
		VoiceSessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_voice_sessions_active", Help: "Voice sessions currently recorded"})
		OpenTicketsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_tickets_open", Help: "Tickets currently open"})
	})
}

// CountMessage records a moderation verdict.
func CountMessage(verdict string) {
	if MessagesTotal != nil {
		MessagesTotal.WithLabelValues(verdict).Inc()
	}
}

// CountSanction records a moderation side effect (delete, warn, timeout).
func CountSanction(action string) {
	if SanctionsTotal != nil {
		SanctionsTotal.WithLabelValues(action).Inc()
	}
}

// CountXPAward records one experience increment, and a level-up when leveled.
func CountXPAward(leveled bool) {
	if XPAwardsTotal != nil {
		XPAwardsTotal.Inc()
	}
	if leveled && LevelUpsTotal != nil {
		LevelUpsTotal.Inc()
	}
}

// CountVoiceAction records a voice session operation.
func CountVoiceAction(action string) {
	if VoiceActionsTotal != nil {
		VoiceActionsTotal.WithLabelValues(action).Inc()
	}
}

// CountTicket records a ticket operation.
func CountTicket(op string) {
	if TicketsTotal != nil {
		TicketsTotal.WithLabelValues(op).Inc()
	}
}

// CountHandlerError records a failed handler by error kind.
func CountHandlerError(kind string) {
	if ExternalErrorsTotal != nil {
		ExternalErrorsTotal.WithLabelValues(kind).Inc()
	}
}

// CountStoreConflict records a retried optimistic write.
func CountStoreConflict() {
	if StoreConflictsTotal != nil {
		StoreConflictsTotal.Inc()
	}
}

// SetVoiceSessions records the number of live voice sessions.
func SetVoiceSessions(n int) {
	if VoiceSessionsGauge != nil {
		VoiceSessionsGauge.Set(float64(n))
	}
}

// SetOpenTickets records the number of open tickets.
func SetOpenTickets(n int) {
	if OpenTicketsGauge != nil {
		OpenTicketsGauge.Set(float64(n))
	}
}

// HandlerObserver returns the duration observer for a named handler, or nil before Init.
func HandlerObserver(handler string) prometheus.Observer {
	if HandlerDuration == nil {
		return nil
	}
	return HandlerDuration.WithLabelValues(handler)
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
