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
	CommandsHandled *prometheus.CounterVec // by outcome: replied|silent|error
	GamesPlayed     *prometheus.CounterVec // by game name
	ChipsWagered    prometheus.Counter
	ChipsPaidOut    prometheus.Counter

	// Histograms (seconds)
	StoreOpDuration      prometheus.Observer
	ResolveCycleDuration prometheus.Observer

	// Gauges
	ActiveEventsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		CommandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{Name: "arcade_commands_handled_total", Help: "Chat messages handled, by outcome"}, []string{"outcome"})
		GamesPlayed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "arcade_games_played_total", Help: "Wager games started, by game"}, []string{"game"})
		ChipsWagered = promauto.NewCounter(prometheus.CounterOpts{Name: "arcade_chips_wagered_total", Help: "Total chips wagered across all games"})
		ChipsPaidOut = promauto.NewCounter(prometheus.CounterOpts{Name: "arcade_chips_paid_total", Help: "Total chips credited by payouts and bonuses"})
		StoreOpDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "arcade_store_op_duration_seconds", Help: "Key-value store round trip duration", Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1}})
		ResolveCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "arcade_resolve_cycle_duration_seconds", Help: "Background resolver cycle duration", Buckets: prometheus.DefBuckets})
		ActiveEventsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "arcade_active_events", Help: "Number of time-boxed events currently open"})
	})
}

// CommandHandled bumps the per-outcome command counter.
func CommandHandled(outcome string) {
	if CommandsHandled != nil {
		CommandsHandled.WithLabelValues(outcome).Inc()
	}
}

// GamePlayed bumps the per-game counter.
func GamePlayed(game string) {
	if GamesPlayed != nil {
		GamesPlayed.WithLabelValues(game).Inc()
	}
}

// ChipsBet records chips escrowed into a wager.
func ChipsBet(n int64) {
	if ChipsWagered != nil && n > 0 {
		ChipsWagered.Add(float64(n))
	}
}

// ChipsPaid records chips credited back to users.
func ChipsPaid(n int64) {
	if ChipsPaidOut != nil && n > 0 {
		ChipsPaidOut.Add(float64(n))
	}
}

// SetActiveEvents records how many time-boxed events are open.
func SetActiveEvents(n int) {
	if ActiveEventsGauge != nil {
		ActiveEventsGauge.Set(float64(n))
	}
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

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
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
