// Command backend is the main entrypoint for the chat-arcade bot and API.
// It:
//   - Loads configuration and initializes structured logging.
//   - Opens the shared key-value store (Redis, Postgres, or in-memory).
//   - Wires the chip ledger and game engines to the Twitch chat router.
//   - Runs the background resolver so polls and events finish in quiet chat.
//   - Exposes a minimal HTTP server with /healthz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"math/rand"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/chat-arcade/backend/blackjack"
	"github.com/onnwee/chat-arcade/backend/bot"
	"github.com/onnwee/chat-arcade/backend/chat"
	"github.com/onnwee/chat-arcade/backend/config"
	"github.com/onnwee/chat-arcade/backend/economy"
	"github.com/onnwee/chat-arcade/backend/events"
	"github.com/onnwee/chat-arcade/backend/games"
	"github.com/onnwee/chat-arcade/backend/poll"
	"github.com/onnwee/chat-arcade/backend/scheduler"
	"github.com/onnwee/chat-arcade/backend/server"
	"github.com/onnwee/chat-arcade/backend/store"
	"github.com/onnwee/chat-arcade/backend/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("chat-arcade", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Shared key-value store
	st, err := store.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", slog.Any("err", err), slog.String("backend", cfg.StoreBackend))
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("failed to close store", slog.Any("err", err))
		}
	}()
	// Capture the reaper before instrumentation hides the concrete type.
	var reaper scheduler.Reaper
	if pg, ok := st.(*store.PostgresStore); ok {
		reaper = pg
	}
	st = store.Instrument(st, telemetry.StoreOpDuration)
	slog.Info("store ready", slog.String("backend", cfg.StoreBackend))

	// Engines share one ledger. Each gets its own rand source; the mutex
	// inside a service only guards that service's draws, so sharing one
	// source across services would race.
	seed := time.Now().UnixNano()
	ledger := &economy.Ledger{
		Store:         st,
		StartingStake: cfg.StartingStake,
		DailyBonus:    cfg.DailyBonus,
		Exclude:       cfg.LeaderboardExclude,
	}
	bj := &blackjack.Service{
		Ledger:   ledger,
		Store:    st,
		Timeout:  cfg.HandTimeout,
		Cooldown: cfg.DealCooldown,
		Rand:     rand.New(rand.NewSource(seed)),
	}
	wagers := &games.Service{
		Ledger:   ledger,
		Store:    st,
		Cooldown: cfg.GameCooldown,
		Rand:     rand.New(rand.NewSource(seed + 1)),
	}
	polls := &poll.Engine{
		Store: st,
		Cfg: poll.Config{
			DefaultDuration: cfg.PollDefaultDuration,
			WinnerDisplay:   cfg.PollWinnerDisplay,
			MaxQueue:        cfg.PollMaxQueue,
			MultiVote:       cfg.PollMultiVote,
			MaxQuestionLen:  cfg.PollMaxQuestionLen,
			MaxOptionLen:    cfg.PollMaxOptionLen,
			MaxOptions:      cfg.PollMaxOptions,
			BlockedWords:    cfg.PollBlockedWords,
		},
	}
	evs := &events.Manager{
		Store:  st,
		Ledger: ledger,
		Rand:   rand.New(rand.NewSource(seed + 2)),
		Cfg: events.Config{
			RaffleWindow:    cfg.RaffleWindow,
			RafflePrize:     cfg.RafflePrize,
			HeistWindow:     cfg.HeistWindow,
			ChipDropWindow:  cfg.ChipDropWindow,
			ChipDropPot:     cfg.ChipDropPot,
			ChipDropWinners: cfg.ChipDropWinners,
			ChallengeWindow: cfg.ChallengeWindow,
			ChallengeReward: cfg.ChallengeReward,
			BossWindow:      cfg.BossWindow,
			BossReward:      cfg.BossReward,
		},
	}
	router := &bot.Router{
		Cfg:       cfg,
		Store:     st,
		Ledger:    ledger,
		Blackjack: bj,
		Games:     wagers,
		Polls:     polls,
		Events:    evs,
	}

	// Chat bot; announcements from the resolver go to chat when connected,
	// otherwise to the log.
	announce := func(msg string) { slog.Info("announce", slog.String("msg", msg)) }
	if err := cfg.ValidateChatReady(); err == nil {
		b := chat.New(cfg, router)
		announce = b.Say
		go func() {
			if err := b.Run(ctx); err != nil {
				slog.Error("chat bot exited", slog.Any("err", err))
				stop()
			}
		}()
	} else {
		slog.Info("chat bot disabled", slog.Any("reason", err))
	}

	// Background resolver; Postgres needs the reaper, Redis expires natively.
	go scheduler.StartResolverJob(ctx, cfg.ResolveInterval, polls, evs, reaper, announce)

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/status/metrics/config)
	go func() {
		if err := server.Start(ctx, server.NewHandlers(st, ledger, polls), cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
