package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/onnwee/chat-arcade/backend/economy"
	"github.com/onnwee/chat-arcade/backend/poll"
	"github.com/onnwee/chat-arcade/backend/store"
)

// Handlers carries the dependencies shared by all HTTP handlers.
type Handlers struct {
	Store  store.Store
	Ledger *economy.Ledger
	Polls  *poll.Engine
}

func NewHandlers(st store.Store, ledger *economy.Ledger, polls *poll.Engine) *Handlers {
	return &Handlers{Store: st, Ledger: ledger, Polls: polls}
}

// HandleHealthz responds to liveness probe requests by checking store connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with per-dependency checks.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"store", func() error { return h.Store.Ping(r.Context()) }},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HandleStatus returns a lightweight status summary: the poll state line and
// the current chip leaders.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	pollLine, err := h.Polls.StatusLine(r.Context())
	if err != nil {
		slog.Error("poll status", slog.Any("err", err))
		http.Error(w, "status unavailable", http.StatusInternalServerError)
		return
	}
	top, err := h.Ledger.TopN(r.Context(), 5)
	if err != nil {
		slog.Error("leaderboard", slog.Any("err", err))
		http.Error(w, "status unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"poll": pollLine,
		"top":  top,
	})
}

// HandleLeaderboard returns the top chip balances as JSON. ?n= caps at 25.
func (h *Handlers) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	n := 10
	if v := r.URL.Query().Get("n"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = parsed
		}
	}
	if n > 25 {
		n = 25
	}
	top, err := h.Ledger.TopN(r.Context(), n)
	if err != nil {
		slog.Error("leaderboard", slog.Any("err", err))
		http.Error(w, "leaderboard unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(top)
}

// HandleConfig handles GET and PUT requests for safe configuration keys.
// Values written here land under cfg: keys in the store and override the env
// without a restart.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	// Only known keys; secrets must not be exposed here.
	safeKeys := map[string]bool{
		"GAMBLING_ENABLED": true,
		"STARTING_STAKE":   true,
		"DAILY_BONUS":      true,
		"RAFFLE_PRIZE":     true,
		"CHIP_DROP_POT":    true,
		"BOSS_REWARD":      true,
		"LOG_LEVEL":        true,
	}
	switch r.Method {
	case http.MethodGet:
		// Safe keys with store override if present, env fallback otherwise.
		out := map[string]string{}
		for k := range safeKeys {
			v, ok, err := h.Store.Get(r.Context(), "cfg:"+k)
			if err != nil {
				slog.Error("read config", slog.String("key", k), slog.Any("err", err))
				continue
			}
			if !ok {
				v = os.Getenv(k)
			}
			if v != "" {
				out[k] = v
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	case http.MethodPut, http.MethodPost:
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		for k, v := range body {
			if !safeKeys[k] {
				continue
			}
			if err := h.Store.Set(r.Context(), "cfg:"+k, strings.TrimSpace(v), 0); err != nil {
				slog.Error("failed to update config", slog.String("key", k), slog.Any("err", err))
				http.Error(w, "failed to update config", http.StatusInternalServerError)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
