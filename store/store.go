// Package store abstracts the shared key-value store every engine component
// writes through. The contract is deliberately narrow: single-key get, set,
// set-if-absent, increment, delete, and expire, plus a sorted-set mirror for
// the leaderboard. There are no multi-key transactions and no compare-and-swap
// beyond SetNX; callers own their read-modify-write races.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/onnwee/chat-arcade/backend/config"
)

// Store is the single-key operation surface backing all engine state.
// A ttl of 0 means the key does not expire.
type Store interface {
	// Get returns the value and whether the key existed.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX creates the key only if absent and reports whether it did.
	// Creation success doubles as lock acquisition for end-locks and cooldowns.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Incr atomically adds delta (may be negative) and returns the new value.
	// A missing key counts as 0.
	Incr(ctx context.Context, key string, delta int64) (int64, error)
	// Del removes the key and reports whether it existed. The report is the
	// claim primitive for event resolution: only the caller that observed the
	// delete may run the payout.
	Del(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Sorted-set mirror used by the leaderboard.
	ZSet(ctx context.Context, key, member string, score int64) error
	ZTop(ctx context.Context, key string, n int) ([]ZEntry, error)

	Ping(ctx context.Context) error
	Close() error
}

// ZEntry is one member of a sorted set, highest score first in ZTop results.
type ZEntry struct {
	Member string
	Score  int64
}

// Open builds the Store selected by cfg.StoreBackend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StoreBackend {
	case "redis":
		return OpenRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	case "postgres":
		return OpenPostgres(ctx, cfg.DBDsn)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

// GetJSON reads key and unmarshals it into v, reporting whether the key existed.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

// SetJSON marshals v and writes it under key.
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.Set(ctx, key, string(raw), ttl)
}
