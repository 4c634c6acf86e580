// Package scheduler runs the background resolver loop. Chat traffic already
// drives most lifecycle transitions lazily; the loop guarantees polls and
// events still finish when chat goes quiet.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/chat-arcade/backend/events"
	"github.com/onnwee/chat-arcade/backend/poll"
	"github.com/onnwee/chat-arcade/backend/telemetry"
)

// Reaper removes logically expired rows. The Postgres store implements it;
// Redis expires keys itself.
type Reaper interface {
	ReapExpired(ctx context.Context) (int64, error)
}

// StartResolverJob ticks the poll engine and event manager, relaying any
// announcements through announce. It blocks until ctx is cancelled; run it in
// a goroutine.
func StartResolverJob(ctx context.Context, interval time.Duration, polls *poll.Engine, evs *events.Manager, reaper Reaper, announce func(string)) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	slog.Info("resolver job starting", slog.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Reap far less often than we resolve.
	reapEvery := 60
	cycles := 0

	for {
		select {
		case <-ctx.Done():
			slog.Info("resolver job stopped")
			return
		case <-ticker.C:
			resolveOnce(ctx, polls, evs, announce)
			cycles++
			if reaper != nil && cycles%reapEvery == 0 {
				if n, err := reaper.ReapExpired(ctx); err != nil {
					slog.Warn("reap expired", slog.Any("err", err))
				} else if n > 0 {
					slog.Debug("reaped expired keys", slog.Int64("count", n))
				}
			}
		}
	}
}

func resolveOnce(ctx context.Context, polls *poll.Engine, evs *events.Manager, announce func(string)) {
	telemetry.TimeFunc(telemetry.ResolveCycleDuration, func() {
		msgs, err := polls.Tick(ctx)
		if err != nil {
			slog.Warn("poll tick", slog.Any("err", err))
		}
		for _, msg := range msgs {
			announce(msg)
		}

		msgs, err = evs.ResolveDue(ctx)
		if err != nil {
			slog.Warn("resolve events", slog.Any("err", err))
		}
		for _, msg := range msgs {
			announce(msg)
		}
	})
}
