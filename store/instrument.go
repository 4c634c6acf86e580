package store

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Instrument wraps a Store so every round trip is observed on obs. A nil obs
// returns s unchanged.
func Instrument(s Store, obs prometheus.Observer) Store {
	if obs == nil {
		return s
	}
	return &instrumented{inner: s, obs: obs}
}

type instrumented struct {
	inner Store
	obs   prometheus.Observer
}

func (s *instrumented) observe(start time.Time) {
	s.obs.Observe(time.Since(start).Seconds())
}

func (s *instrumented) Get(ctx context.Context, key string) (string, bool, error) {
	defer s.observe(time.Now())
	return s.inner.Get(ctx, key)
}

func (s *instrumented) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	defer s.observe(time.Now())
	return s.inner.Set(ctx, key, value, ttl)
}

func (s *instrumented) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	defer s.observe(time.Now())
	return s.inner.SetNX(ctx, key, value, ttl)
}

func (s *instrumented) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	defer s.observe(time.Now())
	return s.inner.Incr(ctx, key, delta)
}

func (s *instrumented) Del(ctx context.Context, key string) (bool, error) {
	defer s.observe(time.Now())
	return s.inner.Del(ctx, key)
}

func (s *instrumented) Expire(ctx context.Context, key string, ttl time.Duration) error {
	defer s.observe(time.Now())
	return s.inner.Expire(ctx, key, ttl)
}

func (s *instrumented) ZSet(ctx context.Context, key, member string, score int64) error {
	defer s.observe(time.Now())
	return s.inner.ZSet(ctx, key, member, score)
}

func (s *instrumented) ZTop(ctx context.Context, key string, n int) ([]ZEntry, error) {
	defer s.observe(time.Now())
	return s.inner.ZTop(ctx, key, n)
}

func (s *instrumented) Ping(ctx context.Context) error { return s.inner.Ping(ctx) }

func (s *instrumented) Close() error { return s.inner.Close() }
