package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-process Store used by tests and
// single-process local runs. Expiry is lazy, matching the Postgres backend.
type MemoryStore struct {
	mu    sync.Mutex
	kv    map[string]memVal
	zsets map[string]map[string]int64
	// now is swappable in tests to exercise expiry without sleeping.
	now func() time.Time
}

type memVal struct {
	value     string
	expiresAt time.Time // zero = no expiry
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		kv:    make(map[string]memVal),
		zsets: make(map[string]map[string]int64),
		now:   time.Now,
	}
}

// SetClock overrides the time source. Test helper.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *MemoryStore) live(key string) (memVal, bool) {
	v, ok := s.kv[key]
	if !ok {
		return memVal{}, false
	}
	if !v.expiresAt.IsZero() && !v.expiresAt.After(s.now()) {
		delete(s.kv, key)
		return memVal{}, false
	}
	return v, true
}

func (s *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.live(key)
	return v.value, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = memVal{value: value, expiresAt: s.expiry(ttl)}
	return nil
}

func (s *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live(key); ok {
		return false, nil
	}
	s.kv[key] = memVal{value: value, expiresAt: s.expiry(ttl)}
	return true, nil
}

func (s *MemoryStore) Incr(_ context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cur int64
	if v, ok := s.live(key); ok {
		cur, _ = strconv.ParseInt(v.value, 10, 64)
	}
	cur += delta
	s.kv[key] = memVal{value: strconv.FormatInt(cur, 10)}
	return cur, nil
}

func (s *MemoryStore) Del(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live(key)
	delete(s.kv, key)
	return ok, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.live(key); ok {
		v.expiresAt = s.expiry(ttl)
		s.kv[key] = v
	}
	return nil
}

func (s *MemoryStore) ZSet(_ context.Context, key, member string, score int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zsets[key]
	if !ok {
		z = make(map[string]int64)
		s.zsets[key] = z
	}
	z[member] = score
	return nil
}

func (s *MemoryStore) ZTop(_ context.Context, key string, n int) ([]ZEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z := s.zsets[key]
	out := make([]ZEntry, 0, len(z))
	for m, sc := range z {
		out = append(out, ZEntry{Member: m, Score: sc})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
