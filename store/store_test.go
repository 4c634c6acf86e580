package store

import (
	"context"
	"testing"
	"time"
)

func TestMemoryBasicOps(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	if _, ok, _ := s.Get(ctx, "missing"); ok {
		t.Fatal("expected missing key")
	}
	if err := s.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, _ := s.Get(ctx, "k")
	if !ok || v != "v" {
		t.Fatalf("get = %q, %v; want v, true", v, ok)
	}

	existed, _ := s.Del(ctx, "k")
	if !existed {
		t.Fatal("del should report existing key")
	}
	existed, _ = s.Del(ctx, "k")
	if existed {
		t.Fatal("second del should report missing key")
	}
}

func TestMemorySetNXActsAsLock(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	got, _ := s.SetNX(ctx, "lock", "1", time.Minute)
	if !got {
		t.Fatal("first SetNX should acquire")
	}
	got, _ = s.SetNX(ctx, "lock", "1", time.Minute)
	if got {
		t.Fatal("second SetNX should not acquire")
	}
}

func TestMemoryExpiryIsLazy(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	now := time.Now()
	s.SetClock(func() time.Time { return now })

	if err := s.Set(ctx, "k", "v", 30*time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	now = now.Add(31 * time.Second)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("key should have expired")
	}
	// Expired keys are claimable again via SetNX.
	if got, _ := s.SetNX(ctx, "k", "v2", 0); !got {
		t.Fatal("SetNX should succeed after expiry")
	}
}

func TestMemoryIncr(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	n, _ := s.Incr(ctx, "n", 5)
	if n != 5 {
		t.Fatalf("incr = %d, want 5", n)
	}
	n, _ = s.Incr(ctx, "n", -2)
	if n != 3 {
		t.Fatalf("incr = %d, want 3", n)
	}
}

func TestMemoryZTopOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_ = s.ZSet(ctx, "lb", "alice", 100)
	_ = s.ZSet(ctx, "lb", "bob", 300)
	_ = s.ZSet(ctx, "lb", "carol", 200)
	_ = s.ZSet(ctx, "lb", "bob", 50) // overwrite, not increment

	top, err := s.ZTop(ctx, "lb", 2)
	if err != nil {
		t.Fatalf("ztop: %v", err)
	}
	if len(top) != 2 || top[0].Member != "carol" || top[1].Member != "alice" {
		t.Fatalf("ztop = %+v; want carol then alice", top)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	type rec struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	if err := SetJSON(ctx, s, "r", rec{Name: "x", Count: 2}, 0); err != nil {
		t.Fatalf("setjson: %v", err)
	}
	var got rec
	ok, err := GetJSON(ctx, s, "r", &got)
	if err != nil || !ok {
		t.Fatalf("getjson: ok=%v err=%v", ok, err)
	}
	if got.Name != "x" || got.Count != 2 {
		t.Fatalf("got %+v", got)
	}
	ok, err = GetJSON(ctx, s, "nope", &got)
	if err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
}
