package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestKeyedLimiterBurst(t *testing.T) {
	l := NewKeyedLimiter(0.001, 2)
	defer l.Close()
	ctx := context.Background()

	if !l.Allow(ctx, "a") || !l.Allow(ctx, "a") {
		t.Fatal("burst of two should pass")
	}
	if l.Allow(ctx, "a") {
		t.Fatal("third request should be throttled")
	}
	if !l.Allow(ctx, "b") {
		t.Fatal("separate key should have its own bucket")
	}
}

func TestKeyedLimiterEvictsIdleKeys(t *testing.T) {
	l := NewKeyedLimiter(1, 1)
	defer l.Close()
	l.Allow(context.Background(), "a")

	l.evictIdle(time.Now().Add(idleTTL + time.Second))

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) != 0 {
		t.Fatalf("expected idle entry to be evicted, have %d", len(l.entries))
	}
}

func TestNewSelectsBackend(t *testing.T) {
	disabled, err := New("", "", "", 0)
	if err != nil || disabled != nil {
		t.Fatalf("expected nil limiter when disabled, got %v %v", disabled, err)
	}

	local, err := New("", "", "", 30)
	if err != nil {
		t.Fatalf("new local limiter: %v", err)
	}
	defer local.Close()
	if _, ok := local.(*KeyedLimiter); !ok {
		t.Fatalf("expected keyed limiter, got %T", local)
	}

	redis := miniredis.RunT(t)
	shared, err := New(redis.Addr(), "", "", 30)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	defer shared.Close()
	if _, ok := shared.(*FixedWindowLimiter); !ok {
		t.Fatalf("expected redis limiter, got %T", shared)
	}
}
