package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiterAllowsUpToCeiling(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore())
	class := Class{Name: "test", Window: time.Minute, Limit: 3}

	for i := 0; i < 3; i++ {
		if !limiter.Allow(context.Background(), "1.2.3.4", class) {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if limiter.Allow(context.Background(), "1.2.3.4", class) {
		t.Fatal("request over the ceiling should be denied")
	}
}

func TestLimiterKeysCountIndependently(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore())
	class := Class{Name: "test", Window: time.Minute, Limit: 1}

	if !limiter.Allow(context.Background(), "1.2.3.4", class) {
		t.Fatal("first key should be allowed")
	}
	if !limiter.Allow(context.Background(), "5.6.7.8", class) {
		t.Fatal("different key should have its own counter")
	}
	if limiter.Allow(context.Background(), "1.2.3.4", class) {
		t.Fatal("first key should now be over its ceiling")
	}
}

func TestLimiterClassesCountIndependently(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore())
	loginLike := Class{Name: "a", Window: time.Minute, Limit: 1}
	resetLike := Class{Name: "b", Window: time.Minute, Limit: 1}

	if !limiter.Allow(context.Background(), "1.2.3.4", loginLike) {
		t.Fatal("first class should be allowed")
	}
	if !limiter.Allow(context.Background(), "1.2.3.4", resetLike) {
		t.Fatal("same key under another class should have its own counter")
	}
}

func TestMemoryStoreWindowReset(t *testing.T) {
	store := NewMemoryStore()

	count, err := store.Increment(context.Background(), "key", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}

	count, _ = store.Increment(context.Background(), "key", 10*time.Millisecond)
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}

	time.Sleep(15 * time.Millisecond)

	count, _ = store.Increment(context.Background(), "key", 10*time.Millisecond)
	if count != 1 {
		t.Fatalf("expected fresh window count 1, got %d", count)
	}
}

func TestMemoryStoreSweepDropsElapsedWindows(t *testing.T) {
	store := NewMemoryStore()

	if _, err := store.Increment(context.Background(), "stale", 10*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Increment(context.Background(), "fresh", time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store.sweep(time.Now().Add(20 * time.Millisecond))

	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.entries["stale"]; ok {
		t.Fatal("elapsed window should have been swept")
	}
	if _, ok := store.entries["fresh"]; !ok {
		t.Fatal("active window should survive the sweep")
	}
}
