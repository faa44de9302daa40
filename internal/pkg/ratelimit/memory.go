package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count     int64
	windowEnd time.Time
}

// MemoryStore is an in-process fixed-window counter store. Counts are
// per instance, so ceilings multiply by the number of replicas when the
// service is scaled out; use the Redis store in that setup.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	done    chan struct{}
	once    sync.Once
}

// NewMemoryStore creates a new MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		done:    make(chan struct{}),
	}
}

// Increment bumps the counter for key, starting a fresh window if the
// previous one has elapsed.
func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || !now.Before(entry.windowEnd) {
		entry = &memoryEntry{windowEnd: now.Add(window)}
		s.entries[key] = entry
	}
	entry.count++
	return entry.count, nil
}

// StartSweeper launches a background goroutine that drops entries whose
// window has elapsed, keeping the map from growing without bound.
func (s *MemoryStore) StartSweeper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep(time.Now())
			case <-s.done:
				return
			}
		}
	}()
}

// Stop terminates the sweeper goroutine
func (s *MemoryStore) Stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.entries {
		if !now.Before(entry.windowEnd) {
			delete(s.entries, key)
		}
	}
}
