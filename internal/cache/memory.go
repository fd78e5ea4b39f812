package cache

import (
	"context"
	"sync"
	"time"
)

const defaultCleanupInterval = 5 * time.Minute

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero = never
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is a process-local Cache with a background cleanup goroutine.
type Memory struct {
	mu       sync.RWMutex
	entries  map[string]memoryEntry
	stopCh   chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewMemory creates a memory cache sweeping expired entries every interval.
func NewMemory(interval time.Duration) *Memory {
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	m := &Memory{
		entries: make(map[string]memoryEntry),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
	go m.cleanupLoop(interval)
	return m
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if now := m.now(); e.expired(now) {
		// A Set may have landed between the two locks.
		m.mu.Lock()
		e, ok = m.entries[key]
		if ok && e.expired(now) {
			delete(m.entries, key)
			ok = false
		}
		m.mu.Unlock()
		if !ok {
			return nil, false, nil
		}
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, maxAge time.Duration) error {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if maxAge > 0 {
		e.expiresAt = m.now().Add(maxAge)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = e
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Clear drops every entry.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryEntry)
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) Ping(context.Context) error { return nil }

// Close stops the cleanup goroutine.
func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	return nil
}

func (m *Memory) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *Memory) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
		}
	}
}
