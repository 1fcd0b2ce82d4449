package revocation

import (
	"context"
	"sync"
	"time"
)

// MemoryList is the single-instance fallback when no Redis is configured.
// Expired entries are dropped lazily on lookup.
type MemoryList struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	clock   func() time.Time
}

func NewMemoryList() *MemoryList {
	return &MemoryList{
		entries: make(map[string]time.Time),
		clock:   time.Now,
	}
}

func (l *MemoryList) Revoke(_ context.Context, sessionID string, ttl time.Duration) error {
	if sessionID == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[sessionID] = l.clock().Add(ttl)
	return nil
}

func (l *MemoryList) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	l.mu.RLock()
	expiry, ok := l.entries[sessionID]
	l.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if l.clock().After(expiry) {
		l.mu.Lock()
		delete(l.entries, sessionID)
		l.mu.Unlock()
		return false, nil
	}
	return true, nil
}
