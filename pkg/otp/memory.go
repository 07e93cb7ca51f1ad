package otp

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps pending entries in-process. Entries linger for grace past
// their expiry and are swept on Put.
type MemoryStore struct {
	mu      sync.Mutex
	grace   time.Duration
	entries map[string]Pending
	now     func() time.Time
}

func NewMemoryStore(grace time.Duration) *MemoryStore {
	if grace <= 0 {
		grace = DefaultTTL
	}
	return &MemoryStore{
		grace:   grace,
		entries: make(map[string]Pending),
		now:     time.Now,
	}
}

func (m *MemoryStore) Put(_ context.Context, purpose Purpose, p Pending) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, e := range m.entries {
		if now.After(e.ExpiresAt.Add(m.grace)) {
			delete(m.entries, k)
		}
	}
	m.entries[memoryKey(purpose, p.Email)] = p
	return nil
}

func (m *MemoryStore) Get(_ context.Context, purpose Purpose, email string) (Pending, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memoryKey(purpose, email)
	p, ok := m.entries[key]
	if !ok {
		return Pending{}, false, nil
	}
	if m.now().After(p.ExpiresAt.Add(m.grace)) {
		delete(m.entries, key)
		return Pending{}, false, nil
	}
	return p, true, nil
}

func (m *MemoryStore) Delete(_ context.Context, purpose Purpose, email string) error {
	m.mu.Lock()
	delete(m.entries, memoryKey(purpose, email))
	m.mu.Unlock()
	return nil
}

func memoryKey(purpose Purpose, email string) string {
	return string(purpose) + ":" + email
}
