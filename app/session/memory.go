package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

// MemoryStore keeps sessions in process. Used when no Redis address is configured.
type MemoryStore struct {
	mu    sync.Mutex
	items map[int64]memoryEntry
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		items: make(map[int64]memoryEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, userID int64) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.items[userID]
	if !ok {
		return Idle(), nil
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		delete(m.items, userID)
		return Idle(), nil
	}
	return entry.session, nil
}

func (m *MemoryStore) Save(_ context.Context, userID int64, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryEntry{session: normalize(s)}
	if m.ttl > 0 {
		entry.expiresAt = m.now().Add(m.ttl)
	}
	m.items[userID] = entry
	return nil
}

func (m *MemoryStore) Reset(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, userID)
	return nil
}

func (m *MemoryStore) ResetIfRequest(_ context.Context, userID int64, requestID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.items[userID]
	if !ok || requestID == "" || entry.session.RequestID != requestID {
		return false, nil
	}
	delete(m.items, userID)
	return true, nil
}
