package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// CacheStore keeps session descriptors with an expiry so other processes and
// restarts can see what was running.
type CacheStore interface {
	SetSession(ctx context.Context, d *Descriptor, ttl time.Duration) error
	GetSession(ctx context.Context, sessionID string) (*Descriptor, error)
	DeleteSession(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context) ([]*Descriptor, error)
	Touch(ctx context.Context, sessionID string, ttl time.Duration) error
}

// MemoryStore is an in-process CacheStore.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	desc    Descriptor
	expires time.Time // zero means never
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (m *MemoryStore) alive(e memoryEntry) bool {
	return e.expires.IsZero() || m.now().Before(e.expires)
}

func (m *MemoryStore) SetSession(_ context.Context, d *Descriptor, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[d.ID] = memoryEntry{desc: *d, expires: m.expiry(ttl)}
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, sessionID string) (*Descriptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[sessionID]
	if !ok || !m.alive(e) {
		return nil, ErrSessionNotFound
	}
	d := e.desc
	return &d, nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sessionID)
	return nil
}

// ListSessions returns live entries oldest first and prunes expired ones.
func (m *MemoryStore) ListSessions(_ context.Context) ([]*Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Descriptor, 0, len(m.entries))
	for id, e := range m.entries {
		if !m.alive(e) {
			delete(m.entries, id)
			continue
		}
		d := e.desc
		out = append(out, &d)
	}
	sortDescriptors(out)
	return out, nil
}

func (m *MemoryStore) Touch(_ context.Context, sessionID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sessionID]
	if !ok || !m.alive(e) {
		return ErrSessionNotFound
	}
	e.expires = m.expiry(ttl)
	m.entries[sessionID] = e
	return nil
}

func sortDescriptors(ds []*Descriptor) {
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].CreatedAt.Equal(ds[j].CreatedAt) {
			return ds[i].ID < ds[j].ID
		}
		return ds[i].CreatedAt.Before(ds[j].CreatedAt)
	})
}
