package ledger

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory ledger store for demo/development.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]*Entry // tenantID → chronological entries
}

// NewMemoryStore creates a new in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]*Entry)}
}

func (m *MemoryStore) Append(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *e
	existing := m.entries[e.TenantID]
	// Clamp to the previous timestamp so per-tenant ordering stays
	// non-decreasing even if the wall clock steps backwards.
	if n := len(existing); n > 0 && cp.CreatedAt.Before(existing[n-1].CreatedAt) {
		cp.CreatedAt = existing[n-1].CreatedAt
	}
	m.entries[e.TenantID] = append(existing, &cp)
	return nil
}

func (m *MemoryStore) ListByTenant(_ context.Context, tenantID string, limit int) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.entries[tenantID]
	start := 0
	if limit > 0 && len(entries) > limit {
		start = len(entries) - limit
	}

	out := make([]*Entry, 0, len(entries)-start)
	for _, e := range entries[start:] {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
