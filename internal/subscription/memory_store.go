package subscription

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory settings store for demo/development.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]*Settings // by tenant ID
}

// NewMemoryStore creates a new in-memory settings store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*Settings)}
}

func (m *MemoryStore) Create(_ context.Context, s *Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rows[s.TenantID]; exists {
		return ErrTenantExists
	}
	m.rows[s.TenantID] = s.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, tenantID string) (*Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.rows[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, s *Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rows[s.TenantID]; !ok {
		return ErrNotFound
	}
	m.rows[s.TenantID] = s.Clone()
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]*Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Settings, 0, len(m.rows))
	for _, s := range m.rows {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
