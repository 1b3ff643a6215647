package payment

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory intent store for demo/development.
type MemoryStore struct {
	mu      sync.Mutex
	intents map[string]*Intent // by order ID
}

// NewMemoryStore creates a new in-memory intent store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{intents: make(map[string]*Intent)}
}

func (m *MemoryStore) Create(_ context.Context, in *Intent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *in
	m.intents[in.OrderID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, orderID string) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, ok := m.intents[orderID]
	if !ok {
		return nil, ErrReplayOrUnknown
	}
	cp := *in
	return &cp, nil
}

// Consume marks a pending intent consumed. Check-and-mark happens under the
// store mutex so two near-simultaneous callbacks cannot both succeed.
func (m *MemoryStore) Consume(_ context.Context, orderID string, at time.Time) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, ok := m.intents[orderID]
	if !ok || in.Status != IntentPending {
		return nil, ErrReplayOrUnknown
	}
	in.Status = IntentConsumed
	consumed := at
	in.ConsumedAt = &consumed

	cp := *in
	return &cp, nil
}

func (m *MemoryStore) ListPending(_ context.Context, limit int) ([]*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Intent
	for _, in := range m.intents {
		if in.Status == IntentPending {
			cp := *in
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ IntentStore = (*MemoryStore)(nil)
