package subscription

import "context"

// Store persists settings rows. Update is a full-row replace; callers are
// expected to hold the per-tenant write lock so read-modify-write is atomic.
type Store interface {
	Create(ctx context.Context, s *Settings) error
	Get(ctx context.Context, tenantID string) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
	List(ctx context.Context) ([]*Settings, error)
}
