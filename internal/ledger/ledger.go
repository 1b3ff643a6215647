// Package ledger keeps the append-only audit trail of billing actions.
//
// Every subscription-affecting action (initial setup, price change, payment,
// admin override) lands here as an immutable entry. The ledger is the source
// of truth for history; current state lives in the settings row for O(1)
// reads. Entries are never edited or removed.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/campuskit/campuskit/internal/idgen"
)

var (
	ErrUnknownAction = errors.New("ledger: unknown action type")
	ErrMissingTenant = errors.New("ledger: tenant id required")
)

// ActionType classifies a ledger entry.
type ActionType string

const (
	ActionInitialSetup  ActionType = "INITIAL_SETUP"
	ActionPriceChange   ActionType = "PRICE_CHANGE"
	ActionPayment       ActionType = "PAYMENT"
	ActionAdminOverride ActionType = "ADMIN_OVERRIDE"
)

// Valid reports whether the action type is one of the known values.
func (a ActionType) Valid() bool {
	switch a {
	case ActionInitialSetup, ActionPriceChange, ActionPayment, ActionAdminOverride:
		return true
	}
	return false
}

// Entry is one immutable audit row. Amount is set only for PAYMENT entries.
type Entry struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	Action    ActionType `json:"action_type"`
	Amount    *int64     `json:"amount,omitempty"`
	Details   string     `json:"details,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Store persists ledger entries. Append-only: there is no update or delete.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]*Entry, error)
}

// Ledger provides the audit-trail API over a Store.
type Ledger struct {
	store Store
}

// New creates a new ledger.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Record appends one entry. The server clock stamps the entry; per-tenant
// ordering is non-decreasing (enforced by the store).
func (l *Ledger) Record(ctx context.Context, tenantID string, action ActionType, amount *int64, details string) (*Entry, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	if !action.Valid() {
		return nil, ErrUnknownAction
	}

	e := &Entry{
		ID:        idgen.WithPrefix("ent_"),
		TenantID:  tenantID,
		Action:    action,
		Amount:    amount,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.store.Append(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// History returns up to limit entries for a tenant in chronological order.
// A non-positive limit defaults to 100.
func (l *Ledger) History(ctx context.Context, tenantID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	return l.store.ListByTenant(ctx, tenantID, limit)
}
