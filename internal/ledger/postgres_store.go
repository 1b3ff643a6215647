package ledger

import (
	"context"
	"database/sql"
)

// PostgresStore persists ledger entries in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed ledger store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Append(ctx context.Context, e *Entry) error {
	// created_at uses GREATEST against the tenant's last entry so per-tenant
	// ordering stays non-decreasing under clock steps.
	return p.db.QueryRowContext(ctx, `
		INSERT INTO billing_ledger (id, tenant_id, action_type, amount, details, created_at)
		VALUES ($1, $2, $3, $4, $5, GREATEST(
			$6::timestamptz,
			COALESCE((SELECT MAX(created_at) FROM billing_ledger WHERE tenant_id = $2), $6::timestamptz)
		))
		RETURNING created_at`,
		e.ID, e.TenantID, string(e.Action), e.Amount, e.Details, e.CreatedAt,
	).Scan(&e.CreatedAt)
}

func (p *PostgresStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*Entry, error) {
	// Fetch the most recent entries, then reverse into chronological order.
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, action_type, amount, details, created_at
		FROM billing_ledger
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var newest []*Entry
	for rows.Next() {
		e := &Entry{}
		var action string
		var amount sql.NullInt64
		if err := rows.Scan(&e.ID, &e.TenantID, &action, &amount, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = ActionType(action)
		if amount.Valid {
			v := amount.Int64
			e.Amount = &v
		}
		newest = append(newest, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*Entry, len(newest))
	for i, e := range newest {
		out[len(newest)-1-i] = e
	}
	return out, nil
}

// Migrate creates the ledger table (used in dev/test; prod uses migration files).
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS billing_ledger (
			id          TEXT PRIMARY KEY,
			tenant_id   TEXT NOT NULL,
			action_type TEXT NOT NULL,
			amount      BIGINT,
			details     TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_billing_ledger_tenant
			ON billing_ledger(tenant_id, created_at);
	`)
	return err
}

var _ Store = (*PostgresStore)(nil)
