package payment

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists payment intents in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed intent store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, in *Intent) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO payment_intents (order_id, tenant_id, months, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		in.OrderID, in.TenantID, in.Months, in.Amount, string(in.Status), in.CreatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, orderID string) (*Intent, error) {
	return scanIntent(p.db.QueryRowContext(ctx, `
		SELECT order_id, tenant_id, months, amount, status, created_at, consumed_at
		FROM payment_intents WHERE order_id = $1`, orderID))
}

// Consume flips pending→consumed in a single conditional UPDATE, which is
// atomic in Postgres: of two concurrent callbacks for one order, exactly one
// sees a row.
func (p *PostgresStore) Consume(ctx context.Context, orderID string, at time.Time) (*Intent, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE payment_intents
		SET status = 'consumed', consumed_at = $2
		WHERE order_id = $1 AND status = 'pending'
		RETURNING order_id, tenant_id, months, amount, status, created_at, consumed_at`,
		orderID, at,
	)
	return scanIntent(row)
}

func (p *PostgresStore) ListPending(ctx context.Context, limit int) ([]*Intent, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT order_id, tenant_id, months, amount, status, created_at, consumed_at
		FROM payment_intents
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Intent
	for rows.Next() {
		in := &Intent{}
		var status string
		var consumed sql.NullTime
		if err := rows.Scan(&in.OrderID, &in.TenantID, &in.Months, &in.Amount,
			&status, &in.CreatedAt, &consumed); err != nil {
			return nil, err
		}
		in.Status = IntentStatus(status)
		if consumed.Valid {
			in.ConsumedAt = &consumed.Time
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func scanIntent(row *sql.Row) (*Intent, error) {
	in := &Intent{}
	var status string
	var consumed sql.NullTime
	err := row.Scan(&in.OrderID, &in.TenantID, &in.Months, &in.Amount,
		&status, &in.CreatedAt, &consumed)
	if err == sql.ErrNoRows {
		return nil, ErrReplayOrUnknown
	}
	if err != nil {
		return nil, err
	}
	in.Status = IntentStatus(status)
	if consumed.Valid {
		in.ConsumedAt = &consumed.Time
	}
	return in, nil
}

// Migrate creates the intents table (used in dev/test; prod uses migration files).
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS payment_intents (
			order_id    TEXT PRIMARY KEY,
			tenant_id   TEXT NOT NULL,
			months      INTEGER NOT NULL CHECK (months > 0),
			amount      BIGINT NOT NULL CHECK (amount > 0),
			status      TEXT NOT NULL DEFAULT 'pending',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			consumed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_payment_intents_tenant
			ON payment_intents(tenant_id, created_at);
	`)
	return err
}

var _ IntentStore = (*PostgresStore)(nil)
