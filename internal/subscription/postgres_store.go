package subscription

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// PostgresStore persists settings rows in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed settings store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, s *Settings) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO subscription_settings
			(tenant_id, monthly_price, end_date, override_access, disabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.TenantID, s.MonthlyPrice, s.EndDate, s.OverrideAccess, s.Disabled,
		s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrTenantExists
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, tenantID string) (*Settings, error) {
	return scanSettings(p.db.QueryRowContext(ctx, `
		SELECT tenant_id, monthly_price, end_date, override_access, disabled, created_at, updated_at
		FROM subscription_settings WHERE tenant_id = $1`, tenantID))
}

func (p *PostgresStore) Update(ctx context.Context, s *Settings) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE subscription_settings
		SET monthly_price = $1, end_date = $2, override_access = $3, disabled = $4, updated_at = $5
		WHERE tenant_id = $6`,
		s.MonthlyPrice, s.EndDate, s.OverrideAccess, s.Disabled, s.UpdatedAt, s.TenantID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context) ([]*Settings, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT tenant_id, monthly_price, end_date, override_access, disabled, created_at, updated_at
		FROM subscription_settings ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Settings
	for rows.Next() {
		s := &Settings{}
		var end sql.NullTime
		if err := rows.Scan(&s.TenantID, &s.MonthlyPrice, &end, &s.OverrideAccess,
			&s.Disabled, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		if end.Valid {
			s.EndDate = &end.Time
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSettings(row *sql.Row) (*Settings, error) {
	s := &Settings{}
	var end sql.NullTime
	err := row.Scan(&s.TenantID, &s.MonthlyPrice, &end, &s.OverrideAccess,
		&s.Disabled, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if end.Valid {
		s.EndDate = &end.Time
	}
	return s, nil
}

// Migrate creates the settings table (used in dev/test; prod uses migration files).
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS subscription_settings (
			tenant_id       TEXT PRIMARY KEY,
			monthly_price   BIGINT NOT NULL CHECK (monthly_price > 0),
			end_date        TIMESTAMPTZ,
			override_access BOOLEAN NOT NULL DEFAULT FALSE,
			disabled        BOOLEAN NOT NULL DEFAULT FALSE,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

var _ Store = (*PostgresStore)(nil)
