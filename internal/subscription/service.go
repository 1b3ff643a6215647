package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/campuskit/campuskit/internal/ledger"
	"github.com/campuskit/campuskit/internal/metrics"
	"github.com/campuskit/campuskit/internal/syncutil"
)

// WarnOverrideMasked is returned when an admin enables the override while a
// paid period is still running. The flag is stored but has no visible effect
// until the paid period lapses.
const WarnOverrideMasked = "override_access stored but inert: a paid period is currently active and takes precedence"

// Publisher pushes a freshly resolved state to connected observers.
// Delivery is best-effort; implementations must never block.
type Publisher interface {
	PublishSubscriptionUpdate(tenantID string, settings *Settings, status Status)
}

// AdminPatch is a partial admin edit. Nil fields are left untouched.
type AdminPatch struct {
	MonthlyPrice   *int64     `json:"monthly_price"`
	EndDate        *time.Time `json:"subscription_end_date"`
	OverrideAccess *bool      `json:"override_access"`
	Disabled       *bool      `json:"disabled"`
}

// EditResult is the outcome of an applied admin edit.
type EditResult struct {
	Settings *Settings `json:"settings"`
	Status   Status    `json:"status"`
	Warnings []string  `json:"warnings,omitempty"`
}

// Service owns all writes to settings rows. Every mutation runs under a
// per-tenant lock so an admin edit and a concurrent payment extension cannot
// interleave into a lost update. Different tenants proceed in parallel.
type Service struct {
	store  Store
	ledger *ledger.Ledger
	pub    Publisher
	locks  *syncutil.ContextShardedMutex
	logger *slog.Logger
	now    func() time.Time
}

// ServiceOption configures the service.
type ServiceOption func(*Service)

// WithClock overrides the service clock (for tests).
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a new subscription service.
func NewService(store Store, led *ledger.Ledger, pub Publisher, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		ledger: led,
		pub:    pub,
		locks:  syncutil.NewContextShardedMutex(),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Setup creates a tenant's settings row at institute registration and writes
// the INITIAL_SETUP ledger entry.
func (s *Service) Setup(ctx context.Context, tenantID string, monthlyPrice int64) (*Settings, error) {
	if tenantID == "" {
		return nil, ErrInvalidInput
	}
	if monthlyPrice <= 0 {
		return nil, ErrInvalidPrice
	}

	now := s.now().UTC()
	row := &Settings{
		TenantID:     tenantID,
		MonthlyPrice: monthlyPrice,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, row); err != nil {
		return nil, err
	}

	if _, err := s.ledger.Record(ctx, tenantID, ledger.ActionInitialSetup, nil,
		fmt.Sprintf("subscription set up, monthly price %d", monthlyPrice)); err != nil {
		s.logger.Error("ledger append failed after setup", "tenant", tenantID, "error", err)
	}

	s.publish(tenantID, row)
	return row, nil
}

// Get returns the settings row and its freshly resolved status. The status
// is derived on every call and never cached: an expiry can flip a tenant
// from active to expired with no write occurring.
func (s *Service) Get(ctx context.Context, tenantID string) (*Settings, Status, error) {
	row, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return nil, "", err
	}
	status := Resolve(row, s.now())
	metrics.StatusResolutionsTotal.WithLabelValues(string(status)).Inc()
	return row, status, nil
}

// List returns every tenant's settings with resolved status (admin console).
func (s *Service) List(ctx context.Context) ([]*EditResult, error) {
	rows, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]*EditResult, 0, len(rows))
	for _, row := range rows {
		out = append(out, &EditResult{Settings: row, Status: Resolve(row, now)})
	}
	return out, nil
}

// ApplyAdminEdit validates and applies an administrator edit as one atomic
// read-modify-write, appends one ledger entry per logically distinct change,
// and publishes the new resolved state. Rejected edits leave settings and
// ledger untouched.
func (s *Service) ApplyAdminEdit(ctx context.Context, tenantID string, patch AdminPatch) (*EditResult, error) {
	if patch.MonthlyPrice != nil && *patch.MonthlyPrice <= 0 {
		return nil, ErrInvalidPrice
	}

	unlock, err := s.locks.LockContext(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	row, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var changes []ledger.Entry
	var warnings []string

	if patch.MonthlyPrice != nil && *patch.MonthlyPrice != row.MonthlyPrice {
		changes = append(changes, ledger.Entry{
			Action:  ledger.ActionPriceChange,
			Details: fmt.Sprintf("monthly price changed %d -> %d", row.MonthlyPrice, *patch.MonthlyPrice),
		})
		metrics.AdminEditsTotal.WithLabelValues("monthly_price").Inc()
		row.MonthlyPrice = *patch.MonthlyPrice
	}

	if patch.EndDate != nil && !equalTime(row.EndDate, patch.EndDate) {
		changes = append(changes, ledger.Entry{
			Action:  ledger.ActionAdminOverride,
			Details: fmt.Sprintf("subscription end date set to %s", patch.EndDate.UTC().Format(time.RFC3339)),
		})
		metrics.AdminEditsTotal.WithLabelValues("subscription_end_date").Inc()
		end := patch.EndDate.UTC()
		row.EndDate = &end
	}

	if patch.OverrideAccess != nil && *patch.OverrideAccess != row.OverrideAccess {
		verb := "disabled"
		if *patch.OverrideAccess {
			verb = "enabled"
			if row.PaidActive(now) {
				warnings = append(warnings, WarnOverrideMasked)
			}
		}
		changes = append(changes, ledger.Entry{
			Action:  ledger.ActionAdminOverride,
			Details: "override access " + verb,
		})
		metrics.AdminEditsTotal.WithLabelValues("override_access").Inc()
		row.OverrideAccess = *patch.OverrideAccess
	}

	if patch.Disabled != nil && *patch.Disabled != row.Disabled {
		verb := "re-enabled"
		if *patch.Disabled {
			verb = "disabled"
		}
		changes = append(changes, ledger.Entry{
			Action:  ledger.ActionAdminOverride,
			Details: "tenant " + verb + " by administrator",
		})
		metrics.AdminEditsTotal.WithLabelValues("disabled").Inc()
		row.Disabled = *patch.Disabled
	}

	if len(changes) > 0 {
		row.UpdatedAt = now
		// Full-row replace under the tenant lock; never a blind field patch.
		if err := s.store.Update(ctx, row); err != nil {
			return nil, err
		}
		for _, ch := range changes {
			if _, err := s.ledger.Record(ctx, tenantID, ch.Action, nil, ch.Details); err != nil {
				s.logger.Error("ledger append failed after admin edit",
					"tenant", tenantID, "action", ch.Action, "error", err)
			}
		}
		s.publish(tenantID, row)
	}

	return &EditResult{
		Settings: row,
		Status:   Resolve(row, s.now()),
		Warnings: warnings,
	}, nil
}

// ExtendPaid appends months of paid access after whichever is later of now
// and the current end date, so unused remaining time is never overwritten.
// Runs under the same per-tenant lock as admin edits. The caller records the
// PAYMENT ledger entry and publishes; this method only moves the expiry.
func (s *Service) ExtendPaid(ctx context.Context, tenantID string, months int) (*Settings, error) {
	if months <= 0 {
		return nil, ErrInvalidInput
	}

	unlock, err := s.locks.LockContext(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	row, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	base := now
	if row.EndDate != nil && row.EndDate.After(now) {
		base = row.EndDate.UTC()
	}
	end := base.AddDate(0, months, 0)
	row.EndDate = &end
	row.UpdatedAt = now

	if err := s.store.Update(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// Publish pushes the current resolved state for a tenant (used after a
// payment commits, where the payment processor did the write).
func (s *Service) Publish(tenantID string, row *Settings) {
	s.publish(tenantID, row)
}

func (s *Service) publish(tenantID string, row *Settings) {
	if s.pub == nil {
		return
	}
	s.pub.PublishSubscriptionUpdate(tenantID, row.Clone(), Resolve(row, s.now()))
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
