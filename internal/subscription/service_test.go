package subscription

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/campuskit/internal/ledger"
)

// fakeClock lets tests move time forward between calls.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// capturePublisher records every push so tests can assert on fan-out.
type capturePublisher struct {
	mu     sync.Mutex
	events []Status
}

func (p *capturePublisher) PublishSubscriptionUpdate(_ string, _ *Settings, status Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, status)
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func newTestService(t *testing.T) (*Service, *ledger.MemoryStore, *capturePublisher, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	ledgerStore := ledger.NewMemoryStore()
	pub := &capturePublisher{}
	svc := NewService(NewMemoryStore(), ledger.New(ledgerStore), pub,
		slog.New(slog.NewTextHandler(io.Discard, nil)), WithClock(clock.Now))
	return svc, ledgerStore, pub, clock
}

func entries(t *testing.T, store *ledger.MemoryStore, tenantID string) []*ledger.Entry {
	t.Helper()
	out, err := store.ListByTenant(context.Background(), tenantID, 0)
	require.NoError(t, err)
	return out
}

// --- Setup ---

func TestSetup_CreatesRowAndLedgerEntry(t *testing.T) {
	svc, ledgerStore, pub, clock := newTestService(t)
	ctx := context.Background()

	row, err := svc.Setup(ctx, "dps-rkpuram", 499)
	require.NoError(t, err)
	assert.Equal(t, int64(499), row.MonthlyPrice)
	assert.Nil(t, row.EndDate)
	assert.Equal(t, clock.Now().UTC(), row.CreatedAt)

	got := entries(t, ledgerStore, "dps-rkpuram")
	require.Len(t, got, 1)
	assert.Equal(t, ledger.ActionInitialSetup, got[0].Action)
	assert.Nil(t, got[0].Amount)

	assert.Equal(t, 1, pub.count())

	_, status, err := svc.Get(ctx, "dps-rkpuram")
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, status, "freshly set up tenant has no access until payment or grant")
}

func TestSetup_RejectsDuplicateTenant(t *testing.T) {
	svc, ledgerStore, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Setup(ctx, "t1", 499)
	require.NoError(t, err)

	_, err = svc.Setup(ctx, "t1", 999)
	assert.ErrorIs(t, err, ErrTenantExists)
	assert.Len(t, entries(t, ledgerStore, "t1"), 1)
}

func TestSetup_RejectsInvalidInput(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Setup(ctx, "", 499)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Setup(ctx, "t1", 0)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = svc.Setup(ctx, "t1", -5)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

// --- Get ---

func TestGet_NotFound(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, _, err := svc.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- ApplyAdminEdit ---

func TestApplyAdminEdit_PriceChange(t *testing.T) {
	svc, ledgerStore, pub, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Setup(ctx, "t1", 499)
	require.NoError(t, err)
	published := pub.count()

	price := int64(750)
	res, err := svc.ApplyAdminEdit(ctx, "t1", AdminPatch{MonthlyPrice: &price})
	require.NoError(t, err)
	assert.Equal(t, int64(750), res.Settings.MonthlyPrice)
	assert.Empty(t, res.Warnings)

	got := entries(t, ledgerStore, "t1")
	require.Len(t, got, 2)
	assert.Equal(t, ledger.ActionPriceChange, got[1].Action)
	assert.Contains(t, got[1].Details, "499 -> 750")

	assert.Equal(t, published+1, pub.count())
}

func TestApplyAdminEdit_RejectsNonPositivePrice(t *testing.T) {
	svc, ledgerStore, pub, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Setup(ctx, "t1", 499)
	require.NoError(t, err)
	before := pub.count()

	for _, bad := range []int64{0, -1} {
		price := bad
		_, err := svc.ApplyAdminEdit(ctx, "t1", AdminPatch{MonthlyPrice: &price})
		assert.ErrorIs(t, err, ErrInvalidPrice)
	}

	// Rejected edits leave everything untouched.
	row, _, err := svc.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(499), row.MonthlyPrice)
	assert.Len(t, entries(t, ledgerStore, "t1"), 1)
	assert.Equal(t, before, pub.count())
}

func TestApplyAdminEdit_OneEntryPerDistinctChange(t *testing.T) {
	svc, ledgerStore, _, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.Setup(ctx, "t1", 499)
	require.NoError(t, err)

	price := int64(999)
	end := clock.Now().AddDate(0, 2, 0)
	override := true
	res, err := svc.ApplyAdminEdit(ctx, "t1", AdminPatch{
		MonthlyPrice:   &price,
		EndDate:        &end,
		OverrideAccess: &override,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, res.Status)

	got := entries(t, ledgerStore, "t1")
	require.Len(t, got, 4) // setup + price + end date + override
	assert.Equal(t, ledger.ActionPriceChange, got[1].Action)
	assert.Equal(t, ledger.ActionAdminOverride, got[2].Action)
	assert.Equal(t, ledger.ActionAdminOverride, got[3].Action)
}

func TestApplyAdminEdit_NoOpWritesNothing(t *testing.T) {
	svc, ledgerStore, pub, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Setup(ctx, "t1", 499)
	require.NoError(t, err)
	before := pub.count()

	samePrice := int64(499)
	override := false
	res, err := svc.ApplyAdminEdit(ctx, "t1", AdminPatch{MonthlyPrice: &samePrice, OverrideAccess: &override})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	assert.Len(t, entries(t, ledgerStore, "t1"), 1)
	assert.Equal(t, before, pub.count(), "no-op edits must not publish")
}

func TestApplyAdminEdit_WarnsWhenOverrideMaskedByPaidPeriod(t *testing.T) {
	svc, _, _, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.Setup(ctx, "t1", 499)
	require.NoError(t, err)
	_, err = svc.ExtendPaid(ctx, "t1", 1)
	require.NoError(t, err)

	override := true
	res, err := svc.ApplyAdminEdit(ctx, "t1", AdminPatch{OverrideAccess: &override})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarnOverrideMasked, res.Warnings[0])
	assert.Equal(t, StatusActive, res.Status, "paid period still wins while it runs")

	// Once the paid period lapses the stored flag carries access.
	clock.Advance(32 * 24 * time.Hour)
	_, status, err := svc.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusGrant, status)
}

func TestApplyAdminEdit_DisableAndReenable(t *testing.T) {
	svc, ledgerStore, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Setup(ctx, "t1", 499)
	require.NoError(t, err)
	_, err = svc.ExtendPaid(ctx, "t1", 1)
	require.NoError(t, err)

	disabled := true
	res, err := svc.ApplyAdminEdit(ctx, "t1", AdminPatch{Disabled: &disabled})
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, res.Status)

	disabled = false
	res, err = svc.ApplyAdminEdit(ctx, "t1", AdminPatch{Disabled: &disabled})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, res.Status, "re-enabling restores the still-running paid period")

	got := entries(t, ledgerStore, "t1")
	assert.Equal(t, ledger.ActionAdminOverride, got[len(got)-1].Action)
	assert.Equal(t, ledger.ActionAdminOverride, got[len(got)-2].Action)
}

func TestApplyAdminEdit_NotFound(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	price := int64(100)
	_, err := svc.ApplyAdminEdit(context.Background(), "ghost", AdminPatch{MonthlyPrice: &price})
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- ExtendPaid ---

func TestExtendPaid_FromNoPeriod(t *testing.T) {
	svc, _, _, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.Setup(ctx, "t1", 499)
	require.NoError(t, err)

	row, err := svc.ExtendPaid(ctx, "t1", 1)
	require.NoError(t, err)
	require.NotNil(t, row.EndDate)
	assert.Equal(t, clock.Now().UTC().AddDate(0, 1, 0), row.EndDate.UTC())
}

func TestExtendPaid_StacksOnRunningPeriod(t *testing.T) {
	svc, _, _, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.Setup(ctx, "t1", 499)
	require.NoError(t, err)

	first, err := svc.ExtendPaid(ctx, "t1", 2)
	require.NoError(t, err)

	// Paying again mid-period appends after the current expiry, so the
	// remaining time is kept.
	clock.Advance(24 * time.Hour)
	second, err := svc.ExtendPaid(ctx, "t1", 3)
	require.NoError(t, err)
	assert.Equal(t, first.EndDate.UTC().AddDate(0, 3, 0), second.EndDate.UTC())
}

func TestExtendPaid_LapsedPeriodRestartsFromNow(t *testing.T) {
	svc, _, _, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.Setup(ctx, "t1", 499)
	require.NoError(t, err)
	_, err = svc.ExtendPaid(ctx, "t1", 1)
	require.NoError(t, err)

	// Let the period lapse entirely, then renew.
	clock.Advance(90 * 24 * time.Hour)
	row, err := svc.ExtendPaid(ctx, "t1", 1)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().UTC().AddDate(0, 1, 0), row.EndDate.UTC())
}

func TestExtendPaid_RejectsNonPositiveMonths(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Setup(ctx, "t1", 499)
	require.NoError(t, err)

	_, err = svc.ExtendPaid(ctx, "t1", 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.ExtendPaid(ctx, "t1", -1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

// --- List ---

func TestList_ResolvesEveryTenant(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Setup(ctx, "a", 499)
	require.NoError(t, err)
	_, err = svc.Setup(ctx, "b", 499)
	require.NoError(t, err)
	_, err = svc.ExtendPaid(ctx, "b", 1)
	require.NoError(t, err)

	results, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, StatusExpired, results[0].Status)
	assert.Equal(t, StatusActive, results[1].Status)
}

// --- Concurrency ---

func TestApplyAdminEdit_ConcurrentEditsAllLand(t *testing.T) {
	svc, ledgerStore, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Setup(ctx, "t1", 499)
	require.NoError(t, err)

	// Concurrent edits to different fields must serialize under the tenant
	// lock rather than losing each other's writes.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		price := int64(999)
		_, _ = svc.ApplyAdminEdit(ctx, "t1", AdminPatch{MonthlyPrice: &price})
	}()
	go func() {
		defer wg.Done()
		override := true
		_, _ = svc.ApplyAdminEdit(ctx, "t1", AdminPatch{OverrideAccess: &override})
	}()
	wg.Wait()

	row, _, err := svc.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(999), row.MonthlyPrice)
	assert.True(t, row.OverrideAccess)
	assert.Len(t, entries(t, ledgerStore, "t1"), 3)
}
