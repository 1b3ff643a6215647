package ledger

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionType_Valid(t *testing.T) {
	for _, a := range []ActionType{ActionInitialSetup, ActionPriceChange, ActionPayment, ActionAdminOverride} {
		assert.True(t, a.Valid(), "%s should be valid", a)
	}
	assert.False(t, ActionType("REFUND").Valid())
	assert.False(t, ActionType("").Valid())
}

func TestRecord_AppendsEntry(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	amount := int64(499)
	e, err := l.Record(ctx, "t1", ActionPayment, &amount, "payment pay_1 for order ord_1: 1 month(s)")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(e.ID, "ent_"))
	assert.Equal(t, "t1", e.TenantID)
	require.NotNil(t, e.Amount)
	assert.Equal(t, int64(499), *e.Amount)
	assert.False(t, e.CreatedAt.IsZero())

	got, err := l.History(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ActionPayment, got[0].Action)
}

func TestRecord_Validation(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	_, err := l.Record(ctx, "", ActionPayment, nil, "no tenant")
	assert.ErrorIs(t, err, ErrMissingTenant)

	_, err = l.Record(ctx, "t1", ActionType("REFUND"), nil, "bad action")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestHistory_ChronologicalOrder(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	actions := []ActionType{ActionInitialSetup, ActionPriceChange, ActionPayment}
	for _, a := range actions {
		_, err := l.Record(ctx, "t1", a, nil, string(a))
		require.NoError(t, err)
	}

	got, err := l.History(ctx, "t1", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, a := range actions {
		assert.Equal(t, a, got[i].Action)
	}
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].CreatedAt.Before(got[i-1].CreatedAt),
			"entries must be non-decreasing in time")
	}
}

func TestHistory_LimitKeepsMostRecent(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := l.Record(ctx, "t1", ActionPriceChange, nil, fmt.Sprintf("change %d", i))
		require.NoError(t, err)
	}

	got, err := l.History(ctx, "t1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "change 3", got[0].Details)
	assert.Equal(t, "change 4", got[1].Details)
}

func TestHistory_TenantIsolation(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	_, err := l.Record(ctx, "a", ActionInitialSetup, nil, "")
	require.NoError(t, err)
	_, err = l.Record(ctx, "b", ActionInitialSetup, nil, "")
	require.NoError(t, err)

	got, err := l.History(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].TenantID)
}

func TestHistory_EmptyTenant(t *testing.T) {
	l := New(NewMemoryStore())

	got, err := l.History(context.Background(), "ghost", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStore_ClampsBackwardsClock(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Append(ctx, &Entry{ID: "ent_1", TenantID: "t1", Action: ActionInitialSetup, CreatedAt: base}))
	// A wall-clock step backwards must not reorder the trail.
	require.NoError(t, store.Append(ctx, &Entry{ID: "ent_2", TenantID: "t1", Action: ActionPayment, CreatedAt: base.Add(-time.Hour)}))

	got, err := store.ListByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, base, got[1].CreatedAt, "second entry clamped to the first's timestamp")
}

func TestMemoryStore_CopiesOnRead(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, &Entry{ID: "ent_1", TenantID: "t1", Action: ActionInitialSetup, Details: "original", CreatedAt: time.Now()}))

	got, err := store.ListByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	got[0].Details = "mutated"

	again, err := store.ListByTenant(ctx, "t1", 10)
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Details)
}
